// Package engine はアウトパフォーム動画の判定エンジンを提供する。
// フィルタ、スコアリング、分類、タグ付け、ノイズ判定を順に適用する純粋な変換で、
// 入出力や状態を持たない。
package engine

import (
	"sort"

	"github.com/hitoshi/outperformer/internal/model"
)

// Engine は検証済みのルールを保持する判定エンジン。
// 構築後は読み取り専用のため、複数のgoroutineから同時に利用できる。
type Engine struct {
	rules *compiledRules
	noise []noiseRule
}

// New はルールを検証してEngineを生成する。
// 設定に不備がある場合は model.ErrInvalidConfig をラップしたエラーを返す。
func New(rules Rules) (*Engine, error) {
	compiled, err := compileRules(rules)
	if err != nil {
		return nil, err
	}
	return &Engine{
		rules: compiled,
		noise: noiseRules(compiled.highlights),
	}, nil
}

// HasCategory はカテゴリが定義済みかを返す。大文字小文字は区別しない。
func (e *Engine) HasCategory(category string) bool {
	_, ok := e.rules.categories[normalizeKey(category)]
	return ok
}

func (e *Engine) profile(category string) (CategoryProfile, error) {
	p, ok := e.rules.categories[normalizeKey(category)]
	if !ok {
		return CategoryProfile{}, model.NewUnknownCategoryError(category)
	}
	return p, nil
}

// validateInput は入力レコードの不正を検出する。
// 不正な値を既定値に置き換えることはしない。
func validateInput(ch model.Channel, v model.Video) error {
	if ch.ID == "" {
		return model.NewMissingIDError("channel_id")
	}
	if v.ID == "" {
		return model.NewMissingIDError("video_id")
	}
	if v.ChannelID != "" && v.ChannelID != ch.ID {
		return model.NewChannelMismatchError(v.ID, ch.ID)
	}
	if ch.SubscriberCount < 0 {
		return model.NewNegativeFieldError(ch.ID, "subscriber_count", ch.SubscriberCount)
	}
	if ch.SubscriberCount == 0 {
		return model.NewZeroSubscriberError(ch.ID)
	}

	fields := []struct {
		name  string
		value int64
	}{
		{"views", v.Views},
		{"likes", v.Likes},
		{"comments", v.Comments},
		{"duration_seconds", v.DurationSeconds},
	}
	for _, f := range fields {
		if f.value < 0 {
			return model.NewNegativeFieldError(v.ID, f.name, f.value)
		}
	}

	if v.ObservedAt.Before(v.PublishedAt) {
		return model.NewTimeOrderError(v.ID)
	}
	return nil
}

// Evaluate は1組のチャンネルと動画を判定する。
// 採用された場合はOutperformerを返し、除外された場合はnilと除外理由を返す。
// 入力不正の場合は *model.EngineError を返す。
func (e *Engine) Evaluate(ch model.Channel, v model.Video) (*model.Outperformer, Decision, error) {
	profile, err := e.profile(ch.Category)
	if err != nil {
		return nil, Decision{}, err
	}
	if err := validateInput(ch, v); err != nil {
		return nil, Decision{}, err
	}

	d, err := filter(ch, v, profile)
	if err != nil {
		return nil, Decision{}, err
	}
	if !d.Admit {
		return nil, d, nil
	}

	op, err := e.build(ch, v, profile, d)
	if err != nil {
		return nil, d, err
	}
	return op, d, nil
}

// build はフィルタを通過した動画からOutperformerを構築する。
func (e *Engine) build(ch model.Channel, v model.Video, profile CategoryProfile, d Decision) (*model.Outperformer, error) {
	velocity, err := Velocity(d.Ratio, d.AgeHours, v.ID)
	if err != nil {
		return nil, err
	}

	snap := v.Snapshot()
	s := newSubject(snap.Title, snap.Description, snap.Tags, ch.ID, ch.Name, profile)
	isNoise, noiseType := detectNoise(e.noise, s)

	return &model.Outperformer{
		Video:          snap,
		Channel:        ch,
		AgeHours:       d.AgeHours,
		Ratio:          d.Ratio,
		VelocityScore:  velocity,
		Classification: Classify(d.AgeHours, velocity, ch.Category),
		TitlePatterns:  matchPatterns(s),
		Themes:         matchThemes(e.rules.themes, s),
		IsNoise:        isNoise,
		NoiseType:      noiseType,
	}, nil
}

// RecordFailure は入力不正で判定できなかったレコード。
type RecordFailure struct {
	VideoID   string
	ChannelID string
	Err       error
}

// Result はスキャンサイクル1回分の判定結果。
type Result struct {
	Outperformers []model.Outperformer
	// MidPerformers はスポーツ系で ratio 閾値のみを満たさなかった準アウトパフォーマー。
	// Outperformers には混ぜない。
	MidPerformers []model.Outperformer
	Rejections    map[RejectReason]int
	Failures      []RecordFailure
	Evaluated     int
}

// Run はすべての組を独立に判定する。
// 入力不正のレコードは Failures に集め、スキップするか中断するかは呼び出し側が決める。
func (e *Engine) Run(pairs []model.Pair) Result {
	res := Result{
		Outperformers: []model.Outperformer{},
		MidPerformers: []model.Outperformer{},
		Rejections:    map[RejectReason]int{},
	}

	for _, p := range pairs {
		res.Evaluated++

		op, d, err := e.Evaluate(p.Channel, p.Video)
		if err != nil {
			res.Failures = append(res.Failures, RecordFailure{
				VideoID:   p.Video.ID,
				ChannelID: p.Channel.ID,
				Err:       err,
			})
			continue
		}
		if op != nil {
			res.Outperformers = append(res.Outperformers, *op)
			continue
		}

		res.Rejections[d.Reason]++
		if mid := e.midPerformer(p.Channel, p.Video, d); mid != nil {
			res.MidPerformers = append(res.MidPerformers, *mid)
		}
	}

	sort.SliceStable(res.Outperformers, func(i, j int) bool {
		a, b := res.Outperformers[i], res.Outperformers[j]
		if a.VelocityScore != b.VelocityScore {
			return a.VelocityScore > b.VelocityScore
		}
		return a.Video.ID < b.Video.ID
	})
	sort.SliceStable(res.MidPerformers, func(i, j int) bool {
		a, b := res.MidPerformers[i], res.MidPerformers[j]
		if a.Ratio != b.Ratio {
			return a.Ratio > b.Ratio
		}
		return a.Video.ID < b.Video.ID
	})

	return res
}

// midPerformer はスポーツ系でratioのみが足りなかった動画を準アウトパフォーマーとして構築する。
// 分類は常にstandard。
func (e *Engine) midPerformer(ch model.Channel, v model.Video, d Decision) *model.Outperformer {
	if d.Reason != RejectRatio || d.Ratio < MidRatioThreshold {
		return nil
	}
	profile, err := e.profile(ch.Category)
	if err != nil || !profile.IsSports {
		return nil
	}
	op, err := e.build(ch, v, profile, d)
	if err != nil {
		return nil
	}
	op.Classification = model.ClassificationStandard
	return op
}
