// Package trend は保存済みの履歴からパターン・テーマの推移を分析する。
// すべての関数は副作用を持たず、基準時刻nowを引数で受け取る。
package trend

import (
	"sort"
	"time"

	"github.com/hitoshi/outperformer/internal/model"
)

const day = 24 * time.Hour

// 比較に使う期間（基準時刻から遡った日数）
const (
	weekDays  = 7
	twoWeeks  = 14
	monthDays = 30
)

const (
	emergingChannelMin   = 2
	emergingChannelLimit = 10
)

// Status はパターン・テーマのライフサイクル段階。
type Status string

const (
	StatusEmerging  Status = "emerging"
	StatusPeaking   Status = "peaking"
	StatusStable    Status = "stable"
	StatusDeclining Status = "declining"
)

// Lifecycle はパターンまたはテーマ1件のライフサイクル判定結果。
type Lifecycle struct {
	Name     string `json:"name"`
	Status   Status `json:"status"`
	LastWeek int    `json:"last_week"`
	PrevWeek int    `json:"prev_week"`
	MonthAgo int    `json:"month_ago"`
}

// LifecycleReport は直近7日・7〜14日前・14〜30日前の比較結果。
type LifecycleReport struct {
	Patterns       []Lifecycle `json:"patterns"`
	Themes         []Lifecycle `json:"themes"`
	LastWeekVideos int         `json:"last_week_videos"`
	PrevWeekVideos int         `json:"prev_week_videos"`
	MonthAgoVideos int         `json:"month_ago_videos"`
}

// Change は週次比較の1項目。
type Change struct {
	Name  string `json:"name"`
	This  int    `json:"this_week"`
	Last  int    `json:"last_week"`
	Delta int    `json:"delta"`
}

// Changes は増加・減少・新規・消滅に分けた週次比較。
type Changes struct {
	Up   []Change `json:"up"`
	Down []Change `json:"down"`
	New  []Change `json:"new"`
	Gone []Change `json:"gone"`
}

// WeekOverWeek は今週と先週の比較結果。
type WeekOverWeek struct {
	Patterns      Changes `json:"patterns"`
	Themes        Changes `json:"themes"`
	Channels      Changes `json:"channels"`
	Categories    Changes `json:"categories"`
	TotalThisWeek int     `json:"total_this_week"`
	TotalLastWeek int     `json:"total_last_week"`
}

// EmergingChannel は今週の出現回数が増えたチャンネル。
type EmergingChannel struct {
	ChannelID   string `json:"channel_id"`
	ChannelName string `json:"channel_name"`
	Category    string `json:"category"`
	ThisWeek    int    `json:"this_week"`
	Previous    int    `json:"previous"`
}

// Report はトレンド分析の全結果。
type Report struct {
	GeneratedAt      time.Time            `json:"generated_at"`
	Lifecycle        LifecycleReport      `json:"lifecycle"`
	WeekOverWeek     WeekOverWeek         `json:"week_over_week"`
	EmergingChannels []EmergingChannel    `json:"emerging_channels"`
	TopPerformers    []model.HistoryEntry `json:"top_performers"`
}

// Analyze はすべての分析をまとめて実行する。
func Analyze(history []model.HistoryEntry, now time.Time, topLimit int) Report {
	return Report{
		GeneratedAt:      now,
		Lifecycle:        AnalyzeLifecycle(history, now),
		WeekOverWeek:     WeekOverWeekChanges(history, now),
		EmergingChannels: EmergingChannels(history, now),
		TopPerformers:    TopPerformers(history, now, topLimit),
	}
}

// inRange は基準時刻からfromDays日前（含む）〜toDays日前（含まない）にスキャンされた
// ノイズ以外の履歴を返す。toDaysが0の場合は基準時刻を含む。
func inRange(history []model.HistoryEntry, now time.Time, fromDays, toDays int) []model.HistoryEntry {
	start := now.Add(-time.Duration(fromDays) * day)
	end := now.Add(-time.Duration(toDays) * day)

	var out []model.HistoryEntry
	for _, e := range history {
		if e.IsNoise {
			continue
		}
		if e.ScannedAt.Before(start) {
			continue
		}
		if toDays == 0 {
			if e.ScannedAt.After(end) {
				continue
			}
		} else if !e.ScannedAt.Before(end) {
			continue
		}
		out = append(out, e)
	}
	return out
}

type counts map[string]int

func countTags(entries []model.HistoryEntry) (patterns, themes counts) {
	patterns, themes = counts{}, counts{}
	for _, e := range entries {
		for _, p := range e.Patterns {
			patterns[p]++
		}
		for _, t := range e.Themes {
			themes[t]++
		}
	}
	return patterns, themes
}

// AnalyzeLifecycle はパターン・テーマを3期間の出現回数でライフサイクルに分類する。
func AnalyzeLifecycle(history []model.HistoryEntry, now time.Time) LifecycleReport {
	last := inRange(history, now, weekDays, 0)
	prev := inRange(history, now, twoWeeks, weekDays)
	old := inRange(history, now, monthDays, twoWeeks)

	lastP, lastT := countTags(last)
	prevP, prevT := countTags(prev)
	oldP, oldT := countTags(old)

	return LifecycleReport{
		Patterns:       lifecycles(lastP, prevP, oldP),
		Themes:         lifecycles(lastT, prevT, oldT),
		LastWeekVideos: len(last),
		PrevWeekVideos: len(prev),
		MonthAgoVideos: len(old),
	}
}

func lifecycles(last, prev, old counts) []Lifecycle {
	out := []Lifecycle{}
	for _, name := range unionKeys(last, prev, old) {
		status, ok := classifyTrend(last[name], prev[name], old[name])
		if !ok {
			continue
		}
		out = append(out, Lifecycle{
			Name:     name,
			Status:   status,
			LastWeek: last[name],
			PrevWeek: prev[name],
			MonthAgo: old[name],
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].LastWeek != out[j].LastWeek {
			return out[i].LastWeek > out[j].LastWeek
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// classifyTrend は直近・前週・1か月前の件数から段階を判定する。
// 直近と前週の両方が0の場合は判定しない。
func classifyTrend(current, previous, old int) (Status, bool) {
	if current == 0 && previous == 0 {
		return "", false
	}

	c, p := float64(current), float64(previous)
	switch {
	case current > 0 && previous == 0 && old == 0:
		return StatusEmerging, true
	case c > p*1.5 && current > old:
		return StatusEmerging, true
	case previous > 0 && c < p*0.5:
		return StatusDeclining, true
	case current == 0:
		return StatusDeclining, true
	case current >= previous && current >= old && previous > old:
		return StatusPeaking, true
	default:
		return StatusStable, true
	}
}

// WeekOverWeekChanges は今週（直近7日）と先週（7〜14日前）を比較する。
func WeekOverWeekChanges(history []model.HistoryEntry, now time.Time) WeekOverWeek {
	this := inRange(history, now, weekDays, 0)
	last := inRange(history, now, twoWeeks, weekDays)

	thisP, thisT := countTags(this)
	lastP, lastT := countTags(last)

	return WeekOverWeek{
		Patterns:      diff(thisP, lastP),
		Themes:        diff(thisT, lastT),
		Channels:      diff(countBy(this, channelLabel), countBy(last, channelLabel)),
		Categories:    diff(countBy(this, categoryLabel), countBy(last, categoryLabel)),
		TotalThisWeek: len(this),
		TotalLastWeek: len(last),
	}
}

func channelLabel(e model.HistoryEntry) string {
	if e.ChannelName != "" {
		return e.ChannelName
	}
	return e.ChannelID
}

func categoryLabel(e model.HistoryEntry) string {
	if e.ChannelCategory != "" {
		return e.ChannelCategory
	}
	return "unknown"
}

func countBy(entries []model.HistoryEntry, key func(model.HistoryEntry) string) counts {
	c := counts{}
	for _, e := range entries {
		c[key(e)]++
	}
	return c
}

func diff(this, last counts) Changes {
	ch := Changes{Up: []Change{}, Down: []Change{}, New: []Change{}, Gone: []Change{}}
	for _, name := range unionKeys(this, last) {
		t, l := this[name], last[name]
		switch {
		case t > 0 && l == 0:
			ch.New = append(ch.New, Change{Name: name, This: t, Delta: t})
		case t == 0 && l > 0:
			ch.Gone = append(ch.Gone, Change{Name: name, Last: l, Delta: -l})
		case t > l:
			ch.Up = append(ch.Up, Change{Name: name, This: t, Last: l, Delta: t - l})
		case t < l:
			ch.Down = append(ch.Down, Change{Name: name, This: t, Last: l, Delta: t - l})
		}
	}
	byMagnitude(ch.Up)
	byMagnitude(ch.Down)
	byMagnitude(ch.New)
	byMagnitude(ch.Gone)
	return ch
}

// byMagnitude は変化量の絶対値の降順、同値は名前順に並べる。
func byMagnitude(cs []Change) {
	abs := func(n int) int {
		if n < 0 {
			return -n
		}
		return n
	}
	sort.SliceStable(cs, func(i, j int) bool {
		ai, aj := abs(cs[i].Delta), abs(cs[j].Delta)
		if ai != aj {
			return ai > aj
		}
		return cs[i].Name < cs[j].Name
	})
}

// EmergingChannels は今週2回以上出現し、過去3週間（7〜30日前）より多く出現したチャンネルを返す。
func EmergingChannels(history []model.HistoryEntry, now time.Time) []EmergingChannel {
	this := inRange(history, now, weekDays, 0)
	prev := inRange(history, now, monthDays, weekDays)

	prevCounts := countBy(prev, func(e model.HistoryEntry) string { return e.ChannelID })

	byID := map[string]*EmergingChannel{}
	var order []string
	for _, e := range this {
		c, ok := byID[e.ChannelID]
		if !ok {
			c = &EmergingChannel{ChannelID: e.ChannelID, ChannelName: e.ChannelName, Category: categoryLabel(e)}
			byID[e.ChannelID] = c
			order = append(order, e.ChannelID)
		}
		c.ThisWeek++
	}

	out := []EmergingChannel{}
	for _, id := range order {
		c := byID[id]
		c.Previous = prevCounts[id]
		if c.ThisWeek >= emergingChannelMin && c.ThisWeek > c.Previous {
			out = append(out, *c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ThisWeek != out[j].ThisWeek {
			return out[i].ThisWeek > out[j].ThisWeek
		}
		return out[i].ChannelID < out[j].ChannelID
	})
	if len(out) > emergingChannelLimit {
		out = out[:emergingChannelLimit]
	}
	return out
}

// TopPerformers は直近7日でvelocityが高い順にlimit件返す。
func TopPerformers(history []model.HistoryEntry, now time.Time, limit int) []model.HistoryEntry {
	this := inRange(history, now, weekDays, 0)
	sort.SliceStable(this, func(i, j int) bool {
		if this[i].VelocityScore != this[j].VelocityScore {
			return this[i].VelocityScore > this[j].VelocityScore
		}
		return this[i].VideoID < this[j].VideoID
	})
	if limit > 0 && len(this) > limit {
		this = this[:limit]
	}
	if this == nil {
		return []model.HistoryEntry{}
	}
	return this
}

func unionKeys(maps ...counts) []string {
	seen := map[string]bool{}
	var keys []string
	for _, m := range maps {
		for k := range m {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}
