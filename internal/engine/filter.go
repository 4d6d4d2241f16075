package engine

import (
	"strings"

	"github.com/hitoshi/outperformer/internal/model"
)

const (
	// ShortsMaxSeconds 未満の動画はショート動画として除外する。
	ShortsMaxSeconds = 180
	// MinAgeHours と MaxAgeHours は観測窓（両端を含む）。
	MinAgeHours = 48.0
	MaxAgeHours = 168.0
	// MinViews は採用に必要な最低再生数。
	MinViews = 10000
	// MidRatioThreshold はスポーツ系の準アウトパフォーマーの下限ratio。
	MidRatioThreshold = 0.5
)

// RejectReason はフィルタで除外された理由を表す。
type RejectReason string

const (
	RejectNone      RejectReason = ""
	RejectShorts    RejectReason = "shorts"
	RejectAgeWindow RejectReason = "age_window"
	RejectViewFloor RejectReason = "view_floor"
	RejectRatio     RejectReason = "ratio"
)

// Decision はフィルタの判定結果。
// Ratio は比率判定まで到達した場合のみ設定される。
type Decision struct {
	Admit    bool         `json:"admit"`
	Reason   RejectReason `json:"reason,omitempty"`
	AgeHours float64      `json:"age_hours"`
	Ratio    float64      `json:"ratio"`
}

var shortsHashtags = []string{"#shorts", "#short", "#ytshorts"}

// isShort はショート動画かを判定する。
// 再生時間が取得できない（0秒）動画もショートとして扱う。
func isShort(v model.Video) bool {
	if v.DurationSeconds < ShortsMaxSeconds {
		return true
	}
	title := strings.ToLower(v.Title)
	for _, tag := range shortsHashtags {
		if strings.Contains(title, tag) {
			return true
		}
	}
	for _, tag := range v.Tags {
		switch strings.ToLower(strings.TrimSpace(tag)) {
		case "shorts", "short", "ytshorts":
			return true
		}
	}
	return false
}

// filter は動画が観測対象として採用されるかを判定する。
// 判定は短絡評価で、ショート、観測窓、最低再生数、ratio閾値の順に行う。
func filter(ch model.Channel, v model.Video, profile CategoryProfile) (Decision, error) {
	d := Decision{AgeHours: v.AgeHours()}

	if isShort(v) {
		d.Reason = RejectShorts
		return d, nil
	}
	if d.AgeHours < MinAgeHours || d.AgeHours > MaxAgeHours {
		d.Reason = RejectAgeWindow
		return d, nil
	}
	if v.Views < MinViews {
		d.Reason = RejectViewFloor
		return d, nil
	}

	ratio, err := Ratio(v.Views, ch.SubscriberCount, ch.ID)
	if err != nil {
		return Decision{}, err
	}
	d.Ratio = ratio
	if ratio < profile.RatioThreshold {
		d.Reason = RejectRatio
		return d, nil
	}

	d.Admit = true
	return d, nil
}
