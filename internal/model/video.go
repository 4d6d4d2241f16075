// Package model はドメインモデルを定義する。
package model

import "time"

const (
	// MaxDescriptionLength は保存時の説明文の上限（文字数）。
	MaxDescriptionLength = 500
	// MaxTags は保存時のタグ数の上限。
	MaxTags = 20
)

// Video は観測時点の動画と生のメトリクスを表す。
type Video struct {
	ID              string    `json:"video_id"`
	ChannelID       string    `json:"channel_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Views           int64     `json:"views"`
	Likes           int64     `json:"likes"`
	Comments        int64     `json:"comments"`
	DurationSeconds int64     `json:"duration_seconds"`
	PublishedAt     time.Time `json:"published_at"`
	ObservedAt      time.Time `json:"observed_at"`
	Tags            []string  `json:"tags"`
	ThumbnailURL    string    `json:"thumbnail_url"`
}

// AgeHours は公開から観測までの経過時間（時間単位）を返す。
func (v Video) AgeHours() float64 {
	return v.ObservedAt.Sub(v.PublishedAt).Hours()
}

// URL は動画の視聴URLを返す。
func (v Video) URL() string {
	return "https://youtube.com/watch?v=" + v.ID
}

// Snapshot は保存用の上限を適用したコピーを返す。
// タグのスライスは複製され、元の動画の変更は影響しない。
func (v Video) Snapshot() Video {
	s := v
	s.Description = truncateRunes(v.Description, MaxDescriptionLength)
	n := len(v.Tags)
	if n > MaxTags {
		n = MaxTags
	}
	s.Tags = make([]string, n)
	copy(s.Tags, v.Tags[:n])
	return s
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
