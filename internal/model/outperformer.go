// Package model はドメインモデルを定義する。
package model

import "time"

// Classification はアウトパフォームの種類を表す。
type Classification string

const (
	// ClassificationTrendJacker は公開直後に急伸した動画。
	ClassificationTrendJacker Classification = "trend_jacker"
	// ClassificationAuthorityBuilder は観測窓の終わりでも伸び続けている動画。
	ClassificationAuthorityBuilder Classification = "authority_builder"
	// ClassificationStandard はどちらにも該当しない動画。
	ClassificationStandard Classification = "standard"
)

// NoiseType はノイズ判定の種類を表す。
type NoiseType string

const (
	NoiseEventRecap    NoiseType = "event_recap"
	NoiseLiveStream    NoiseType = "live_stream"
	NoisePoliticalNews NoiseType = "political_news"
	NoiseNone          NoiseType = "none"
)

// Outperformer はエンジンの出力レコード。
// Video と Channel は値としてコピーされ、構築後に変更されない。
type Outperformer struct {
	Video          Video          `json:"video"`
	Channel        Channel        `json:"channel"`
	AgeHours       float64        `json:"age_hours"`
	Ratio          float64        `json:"ratio"`
	VelocityScore  float64        `json:"velocity_score"`
	Classification Classification `json:"classification"`
	TitlePatterns  []string       `json:"title_patterns"`
	Themes         []string       `json:"themes"`
	IsNoise        bool           `json:"is_noise"`
	NoiseType      NoiseType      `json:"noise_type"`
}

// HistoryEntry は保存済みのアウトパフォーマー1件を表す。
// 重複排除（video_id単位）と保持期間は永続化層が管理する。
type HistoryEntry struct {
	ID              string         `json:"id"`
	ScanRunID       string         `json:"scan_run_id,omitempty"`
	VideoID         string         `json:"video_id"`
	ChannelID       string         `json:"channel_id"`
	ChannelName     string         `json:"channel_name"`
	ChannelCategory string         `json:"channel_category"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	Views           int64          `json:"views"`
	Subscribers     int64          `json:"subscribers"`
	DurationSeconds int64          `json:"duration_seconds"`
	Ratio           float64        `json:"ratio"`
	VelocityScore   float64        `json:"velocity_score"`
	AgeHours        float64        `json:"age_hours"`
	Classification  Classification `json:"classification"`
	Patterns        []string       `json:"patterns"`
	Themes          []string       `json:"themes"`
	Tags            []string       `json:"tags"`
	IsNoise         bool           `json:"is_noise"`
	NoiseType       NoiseType      `json:"noise_type"`
	ThumbnailURL    string         `json:"thumbnail_url"`
	PublishedAt     time.Time      `json:"published_at"`
	ScannedAt       time.Time      `json:"scanned_at"`
}

// スキャン実行の状態
const (
	ScanStatusRunning   = "running"
	ScanStatusCompleted = "completed"
	ScanStatusAborted   = "aborted"
	ScanStatusFailed    = "failed"
)

// Entry は保存用の履歴レコードに変換する。IDは永続化層が採番する。
func (o Outperformer) Entry(scanRunID string, scannedAt time.Time) HistoryEntry {
	return HistoryEntry{
		ScanRunID:       scanRunID,
		VideoID:         o.Video.ID,
		ChannelID:       o.Channel.ID,
		ChannelName:     o.Channel.Name,
		ChannelCategory: o.Channel.Category,
		Title:           o.Video.Title,
		Description:     o.Video.Description,
		Views:           o.Video.Views,
		Subscribers:     o.Channel.SubscriberCount,
		DurationSeconds: o.Video.DurationSeconds,
		Ratio:           o.Ratio,
		VelocityScore:   o.VelocityScore,
		AgeHours:        o.AgeHours,
		Classification:  o.Classification,
		Patterns:        o.TitlePatterns,
		Themes:          o.Themes,
		Tags:            o.Video.Tags,
		IsNoise:         o.IsNoise,
		NoiseType:       o.NoiseType,
		ThumbnailURL:    o.Video.ThumbnailURL,
		PublishedAt:     o.Video.PublishedAt,
		ScannedAt:       scannedAt,
	}
}

// ScanRun はスキャンサイクル1回分の実行記録。
type ScanRun struct {
	ID                string     `json:"id"`
	Status            string     `json:"status"`
	BatchNumber       int        `json:"batch_number"`
	TotalBatches      int        `json:"total_batches"`
	ChannelCount      int        `json:"channel_count"`
	VideoCount        int        `json:"video_count"`
	OutperformerCount int        `json:"outperformer_count"`
	NoiseCount        int        `json:"noise_count"`
	FailureCount      int        `json:"failure_count"`
	StartedAt         time.Time  `json:"started_at"`
	FinishedAt        *time.Time `json:"finished_at,omitempty"`
}

// BatchState はチャンネルリストのバッチローテーション状態。
type BatchState struct {
	CurrentBatch int
	TotalBatches int
	LastRunAt    *time.Time
}
