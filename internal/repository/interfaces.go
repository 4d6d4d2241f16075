// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/outperformer/internal/model"
)

// OutperformerRepository はアウトパフォーマー履歴の永続化インターフェース。
// 履歴は追記のみで、video_id単位の重複排除はこの層が保証する。
type OutperformerRepository interface {
	// InsertBatch は履歴をまとめて保存する。既存のvideo_idはスキップし、新規に保存した件数を返す。
	InsertBatch(ctx context.Context, entries []model.HistoryEntry) (int, error)

	// ListRecent はscanned_at降順で履歴を取得する。
	ListRecent(ctx context.Context, filter ListFilter) ([]model.HistoryEntry, error)

	// ListSince はsince以降にスキャンされた履歴をscanned_at昇順で取得する。
	ListSince(ctx context.Context, since time.Time) ([]model.HistoryEntry, error)

	// Summary はsince以降の履歴の集計を返す。
	Summary(ctx context.Context, since time.Time) (*HistorySummary, error)

	// PatternStats はsince以降のノイズ以外の履歴についてタイトルパターン別の件数と平均velocityを返す。
	PatternStats(ctx context.Context, since time.Time) ([]TagStat, error)

	// ThemeStats はsince以降のノイズ以外の履歴についてテーマ別の件数と平均velocityを返す。
	ThemeStats(ctx context.Context, since time.Time) ([]TagStat, error)

	// DeleteOlderThan はcutoffより前にスキャンされた履歴を削除し、削除件数を返す。
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ScanRunRepository はスキャン実行記録の永続化インターフェース。
type ScanRunRepository interface {
	// Create は実行中のスキャン記録を作成する。IDが空の場合は採番する。
	Create(ctx context.Context, run *model.ScanRun) error

	// Finish はスキャン記録の件数・状態・終了時刻を更新する。
	Finish(ctx context.Context, run *model.ScanRun) error

	// Latest は最新のスキャン記録を返す。存在しない場合はnilを返す。
	Latest(ctx context.Context) (*model.ScanRun, error)
}

// BatchStateRepository はバッチローテーション状態の永続化インターフェース。
type BatchStateRepository interface {
	// Get は現在の状態を返す。
	Get(ctx context.Context) (*model.BatchState, error)

	// Save は状態を更新する。
	Save(ctx context.Context, state *model.BatchState) error
}

// ListFilter は履歴一覧の絞り込み条件。
type ListFilter struct {
	Limit          int
	IncludeNoise   bool
	Classification model.Classification // 空の場合は絞り込まない
}

// TagStat はパターンまたはテーマ1件分の集計。
type TagStat struct {
	Name        string  `json:"name"`
	Count       int     `json:"count"`
	AvgVelocity float64 `json:"avg_velocity"`
}

// CategoryCount はチャンネルカテゴリ別の件数。
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// HistorySummary は履歴の集計結果。
type HistorySummary struct {
	Total            int             `json:"total"`
	Actionable       int             `json:"actionable"`
	Noise            int             `json:"noise"`
	Classifications  map[string]int  `json:"classifications"`
	NoiseTypes       map[string]int  `json:"noise_types"`
	TopCategories    []CategoryCount `json:"top_categories"`
	AvgVelocityScore float64         `json:"avg_velocity_score"`
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
