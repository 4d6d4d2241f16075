// Package cleanup はアウトパフォーマー履歴の自動削除ジョブを提供する。
// 保持期間（デフォルト365日）を超過した履歴を日次バッチで削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/outperformer/internal/metrics"
)

// HistoryPruner は保持期間を超過した履歴を削除するインターフェース。
type HistoryPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupJob は保持期間を超過した履歴の自動削除ジョブ。
// 削除対象がなくてもエラーにならず、何度実行しても結果は同じ。
type CleanupJob struct {
	pruner        HistoryPruner
	metrics       metrics.MetricsCollector
	logger        *slog.Logger
	RetentionDays int // 履歴の保持日数（デフォルト: 365）
	now           func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
// デフォルトの保持日数は365日。
func NewCleanupJob(pruner HistoryPruner, collector metrics.MetricsCollector, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		pruner:        pruner,
		metrics:       collector,
		logger:        logger,
		RetentionDays: 365,
		now:           time.Now,
	}
}

// Start はティッカーで定期的に削除を実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// 起動直後に1回実行（エラーはRun内でログ出力済み）
	_ = j.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("履歴クリーンアップジョブを停止しました")
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}

// Run は保持期間を超過した履歴を削除する。
// scanned_atがRetentionDays日前より古い履歴が対象。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := j.now()
	cutoff := start.AddDate(0, 0, -j.RetentionDays)

	deletedCount, err := j.pruner.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		j.logger.Error("履歴クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("履歴クリーンアップの実行に失敗: %w", err)
	}

	if j.metrics != nil {
		j.metrics.RecordCleanupDeleted(deletedCount)
	}

	duration := j.now().Sub(start)
	j.logger.Info("履歴クリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("retention_days", j.RetentionDays),
		slog.Time("cutoff", cutoff),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
