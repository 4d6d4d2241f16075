package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/outperformer/internal/model"
)

// PostgresScanRunRepo はPostgreSQLを使用したスキャン実行記録リポジトリ。
type PostgresScanRunRepo struct {
	db *sql.DB
}

// NewPostgresScanRunRepo はPostgresScanRunRepoを生成する。
func NewPostgresScanRunRepo(db *sql.DB) *PostgresScanRunRepo {
	return &PostgresScanRunRepo{db: db}
}

// Create は実行中のスキャン記録を作成する。
func (r *PostgresScanRunRepo) Create(ctx context.Context, run *model.ScanRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Status == "" {
		run.Status = model.ScanStatusRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO scan_runs (id, batch_number, total_batches, channel_count, status, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, run.BatchNumber, run.TotalBatches, run.ChannelCount, run.Status, run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("スキャン記録の作成に失敗しました: %w", err)
	}
	return nil
}

// Finish はスキャン記録の件数・状態・終了時刻を更新する。
func (r *PostgresScanRunRepo) Finish(ctx context.Context, run *model.ScanRun) error {
	if run.FinishedAt == nil {
		now := time.Now()
		run.FinishedAt = &now
	}

	_, err := r.db.ExecContext(ctx,
		`UPDATE scan_runs SET
		    channel_count = $2, video_count = $3, outperformer_count = $4,
		    noise_count = $5, failure_count = $6, status = $7, finished_at = $8
		 WHERE id = $1`,
		run.ID, run.ChannelCount, run.VideoCount, run.OutperformerCount,
		run.NoiseCount, run.FailureCount, run.Status, *run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("スキャン記録の更新に失敗しました: %w", err)
	}
	return nil
}

// Latest は開始時刻が最も新しいスキャン記録を返す。存在しない場合はnilを返す。
func (r *PostgresScanRunRepo) Latest(ctx context.Context) (*model.ScanRun, error) {
	run := &model.ScanRun{}
	var finishedAt sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT id, status, batch_number, total_batches, channel_count, video_count,
		        outperformer_count, noise_count, failure_count, started_at, finished_at
		 FROM scan_runs
		 ORDER BY started_at DESC
		 LIMIT 1`,
	).Scan(
		&run.ID, &run.Status, &run.BatchNumber, &run.TotalBatches, &run.ChannelCount, &run.VideoCount,
		&run.OutperformerCount, &run.NoiseCount, &run.FailureCount, &run.StartedAt, &finishedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("最新のスキャン記録の取得に失敗しました: %w", err)
	}

	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	return run, nil
}
