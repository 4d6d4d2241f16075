package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/outperformer/internal/model"
)

// PostgresBatchStateRepo はPostgreSQLを使用したバッチ状態リポジトリ。
// scan_batch_stateは1行のみのテーブルで、マイグレーションで初期行を作成する。
type PostgresBatchStateRepo struct {
	db *sql.DB
}

// NewPostgresBatchStateRepo はPostgresBatchStateRepoを生成する。
func NewPostgresBatchStateRepo(db *sql.DB) *PostgresBatchStateRepo {
	return &PostgresBatchStateRepo{db: db}
}

// Get は現在のバッチ状態を返す。初期行が存在しない場合はゼロ値を返す。
func (r *PostgresBatchStateRepo) Get(ctx context.Context) (*model.BatchState, error) {
	state := &model.BatchState{}
	var lastRunAt sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT current_batch, total_batches, last_run_at FROM scan_batch_state WHERE id = 1`,
	).Scan(&state.CurrentBatch, &state.TotalBatches, &lastRunAt)
	if err == sql.ErrNoRows {
		return state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("バッチ状態の取得に失敗しました: %w", err)
	}

	if lastRunAt.Valid {
		t := lastRunAt.Time
		state.LastRunAt = &t
	}
	return state, nil
}

// Save はバッチ状態をUPSERTする。
func (r *PostgresBatchStateRepo) Save(ctx context.Context, state *model.BatchState) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO scan_batch_state (id, current_batch, total_batches, last_run_at)
		 VALUES (1, $1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET
		    current_batch = EXCLUDED.current_batch,
		    total_batches = EXCLUDED.total_batches,
		    last_run_at = EXCLUDED.last_run_at`,
		state.CurrentBatch, state.TotalBatches, state.LastRunAt,
	)
	if err != nil {
		return fmt.Errorf("バッチ状態の保存に失敗しました: %w", err)
	}
	return nil
}
