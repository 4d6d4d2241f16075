package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hitoshi/outperformer/internal/model"
)

// topCategoryLimit はSummaryで返すカテゴリの上限。
const topCategoryLimit = 10

const outperformerColumns = `id, scan_run_id, video_id, channel_id, channel_name, channel_category,
		        title, description, views, subscribers, duration_seconds,
		        ratio, velocity_score, age_hours, classification,
		        patterns, themes, tags, is_noise, noise_type, thumbnail_url,
		        published_at, scanned_at`

// PostgresOutperformerRepo はPostgreSQLを使用したアウトパフォーマー履歴リポジトリ。
type PostgresOutperformerRepo struct {
	db *sql.DB
}

// NewPostgresOutperformerRepo はPostgresOutperformerRepoを生成する。
func NewPostgresOutperformerRepo(db *sql.DB) *PostgresOutperformerRepo {
	return &PostgresOutperformerRepo{db: db}
}

// InsertBatch は履歴を1トランザクションで保存する。
// video_idが既に存在する行はON CONFLICTでスキップされ、件数に含まれない。
func (r *PostgresOutperformerRepo) InsertBatch(ctx context.Context, entries []model.HistoryEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO outperformers (`+outperformerColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		         $16, $17, $18, $19, $20, $21, $22, $23)
		 ON CONFLICT (video_id) DO NOTHING`,
	)
	if err != nil {
		return 0, fmt.Errorf("履歴保存クエリの準備に失敗しました: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i := range entries {
		e := &entries[i]
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		if e.ScannedAt.IsZero() {
			e.ScannedAt = time.Now()
		}

		res, err := stmt.ExecContext(ctx,
			e.ID, nullString(e.ScanRunID), e.VideoID, e.ChannelID, e.ChannelName, e.ChannelCategory,
			e.Title, e.Description, e.Views, e.Subscribers, e.DurationSeconds,
			e.Ratio, e.VelocityScore, e.AgeHours, string(e.Classification),
			pq.Array(nonNil(e.Patterns)), pq.Array(nonNil(e.Themes)), pq.Array(nonNil(e.Tags)),
			e.IsNoise, string(noiseTypeOrNone(e.NoiseType)), e.ThumbnailURL,
			e.PublishedAt, e.ScannedAt,
		)
		if err != nil {
			return 0, fmt.Errorf("履歴の保存に失敗しました (video_id=%s): %w", e.VideoID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("保存件数の取得に失敗しました: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return inserted, nil
}

// ListRecent はscanned_at降順で履歴を取得する。
func (r *PostgresOutperformerRepo) ListRecent(ctx context.Context, filter ListFilter) ([]model.HistoryEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+outperformerColumns+`
		 FROM outperformers
		 WHERE ($1 OR NOT is_noise)
		   AND ($2 = '' OR classification = $2)
		 ORDER BY scanned_at DESC, velocity_score DESC, video_id ASC
		 LIMIT $3`,
		filter.IncludeNoise, string(filter.Classification), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("履歴一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ListSince はsince以降にスキャンされた履歴をscanned_at昇順で取得する。
func (r *PostgresOutperformerRepo) ListSince(ctx context.Context, since time.Time) ([]model.HistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+outperformerColumns+`
		 FROM outperformers
		 WHERE scanned_at >= $1
		 ORDER BY scanned_at ASC, video_id ASC`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("期間指定の履歴取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Summary はsince以降の履歴の集計を返す。
func (r *PostgresOutperformerRepo) Summary(ctx context.Context, since time.Time) (*HistorySummary, error) {
	s := &HistorySummary{
		Classifications: make(map[string]int),
		NoiseTypes:      make(map[string]int),
		TopCategories:   []CategoryCount{},
	}

	var avg sql.NullFloat64
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*),
		        count(*) FILTER (WHERE NOT is_noise),
		        count(*) FILTER (WHERE is_noise),
		        avg(velocity_score) FILTER (WHERE NOT is_noise)
		 FROM outperformers WHERE scanned_at >= $1`,
		since,
	).Scan(&s.Total, &s.Actionable, &s.Noise, &avg)
	if err != nil {
		return nil, fmt.Errorf("履歴件数の集計に失敗しました: %w", err)
	}
	s.AvgVelocityScore = avg.Float64

	if err := r.countInto(ctx, s.Classifications,
		`SELECT classification, count(*) FROM outperformers
		 WHERE scanned_at >= $1 AND NOT is_noise
		 GROUP BY classification`, since); err != nil {
		return nil, fmt.Errorf("分類別件数の集計に失敗しました: %w", err)
	}

	if err := r.countInto(ctx, s.NoiseTypes,
		`SELECT noise_type, count(*) FROM outperformers
		 WHERE scanned_at >= $1 AND is_noise
		 GROUP BY noise_type`, since); err != nil {
		return nil, fmt.Errorf("ノイズ種別件数の集計に失敗しました: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT channel_category, count(*) AS n FROM outperformers
		 WHERE scanned_at >= $1 AND NOT is_noise
		 GROUP BY channel_category
		 ORDER BY n DESC, channel_category ASC
		 LIMIT $2`,
		since, topCategoryLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("カテゴリ別件数の集計に失敗しました: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c CategoryCount
		if err := rows.Scan(&c.Category, &c.Count); err != nil {
			return nil, fmt.Errorf("カテゴリ別件数の読み取りに失敗しました: %w", err)
		}
		s.TopCategories = append(s.TopCategories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("カテゴリ別件数の読み取りに失敗しました: %w", err)
	}

	return s, nil
}

func (r *PostgresOutperformerRepo) countInto(ctx context.Context, dst map[string]int, query string, since time.Time) error {
	rows, err := r.db.QueryContext(ctx, query, since)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		dst[key] = n
	}
	return rows.Err()
}

// PatternStats はタイトルパターン別の件数と平均velocityを件数降順で返す。
func (r *PostgresOutperformerRepo) PatternStats(ctx context.Context, since time.Time) ([]TagStat, error) {
	return r.tagStats(ctx, "patterns", since)
}

// ThemeStats はテーマ別の件数と平均velocityを件数降順で返す。
func (r *PostgresOutperformerRepo) ThemeStats(ctx context.Context, since time.Time) ([]TagStat, error) {
	return r.tagStats(ctx, "themes", since)
}

// tagStats は配列カラムを展開して集計する。columnは固定値のみ渡すこと。
func (r *PostgresOutperformerRepo) tagStats(ctx context.Context, column string, since time.Time) ([]TagStat, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT tag, count(*) AS n, avg(velocity_score)
		 FROM outperformers, unnest(`+column+`) AS tag
		 WHERE scanned_at >= $1 AND NOT is_noise
		 GROUP BY tag
		 ORDER BY n DESC, tag ASC`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("%s の集計に失敗しました: %w", column, err)
	}
	defer rows.Close()

	stats := []TagStat{}
	for rows.Next() {
		var s TagStat
		if err := rows.Scan(&s.Name, &s.Count, &s.AvgVelocity); err != nil {
			return nil, fmt.Errorf("%s の集計結果の読み取りに失敗しました: %w", column, err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s の集計結果の読み取りに失敗しました: %w", column, err)
	}
	return stats, nil
}

// DeleteOlderThan はcutoffより前にスキャンされた履歴を削除する。
func (r *PostgresOutperformerRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM outperformers WHERE scanned_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("古い履歴の削除に失敗しました: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return n, nil
}

func scanEntries(rows *sql.Rows) ([]model.HistoryEntry, error) {
	entries := []model.HistoryEntry{}
	for rows.Next() {
		var e model.HistoryEntry
		var scanRunID sql.NullString
		var classification, noiseType string
		var patterns, themes, tags pq.StringArray

		if err := rows.Scan(
			&e.ID, &scanRunID, &e.VideoID, &e.ChannelID, &e.ChannelName, &e.ChannelCategory,
			&e.Title, &e.Description, &e.Views, &e.Subscribers, &e.DurationSeconds,
			&e.Ratio, &e.VelocityScore, &e.AgeHours, &classification,
			&patterns, &themes, &tags, &e.IsNoise, &noiseType, &e.ThumbnailURL,
			&e.PublishedAt, &e.ScannedAt,
		); err != nil {
			return nil, fmt.Errorf("履歴の読み取りに失敗しました: %w", err)
		}

		e.ScanRunID = nullStringValue(scanRunID)
		e.Classification = model.Classification(classification)
		e.NoiseType = model.NoiseType(noiseType)
		e.Patterns = nonNil(patterns)
		e.Themes = nonNil(themes)
		e.Tags = nonNil(tags)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("履歴の読み取りに失敗しました: %w", err)
	}
	return entries, nil
}

func noiseTypeOrNone(t model.NoiseType) model.NoiseType {
	if t == "" {
		return model.NoiseNone
	}
	return t
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
