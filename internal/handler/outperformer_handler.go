package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/outperformer/internal/model"
	"github.com/hitoshi/outperformer/internal/repository"
	"github.com/hitoshi/outperformer/internal/trend"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500

	defaultStatsDays = 30
	maxStatsDays     = 365

	// trendWindow はトレンド分析に読み込む履歴の期間。
	trendWindow       = 30 * 24 * time.Hour
	defaultTrendTop   = 10
	maxTrendTop       = 50
	defaultTagStatTop = 20
)

// HistoryReader はハンドラーが必要とする履歴の読み取りインターフェース。
type HistoryReader interface {
	ListRecent(ctx context.Context, filter repository.ListFilter) ([]model.HistoryEntry, error)
	ListSince(ctx context.Context, since time.Time) ([]model.HistoryEntry, error)
	Summary(ctx context.Context, since time.Time) (*repository.HistorySummary, error)
	PatternStats(ctx context.Context, since time.Time) ([]repository.TagStat, error)
	ThemeStats(ctx context.Context, since time.Time) ([]repository.TagStat, error)
}

// ScanRunReader は最新のスキャン記録を返す。
type ScanRunReader interface {
	Latest(ctx context.Context) (*model.ScanRun, error)
}

// OutperformerHandler はアウトパフォーマー履歴の読み取りAPIのHTTPハンドラー。
type OutperformerHandler struct {
	history  HistoryReader
	scanRuns ScanRunReader
	now      func() time.Time
}

// NewOutperformerHandler はOutperformerHandlerを生成する。
// nowがnilの場合はtime.Nowを使用する。
func NewOutperformerHandler(history HistoryReader, scanRuns ScanRunReader, now func() time.Time) *OutperformerHandler {
	if now == nil {
		now = time.Now
	}
	return &OutperformerHandler{history: history, scanRuns: scanRuns, now: now}
}

// outperformerListResponse は履歴一覧のレスポンス。
type outperformerListResponse struct {
	Outperformers []model.HistoryEntry `json:"outperformers"`
	Count         int                  `json:"count"`
}

// statsResponse は集計APIのレスポンス。
type statsResponse struct {
	Since      time.Time                  `json:"since"`
	Summary    *repository.HistorySummary `json:"summary"`
	Patterns   []repository.TagStat       `json:"patterns"`
	Themes     []repository.TagStat       `json:"themes"`
	LatestScan *model.ScanRun             `json:"latest_scan"`
}

// ListOutperformers は最近のアウトパフォーマーを返す。
// GET /api/outperformers?limit=50&include_noise=false&classification=trend_jacker
func (h *OutperformerHandler) ListOutperformers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := intParam(q.Get("limit"), "limit", defaultListLimit, 1, maxListLimit)
	if err != nil {
		handleError(w, r, err)
		return
	}

	includeNoise := false
	if v := q.Get("include_noise"); v != "" {
		includeNoise, err = strconv.ParseBool(v)
		if err != nil {
			handleError(w, r, model.NewInvalidQueryError("include_noise", v))
			return
		}
	}

	classification := model.Classification(q.Get("classification"))
	switch classification {
	case "", model.ClassificationTrendJacker, model.ClassificationAuthorityBuilder, model.ClassificationStandard:
	default:
		handleError(w, r, model.NewInvalidQueryError("classification", string(classification)))
		return
	}

	entries, err := h.history.ListRecent(r.Context(), repository.ListFilter{
		Limit:          limit,
		IncludeNoise:   includeNoise,
		Classification: classification,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	if entries == nil {
		entries = []model.HistoryEntry{}
	}

	writeJSON(w, outperformerListResponse{Outperformers: entries, Count: len(entries)})
}

// Stats は指定期間の集計と最新のスキャン記録を返す。
// GET /api/stats?days=30
func (h *OutperformerHandler) Stats(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r.URL.Query().Get("days"), "days", defaultStatsDays, 1, maxStatsDays)
	if err != nil {
		handleError(w, r, err)
		return
	}

	ctx := r.Context()
	since := h.now().AddDate(0, 0, -days)

	summary, err := h.history.Summary(ctx, since)
	if err != nil {
		handleError(w, r, err)
		return
	}
	patterns, err := h.history.PatternStats(ctx, since)
	if err != nil {
		handleError(w, r, err)
		return
	}
	themes, err := h.history.ThemeStats(ctx, since)
	if err != nil {
		handleError(w, r, err)
		return
	}
	latest, err := h.scanRuns.Latest(ctx)
	if err != nil {
		handleError(w, r, err)
		return
	}

	writeJSON(w, statsResponse{
		Since:      since,
		Summary:    summary,
		Patterns:   topStats(patterns, defaultTagStatTop),
		Themes:     topStats(themes, defaultTagStatTop),
		LatestScan: latest,
	})
}

// Trends は直近30日の履歴からトレンド分析を行う。
// GET /api/trends?top=10
func (h *OutperformerHandler) Trends(w http.ResponseWriter, r *http.Request) {
	top, err := intParam(r.URL.Query().Get("top"), "top", defaultTrendTop, 1, maxTrendTop)
	if err != nil {
		handleError(w, r, err)
		return
	}

	now := h.now()
	history, err := h.history.ListSince(r.Context(), now.Add(-trendWindow))
	if err != nil {
		handleError(w, r, err)
		return
	}

	writeJSON(w, trend.Analyze(history, now, top))
}

// intParam はクエリパラメータを[min, max]の整数として解釈する。空の場合はdefを返す。
func intParam(raw, name string, def, min, max int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < min || n > max {
		return 0, model.NewInvalidQueryError(name, raw)
	}
	return n, nil
}

func topStats(stats []repository.TagStat, n int) []repository.TagStat {
	if stats == nil {
		return []repository.TagStat{}
	}
	if len(stats) > n {
		return stats[:n]
	}
	return stats
}
