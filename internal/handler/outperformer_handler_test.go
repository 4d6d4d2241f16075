package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/outperformer/internal/middleware"
	"github.com/hitoshi/outperformer/internal/model"
	"github.com/hitoshi/outperformer/internal/repository"
	"github.com/hitoshi/outperformer/internal/trend"
)

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// mockHistoryReader はHistoryReaderのモック実装。
type mockHistoryReader struct {
	listRecentFn   func(ctx context.Context, filter repository.ListFilter) ([]model.HistoryEntry, error)
	listSinceFn    func(ctx context.Context, since time.Time) ([]model.HistoryEntry, error)
	summaryFn      func(ctx context.Context, since time.Time) (*repository.HistorySummary, error)
	patternStatsFn func(ctx context.Context, since time.Time) ([]repository.TagStat, error)
	themeStatsFn   func(ctx context.Context, since time.Time) ([]repository.TagStat, error)
}

func (m *mockHistoryReader) ListRecent(ctx context.Context, filter repository.ListFilter) ([]model.HistoryEntry, error) {
	if m.listRecentFn != nil {
		return m.listRecentFn(ctx, filter)
	}
	return nil, nil
}

func (m *mockHistoryReader) ListSince(ctx context.Context, since time.Time) ([]model.HistoryEntry, error) {
	if m.listSinceFn != nil {
		return m.listSinceFn(ctx, since)
	}
	return nil, nil
}

func (m *mockHistoryReader) Summary(ctx context.Context, since time.Time) (*repository.HistorySummary, error) {
	if m.summaryFn != nil {
		return m.summaryFn(ctx, since)
	}
	return &repository.HistorySummary{}, nil
}

func (m *mockHistoryReader) PatternStats(ctx context.Context, since time.Time) ([]repository.TagStat, error) {
	if m.patternStatsFn != nil {
		return m.patternStatsFn(ctx, since)
	}
	return nil, nil
}

func (m *mockHistoryReader) ThemeStats(ctx context.Context, since time.Time) ([]repository.TagStat, error) {
	if m.themeStatsFn != nil {
		return m.themeStatsFn(ctx, since)
	}
	return nil, nil
}

// mockScanRunReader はScanRunReaderのモック実装。
type mockScanRunReader struct {
	latestFn func(ctx context.Context) (*model.ScanRun, error)
}

func (m *mockScanRunReader) Latest(ctx context.Context) (*model.ScanRun, error) {
	if m.latestFn != nil {
		return m.latestFn(ctx)
	}
	return nil, nil
}

func newTestHandler(history HistoryReader) *OutperformerHandler {
	return NewOutperformerHandler(history, &mockScanRunReader{}, func() time.Time { return fixedNow })
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body
}

func TestListOutperformers_DefaultFilter(t *testing.T) {
	var got repository.ListFilter
	history := &mockHistoryReader{
		listRecentFn: func(ctx context.Context, filter repository.ListFilter) ([]model.HistoryEntry, error) {
			got = filter
			return []model.HistoryEntry{
				{VideoID: "vid-1", Classification: model.ClassificationTrendJacker, ScannedAt: fixedNow},
			}, nil
		},
	}
	h := newTestHandler(history)

	req := httptest.NewRequest(http.MethodGet, "/api/outperformers", nil)
	w := httptest.NewRecorder()
	h.ListOutperformers(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got.Limit != defaultListLimit || got.IncludeNoise || got.Classification != "" {
		t.Errorf("filter = %+v, want default", got)
	}

	var resp outperformerListResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if resp.Count != 1 || resp.Outperformers[0].VideoID != "vid-1" {
		t.Errorf("response = %+v", resp)
	}
}

func TestListOutperformers_QueryParams(t *testing.T) {
	var got repository.ListFilter
	history := &mockHistoryReader{
		listRecentFn: func(ctx context.Context, filter repository.ListFilter) ([]model.HistoryEntry, error) {
			got = filter
			return nil, nil
		},
	}
	h := newTestHandler(history)

	req := httptest.NewRequest(http.MethodGet, "/api/outperformers?limit=10&include_noise=true&classification=authority_builder", nil)
	w := httptest.NewRecorder()
	h.ListOutperformers(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got.Limit != 10 || !got.IncludeNoise || got.Classification != model.ClassificationAuthorityBuilder {
		t.Errorf("filter = %+v", got)
	}

	// 結果が0件でもnullではなく空配列を返す
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if string(raw["outperformers"]) != "[]" {
		t.Errorf("outperformers = %s, want []", raw["outperformers"])
	}
}

func TestListOutperformers_InvalidQuery_ReturnsBadRequest(t *testing.T) {
	called := false
	history := &mockHistoryReader{
		listRecentFn: func(ctx context.Context, filter repository.ListFilter) ([]model.HistoryEntry, error) {
			called = true
			return nil, nil
		},
	}
	h := newTestHandler(history)

	for _, query := range []string{
		"limit=0",
		"limit=501",
		"limit=abc",
		"include_noise=maybe",
		"classification=viral",
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/outperformers?"+query, nil)
		w := httptest.NewRecorder()
		h.ListOutperformers(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", query, w.Code)
			continue
		}
		if body := decodeError(t, w); body.Code != model.ErrCodeInvalidQuery {
			t.Errorf("%s: code = %q, want %q", query, body.Code, model.ErrCodeInvalidQuery)
		}
	}
	if called {
		t.Error("不正なクエリではリポジトリを呼ばないべき")
	}
}

func TestListOutperformers_RepositoryError_Returns500(t *testing.T) {
	history := &mockHistoryReader{
		listRecentFn: func(ctx context.Context, filter repository.ListFilter) ([]model.HistoryEntry, error) {
			return nil, errors.New("connection refused")
		},
	}
	h := newTestHandler(history)

	req := httptest.NewRequest(http.MethodGet, "/api/outperformers", nil)
	w := httptest.NewRecorder()
	h.ListOutperformers(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	body := decodeError(t, w)
	if body.Code != model.ErrCodeInternal {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInternal)
	}
	if body.Message == "connection refused" {
		t.Error("内部エラーの詳細をレスポンスに含めてはならない")
	}
}

func TestStats_ReturnsSummaryAndLatestScan(t *testing.T) {
	var sinceArgs []time.Time
	record := func(since time.Time) { sinceArgs = append(sinceArgs, since) }

	patterns := make([]repository.TagStat, 25)
	for i := range patterns {
		patterns[i] = repository.TagStat{Name: "p", Count: 25 - i}
	}
	history := &mockHistoryReader{
		summaryFn: func(ctx context.Context, since time.Time) (*repository.HistorySummary, error) {
			record(since)
			return &repository.HistorySummary{Total: 7, Actionable: 5, Noise: 2}, nil
		},
		patternStatsFn: func(ctx context.Context, since time.Time) ([]repository.TagStat, error) {
			record(since)
			return patterns, nil
		},
		themeStatsFn: func(ctx context.Context, since time.Time) ([]repository.TagStat, error) {
			record(since)
			return nil, nil
		},
	}
	finished := fixedNow.Add(-time.Hour)
	runs := &mockScanRunReader{
		latestFn: func(ctx context.Context) (*model.ScanRun, error) {
			return &model.ScanRun{ID: "run-1", Status: model.ScanStatusCompleted, FinishedAt: &finished}, nil
		},
	}
	h := NewOutperformerHandler(history, runs, func() time.Time { return fixedNow })

	req := httptest.NewRequest(http.MethodGet, "/api/stats?days=7", nil)
	w := httptest.NewRecorder()
	h.Stats(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	wantSince := fixedNow.AddDate(0, 0, -7)
	if len(sinceArgs) != 3 {
		t.Fatalf("repository calls = %d, want 3", len(sinceArgs))
	}
	for _, s := range sinceArgs {
		if !s.Equal(wantSince) {
			t.Errorf("since = %v, want %v", s, wantSince)
		}
	}

	var resp statsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if resp.Summary.Total != 7 || resp.Summary.Actionable != 5 {
		t.Errorf("summary = %+v", resp.Summary)
	}
	if len(resp.Patterns) != defaultTagStatTop {
		t.Errorf("patterns = %d, want %d", len(resp.Patterns), defaultTagStatTop)
	}
	if resp.Themes == nil {
		t.Error("themes should be an empty array, not null")
	}
	if resp.LatestScan == nil || resp.LatestScan.ID != "run-1" {
		t.Errorf("latest_scan = %+v", resp.LatestScan)
	}
}

func TestStats_InvalidDays_ReturnsBadRequest(t *testing.T) {
	h := newTestHandler(&mockHistoryReader{})

	req := httptest.NewRequest(http.MethodGet, "/api/stats?days=400", nil)
	w := httptest.NewRecorder()
	h.Stats(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestTrends_AnalyzesLast30Days(t *testing.T) {
	var gotSince time.Time
	history := &mockHistoryReader{
		listSinceFn: func(ctx context.Context, since time.Time) ([]model.HistoryEntry, error) {
			gotSince = since
			return []model.HistoryEntry{
				{VideoID: "a", ChannelID: "UCa", VelocityScore: 1.5, Patterns: []string{"question"}, ScannedAt: fixedNow.Add(-24 * time.Hour)},
				{VideoID: "b", ChannelID: "UCb", VelocityScore: 3.0, Patterns: []string{"question"}, ScannedAt: fixedNow.Add(-48 * time.Hour)},
				{VideoID: "c", ChannelID: "UCc", VelocityScore: 9.0, IsNoise: true, ScannedAt: fixedNow.Add(-time.Hour)},
			}, nil
		},
	}
	h := newTestHandler(history)

	req := httptest.NewRequest(http.MethodGet, "/api/trends?top=1", nil)
	w := httptest.NewRecorder()
	h.Trends(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if want := fixedNow.Add(-30 * 24 * time.Hour); !gotSince.Equal(want) {
		t.Errorf("since = %v, want %v", gotSince, want)
	}

	var report trend.Report
	if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if len(report.TopPerformers) != 1 || report.TopPerformers[0].VideoID != "b" {
		t.Errorf("top_performers = %+v, want [b]", report.TopPerformers)
	}
	if report.WeekOverWeek.TotalThisWeek != 2 {
		t.Errorf("total_this_week = %d, want 2", report.WeekOverWeek.TotalThisWeek)
	}
}

func TestTrends_RepositoryError_Returns500(t *testing.T) {
	history := &mockHistoryReader{
		listSinceFn: func(ctx context.Context, since time.Time) ([]model.HistoryEntry, error) {
			return nil, errors.New("timeout")
		},
	}
	h := newTestHandler(history)

	req := httptest.NewRequest(http.MethodGet, "/api/trends", nil)
	w := httptest.NewRecorder()
	h.Trends(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}
