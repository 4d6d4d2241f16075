package cleanup

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/outperformer/internal/metrics"
)

// mockPruner はHistoryPrunerのモック。
type mockPruner struct {
	called  bool
	cutoff  time.Time
	deleted int64
	err     error
}

func (m *mockPruner) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.called = true
	m.cutoff = cutoff
	return m.deleted, m.err
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

var fixedNow = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

func newJob(p *mockPruner, buf *bytes.Buffer) *CleanupJob {
	job := NewCleanupJob(p, nil, newTestLogger(buf))
	job.now = func() time.Time { return fixedNow }
	return job
}

// logHas はJSONログのいずれかの行にkey=wantが含まれるかを返す。
func logHas(buf *bytes.Buffer, key string, want interface{}) bool {
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if v, ok := entry[key]; ok && v == want {
			return true
		}
	}
	return false
}

func TestNewCleanupJob_SetsRetentionDays(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockPruner{}, nil, newTestLogger(&buf))

	if job == nil {
		t.Fatal("NewCleanupJob は nil を返してはならない")
	}
	if job.RetentionDays != 365 {
		t.Errorf("RetentionDays = %d, want 365", job.RetentionDays)
	}
}

func TestCleanupJob_Run_UsesRetentionCutoff(t *testing.T) {
	var buf bytes.Buffer
	p := &mockPruner{deleted: 5}
	job := newJob(p, &buf)
	job.RetentionDays = 30

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}

	if !p.called {
		t.Fatal("DeleteOlderThan が呼び出されなかった")
	}
	want := time.Date(2026, 2, 8, 0, 0, 0, 0, time.UTC)
	if !p.cutoff.Equal(want) {
		t.Errorf("cutoff = %v, want %v", p.cutoff, want)
	}
}

func TestCleanupJob_Run_LogsDeletedCountAndRetention(t *testing.T) {
	var buf bytes.Buffer
	job := newJob(&mockPruner{deleted: 42}, &buf)

	_ = job.Run(context.Background())

	if !logHas(&buf, "deleted_count", float64(42)) {
		t.Errorf("ログに deleted_count=42 が記録されていない。ログ出力: %s", buf.String())
	}
	if !logHas(&buf, "retention_days", float64(365)) {
		t.Errorf("ログに retention_days=365 が記録されていない。ログ出力: %s", buf.String())
	}
}

func TestCleanupJob_Run_ReturnsErrorOnDBFailure(t *testing.T) {
	var buf bytes.Buffer
	job := newJob(&mockPruner{err: sql.ErrConnDone}, &buf)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("DB障害時はエラーを返すべき")
	}
	if !errors.Is(err, sql.ErrConnDone) {
		t.Errorf("元のエラーがラップされていない: %v", err)
	}
	if !strings.Contains(buf.String(), `"level":"ERROR"`) {
		t.Errorf("エラーログが出力されていない: %s", buf.String())
	}
}

func TestCleanupJob_Run_Idempotent(t *testing.T) {
	var buf bytes.Buffer
	job := newJob(&mockPruner{deleted: 0}, &buf)

	for i := 0; i < 2; i++ {
		if err := job.Run(context.Background()); err != nil {
			t.Fatalf("%d回目の Run() がエラーを返した: %v", i+1, err)
		}
	}
}

func TestCleanupJob_Run_RecordsMetrics(t *testing.T) {
	var buf bytes.Buffer
	reg := prometheus.NewRegistry()
	job := NewCleanupJob(&mockPruner{deleted: 7}, metrics.NewCollector(reg), newTestLogger(&buf))

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather error: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == "outperformer_cleanup_deleted_total" {
			if got := mf.GetMetric()[0].GetCounter().GetValue(); got != 7 {
				t.Errorf("cleanup_deleted_total = %v, want 7", got)
			}
			return
		}
	}
	t.Error("outperformer_cleanup_deleted_total が登録されていない")
}

func TestCleanupJob_Start_StopsOnCancel(t *testing.T) {
	var buf bytes.Buffer
	p := &mockPruner{}
	job := newJob(p, &buf)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		job.Start(ctx, time.Hour)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("キャンセル済みのコンテキストでStartが終了しなかった")
	}
	if !p.called {
		t.Error("起動直後に1回実行されるべき")
	}
}
