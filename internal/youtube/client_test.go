package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func newTestClient(server *httptest.Server, buf *bytes.Buffer) *Client {
	c := NewClient(server.Client(), "test-key", 0, newTestLogger(buf))
	c.endpoint = server.URL
	c.now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	c.backoff = func(int) time.Duration { return time.Millisecond }
	return c
}

func TestClient_GetChannels_Batches(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/channels" {
			t.Errorf("パス = %s, want /channels", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("APIキーが送信されていない")
		}
		ids := strings.Split(r.URL.Query().Get("id"), ",")
		if len(ids) > maxIDsPerRequest {
			t.Errorf("ID数 = %d, 上限 %d を超えている", len(ids), maxIDsPerRequest)
		}

		var items []map[string]any
		for _, id := range ids {
			items = append(items, map[string]any{
				"id":         id,
				"snippet":    map[string]any{"title": "name-" + id},
				"statistics": map[string]any{"subscriberCount": "1500"},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"items": items})
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := newTestClient(server, &buf)

	ids := make([]string, 120)
	for i := range ids {
		ids[i] = fmt.Sprintf("UC%03d", i)
	}

	got, err := c.GetChannels(context.Background(), ids)
	if err != nil {
		t.Fatalf("GetChannels がエラーを返した: %v", err)
	}
	if calls != 3 {
		t.Errorf("リクエスト回数 = %d, want 3", calls)
	}
	if len(got) != 120 {
		t.Errorf("取得件数 = %d, want 120", len(got))
	}
	if ch := got["UC007"]; ch.SubscriberCount != 1500 || ch.Name != "name-UC007" {
		t.Errorf("UC007 = %+v", ch)
	}
}

func TestClient_GetVideos_ParsesFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/videos" {
			t.Errorf("パス = %s, want /videos", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"items":[
			{"id":"vid1","snippet":{"channelId":"UCa","title":"Dunk contest","description":"desc",
			 "publishedAt":"2026-03-06T08:00:00Z","tags":["nba","dunk"],
			 "thumbnails":{"default":{"url":"https://i.ytimg.com/d.jpg"},"high":{"url":"https://i.ytimg.com/h.jpg"}}},
			 "statistics":{"viewCount":"52000","likeCount":"1200"},
			 "contentDetails":{"duration":"PT12M30S"}},
			{"id":"broken","snippet":{"publishedAt":"not-a-date"},"statistics":{},"contentDetails":{}}
		]}`)
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := newTestClient(server, &buf)

	videos, err := c.GetVideos(context.Background(), []string{"vid1", "broken"})
	if err != nil {
		t.Fatalf("GetVideos がエラーを返した: %v", err)
	}
	if len(videos) != 1 {
		t.Fatalf("動画数 = %d, want 1（パース不能な動画はスキップ）", len(videos))
	}

	v := videos[0]
	if v.ID != "vid1" || v.ChannelID != "UCa" {
		t.Errorf("ID/ChannelID = %s/%s", v.ID, v.ChannelID)
	}
	if v.Views != 52000 || v.Likes != 1200 || v.Comments != 0 {
		t.Errorf("Views/Likes/Comments = %d/%d/%d", v.Views, v.Likes, v.Comments)
	}
	if v.DurationSeconds != 750 {
		t.Errorf("DurationSeconds = %d, want 750", v.DurationSeconds)
	}
	if v.ThumbnailURL != "https://i.ytimg.com/h.jpg" {
		t.Errorf("ThumbnailURL = %s, want high", v.ThumbnailURL)
	}
	if v.AgeHours() != 100 {
		t.Errorf("AgeHours = %v, want 100", v.AgeHours())
	}
	if !strings.Contains(buf.String(), "broken") {
		t.Error("スキップした動画のログが出力されていない")
	}
}

func TestClient_RecentVideoIDs_UsesUploadsPlaylist(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/playlistItems" {
			t.Errorf("パス = %s, want /playlistItems", r.URL.Path)
		}
		if got := r.URL.Query().Get("playlistId"); got != "UUabc" {
			t.Errorf("playlistId = %s, want UUabc", got)
		}
		if got := r.URL.Query().Get("maxResults"); got != "5" {
			t.Errorf("maxResults = %s, want 5", got)
		}
		fmt.Fprint(w, `{"items":[{"contentDetails":{"videoId":"v1"}},{"contentDetails":{"videoId":"v2"}}]}`)
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := newTestClient(server, &buf)

	ids, err := c.RecentVideoIDs(context.Background(), "UCabc", 5)
	if err != nil {
		t.Fatalf("RecentVideoIDs がエラーを返した: %v", err)
	}
	if strings.Join(ids, ",") != "v1,v2" {
		t.Errorf("ids = %v, want [v1 v2]", ids)
	}

	if _, err := c.RecentVideoIDs(context.Background(), "HCabc", 5); err == nil {
		t.Error("UCで始まらないチャンネルIDはエラーになるべき")
	}
}

func TestClient_QuotaExceeded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"code":403,"message":"quota","errors":[{"reason":"quotaExceeded"}]}}`)
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := newTestClient(server, &buf)

	_, err := c.GetChannels(context.Background(), []string{"UCa"})
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Errorf("errors.Is(err, ErrQuotaExceeded) = false: %v", err)
	}
}

func TestClient_ServerError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := newTestClient(server, &buf)

	_, err := c.GetVideos(context.Background(), []string{"v1"})
	if err == nil {
		t.Fatal("500はエラーになるべき")
	}
	if errors.Is(err, ErrQuotaExceeded) {
		t.Error("500をクォータ超過として扱ってはならない")
	}
	if calls != maxAttempts {
		t.Errorf("リクエスト回数 = %d, want %d", calls, maxAttempts)
	}
}

func TestClient_RetriesTransientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"items":[{"id":"UCa","snippet":{"title":"A"},"statistics":{"subscriberCount":"100"}}]}`)
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := newTestClient(server, &buf)

	got, err := c.GetChannels(context.Background(), []string{"UCa"})
	if err != nil {
		t.Fatalf("expected no error after retry, got %v", err)
	}
	if got["UCa"].SubscriberCount != 100 {
		t.Errorf("SubscriberCount = %d, want 100", got["UCa"].SubscriberCount)
	}
	if calls != 2 {
		t.Errorf("リクエスト回数 = %d, want 2", calls)
	}
	if !strings.Contains(buf.String(), "再試行") {
		t.Errorf("再試行がログに記録されるべき:\n%s", buf.String())
	}
}

func TestClient_QuotaExceededIsNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"code":403,"message":"quota","errors":[{"reason":"quotaExceeded"}]}}`)
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := newTestClient(server, &buf)

	if _, err := c.GetChannels(context.Background(), []string{"UCa"}); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if calls != 1 {
		t.Errorf("リクエスト回数 = %d, want 1", calls)
	}
}

func TestClient_EmptyIDs(t *testing.T) {
	var buf bytes.Buffer
	c := NewClient(http.DefaultClient, "k", 0, newTestLogger(&buf))
	c.endpoint = "http://127.0.0.1:1"

	videos, err := c.GetVideos(context.Background(), nil)
	if err != nil || len(videos) != 0 {
		t.Errorf("空のID一覧ではリクエストしないべき: %v, %v", videos, err)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"PT1H2M3S", 3723},
		{"PT3M", 180},
		{"PT59S", 59},
		{"P1DT1S", 86401},
		{"P0D", 0},
		{"", 0},
		{"garbage", 0},
	}
	for _, tt := range tests {
		if got := ParseDuration(tt.in); got != tt.want {
			t.Errorf("ParseDuration(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestBestThumbnail(t *testing.T) {
	thumbs := map[string]thumbnail{
		"default": {URL: "d"},
		"medium":  {URL: "m"},
		"maxres":  {URL: "x"},
	}
	if got := bestThumbnail(thumbs); got != "x" {
		t.Errorf("bestThumbnail = %s, want x", got)
	}
	delete(thumbs, "maxres")
	if got := bestThumbnail(thumbs); got != "m" {
		t.Errorf("bestThumbnail = %s, want m", got)
	}
	if got := bestThumbnail(nil); got != "" {
		t.Errorf("bestThumbnail(nil) = %s, want empty", got)
	}
}
