// Package youtube は外部メトリクスプロバイダ（YouTube Data API v3）との連携を提供する。
// チャンネルの登録者数、アップロード済み動画、動画ごとのメトリクスを取得する。
package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/outperformer/internal/model"
)

const (
	// defaultEndpoint はYouTube Data API v3のベースURL。
	defaultEndpoint = "https://www.googleapis.com/youtube/v3"
	// maxIDsPerRequest は1リクエストあたりの最大ID数。
	maxIDsPerRequest = 50
	// maxErrorBody はエラーレスポンスから読み取る最大バイト数。
	maxErrorBody = 64 * 1024
)

// ErrQuotaExceeded はAPIクォータを使い切った場合のエラー。
// スキャンサイクルはこのエラーを受け取ったら残りの取得を打ち切る。
var ErrQuotaExceeded = errors.New("YouTube APIのクォータを超過しました")

// ChannelStats はチャンネルの名前と登録者数。
type ChannelStats struct {
	ID                string
	Name              string
	SubscriberCount   int64
	HiddenSubscribers bool
}

// Client はYouTube Data APIのクライアント。
// rate.Limiterでリクエスト間隔を制御する。
type Client struct {
	httpClient *http.Client
	apiKey     string
	limiter    *rate.Limiter
	logger     *slog.Logger
	endpoint   string                        // テスト用にエンドポイントを差し替え可能
	now        func() time.Time              // テスト用に時刻を差し替え可能
	backoff    func(retry int) time.Duration // テスト用に再試行間隔を差し替え可能
}

// NewClient はClientの新しいインスタンスを生成する。
// ratePerSecが0以下の場合はリクエスト間隔を制限しない。
func NewClient(httpClient *http.Client, apiKey string, ratePerSec float64, logger *slog.Logger) *Client {
	limit := rate.Inf
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
	}
	return &Client{
		httpClient: httpClient,
		apiKey:     apiKey,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
		endpoint:   defaultEndpoint,
		now:        time.Now,
		backoff:    calculateBackoff,
	}
}

// GetChannels は複数チャンネルの名前と登録者数を取得する。
// IDは50件ずつに分けて取得する。レスポンスに含まれないチャンネルは結果に含まれない。
func (c *Client) GetChannels(ctx context.Context, ids []string) (map[string]ChannelStats, error) {
	result := make(map[string]ChannelStats, len(ids))

	for _, batch := range chunk(ids, maxIDsPerRequest) {
		var resp channelListResponse
		params := url.Values{
			"part": {"snippet,statistics"},
			"id":   {strings.Join(batch, ",")},
		}
		if err := c.get(ctx, "channels", params, &resp); err != nil {
			return nil, fmt.Errorf("チャンネル情報の取得に失敗しました: %w", err)
		}

		for _, item := range resp.Items {
			subs, err := parseCount(item.Statistics.SubscriberCount)
			if err != nil {
				c.logger.Warn("登録者数のパースに失敗しました",
					slog.String("channel_id", item.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			result[item.ID] = ChannelStats{
				ID:                item.ID,
				Name:              item.Snippet.Title,
				SubscriberCount:   subs,
				HiddenSubscribers: item.Statistics.HiddenSubscriberCount,
			}
		}
	}

	return result, nil
}

// UploadsPlaylistID はチャンネルIDからアップロード再生リストのIDを返す（UC... -> UU...）。
func UploadsPlaylistID(channelID string) (string, error) {
	if !strings.HasPrefix(channelID, "UC") {
		return "", fmt.Errorf("想定外のチャンネルID形式です: %s", channelID)
	}
	return "UU" + strings.TrimPrefix(channelID, "UC"), nil
}

// RecentVideoIDs はアップロード再生リストから最新の動画IDを最大n件取得する。
// searchエンドポイントよりクォータ消費が少ないplaylistItemsを使用する。
func (c *Client) RecentVideoIDs(ctx context.Context, channelID string, n int) ([]string, error) {
	playlistID, err := UploadsPlaylistID(channelID)
	if err != nil {
		return nil, err
	}
	if n > maxIDsPerRequest {
		n = maxIDsPerRequest
	}

	var resp playlistItemsResponse
	params := url.Values{
		"part":       {"contentDetails"},
		"playlistId": {playlistID},
		"maxResults": {strconv.Itoa(n)},
	}
	if err := c.get(ctx, "playlistItems", params, &resp); err != nil {
		return nil, fmt.Errorf("アップロード再生リストの取得に失敗しました: %w", err)
	}

	ids := make([]string, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.ContentDetails.VideoID != "" {
			ids = append(ids, item.ContentDetails.VideoID)
		}
	}
	return ids, nil
}

// GetVideos は複数動画の詳細とメトリクスを取得する。
// observed_atには取得時刻を設定する。パースできない項目を含む動画は警告を出してスキップする。
func (c *Client) GetVideos(ctx context.Context, ids []string) ([]model.Video, error) {
	videos := make([]model.Video, 0, len(ids))

	for _, batch := range chunk(ids, maxIDsPerRequest) {
		var resp videoListResponse
		params := url.Values{
			"part": {"snippet,statistics,contentDetails"},
			"id":   {strings.Join(batch, ",")},
		}
		if err := c.get(ctx, "videos", params, &resp); err != nil {
			return nil, fmt.Errorf("動画情報の取得に失敗しました: %w", err)
		}

		observedAt := c.now().UTC()
		for _, item := range resp.Items {
			v, err := item.toVideo(observedAt)
			if err != nil {
				c.logger.Warn("動画情報のパースに失敗しました",
					slog.String("video_id", item.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			videos = append(videos, v)
		}
	}

	return videos, nil
}

// get はAPIを呼び出し、JSONレスポンスをoutにデコードする。
// 429と5xxは指数バックオフで最大maxAttempts回まで再試行する。
func (c *Client) get(ctx context.Context, resource string, params url.Values, out any) error {
	reqURL, err := url.Parse(c.endpoint + "/" + resource)
	if err != nil {
		return fmt.Errorf("エンドポイントURLのパースに失敗しました: %w", err)
	}
	params.Set("key", c.apiKey)
	reqURL.RawQuery = params.Encode()

	for attempt := 1; ; attempt++ {
		status, err := c.do(ctx, resource, reqURL.String(), out)
		if err == nil || classifyStatus(status) != statusRetry || attempt >= maxAttempts {
			return err
		}

		delay := c.backoff(attempt - 1)
		c.logger.Warn("YouTube APIの呼び出しを再試行します",
			slog.String("resource", resource),
			slog.Int("http_status", status),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// do はリクエストを1回実行し、HTTPステータスコードとエラーを返す。
// 通信エラーの場合のステータスコードは0。
func (c *Client) do(ctx context.Context, resource, reqURL string, out any) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("レート制限の待機に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("YouTube APIの呼び出しに失敗しました",
			slog.String("resource", resource),
			slog.String("error", err.Error()),
		)
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, c.statusError(resource, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	return resp.StatusCode, nil
}

// statusError はエラーレスポンスの内容からエラーを生成する。
// クォータ超過の場合は ErrQuotaExceeded をラップする。
func (c *Client) statusError(resource string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var apiErr errorResponse
	_ = json.Unmarshal(body, &apiErr)

	reason := ""
	if len(apiErr.Error.Errors) > 0 {
		reason = apiErr.Error.Errors[0].Reason
	}

	c.logger.Error("YouTube APIがエラーステータスを返しました",
		slog.String("resource", resource),
		slog.Int("http_status", resp.StatusCode),
		slog.String("reason", reason),
		slog.String("message", apiErr.Error.Message),
	)

	if resp.StatusCode == http.StatusForbidden && (reason == "quotaExceeded" || reason == "dailyLimitExceeded") {
		return ErrQuotaExceeded
	}
	return fmt.Errorf("YouTube APIがステータス %d を返しました: %s", resp.StatusCode, apiErr.Error.Message)
}

func chunk(ids []string, size int) [][]string {
	var out [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}

// parseCount はAPIが文字列で返す件数をパースする。空の場合（非公開）は0。
func parseCount(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}
