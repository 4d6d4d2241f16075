package youtube

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/mmcdole/gofeed"
)

const (
	// defaultFeedEndpoint はチャンネルのAtomフィードのURL。
	defaultFeedEndpoint = "https://www.youtube.com/feeds/videos.xml"
	// maxFeedSize はフィードの最大サイズ。
	maxFeedSize = 2 * 1024 * 1024
)

// VideoLister はチャンネルの最新動画IDを列挙する。
type VideoLister interface {
	RecentVideoIDs(ctx context.Context, channelID string, n int) ([]string, error)
}

// コンパイル時にインターフェースの実装を検証する。
var (
	_ VideoLister = (*Client)(nil)
	_ VideoLister = (*FeedDiscoverer)(nil)
)

// FeedDiscoverer はチャンネルのAtomフィードから最新動画IDを取得する。
// APIクォータを消費しないため、動画の列挙をAPIから切り離したい場合に使う。
type FeedDiscoverer struct {
	httpClient *http.Client
	parser     *gofeed.Parser
	logger     *slog.Logger
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

// NewFeedDiscoverer はFeedDiscovererの新しいインスタンスを生成する。
func NewFeedDiscoverer(httpClient *http.Client, logger *slog.Logger) *FeedDiscoverer {
	return &FeedDiscoverer{
		httpClient: httpClient,
		parser:     gofeed.NewParser(),
		logger:     logger,
		endpoint:   defaultFeedEndpoint,
	}
}

// RecentVideoIDs はフィードに含まれる動画を公開日時の新しい順に最大n件返す。
func (d *FeedDiscoverer) RecentVideoIDs(ctx context.Context, channelID string, n int) ([]string, error) {
	reqURL, err := url.Parse(d.endpoint)
	if err != nil {
		return nil, fmt.Errorf("フィードURLのパースに失敗しました: %w", err)
	}
	reqURL.RawQuery = url.Values{"channel_id": {channelID}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Accept", "application/atom+xml, application/xml, text/xml")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("フィードの取得に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		d.logger.Warn("フィードがエラーステータスを返しました",
			slog.String("channel_id", channelID),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("フィードがステータス %d を返しました", resp.StatusCode)
	}

	feed, err := d.parser.Parse(io.LimitReader(resp.Body, maxFeedSize))
	if err != nil {
		return nil, fmt.Errorf("フィードのパースに失敗しました: %w", err)
	}

	items := make([]*gofeed.Item, 0, len(feed.Items))
	for _, item := range feed.Items {
		if videoIDOf(item) != "" {
			items = append(items, item)
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].PublishedParsed, items[j].PublishedParsed
		if a == nil || b == nil {
			return a != nil
		}
		return a.After(*b)
	})

	ids := make([]string, 0, n)
	for _, item := range items {
		if len(ids) >= n {
			break
		}
		ids = append(ids, videoIDOf(item))
	}
	return ids, nil
}

// videoIDOf はフィード項目から動画IDを取り出す。
// yt:videoId拡張を優先し、なければGUID（yt:video:ID）から取り出す。
func videoIDOf(item *gofeed.Item) string {
	if ext, ok := item.Extensions["yt"]; ok {
		if vals := ext["videoId"]; len(vals) > 0 && vals[0].Value != "" {
			return vals[0].Value
		}
	}
	if id, ok := strings.CutPrefix(item.GUID, "yt:video:"); ok {
		return id
	}
	return ""
}
