package youtube

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/hitoshi/outperformer/internal/model"
)

type channelListResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title string `json:"title"`
		} `json:"snippet"`
		Statistics struct {
			SubscriberCount       string `json:"subscriberCount"`
			HiddenSubscriberCount bool   `json:"hiddenSubscriberCount"`
		} `json:"statistics"`
	} `json:"items"`
}

type playlistItemsResponse struct {
	Items []struct {
		ContentDetails struct {
			VideoID string `json:"videoId"`
		} `json:"contentDetails"`
	} `json:"items"`
}

type thumbnail struct {
	URL string `json:"url"`
}

type videoItem struct {
	ID      string `json:"id"`
	Snippet struct {
		ChannelID   string               `json:"channelId"`
		Title       string               `json:"title"`
		Description string               `json:"description"`
		PublishedAt string               `json:"publishedAt"`
		Tags        []string             `json:"tags"`
		Thumbnails  map[string]thumbnail `json:"thumbnails"`
	} `json:"snippet"`
	Statistics struct {
		ViewCount    string `json:"viewCount"`
		LikeCount    string `json:"likeCount"`
		CommentCount string `json:"commentCount"`
	} `json:"statistics"`
	ContentDetails struct {
		Duration string `json:"duration"`
	} `json:"contentDetails"`
}

type videoListResponse struct {
	Items []videoItem `json:"items"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

func (item videoItem) toVideo(observedAt time.Time) (model.Video, error) {
	publishedAt, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt)
	if err != nil {
		return model.Video{}, fmt.Errorf("publishedAtのパースに失敗しました: %w", err)
	}

	counts := make([]int64, 3)
	for i, s := range []string{item.Statistics.ViewCount, item.Statistics.LikeCount, item.Statistics.CommentCount} {
		n, err := parseCount(s)
		if err != nil {
			return model.Video{}, fmt.Errorf("統計値のパースに失敗しました: %w", err)
		}
		counts[i] = n
	}

	return model.Video{
		ID:              item.ID,
		ChannelID:       item.Snippet.ChannelID,
		Title:           item.Snippet.Title,
		Description:     item.Snippet.Description,
		Views:           counts[0],
		Likes:           counts[1],
		Comments:        counts[2],
		DurationSeconds: ParseDuration(item.ContentDetails.Duration),
		PublishedAt:     publishedAt.UTC(),
		ObservedAt:      observedAt,
		Tags:            item.Snippet.Tags,
		ThumbnailURL:    bestThumbnail(item.Snippet.Thumbnails),
	}, nil
}

var durationPattern = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// ParseDuration はISO 8601形式の再生時間（PT1H2M3S）を秒数に変換する。
// パースできない場合はショート扱いになるよう0を返す。
func ParseDuration(iso string) int64 {
	m := durationPattern.FindStringSubmatch(iso)
	if m == nil {
		return 0
	}

	var total int64
	for i, unit := range []int64{86400, 3600, 60, 1} {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.ParseInt(m[i+1], 10, 64)
		if err != nil {
			return 0
		}
		total += n * unit
	}
	return total
}

// thumbnailPriority は解像度の高い順。
var thumbnailPriority = []string{"maxres", "standard", "high", "medium", "default"}

// bestThumbnail は利用可能な最も高解像度のサムネイルURLを返す。
func bestThumbnail(thumbs map[string]thumbnail) string {
	for _, key := range thumbnailPriority {
		if t, ok := thumbs[key]; ok && t.URL != "" {
			return t.URL
		}
	}
	return ""
}
