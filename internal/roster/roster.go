// Package roster は監視対象チャンネルの一覧（channels.json）を扱う。
// 一覧の読み込みと、大規模な一覧をバッチに分割してローテーションする処理を含む。
package roster

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/hitoshi/outperformer/internal/model"
)

// ErrEmptyRoster は有効なチャンネルが1件もない場合のエラー。
var ErrEmptyRoster = errors.New("有効なチャンネルが1件もありません")

// CategoryChecker はカテゴリが定義済みかを判定する。
type CategoryChecker interface {
	HasCategory(category string) bool
}

type fileEntry struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

type file struct {
	Channels *[]fileEntry `json:"channels"`
}

// Load はチャンネル一覧をファイルから読み込む。
// idまたはnameが欠けているエントリと、UCで始まらないIDのエントリは警告を出してスキップする。
// 未定義のカテゴリは設定エラーとして返す。登録者数はスキャン時に取得するため0のまま。
func Load(path string, categories CategoryChecker, logger *slog.Logger) ([]model.Channel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("チャンネル一覧の読み込みに失敗しました: %w", err)
	}
	return Parse(data, categories, logger)
}

// Parse はチャンネル一覧のJSONをパースする。
func Parse(data []byte, categories CategoryChecker, logger *slog.Logger) ([]model.Channel, error) {
	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("チャンネル一覧のパースに失敗しました: %w", err)
	}
	if f.Channels == nil {
		return nil, fmt.Errorf("チャンネル一覧に channels キーがありません")
	}

	seen := make(map[string]bool, len(*f.Channels))
	channels := make([]model.Channel, 0, len(*f.Channels))
	for i, e := range *f.Channels {
		id := strings.TrimSpace(e.ID)
		name := strings.TrimSpace(e.Name)

		switch {
		case id == "":
			logger.Warn("idのないチャンネルをスキップします", slog.Int("index", i))
			continue
		case name == "":
			logger.Warn("nameのないチャンネルをスキップします", slog.Int("index", i), slog.String("channel_id", id))
			continue
		case !strings.HasPrefix(id, "UC"):
			logger.Warn("ID形式が不正なチャンネルをスキップします（UCで始まる必要があります）",
				slog.String("channel_id", id),
				slog.String("name", name),
			)
			continue
		case seen[id]:
			logger.Warn("重複したチャンネルをスキップします", slog.String("channel_id", id))
			continue
		}

		category := strings.ToLower(strings.TrimSpace(e.Category))
		if !categories.HasCategory(category) {
			return nil, model.NewUnknownCategoryError(e.Category)
		}

		seen[id] = true
		channels = append(channels, model.Channel{ID: id, Name: name, Category: category})
	}

	if len(channels) == 0 {
		return nil, ErrEmptyRoster
	}
	return channels, nil
}

// TotalBatches はバッチ数を返す（切り上げ）。チャンネルが0件の場合も1を返す。
func TotalBatches(total, size int) int {
	if size <= 0 || total <= 0 {
		return 1
	}
	return (total + size - 1) / size
}

// Batch はbatchNum番目のバッチに含まれるチャンネルと、実際に使われたバッチ番号、バッチ総数を返す。
// batchNumはバッチ総数で剰余を取るため、一覧が縮んでも範囲外にならない。
func Batch(channels []model.Channel, batchNum, size int) ([]model.Channel, int, int) {
	total := TotalBatches(len(channels), size)
	if size <= 0 {
		return channels, 0, 1
	}

	current := batchNum % total
	if current < 0 {
		current += total
	}
	start := current * size
	end := start + size
	if end > len(channels) {
		end = len(channels)
	}
	if start > end {
		start = end
	}
	return channels[start:end], current, total
}

// Next は次に処理するバッチ番号を返す。
func Next(current, total int) int {
	if total <= 0 {
		return 0
	}
	return (current + 1) % total
}
