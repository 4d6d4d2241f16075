package engine

import (
	"sort"

	"github.com/hitoshi/outperformer/internal/model"
)

// Count は名前と件数の組。
type Count struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Summary は判定結果の集計。
type Summary struct {
	Total           int                          `json:"total"`
	Actionable      int                          `json:"actionable"`
	Patterns        []Count                      `json:"patterns"`
	Themes          []Count                      `json:"themes"`
	Classifications map[model.Classification]int `json:"classifications"`
	Noise           map[model.NoiseType]int      `json:"noise"`
}

// Summarize はパターン、テーマ、分類、ノイズ種別ごとの件数を集計する。
// パターンとテーマはノイズ以外の動画のみを数え、件数の降順（同数は名前順）に並べる。
func Summarize(ops []model.Outperformer) Summary {
	patterns := map[string]int{}
	themes := map[string]int{}
	s := Summary{
		Total:           len(ops),
		Classifications: map[model.Classification]int{},
		Noise:           map[model.NoiseType]int{},
	}

	for _, op := range ops {
		if op.IsNoise {
			s.Noise[op.NoiseType]++
			continue
		}
		s.Actionable++
		s.Classifications[op.Classification]++
		for _, p := range op.TitlePatterns {
			patterns[p]++
		}
		for _, t := range op.Themes {
			themes[t]++
		}
	}

	s.Patterns = sortedCounts(patterns)
	s.Themes = sortedCounts(themes)
	return s
}

func sortedCounts(m map[string]int) []Count {
	out := make([]Count, 0, len(m))
	for name, n := range m {
		out = append(out, Count{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}
