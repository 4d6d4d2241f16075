package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/hitoshi/outperformer/internal/model"
)

const (
	// DefaultRatioThreshold は一般カテゴリの採用ratio閾値。
	DefaultRatioThreshold = 1.0
	// SportsRatioThreshold はスポーツ系カテゴリの採用ratio閾値。
	// スポーツ系は登録者数が内容の関心度に比べて構造的に大きいため閾値を下げる。
	SportsRatioThreshold = 0.75
)

// SportsCategories はスポーツ系ratio閾値を適用するカテゴリの基本集合。
// ルールファイルで上書きする場合もこれらはすべてスポーツ系として定義されていなければならない。
var SportsCategories = []string{"athlete", "sports", "basketball", "football", "soccer", "training"}

// CategoryProfile はカテゴリごとの設定を1レコードにまとめたもの。
// 採用閾値とテーマキーワードの対応を別々の表で持つと片方だけ更新される事故が起きるため統合している。
type CategoryProfile struct {
	RatioThreshold float64  `json:"ratio_threshold"`
	IsSports       bool     `json:"is_sports"`
	IsCulture      bool     `json:"is_culture"`
	Themes         []string `json:"themes"`
}

// ThemeFamily はテーマ名とそのキーワードリスト。
type ThemeFamily struct {
	Name     string   `json:"name"`
	Keywords []string `json:"keywords"`
}

// Rules はエンジンの静的設定。スキャンサイクル中は読み取り専用。
type Rules struct {
	Categories          map[string]CategoryProfile `json:"categories"`
	ThemeFamilies       []ThemeFamily              `json:"theme_families"`
	HighlightChannelIDs []string                   `json:"highlight_channel_ids"`
}

func sportsProfile(themes ...string) CategoryProfile {
	return CategoryProfile{RatioThreshold: SportsRatioThreshold, IsSports: true, Themes: themes}
}

func generalProfile(themes ...string) CategoryProfile {
	return CategoryProfile{RatioThreshold: DefaultRatioThreshold, Themes: themes}
}

// DefaultRules は組み込みのルールセットを返す。
// 呼び出しごとに新しい値を返すため、呼び出し側で変更してもよい。
func DefaultRules() Rules {
	culture := generalProfile("culture", "celebrity", "drama", "money")
	culture.IsCulture = true

	return Rules{
		Categories: map[string]CategoryProfile{
			"competitor": generalProfile("competition", "money"),
			"athlete":    sportsProfile("training", "lifestyle"),
			"culture":    culture,
			"emerging":   generalProfile("lifestyle", "reaction"),
			"media":      generalProfile("interview", "highlights", "reaction"),
			"gaming":     generalProfile("gaming"),
			"sports":     sportsProfile("highlights", "competition"),
			"basketball": sportsProfile("basketball"),
			"football":   sportsProfile("football"),
			"soccer":     sportsProfile("soccer"),
			"training":   sportsProfile("training"),
		},
		ThemeFamilies: []ThemeFamily{
			{Name: "basketball", Keywords: []string{
				"basketball", "nba", "hoops", "hoop", "dunk", "three pointer", "layup",
				"lebron", "curry", "lakers", "celtics", "wnba", "march madness",
			}},
			{Name: "football", Keywords: []string{
				"football", "nfl", "touchdown", "quarterback", "super bowl", "gridiron",
				"end zone", "running back", "chiefs", "cowboys", "college football",
			}},
			{Name: "soccer", Keywords: []string{
				"soccer", "messi", "ronaldo", "premier league", "world cup",
				"champions league", "futbol", "mls", "la liga", "goalkeeper",
			}},
			{Name: "training", Keywords: []string{
				"workout", "training", "exercise", "gym", "fitness", "drill", "drills",
				"conditioning", "strength", "lifting",
			}},
			{Name: "lifestyle", Keywords: []string{
				"lifestyle", "day in the life", "routine", "vlog", "house tour",
				"car collection", "shopping", "travel",
			}},
			{Name: "competition", Keywords: []string{
				"competition", "challenge", "tournament", "battle", "vs", "versus",
				"1v1", "contest", "showdown", "face off",
			}},
			{Name: "reaction", Keywords: []string{
				"reaction", "reacts", "reacting", "watching", "responding",
			}},
			{Name: "interview", Keywords: []string{
				"interview", "podcast", "conversation", "talks", "speaks", "sits down",
				"exclusive", "q&a",
			}},
			{Name: "highlights", Keywords: []string{
				"highlights", "best plays", "top plays", "mixtape", "compilation",
				"best moments", "career highlights",
			}},
			{Name: "drama", Keywords: []string{
				"drama", "beef", "fight", "controversy", "exposed", "truth", "fired",
				"arrested", "scandal", "feud",
			}},
			{Name: "money", Keywords: []string{
				"money", "million", "billion", "expensive", "luxury", "rich", "salary",
				"contract", "net worth", "paid",
			}},
			{Name: "celebrity", Keywords: []string{
				"celebrity", "famous", "star", "drake", "travis scott", "kanye",
				"kardashian", "influencer", "viral",
			}},
			{Name: "gaming", Keywords: []string{
				"gaming", "gamer", "gameplay", "fortnite", "minecraft", "call of duty",
				"gta", "madden", "fifa", "speedrun", "playthrough", "esports",
			}},
			{Name: "culture", Keywords: []string{
				"culture", "fashion", "sneakers", "streetwear", "music", "hip hop",
				"rap", "art", "movie",
			}},
		},
	}
}

// LoadRules はルールファイル（JSON）を読み込む。
// pathが空の場合は組み込みのルールセットを返す。
// 検証はNewで行う。
func LoadRules(path string) (Rules, error) {
	if path == "" {
		return DefaultRules(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("ルールファイルの読み込みに失敗しました: %w", err)
	}

	var rules Rules
	if err := json.Unmarshal(data, &rules); err != nil {
		return Rules{}, fmt.Errorf("ルールファイルのパースに失敗しました: %w", err)
	}
	return rules, nil
}

// compiledRules は正規化・検証済みのルール。
type compiledRules struct {
	categories map[string]CategoryProfile
	themes     []ThemeFamily
	highlights map[string]struct{}
}

// compileRules はルールを正規化し、起動時検証を行う。
// 不備があれば *model.EngineError（Category=config）を返す。
func compileRules(r Rules) (*compiledRules, error) {
	if len(r.Categories) == 0 {
		return nil, model.NewInvalidRuleError("categories", "カテゴリが1件も定義されていません")
	}

	themes, err := normalizeFamilies(r.ThemeFamilies)
	if err != nil {
		return nil, err
	}
	known := make(map[string]int, len(themes))
	for _, f := range themes {
		known[f.Name] = len(f.Keywords)
	}

	// マップの反復順に依存しないよう、カテゴリ名順に検証する
	names := make([]string, 0, len(r.Categories))
	for name := range r.Categories {
		names = append(names, name)
	}
	sort.Strings(names)

	categories := make(map[string]CategoryProfile, len(names))
	for _, name := range names {
		p := r.Categories[name]
		key := normalizeKey(name)
		if key == "" {
			return nil, model.NewInvalidRuleError("categories", "空のカテゴリ名があります")
		}
		if _, dup := categories[key]; dup {
			return nil, model.NewInvalidRuleError(key, "カテゴリ名が重複しています")
		}
		if p.RatioThreshold <= 0 {
			return nil, model.NewInvalidRuleError(key, fmt.Sprintf("ratio閾値は正の値でなければなりません: %v", p.RatioThreshold))
		}
		if len(p.Themes) == 0 {
			return nil, model.NewMissingThemeListError(key, "")
		}
		profileThemes := make([]string, 0, len(p.Themes))
		for _, t := range p.Themes {
			t = normalizeKey(t)
			if known[t] == 0 {
				return nil, model.NewMissingThemeListError(key, t)
			}
			profileThemes = append(profileThemes, t)
		}
		p.Themes = profileThemes
		categories[key] = p
	}

	for _, name := range SportsCategories {
		p, ok := categories[name]
		if !ok {
			return nil, model.NewUnknownCategoryError(name)
		}
		if !p.IsSports {
			return nil, model.NewInvalidRuleError(name, "スポーツ系カテゴリにis_sportsが設定されていません")
		}
	}

	highlights := make(map[string]struct{}, len(r.HighlightChannelIDs))
	for _, id := range r.HighlightChannelIDs {
		if id = strings.TrimSpace(id); id != "" {
			highlights[id] = struct{}{}
		}
	}

	return &compiledRules{
		categories: categories,
		themes:     themes,
		highlights: highlights,
	}, nil
}

// normalizeFamilies はテーマキーワードを正規化し、テーマ間の排他性を検証する。
// あるテーマのキーワードが別テーマのキーワード中に単語として含まれる場合も重複とみなす。
func normalizeFamilies(families []ThemeFamily) ([]ThemeFamily, error) {
	out := make([]ThemeFamily, 0, len(families))
	seen := make(map[string]bool, len(families))

	for _, f := range families {
		name := normalizeKey(f.Name)
		if name == "" {
			return nil, model.NewInvalidRuleError("theme_families", "空のテーマ名があります")
		}
		if seen[name] {
			return nil, model.NewInvalidRuleError(name, "テーマ名が重複しています")
		}
		seen[name] = true

		keywords := make([]string, 0, len(f.Keywords))
		dedup := make(map[string]bool, len(f.Keywords))
		for _, kw := range f.Keywords {
			kw = normalizeText(kw)
			if kw == "" || dedup[kw] {
				continue
			}
			dedup[kw] = true
			keywords = append(keywords, kw)
		}
		if len(keywords) == 0 {
			return nil, model.NewInvalidRuleError(name, "キーワードが1件もありません")
		}
		out = append(out, ThemeFamily{Name: name, Keywords: keywords})
	}

	for i := range out {
		for j := range out {
			if i == j {
				continue
			}
			for _, kw := range out[i].Keywords {
				for _, other := range out[j].Keywords {
					if containsWord(other, kw) {
						return nil, model.NewOverlappingKeywordError(kw, out[i].Name, out[j].Name)
					}
				}
			}
		}
	}

	return out, nil
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// normalizeText は小文字化し、連続する空白を1つにまとめる。
func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// containsWord はneedleがhaystack中に単語境界付きで出現するかを返す。
// 境界は英数字以外の文字、または文字列の端。
func containsWord(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	for start := 0; start <= len(haystack)-len(needle); {
		idx := strings.Index(haystack[start:], needle)
		if idx < 0 {
			return false
		}
		pos := start + idx
		end := pos + len(needle)
		if (pos == 0 || !isWordByte(haystack[pos-1])) && (end == len(haystack) || !isWordByte(haystack[end])) {
			return true
		}
		start = pos + 1
	}
	return false
}

func isWordByte(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
