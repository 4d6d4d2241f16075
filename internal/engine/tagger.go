package engine

import (
	"regexp"
	"strings"
	"unicode"
)

// subject はタグ付けとノイズ判定の対象。正規化は1回だけ行う。
type subject struct {
	title      string // 元のタイトル（大文字小文字を区別する判定用）
	lowerTitle string
	text       string // タイトル、説明文、タグを連結して正規化したもの
	channelID  string
	lowerName  string
	profile    CategoryProfile
}

func newSubject(title, description string, tags []string, channelID, channelName string, profile CategoryProfile) *subject {
	parts := make([]string, 0, len(tags)+2)
	parts = append(parts, title, description)
	parts = append(parts, tags...)
	return &subject{
		title:      title,
		lowerTitle: strings.ToLower(title),
		text:       normalizeText(strings.Join(parts, " ")),
		channelID:  channelID,
		lowerName:  strings.ToLower(channelName),
		profile:    profile,
	}
}

// patternRule はタイトルパターンの名前付きルール。
type patternRule struct {
	name  string
	match func(s *subject) bool
}

func lowerTitleMatches(re *regexp.Regexp) func(s *subject) bool {
	return func(s *subject) bool { return re.MatchString(s.lowerTitle) }
}

var (
	reFirstPerson   = regexp.MustCompile(`\bi\s+(tried|spent|went|made|built|bought|got|did|ate|lived|became|quit)\b`)
	reExposeTruth   = regexp.MustCompile(`the\s+real\s+reason|exposed|the\s+truth\s+about|what\s+they\s+don'?t|secret|revealed`)
	reChallengeBet  = regexp.MustCompile(`challenge|\$\d+|\bbet\b|wager|competition`)
	reListicle      = regexp.MustCompile(`top\s+\d+|\d+\s+best|\d+\s+worst|ranking|tier\s+list`)
	reVersus        = regexp.MustCompile(`\bvs\.?\b|versus|\b\d+v\d+\b`)
	reReaction      = regexp.MustCompile(`\breacts?\b|reaction|responding\s+to|watching|reacting`)
	reVlogBTS       = regexp.MustCompile(`day\s+in\s+(the\s+)?life|behind\s+the\s+scenes|vlog|\bbts\b|24\s+hours`)
	reInterview     = regexp.MustCompile(`interview|sat\s+down\s+with|talked\s+to|speaks\s+on|opens\s+up`)
	reHighlights    = regexp.MustCompile(`highlights?|best\s+plays|mixtape|compilation|moments`)
	reDirectAddress = regexp.MustCompile(`\byou(r|rself|'re|'ll)?\b`)
	reNumberStart   = regexp.MustCompile(`^\d+`)
	reCapsWord      = regexp.MustCompile(`\b[A-Z]{2,}\b`)
)

// titlePatterns は宣言順に評価される。結果もこの順になる。
var titlePatterns = []patternRule{
	{"first_person_action", lowerTitleMatches(reFirstPerson)},
	{"expose_truth", lowerTitleMatches(reExposeTruth)},
	{"challenge_bet", lowerTitleMatches(reChallengeBet)},
	{"listicle", lowerTitleMatches(reListicle)},
	{"versus", lowerTitleMatches(reVersus)},
	{"reaction", lowerTitleMatches(reReaction)},
	{"vlog_bts", lowerTitleMatches(reVlogBTS)},
	{"interview", lowerTitleMatches(reInterview)},
	{"highlights", lowerTitleMatches(reHighlights)},
	{"direct_address", lowerTitleMatches(reDirectAddress)},
	{"question", func(s *subject) bool {
		return strings.HasSuffix(strings.TrimSpace(s.title), "?")
	}},
	{"number_start", func(s *subject) bool {
		return reNumberStart.MatchString(strings.TrimSpace(s.title))
	}},
	{"all_caps", func(s *subject) bool {
		return len(reCapsWord.FindAllString(s.title, 3)) >= 2
	}},
	{"emoji", func(s *subject) bool {
		return strings.IndexFunc(s.title, isEmoji) >= 0
	}},
}

var emojiRanges = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x2600, Hi: 0x26FF, Stride: 1},
		{Lo: 0x2702, Hi: 0x27B0, Stride: 1},
	},
	R32: []unicode.Range32{
		{Lo: 0x1F1E0, Hi: 0x1F1FF, Stride: 1},
		{Lo: 0x1F300, Hi: 0x1F5FF, Stride: 1},
		{Lo: 0x1F600, Hi: 0x1F64F, Stride: 1},
		{Lo: 0x1F680, Hi: 0x1F6FF, Stride: 1},
		{Lo: 0x1F900, Hi: 0x1F9FF, Stride: 1},
		{Lo: 0x1FA70, Hi: 0x1FAFF, Stride: 1},
	},
}

func isEmoji(r rune) bool {
	return unicode.Is(emojiRanges, r)
}

// matchPatterns はタイトルに一致したパターン名を宣言順で返す。
func matchPatterns(s *subject) []string {
	out := []string{}
	for _, p := range titlePatterns {
		if p.match(s) {
			out = append(out, p.name)
		}
	}
	return out
}

// matchThemes はカテゴリに紐づくテーマのうち、本文に単語として含まれるものを返す。
// 順序はテーマ定義順。
func matchThemes(themes []ThemeFamily, s *subject) []string {
	allowed := make(map[string]bool, len(s.profile.Themes))
	for _, t := range s.profile.Themes {
		allowed[t] = true
	}

	out := []string{}
	for _, f := range themes {
		if !allowed[f.Name] {
			continue
		}
		for _, kw := range f.Keywords {
			if containsWord(s.text, kw) {
				out = append(out, f.Name)
				break
			}
		}
	}
	return out
}
