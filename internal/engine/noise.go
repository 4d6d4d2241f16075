package engine

import (
	"regexp"
	"strings"

	"github.com/hitoshi/outperformer/internal/model"
)

// noiseRule はノイズ判定の名前付きルール。
type noiseRule struct {
	kind  model.NoiseType
	match func(s *subject) bool
}

var (
	reResultVocab = regexp.MustCompile(`\b(highlights|recap|all\s+goals|extended\s+highlights|full\s+match)\b`)
	reTeamVs      = regexp.MustCompile(`\w[\w.'&]*\s+(vs\.?|v\.?|versus)\s+\w`)
	reVsWord      = regexp.MustCompile(`\b(vs\.?|versus)\b`)
	reScore       = regexp.MustCompile(`\(\s*\d{1,3}\s*[-–:]\s*\d{1,3}\s*\)`)
	reLive        = regexp.MustCompile(`live\s*stream|watch\s*party|watch\s*along|play[\s-]+by[\s-]+play|\blive\s+(reaction|reacting|coverage|commentary|broadcast|chat|q&a|stream)\b`)
	rePolitical   = regexp.MustCompile(`\b(trump|biden|obama|kamala|vance|desantis|pelosi|newsom|aoc|bondi|epstein|elites|maga|leftists?|liberals?|rightwing|right[\s-]wing|democrats?|republicans?|white\s+house|congress|senate|senator|president|governor|attorney\s+general)\b`)
	reDramaVocab  = regexp.MustCompile(`\b(drama|beef|controversy|slams|blasts|rips|exposed|scandal|feud|backlash|outrage|fired|arrested|banned|meltdown|melts\s+down|unhinged|lost\s+(his|her|their)\s+mind)\b`)
)

// noiseRules は優先順（event_recap, live_stream, political_news）に並ぶ。
// 最初に一致したルールの種類を採用する。
func noiseRules(highlights map[string]struct{}) []noiseRule {
	isHighlightsChannel := func(s *subject) bool {
		if _, ok := highlights[s.channelID]; ok {
			return true
		}
		return strings.Contains(s.lowerName, "highlights")
	}

	return []noiseRule{
		{model.NoiseEventRecap, func(s *subject) bool {
			t := s.lowerTitle
			if reResultVocab.MatchString(t) && reTeamVs.MatchString(t) {
				return true
			}
			if reScore.MatchString(t) && reVsWord.MatchString(t) {
				return true
			}
			return isHighlightsChannel(s) && (reVsWord.MatchString(t) || reScore.MatchString(t))
		}},
		{model.NoiseLiveStream, func(s *subject) bool {
			return reLive.MatchString(s.lowerTitle)
		}},
		{model.NoisePoliticalNews, func(s *subject) bool {
			if !rePolitical.MatchString(s.lowerTitle) {
				return false
			}
			return s.profile.IsCulture || reDramaVocab.MatchString(s.lowerTitle)
		}},
	}
}

// detectNoise は最初に一致したノイズ種別を返す。一致しなければ NoiseNone。
func detectNoise(rules []noiseRule, s *subject) (bool, model.NoiseType) {
	for _, r := range rules {
		if r.match(s) {
			return true, r.kind
		}
	}
	return false, model.NoiseNone
}
