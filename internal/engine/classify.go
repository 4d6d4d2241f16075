package engine

import "github.com/hitoshi/outperformer/internal/model"

const (
	// TrendJackerMaxAgeHours 以下の経過時間で急伸した動画がtrend_jackerになる。
	TrendJackerMaxAgeHours = 72.0
	// TrendJackerMinVelocity はtrend_jackerに必要なvelocity。
	TrendJackerMinVelocity = 2.0
	// AuthorityMinAgeHours 以上の経過時間で伸び続けている動画がauthority_builderになる。
	AuthorityMinAgeHours = 168.0
	// AuthorityMinVelocity はauthority_builderに必要なvelocity。
	AuthorityMinVelocity = 0.5
)

// Classify は経過時間とvelocityから分類を決める。最初に一致したものを採用する。
// categoryは呼び出し側の引数をそろえるために受け取るが、閾値はカテゴリによらず固定のため判定には使わない。
func Classify(ageHours, velocity float64, category string) model.Classification {
	switch {
	case ageHours <= TrendJackerMaxAgeHours && velocity >= TrendJackerMinVelocity:
		return model.ClassificationTrendJacker
	case ageHours >= AuthorityMinAgeHours && velocity >= AuthorityMinVelocity:
		return model.ClassificationAuthorityBuilder
	default:
		return model.ClassificationStandard
	}
}
