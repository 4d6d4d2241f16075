package engine

import (
	"fmt"

	"github.com/hitoshi/outperformer/internal/model"
)

// Ratio は再生数を登録者数で割った値を返す。丸めは行わない。
// 登録者数が0のチャンネルは入力不正として扱う。
func Ratio(views, subscribers int64, channelID string) (float64, error) {
	if subscribers == 0 {
		return 0, model.NewZeroSubscriberError(channelID)
	}
	if subscribers < 0 {
		return 0, model.NewNegativeFieldError(channelID, "subscriber_count", subscribers)
	}
	return float64(views) / float64(subscribers), nil
}

// Velocity は1日あたりのratioを返す。
// 経過時間が0以下になるのはフィルタを通過しなかった場合のみのため、不変条件違反とする。
func Velocity(ratio, ageHours float64, videoID string) (float64, error) {
	if ageHours <= 0 {
		return 0, model.NewInvariantViolationError(videoID, "age_hours",
			fmt.Sprintf("経過時間が0以下の動画に対してvelocityは計算できません: %v", ageHours))
	}
	return ratio / (ageHours / 24), nil
}
