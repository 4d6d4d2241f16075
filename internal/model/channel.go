// Package model はドメインモデルを定義する。
package model

// Channel は監視対象チャンネルとその登録者数を表す。
// スキャンサイクルごとに外部メトリクスプロバイダから更新され、サイクル内では不変。
type Channel struct {
	ID              string `json:"channel_id"`
	Name            string `json:"name"`
	SubscriberCount int64  `json:"subscriber_count"`
	Category        string `json:"category"`
}

// Pair はエンジンへの入力単位（チャンネルと動画の組）。
type Pair struct {
	Channel Channel
	Video   Video
}
