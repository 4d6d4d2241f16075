package youtube

import "time"

// statusClass はAPIレスポンスのHTTPステータスコードの分類。
type statusClass int

const (
	// statusOK は成功（200）。
	statusOK statusClass = iota
	// statusFatal は再試行しても結果が変わらないステータス（4xx、クォータ超過を含む）。
	statusFatal
	// statusRetry は一時的な失敗として再試行するステータス（429/5xx）。
	statusRetry
)

const (
	// maxAttempts は1リクエストあたりの最大試行回数。
	maxAttempts = 3
	// initialBackoff は指数バックオフの初回遅延。
	initialBackoff = 500 * time.Millisecond
	// maxBackoff は指数バックオフの最大遅延。
	maxBackoff = 8 * time.Second
)

// classifyStatus はHTTPステータスコードを分類する。
func classifyStatus(code int) statusClass {
	switch {
	case code == 200:
		return statusOK
	case code == 429, code >= 500:
		return statusRetry
	default:
		return statusFatal
	}
}

// calculateBackoff は再試行回数（0始まり）に基づいて指数バックオフ遅延を計算する。
// 初回500ms、2倍ずつ増加、最大8秒。
func calculateBackoff(retry int) time.Duration {
	delay := initialBackoff
	for i := 0; i < retry; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}
