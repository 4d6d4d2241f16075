// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// APIレスポンスに含める原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, system
	Action   string // 利用者向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// NewInvalidQueryError はクエリパラメータが無効な場合のエラーを生成する。
func NewInvalidQueryError(param, value string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidQuery,
		Message:  fmt.Sprintf("無効なクエリパラメータです: %s=%s", param, value),
		Category: "validation",
		Action:   "パラメータの値を確認してください。",
	}
}

// NewRateLimitError はレート制限を超過した場合のエラーを生成する。
func NewRateLimitError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "Retry-Afterヘッダーの秒数だけ待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーの利用者向け表現を生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewServiceUnavailableError は依存先に接続できない場合のエラーを生成する。
func NewServiceUnavailableError(dependency string) *APIError {
	return &APIError{
		Code:     ErrCodeUnavailable,
		Message:  fmt.Sprintf("%s に接続できません。", dependency),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// エラーカテゴリ
const (
	// ErrCategoryInput は入力レコードの不正を表す。対象レコードのみ致命的。
	ErrCategoryInput = "input"
	// ErrCategoryConfig は設定の不備を表す。起動時に致命的。
	ErrCategoryConfig = "config"
	// ErrCategoryInvariant は到達しないはずの状態を表す。
	ErrCategoryInvariant = "invariant"
)

// 定義済みエラーコード
const (
	ErrCodeInvalidQuery        = "INVALID_QUERY"
	ErrCodeRateLimited         = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal            = "INTERNAL_ERROR"
	ErrCodeUnavailable         = "SERVICE_UNAVAILABLE"
	ErrCodeZeroSubscribers     = "ZERO_SUBSCRIBERS"
	ErrCodeNegativeField       = "NEGATIVE_FIELD"
	ErrCodeTimeOrder           = "OBSERVED_BEFORE_PUBLISHED"
	ErrCodeMissingID           = "MISSING_ID"
	ErrCodeChannelMismatch     = "CHANNEL_MISMATCH"
	ErrCodeInvariantViolation  = "INVARIANT_VIOLATION"
	ErrCodeUnknownCategory     = "UNKNOWN_CATEGORY"
	ErrCodeMissingThemeList    = "MISSING_THEME_LIST"
	ErrCodeOverlappingKeywords = "OVERLAPPING_KEYWORDS"
	ErrCodeInvalidRule         = "INVALID_RULE"
)

// ErrMalformedInput は不正な入力レコードを表すセンチネル。errors.Isで判定する。
var ErrMalformedInput = errors.New("malformed input record")

// ErrInvalidConfig は不正なエンジン設定を表すセンチネル。errors.Isで判定する。
var ErrInvalidConfig = errors.New("invalid engine configuration")

// ErrInvariantViolation は内部不変条件の違反を表すセンチネル。
var ErrInvariantViolation = errors.New("invariant violation")

// EngineError は判定エンジンのエラーを表す。
// どのレコードのどのフィールドが原因かを利用者が特定できるようにする。
type EngineError struct {
	Code     string
	Message  string
	Category string // input, config, invariant
	Field    string // 原因フィールド（設定エラーの場合はカテゴリ名やテーマ名）
	RecordID string // video_id または channel_id
}

// Error はerrorインターフェースを実装する。
func (e *EngineError) Error() string {
	if e.RecordID != "" {
		return fmt.Sprintf("[%s] %s (record=%s, field=%s)", e.Code, e.Message, e.RecordID, e.Field)
	}
	return fmt.Sprintf("[%s] %s (field=%s)", e.Code, e.Message, e.Field)
}

// Unwrap はカテゴリに対応するセンチネルを返す。
func (e *EngineError) Unwrap() error {
	switch e.Category {
	case ErrCategoryInput:
		return ErrMalformedInput
	case ErrCategoryConfig:
		return ErrInvalidConfig
	case ErrCategoryInvariant:
		return ErrInvariantViolation
	}
	return nil
}

// NewZeroSubscriberError は登録者数が0のチャンネルのエラーを生成する。
func NewZeroSubscriberError(channelID string) *EngineError {
	return &EngineError{
		Code:     ErrCodeZeroSubscribers,
		Message:  "登録者数が0のためratioを計算できません。チャンネルフィードを確認してください",
		Category: ErrCategoryInput,
		Field:    "subscriber_count",
		RecordID: channelID,
	}
}

// NewNegativeFieldError は負の数値フィールドのエラーを生成する。
func NewNegativeFieldError(recordID, field string, value int64) *EngineError {
	return &EngineError{
		Code:     ErrCodeNegativeField,
		Message:  fmt.Sprintf("負の値は許可されていません: %d", value),
		Category: ErrCategoryInput,
		Field:    field,
		RecordID: recordID,
	}
}

// NewTimeOrderError はobserved_atがpublished_atより前の場合のエラーを生成する。
func NewTimeOrderError(videoID string) *EngineError {
	return &EngineError{
		Code:     ErrCodeTimeOrder,
		Message:  "observed_atがpublished_atより前です",
		Category: ErrCategoryInput,
		Field:    "observed_at",
		RecordID: videoID,
	}
}

// NewMissingIDError はIDが空のレコードのエラーを生成する。
func NewMissingIDError(field string) *EngineError {
	return &EngineError{
		Code:     ErrCodeMissingID,
		Message:  "IDが空です",
		Category: ErrCategoryInput,
		Field:    field,
	}
}

// NewChannelMismatchError は動画のchannel_idが組み合わされたチャンネルと一致しない場合のエラーを生成する。
func NewChannelMismatchError(videoID, channelID string) *EngineError {
	return &EngineError{
		Code:     ErrCodeChannelMismatch,
		Message:  fmt.Sprintf("動画のchannel_idがチャンネル %s と一致しません", channelID),
		Category: ErrCategoryInput,
		Field:    "channel_id",
		RecordID: videoID,
	}
}

// NewInvariantViolationError は到達しないはずの状態に到達した場合のエラーを生成する。
func NewInvariantViolationError(recordID, field, detail string) *EngineError {
	return &EngineError{
		Code:     ErrCodeInvariantViolation,
		Message:  detail,
		Category: ErrCategoryInvariant,
		Field:    field,
		RecordID: recordID,
	}
}

// NewUnknownCategoryError は列挙に存在しないカテゴリのエラーを生成する。
func NewUnknownCategoryError(category string) *EngineError {
	return &EngineError{
		Code:     ErrCodeUnknownCategory,
		Message:  fmt.Sprintf("未定義のチャンネルカテゴリです: %q", category),
		Category: ErrCategoryConfig,
		Field:    category,
	}
}

// NewMissingThemeListError はカテゴリに対応するテーマキーワードリストが存在しない場合のエラーを生成する。
func NewMissingThemeListError(category, theme string) *EngineError {
	msg := fmt.Sprintf("カテゴリ %q に対応するテーマキーワードリストがありません", category)
	if theme != "" {
		msg = fmt.Sprintf("カテゴリ %q が参照するテーマ %q のキーワードリストがありません", category, theme)
	}
	return &EngineError{
		Code:     ErrCodeMissingThemeList,
		Message:  msg,
		Category: ErrCategoryConfig,
		Field:    category,
	}
}

// NewOverlappingKeywordError はテーマ間でキーワードが排他的でない場合のエラーを生成する。
func NewOverlappingKeywordError(keyword, themeA, themeB string) *EngineError {
	return &EngineError{
		Code:     ErrCodeOverlappingKeywords,
		Message:  fmt.Sprintf("キーワード %q がテーマ %q と %q で重複しています", keyword, themeA, themeB),
		Category: ErrCategoryConfig,
		Field:    themeA,
	}
}

// NewInvalidRuleError はルール定義が不正な場合のエラーを生成する。
func NewInvalidRuleError(rule, detail string) *EngineError {
	return &EngineError{
		Code:     ErrCodeInvalidRule,
		Message:  detail,
		Category: ErrCategoryConfig,
		Field:    rule,
	}
}
