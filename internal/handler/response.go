package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/outperformer/internal/middleware"
	"github.com/hitoshi/outperformer/internal/model"
)

// writeJSON はステータス200でJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// handleError はハンドラー内で発生したエラーを統一エラーフォーマットに変換する。
// APIError以外は内部エラーとして扱い、詳細はログにのみ残す。
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, statusFor(apiErr), apiErr)
		return
	}

	slog.Error("internal server error",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	middleware.WriteInternalServerError(w)
}

// statusFor はAPIErrorコードからHTTPステータスコードにマッピングする。
func statusFor(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidQuery:
		return http.StatusBadRequest
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
