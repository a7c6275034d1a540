package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/citadel/internal/model"
)

// ErrorResponseBody はリレー自身が返すエラーレスポンスの統一フォーマット。
// バックエンドのエラー形式に合わせてmessageを含める。
type ErrorResponseBody struct {
	Success  bool   `json:"success"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

var errForbiddenOrigin = &model.APIError{
	Code:     "FORBIDDEN_ORIGIN",
	Message:  "Origin not allowed",
	Category: model.CategoryAuth,
	Action:   "許可されたオリジンからアクセスしてください。",
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteInternalServerError は内部エラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、クライアントには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: model.CategorySystem,
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// WriteBadGateway は転送先に到達できなかった場合のレスポンスを書き込む。
func WriteBadGateway(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusBadGateway, &model.APIError{
		Code:     "UPSTREAM_UNAVAILABLE",
		Message:  "バックエンドに接続できませんでした。",
		Category: model.CategoryNetwork,
		Action:   "しばらく待ってから再度お試しください。",
	})
}
