package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/hitoshi/citadel/internal/model"
)

// errorBody はエラー応答からメッセージを取り出すための形。
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// extractMessage は応答ボディのmessageまたはerrorフィールドをそのまま返す。
// JSONでない短いテキストはボディ全体を返す。
func extractMessage(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		if eb.Message != "" {
			return eb.Message
		}
		if eb.Error != "" {
			return eb.Error
		}
		return ""
	}
	text := strings.TrimSpace(string(body))
	if text != "" && len(text) <= 200 && !strings.HasPrefix(text, "<") {
		return text
	}
	return ""
}

// classifyResponse はHTTPステータスコードと応答ボディをmodel.APIErrorに分類する。
//   - 409: 競合（呼び出し元がソフト成功として扱える）
//   - 401/403: 認証エラー
//   - その他の4xx: 業務エラー
//   - 5xx: システムエラー
func classifyResponse(status int, body []byte) error {
	msg := extractMessage(body)
	if msg == "" {
		msg = http.StatusText(status)
	}

	switch {
	case status == http.StatusConflict:
		return model.NewConflictError(msg)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return model.NewUnauthorizedError(status, msg)
	default:
		return model.NewRemoteError(status, msg)
	}
}
