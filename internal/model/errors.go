// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ（サーバーから返された場合はそのまま）
	Category string // カテゴリ: validation, network, auth, conflict, business, system
	Action   string // ユーザー向け対処方法
	Field    string // バリデーションエラーの対象フィールド（該当時のみ）
	Status   int    // HTTPステータスコード（リモートエラーのみ）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// エラーカテゴリ
const (
	CategoryValidation = "validation"
	CategoryNetwork    = "network"
	CategoryAuth       = "auth"
	CategoryConflict   = "conflict"
	CategoryBusiness   = "business"
	CategorySystem     = "system"
)

// 定義済みエラーコード
const (
	ErrCodeValidation      = "VALIDATION_FAILED"
	ErrCodeNetwork         = "NETWORK_ERROR"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeSessionExpired  = "SESSION_EXPIRED"
	ErrCodeConflict        = "CONFLICT"
	ErrCodeRemote          = "REMOTE_ERROR"
	ErrCodeDecode          = "DECODE_FAILED"
	ErrCodeCityUnavailable = "CITY_UNAVAILABLE"
	ErrCodeIncompleteData  = "INCOMPLETE_SIGNUP"
)

// NewValidationError は入力値検証エラーを生成する。
// リモート呼び出しの前に検出され、対象フィールドの横に表示される。
func NewValidationError(field, message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: CategoryValidation,
		Action:   "入力内容を確認してください。",
		Field:    field,
	}
}

// NewNetworkError は通信エラーを生成する。自動リトライは行わない。
func NewNetworkError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeNetwork,
		Message:  fmt.Sprintf("サーバーに接続できませんでした: %s", reason),
		Category: CategoryNetwork,
		Action:   "ネットワーク接続を確認して、もう一度お試しください。",
	}
}

// NewUnauthorizedError は401/403応答のエラーを生成する。
func NewUnauthorizedError(status int, message string) *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  message,
		Category: CategoryAuth,
		Action:   "ログインし直してください。",
		Status:   status,
	}
}

// NewSessionExpiredError はトークン更新に失敗しセッションを破棄したときのエラーを生成する。
func NewSessionExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionExpired,
		Message:  "セッションの有効期限が切れました。",
		Category: CategoryAuth,
		Action:   "もう一度ログインしてください。",
		Status:   401,
	}
}

// NewConflictError は409応答のエラーを生成する。
// 呼び出し元は「既に送信済み」として成功扱いにできる。
func NewConflictError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeConflict,
		Message:  message,
		Category: CategoryConflict,
		Action:   "既に送信されたコードを使用してください。",
		Status:   409,
	}
}

// NewRemoteError はメッセージ付きの4xx/5xx応答のエラーを生成する。
// メッセージはそのまま通知に表示される。
func NewRemoteError(status int, message string) *APIError {
	category := CategoryBusiness
	if status >= 500 {
		category = CategorySystem
	}
	return &APIError{
		Code:     ErrCodeRemote,
		Message:  message,
		Category: category,
		Action:   "しばらく待ってから再度お試しください。",
		Status:   status,
	}
}

// NewDecodeError はレスポンスの解析失敗エラーを生成する。
func NewDecodeError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeDecode,
		Message:  fmt.Sprintf("レスポンスの解析に失敗しました: %s", reason),
		Category: CategorySystem,
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewCityUnavailableError は選択不可の都市が選ばれた場合のエラーを生成する。
func NewCityUnavailableError(cityName string) *APIError {
	return &APIError{
		Code:     ErrCodeCityUnavailable,
		Message:  fmt.Sprintf("%s は現在ご利用いただけません。", cityName),
		Category: CategoryValidation,
		Action:   "利用可能な都市を選択してください。",
		Field:    "city",
	}
}

// NewIncompleteSignupError は登録情報が揃っていない状態で最終ステップに到達した場合のエラーを生成する。
func NewIncompleteSignupError(missing []string) *APIError {
	return &APIError{
		Code:     ErrCodeIncompleteData,
		Message:  fmt.Sprintf("登録情報が不足しています: %v", missing),
		Category: CategoryValidation,
		Action:   "前のステップに戻って入力を完了してください。",
	}
}

// HasCategory はエラーチェーンに指定カテゴリのAPIErrorが含まれるかを返す。
func HasCategory(err error, category string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Category == category
	}
	return false
}

// IsConflict は409相当のエラーかを返す。
func IsConflict(err error) bool {
	return HasCategory(err, CategoryConflict)
}

// IsValidation はローカル検証エラーかを返す。
func IsValidation(err error) bool {
	return HasCategory(err, CategoryValidation)
}

// IsSessionExpired はセッションが強制破棄されたことを示すエラーかを返す。
func IsSessionExpired(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == ErrCodeSessionExpired
	}
	return false
}

// UserMessage は通知に表示するメッセージを返す。
// APIError以外のエラーは一般的なメッセージに置き換える。
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return "エラーが発生しました。しばらく待ってから再度お試しください。"
}
