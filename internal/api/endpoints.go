package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/hitoshi/citadel/internal/model"
)

// APIパス
const (
	pathSendOTP         = "/v1/auth/send-otp"
	pathVerifyOTP       = "/v1/auth/verify-otp"
	pathOnboarding      = "/v1/onboarding"
	pathProfile         = "/v1/profile/me"
	pathPreferences     = "/v1/dinner-preferences"
	pathPreferencesInit = "/v1/dinner-preferences/initial"
	pathUpcomingEvents  = "/v1/dinner-events/upcoming"
	pathEvents          = "/v1/dinner-events"
	pathMyBookings      = "/v1/dinner-events/bookings/my"
	pathCreateOrder     = "/v1/payments/create-order"
	pathVerifyPayment   = "/v1/payments/verify"
	pathQuizStatus      = "/v1/quiz/status"
	pathQuizSubmit      = "/v1/quiz/submit"
)

// envelope は {success, message, data} 形式の応答。
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// decodeData は応答のdata部をoutにデコードする。
// data部を持たない応答はボディ全体をデコードする。
func decodeData(body []byte, out any) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return model.NewDecodeError(err.Error())
	}
	raw := []byte(env.Data)
	if len(raw) == 0 || string(raw) == "null" {
		raw = body
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return model.NewDecodeError(err.Error())
	}
	return nil
}

// SendOTPResult はOTP送信APIの応答。
type SendOTPResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	ExpiresIn int    `json:"expiresIn"`
}

// SendOTP はメールアドレスにワンタイムパスコードを送信する。
// 既に送信済みの場合は競合エラー（model.IsConflict）を返す。
func (c *Client) SendOTP(ctx context.Context, email string, isLogin bool) (*SendOTPResult, error) {
	body, err := c.do(ctx, request{
		endpoint: "send_otp",
		method:   http.MethodPost,
		path:     pathSendOTP,
		body: map[string]any{
			"email":   email,
			"isLogin": isLogin,
		},
	})
	if err != nil {
		return nil, err
	}
	var out SendOTPResult
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, model.NewDecodeError(err.Error())
	}
	return &out, nil
}

// VerifyOTPResult はOTP検証APIの応答。
type VerifyOTPResult struct {
	Success bool                `json:"success"`
	Tokens  model.SessionTokens `json:"tokens"`
	User    model.UserIdentity  `json:"user"`
}

// VerifyOTP はワンタイムパスコードを検証し、トークンとユーザー情報を返す。
// トークンの保存は呼び出し元が行う。
func (c *Client) VerifyOTP(ctx context.Context, email, otp string) (*VerifyOTPResult, error) {
	body, err := c.do(ctx, request{
		endpoint: "verify_otp",
		method:   http.MethodPost,
		path:     pathVerifyOTP,
		body: map[string]string{
			"email": email,
			"otp":   otp,
		},
	})
	if err != nil {
		return nil, err
	}
	var out VerifyOTPResult
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, model.NewDecodeError(err.Error())
	}
	if out.Tokens.AccessToken == "" {
		return nil, model.NewDecodeError("verify response has no access token")
	}
	return &out, nil
}

// CreateProfile はオンボーディング情報からプロフィールを作成し、ユーザーIDを返す。
func (c *Client) CreateProfile(ctx context.Context, in model.ProfileInput) (string, error) {
	if in.Skills == nil {
		in.Skills = []string{}
	}
	if in.Friends == nil {
		in.Friends = []string{}
	}
	body, err := c.do(ctx, request{
		endpoint: "create_profile",
		method:   http.MethodPost,
		path:     pathOnboarding,
		body:     in,
		auth:     true,
	})
	if err != nil {
		return "", err
	}
	var out struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", model.NewDecodeError(err.Error())
	}
	return out.UserID, nil
}

// Profile はログインユーザーのプロフィールを取得する。
func (c *Client) Profile(ctx context.Context) (*model.UserProfile, error) {
	body, err := c.do(ctx, request{
		endpoint: "profile",
		method:   http.MethodGet,
		path:     pathProfile,
		auth:     true,
	})
	if err != nil {
		return nil, err
	}
	var out model.UserProfile
	if err := decodeData(body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Preferences は食事設定を取得する。
func (c *Client) Preferences(ctx context.Context) (*model.PreferencesState, error) {
	return c.preferencesCall(ctx, "get_preferences", http.MethodGet, pathPreferences, nil)
}

// SavePreferences は初回の食事設定を保存する。
func (c *Client) SavePreferences(ctx context.Context, prefs model.DinnerPreferences) (*model.PreferencesState, error) {
	return c.preferencesCall(ctx, "save_preferences", http.MethodPost, pathPreferencesInit, prefs)
}

// UpdatePreferences は既存の食事設定を更新する。
func (c *Client) UpdatePreferences(ctx context.Context, prefs model.DinnerPreferences) (*model.PreferencesState, error) {
	return c.preferencesCall(ctx, "update_preferences", http.MethodPatch, pathPreferences, prefs)
}

func (c *Client) preferencesCall(ctx context.Context, endpoint, method, path string, in any) (*model.PreferencesState, error) {
	body, err := c.do(ctx, request{
		endpoint: endpoint,
		method:   method,
		path:     path,
		body:     in,
		auth:     true,
	})
	if err != nil {
		return nil, err
	}
	var out model.PreferencesState
	if err := decodeData(body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpcomingEvents は開催予定のイベント一覧を取得する。空の条件は送信しない。
func (c *Client) UpcomingEvents(ctx context.Context, filter model.EventFilter) (*model.EventList, error) {
	q := url.Values{}
	if filter.City != "" {
		q.Set("city", filter.City)
	}
	if filter.Date != "" {
		q.Set("date", filter.Date)
	}
	if filter.Area != "" {
		q.Set("area", filter.Area)
	}
	body, err := c.do(ctx, request{
		endpoint: "upcoming_events",
		method:   http.MethodGet,
		path:     pathUpcomingEvents,
		query:    q,
		auth:     true,
	})
	if err != nil {
		return nil, err
	}
	var out model.EventList
	if err := decodeData(body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Event はイベントの詳細を取得する。
func (c *Client) Event(ctx context.Context, id string) (*model.DinnerEvent, error) {
	if id == "" {
		return nil, model.NewValidationError("eventId", "イベントIDが指定されていません。")
	}
	body, err := c.do(ctx, request{
		endpoint: "event_detail",
		method:   http.MethodGet,
		path:     pathEvents + "/" + url.PathEscape(id),
		auth:     true,
	})
	if err != nil {
		return nil, err
	}
	var out model.DinnerEvent
	if err := decodeData(body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MyBookings はログインユーザーの予約一覧を取得する。
func (c *Client) MyBookings(ctx context.Context, typ model.BookingType) ([]model.Booking, error) {
	if typ == "" {
		typ = model.BookingTypeUpcoming
	}
	body, err := c.do(ctx, request{
		endpoint: "my_bookings",
		method:   http.MethodGet,
		path:     pathMyBookings,
		query:    url.Values{"type": {string(typ)}},
		auth:     true,
	})
	if err != nil {
		return nil, err
	}
	var out struct {
		Bookings []model.Booking `json:"bookings"`
	}
	if err := decodeData(body, &out); err != nil {
		return nil, err
	}
	return out.Bookings, nil
}

// CreatePaymentOrder は決済注文を作成する。
func (c *Client) CreatePaymentOrder(ctx context.Context, in model.PaymentOrderInput) (*model.PaymentOrderResult, error) {
	body, err := c.do(ctx, request{
		endpoint: "create_order",
		method:   http.MethodPost,
		path:     pathCreateOrder,
		body:     in,
		auth:     true,
	})
	if err != nil {
		return nil, err
	}
	var out model.PaymentOrderResult
	if err := decodeData(body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyPayment は決済SDKの結果を検証し、予約を確定する。
func (c *Client) VerifyPayment(ctx context.Context, in model.PaymentVerification) (*model.PaymentConfirmation, error) {
	body, err := c.do(ctx, request{
		endpoint: "verify_payment",
		method:   http.MethodPost,
		path:     pathVerifyPayment,
		body:     in,
		auth:     true,
	})
	if err != nil {
		return nil, err
	}
	var out model.PaymentConfirmation
	if err := decodeData(body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// QuizStatus はオンボーディングクイズの回答状況を取得する。
func (c *Client) QuizStatus(ctx context.Context) (*model.QuizStatus, error) {
	body, err := c.do(ctx, request{
		endpoint: "quiz_status",
		method:   http.MethodGet,
		path:     pathQuizStatus,
		auth:     true,
	})
	if err != nil {
		return nil, err
	}
	var out model.QuizStatus
	if err := decodeData(body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitQuiz はクイズの回答を送信する。
func (c *Client) SubmitQuiz(ctx context.Context, in model.QuizSubmission) error {
	_, err := c.do(ctx, request{
		endpoint: "submit_quiz",
		method:   http.MethodPost,
		path:     pathQuizSubmit,
		body:     in,
		auth:     true,
	})
	return err
}
