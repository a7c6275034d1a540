// Package resource はAPI呼び出しをキャッシュキーに結び付け、UIが読む取得結果と
// 宣言済みのミューテーションを提供する。
package resource

import (
	"context"

	"github.com/hitoshi/citadel/internal/api"
	"github.com/hitoshi/citadel/internal/model"
	"github.com/hitoshi/citadel/internal/query"
	"github.com/hitoshi/citadel/internal/security"
)

// API はServiceが利用するリモートAPIの操作。*api.Clientが実装する。
type API interface {
	SendOTP(ctx context.Context, email string, isLogin bool) (*api.SendOTPResult, error)
	VerifyOTP(ctx context.Context, email, otp string) (*api.VerifyOTPResult, error)
	UpcomingEvents(ctx context.Context, filter model.EventFilter) (*model.EventList, error)
	Event(ctx context.Context, id string) (*model.DinnerEvent, error)
	MyBookings(ctx context.Context, typ model.BookingType) ([]model.Booking, error)
	Preferences(ctx context.Context) (*model.PreferencesState, error)
	SavePreferences(ctx context.Context, prefs model.DinnerPreferences) (*model.PreferencesState, error)
	UpdatePreferences(ctx context.Context, prefs model.DinnerPreferences) (*model.PreferencesState, error)
	Profile(ctx context.Context) (*model.UserProfile, error)
	CreateProfile(ctx context.Context, in model.ProfileInput) (string, error)
	QuizStatus(ctx context.Context) (*model.QuizStatus, error)
	SubmitQuiz(ctx context.Context, in model.QuizSubmission) error
	CreatePaymentOrder(ctx context.Context, in model.PaymentOrderInput) (*model.PaymentOrderResult, error)
	VerifyPayment(ctx context.Context, in model.PaymentVerification) (*model.PaymentConfirmation, error)
}

// Service はキャッシュ経由の読み取りとミューテーションを提供する。
type Service struct {
	api       API
	cache     *query.Cache
	sanitizer *security.TextSanitizer
}

// NewService はServiceを生成する。
func NewService(client API, cache *query.Cache, sanitizer *security.TextSanitizer) *Service {
	if sanitizer == nil {
		sanitizer = security.NewTextSanitizer()
	}
	return &Service{api: client, cache: cache, sanitizer: sanitizer}
}

// Cache は内部のキャッシュを返す。
func (s *Service) Cache() *query.Cache {
	return s.cache
}

// Events は開催予定イベントの一覧を返す。
func (s *Service) Events(ctx context.Context, filter model.EventFilter) (*model.EventList, error) {
	return query.Fetch(ctx, s.cache, EventsKey(filter), func(ctx context.Context) (*model.EventList, error) {
		list, err := s.api.UpcomingEvents(ctx, filter)
		if err != nil {
			return nil, err
		}
		for i := range list.Events {
			s.sanitizeEvent(&list.Events[i])
		}
		return list, nil
	})
}

// Event はイベント詳細を返す。
func (s *Service) Event(ctx context.Context, id string) (*model.DinnerEvent, error) {
	return query.Fetch(ctx, s.cache, EventKey(id), func(ctx context.Context) (*model.DinnerEvent, error) {
		ev, err := s.api.Event(ctx, id)
		if err != nil {
			return nil, err
		}
		s.sanitizeEvent(ev)
		return ev, nil
	})
}

// Bookings はユーザーの予約一覧を返す。
func (s *Service) Bookings(ctx context.Context, typ model.BookingType) ([]model.Booking, error) {
	return query.Fetch(ctx, s.cache, BookingsKey(typ), func(ctx context.Context) ([]model.Booking, error) {
		bookings, err := s.api.MyBookings(ctx, typ)
		if err != nil {
			return nil, err
		}
		for i := range bookings {
			if bookings[i].Event != nil {
				s.sanitizeEvent(bookings[i].Event)
			}
		}
		return bookings, nil
	})
}

// Preferences は食事設定を返す。
func (s *Service) Preferences(ctx context.Context) (*model.PreferencesState, error) {
	return query.Fetch(ctx, s.cache, PreferencesKey, s.api.Preferences)
}

// Profile はログイン中ユーザーのプロフィールを返す。
func (s *Service) Profile(ctx context.Context) (*model.UserProfile, error) {
	return query.Fetch(ctx, s.cache, ProfileKey, s.api.Profile)
}

// QuizStatus はオンボーディングクイズの回答状況を返す。
func (s *Service) QuizStatus(ctx context.Context) (*model.QuizStatus, error) {
	return query.Fetch(ctx, s.cache, QuizStatusKey, s.api.QuizStatus)
}

// SendOTP はワンタイムパスコードを送信する。送信済みの場合は競合エラーをそのまま返す。
func (s *Service) SendOTP(ctx context.Context, email string, isLogin bool) (*api.SendOTPResult, error) {
	return query.Mutate(ctx, s.cache, SendOTP, func(ctx context.Context) (*api.SendOTPResult, error) {
		return s.api.SendOTP(ctx, email, isLogin)
	})
}

// VerifyOTP はワンタイムパスコードを検証する。成功時は前のユーザーのキャッシュを無効化する。
func (s *Service) VerifyOTP(ctx context.Context, email, otp string) (*api.VerifyOTPResult, error) {
	return query.Mutate(ctx, s.cache, VerifyOTP, func(ctx context.Context) (*api.VerifyOTPResult, error) {
		return s.api.VerifyOTP(ctx, email, otp)
	})
}

// SavePreferences は初回の食事設定を保存する。
func (s *Service) SavePreferences(ctx context.Context, prefs model.DinnerPreferences) (*model.PreferencesState, error) {
	return s.writePreferences(ctx, SavePreferences, func(ctx context.Context) (*model.PreferencesState, error) {
		return s.api.SavePreferences(ctx, prefs)
	})
}

// UpdatePreferences は既存の食事設定を更新する。
func (s *Service) UpdatePreferences(ctx context.Context, prefs model.DinnerPreferences) (*model.PreferencesState, error) {
	return s.writePreferences(ctx, UpdatePreferences, func(ctx context.Context) (*model.PreferencesState, error) {
		return s.api.UpdatePreferences(ctx, prefs)
	})
}

func (s *Service) writePreferences(ctx context.Context, m query.Mutation, fn query.MutateFunc[*model.PreferencesState]) (*model.PreferencesState, error) {
	state, err := query.Mutate(ctx, s.cache, m, fn)
	if err != nil {
		return nil, err
	}
	// 応答に設定本体が含まれる場合は再取得せずに反映する
	if state != nil && state.Preferences != nil {
		query.SetData(s.cache, PreferencesKey, state)
	}
	return state, nil
}

// SubmitQuiz はクイズの回答を送信する。
func (s *Service) SubmitQuiz(ctx context.Context, in model.QuizSubmission) error {
	_, err := query.Mutate(ctx, s.cache, SubmitQuiz, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.api.SubmitQuiz(ctx, in)
	})
	return err
}

// CreateProfile はプロフィールを作成し、ユーザーIDを返す。
func (s *Service) CreateProfile(ctx context.Context, in model.ProfileInput) (string, error) {
	return query.Mutate(ctx, s.cache, CreateProfile, func(ctx context.Context) (string, error) {
		return s.api.CreateProfile(ctx, in)
	})
}

// CreatePaymentOrder は決済注文を作成する。
func (s *Service) CreatePaymentOrder(ctx context.Context, in model.PaymentOrderInput) (*model.PaymentOrderResult, error) {
	return query.Mutate(ctx, s.cache, CreateOrder, func(ctx context.Context) (*model.PaymentOrderResult, error) {
		return s.api.CreatePaymentOrder(ctx, in)
	})
}

// VerifyPayment は決済結果を検証し、予約を確定する。
func (s *Service) VerifyPayment(ctx context.Context, in model.PaymentVerification) (*model.PaymentConfirmation, error) {
	return query.Mutate(ctx, s.cache, VerifyPayment, func(ctx context.Context) (*model.PaymentConfirmation, error) {
		return s.api.VerifyPayment(ctx, in)
	})
}

// Pending はミューテーションmが実行中かを返す。
func (s *Service) Pending(m query.Mutation) bool {
	return s.cache.Pending(m.Name)
}

// Reset はキャッシュ済みの全リソースを破棄する。ログアウト時に使う。
func (s *Service) Reset() {
	s.cache.Remove(AllKeys...)
}

func (s *Service) sanitizeEvent(ev *model.DinnerEvent) {
	ev.Title = s.sanitizer.Text(ev.Title)
	ev.Description = s.sanitizer.HTML(ev.Description)
	ev.Venue = s.sanitizer.Text(ev.Venue)
}
