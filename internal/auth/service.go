// Package auth は登録済みユーザーのOTPログインフローを提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/hitoshi/citadel/internal/api"
	"github.com/hitoshi/citadel/internal/model"
	"github.com/hitoshi/citadel/internal/navigation"
	"github.com/hitoshi/citadel/internal/validation"
)

// Step はログインフローのステップ。
type Step string

const (
	StepEmail Step = "email"
	StepOTP   Step = "otp"
)

// OTPProvider はOTPの送信と検証を行うリモート操作。*resource.Serviceが実装する。
type OTPProvider interface {
	SendOTP(ctx context.Context, email string, isLogin bool) (*api.SendOTPResult, error)
	VerifyOTP(ctx context.Context, email, otp string) (*api.VerifyOTPResult, error)
}

// SessionWriter は認証成功時にトークンとユーザー情報を保存する。*session.Managerが実装する。
type SessionWriter interface {
	SetTokens(ctx context.Context, tokens model.SessionTokens) error
	SetUserData(ctx context.Context, user model.UserIdentity) error
}

// Result はログイン成功時の結果。
type Result struct {
	User  model.UserIdentity
	Route string // ログイン後に表示する画面
}

// Service はログインフローの状態を保持する。
type Service struct {
	otp      OTPProvider
	sessions SessionWriter
	logger   *slog.Logger

	mu          sync.Mutex
	step        Step
	email       string
	alreadySent bool
	expiresIn   int
}

// NewService はServiceを生成する。
func NewService(otp OTPProvider, sessions SessionWriter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		otp:      otp,
		sessions: sessions,
		logger:   logger,
		step:     StepEmail,
	}
}

// Step は現在のステップを返す。
func (s *Service) Step() Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

// Email はOTPの送信先メールアドレスを返す。
func (s *Service) Email() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.email
}

// AlreadySent は直前の送信要求が「送信済み」（409）だったかを返す。
func (s *Service) AlreadySent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alreadySent
}

// ExpiresIn はOTPの有効期間（秒）を返す。送信済みで不明な場合は0。
func (s *Service) ExpiresIn() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiresIn
}

// RequestCode はemailにログイン用のOTPを送信し、OTP入力に進む。
// 送信済み（409）の場合も成功として扱う。
func (s *Service) RequestCode(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if err := validation.Email(email); err != nil {
		return err
	}

	alreadySent := false
	expiresIn := 0
	res, err := s.otp.SendOTP(ctx, email, true)
	switch {
	case err == nil:
		if res != nil {
			expiresIn = res.ExpiresIn
		}
	case model.IsConflict(err):
		alreadySent = true
		s.logger.Info("OTPは送信済みです", slog.String("email", email))
	default:
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.step = StepOTP
	s.email = email
	s.alreadySent = alreadySent
	s.expiresIn = expiresIn
	return nil
}

// Verify はOTPを検証し、トークンとユーザー情報を保存する。
// 成功時はステップを初期状態に戻し、プロフィールの完了状況に応じた画面を返す。
func (s *Service) Verify(ctx context.Context, code string) (*Result, error) {
	s.mu.Lock()
	step, email := s.step, s.email
	s.mu.Unlock()

	if step != StepOTP {
		return nil, fmt.Errorf("auth: no code has been requested")
	}
	if err := validation.OTP(code); err != nil {
		return nil, err
	}

	res, err := s.otp.VerifyOTP(ctx, email, code)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.SetTokens(ctx, res.Tokens); err != nil {
		return nil, fmt.Errorf("failed to save tokens: %w", err)
	}
	if err := s.sessions.SetUserData(ctx, res.User); err != nil {
		return nil, fmt.Errorf("failed to save user: %w", err)
	}

	s.Reset()
	s.logger.Info("ログインしました", slog.String("user_id", res.User.ID))
	return &Result{User: res.User, Route: LandingRoute(res.User)}, nil
}

// ChangeEmail はメールアドレス入力に戻る。
func (s *Service) ChangeEmail() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step = StepEmail
	s.alreadySent = false
	s.expiresIn = 0
}

// Reset はフローを初期状態に戻す。
func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step = StepEmail
	s.email = ""
	s.alreadySent = false
	s.expiresIn = 0
}

// LandingRoute は認証後に表示する画面を返す。
// プロフィール未作成の場合は登録フローの本人情報入力から再開する。
func LandingRoute(user model.UserIdentity) string {
	if user.IsProfileComplete {
		return navigation.RouteEvents
	}
	return navigation.RouteWhoAreYou
}
