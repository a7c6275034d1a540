// Package session はアクセストークンとユーザー識別情報の永続化、
// およびトークン有効期限の判定を提供する。
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/citadel/internal/model"
	"github.com/hitoshi/citadel/internal/storage"
)

// DefaultExpirySkew は有効期限判定で差し引く時計ずれの既定値。
const DefaultExpirySkew = 30 * time.Second

// session名前空間のキー
const (
	keyAccessToken  = "accessToken"
	keyRefreshToken = "refreshToken"
	keyUser         = "user"
)

// ErrNotAuthenticated は有効なセッションが存在しないことを示す。
var ErrNotAuthenticated = errors.New("session: not authenticated")

// Session は検証済みのセッション情報を表す。
type Session struct {
	Tokens model.SessionTokens
	User   *model.UserIdentity // 未保存の場合はnil
}

// Manager はセッション状態をStoreに読み書きする。
type Manager struct {
	store  storage.Store
	ns     *storage.Namespace
	skew   time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// Option はManagerの任意設定。
type Option func(*Manager)

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger はロガーを設定する。
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// NewManager はManagerを生成する。skewが0以下の場合は既定値を使う。
func NewManager(store storage.Store, skew time.Duration, opts ...Option) *Manager {
	if skew <= 0 {
		skew = DefaultExpirySkew
	}
	m := &Manager{
		store:  store,
		ns:     storage.NewNamespace(store, storage.NamespaceSession),
		skew:   skew,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IsAuthenticated はアクセストークン文字列が存在するかを返す。
// 有効期限は確認しない。読み出しに失敗した場合は未認証として扱う。
func (m *Manager) IsAuthenticated(ctx context.Context) bool {
	token, ok, err := m.ns.GetString(ctx, keyAccessToken)
	if err != nil {
		m.logger.Warn("セッションの読み出しに失敗しました", slog.String("error", err.Error()))
		return false
	}
	return ok && token != ""
}

// IsTokenExpired は設定済みのskewでトークンの有効期限を判定する。
func (m *Manager) IsTokenExpired(token string) bool {
	return IsTokenExpired(token, m.skew, m.now())
}

// IsTokenExpired はJWTのペイロードを署名検証せずにデコードし、
// now >= exp - skew の場合にtrueを返す。
// デコードできないトークンやexpを持たないトークンも期限切れとして扱う。
func IsTokenExpired(token string, skew time.Duration, now time.Time) bool {
	if token == "" {
		return true
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}
	return !now.Before(exp.Add(-skew))
}

// Tokens は保存済みのトークンを返す。アクセストークンがない場合はok=false。
func (m *Manager) Tokens(ctx context.Context) (model.SessionTokens, bool, error) {
	access, ok, err := m.ns.GetString(ctx, keyAccessToken)
	if err != nil || !ok || access == "" {
		return model.SessionTokens{}, false, err
	}
	refresh, _, err := m.ns.GetString(ctx, keyRefreshToken)
	if err != nil {
		return model.SessionTokens{}, false, err
	}
	return model.SessionTokens{AccessToken: access, RefreshToken: refresh}, true, nil
}

// SetTokens はトークンを保存する。
// RefreshTokenが空の場合は既存のリフレッシュトークンを保持する。
func (m *Manager) SetTokens(ctx context.Context, tokens model.SessionTokens) error {
	if tokens.AccessToken == "" {
		return fmt.Errorf("access token is empty")
	}
	if err := m.ns.SetString(ctx, keyAccessToken, tokens.AccessToken); err != nil {
		return err
	}
	if tokens.RefreshToken != "" {
		if err := m.ns.SetString(ctx, keyRefreshToken, tokens.RefreshToken); err != nil {
			return err
		}
	}
	return nil
}

// ClearTokens はトークンを削除する。
func (m *Manager) ClearTokens(ctx context.Context) error {
	return errors.Join(
		m.ns.Remove(ctx, keyAccessToken),
		m.ns.Remove(ctx, keyRefreshToken),
	)
}

// SetUserData はユーザー識別情報を保存する。
func (m *Manager) SetUserData(ctx context.Context, user model.UserIdentity) error {
	return m.ns.SetJSON(ctx, keyUser, user)
}

// UserData は保存済みのユーザー識別情報を返す。
func (m *Manager) UserData(ctx context.Context) (*model.UserIdentity, error) {
	var user model.UserIdentity
	ok, err := m.ns.GetJSON(ctx, keyUser, &user)
	if err != nil || !ok {
		return nil, err
	}
	return &user, nil
}

// ClearUserData はユーザー識別情報を削除する。
func (m *Manager) ClearUserData(ctx context.Context) error {
	return m.ns.Remove(ctx, keyUser)
}

// MarkProfileComplete はプロフィール作成完了をユーザー識別情報に反映する。
func (m *Manager) MarkProfileComplete(ctx context.Context) error {
	user, err := m.UserData(ctx)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrNotAuthenticated
	}
	user.IsProfileComplete = true
	return m.SetUserData(ctx, *user)
}

// ClearSession はトークンとユーザー識別情報を削除する。
// トークン更新に失敗した場合にAPIクライアントから呼ばれる。
func (m *Manager) ClearSession(ctx context.Context) error {
	return errors.Join(m.ClearTokens(ctx), m.ClearUserData(ctx))
}

// Logout は全名前空間を消去する。
// 登録途中の入力や予約コンテキストも残らない。
func (m *Manager) Logout(ctx context.Context) error {
	if err := storage.ClearAll(ctx, m.store); err != nil {
		return fmt.Errorf("failed to clear local state: %w", err)
	}
	m.logger.Info("ログアウトしました")
	return nil
}

// Validate は有効期限内のアクセストークンがあればセッションを返す。
// 期限切れを検出した場合はトークンとユーザー識別情報を破棄し、ErrNotAuthenticatedを返す。
func (m *Manager) Validate(ctx context.Context) (*Session, error) {
	tokens, ok, err := m.Tokens(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	if !ok {
		return nil, ErrNotAuthenticated
	}

	if m.IsTokenExpired(tokens.AccessToken) {
		m.logger.Info("アクセストークンの有効期限切れを検出しました")
		if err := m.ClearSession(ctx); err != nil {
			return nil, fmt.Errorf("failed to clear expired session: %w", err)
		}
		return nil, ErrNotAuthenticated
	}

	user, err := m.UserData(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read user data: %w", err)
	}
	return &Session{Tokens: tokens, User: user}, nil
}
