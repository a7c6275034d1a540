package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/citadel/internal/model"
	"github.com/hitoshi/citadel/internal/storage"
)

var fixedNow = time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func tokenExpiringAt(t *testing.T, exp time.Time) string {
	t.Helper()
	return signToken(t, jwt.MapClaims{"sub": "user-1", "exp": exp.Unix()})
}

func newTestManager(store storage.Store) *Manager {
	return NewManager(store, DefaultExpirySkew, WithClock(func() time.Time { return fixedNow }))
}

func TestIsTokenExpired(t *testing.T) {
	tests := []struct {
		name  string
		token func(t *testing.T) string
		want  bool
	}{
		{"past expiry", func(t *testing.T) string { return tokenExpiringAt(t, fixedNow.Add(-time.Hour)) }, true},
		{"future expiry", func(t *testing.T) string { return tokenExpiringAt(t, fixedNow.Add(time.Hour)) }, false},
		{"within skew", func(t *testing.T) string { return tokenExpiringAt(t, fixedNow.Add(10*time.Second)) }, true},
		{"exactly at skew boundary", func(t *testing.T) string { return tokenExpiringAt(t, fixedNow.Add(DefaultExpirySkew)) }, true},
		{"undecodable", func(*testing.T) string { return "not-a-jwt" }, true},
		{"empty", func(*testing.T) string { return "" }, true},
		{"no exp claim", func(t *testing.T) string { return signToken(t, jwt.MapClaims{"sub": "user-1"}) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsTokenExpired(tt.token(t), DefaultExpirySkew, fixedNow)
			if got != tt.want {
				t.Errorf("IsTokenExpired = %v, want %v", got, tt.want)
			}
		})
	}
}

// 署名が検証できなくてもペイロードは読める
func TestIsTokenExpired_IgnoresSignature(t *testing.T) {
	token := tokenExpiringAt(t, fixedNow.Add(time.Hour))
	tampered := token[:len(token)-4] + "AAAA"
	if IsTokenExpired(tampered, DefaultExpirySkew, fixedNow) {
		t.Error("expected tampered signature to be ignored")
	}
}

func TestManager_TokensLifecycle(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(storage.NewMemoryStore())

	if m.IsAuthenticated(ctx) {
		t.Fatal("empty store should not be authenticated")
	}

	if err := m.SetTokens(ctx, model.SessionTokens{AccessToken: "a1", RefreshToken: "r1"}); err != nil {
		t.Fatalf("SetTokens returned error: %v", err)
	}
	if !m.IsAuthenticated(ctx) {
		t.Error("expected authenticated after SetTokens")
	}

	// リフレッシュ応答にrefreshTokenがない場合は既存値を保持する
	if err := m.SetTokens(ctx, model.SessionTokens{AccessToken: "a2"}); err != nil {
		t.Fatalf("SetTokens returned error: %v", err)
	}
	tokens, ok, err := m.Tokens(ctx)
	if err != nil || !ok {
		t.Fatalf("Tokens = (%v, %v)", ok, err)
	}
	if tokens.AccessToken != "a2" || tokens.RefreshToken != "r1" {
		t.Errorf("Tokens = %+v, want {a2 r1}", tokens)
	}

	if err := m.ClearTokens(ctx); err != nil {
		t.Fatalf("ClearTokens returned error: %v", err)
	}
	if m.IsAuthenticated(ctx) {
		t.Error("expected unauthenticated after ClearTokens")
	}
}

func TestManager_SetTokens_EmptyAccessToken_ReturnsError(t *testing.T) {
	m := newTestManager(storage.NewMemoryStore())
	if err := m.SetTokens(context.Background(), model.SessionTokens{RefreshToken: "r"}); err == nil {
		t.Fatal("expected error for empty access token, got nil")
	}
}

func TestManager_UserData(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(storage.NewMemoryStore())

	user, err := m.UserData(ctx)
	if err != nil || user != nil {
		t.Fatalf("UserData on empty store = (%v, %v), want (nil, nil)", user, err)
	}

	want := model.UserIdentity{ID: "u1", Email: "a@uni.edu"}
	if err := m.SetUserData(ctx, want); err != nil {
		t.Fatalf("SetUserData returned error: %v", err)
	}
	if err := m.MarkProfileComplete(ctx); err != nil {
		t.Fatalf("MarkProfileComplete returned error: %v", err)
	}

	user, err = m.UserData(ctx)
	if err != nil || user == nil {
		t.Fatalf("UserData = (%v, %v)", user, err)
	}
	want.IsProfileComplete = true
	if *user != want {
		t.Errorf("UserData = %+v, want %+v", *user, want)
	}

	if err := m.ClearUserData(ctx); err != nil {
		t.Fatalf("ClearUserData returned error: %v", err)
	}
	if user, _ := m.UserData(ctx); user != nil {
		t.Error("expected nil user after ClearUserData")
	}
}

func TestManager_Logout_ClearsEverything(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	m := newTestManager(store)

	_ = m.SetTokens(ctx, model.SessionTokens{AccessToken: "a", RefreshToken: "r"})
	_ = m.SetUserData(ctx, model.UserIdentity{ID: "u1"})
	_ = storage.NewNamespace(store, storage.NamespaceSignup).SetString(ctx, "accumulator", `{"name":"Asha"}`)
	_ = storage.NewNamespace(store, storage.NamespaceBooking).SetString(ctx, "context", `{"isBookingFlow":true}`)

	if err := m.Logout(ctx); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}

	if m.IsAuthenticated(ctx) {
		t.Error("expected unauthenticated after logout")
	}
	if store.Len() != 0 {
		t.Errorf("store should be empty after logout, got %d keys", store.Len())
	}
}

func TestManager_Validate(t *testing.T) {
	ctx := context.Background()

	t.Run("有効なトークン", func(t *testing.T) {
		m := newTestManager(storage.NewMemoryStore())
		access := tokenExpiringAt(t, fixedNow.Add(time.Hour))
		_ = m.SetTokens(ctx, model.SessionTokens{AccessToken: access, RefreshToken: "r"})
		_ = m.SetUserData(ctx, model.UserIdentity{ID: "u1"})

		sess, err := m.Validate(ctx)
		if err != nil {
			t.Fatalf("Validate returned error: %v", err)
		}
		if sess.Tokens.AccessToken != access {
			t.Error("session should carry the stored access token")
		}
		if sess.User == nil || sess.User.ID != "u1" {
			t.Errorf("session user = %+v, want id u1", sess.User)
		}
	})

	t.Run("トークンなし", func(t *testing.T) {
		m := newTestManager(storage.NewMemoryStore())
		if _, err := m.Validate(ctx); !errors.Is(err, ErrNotAuthenticated) {
			t.Errorf("Validate error = %v, want ErrNotAuthenticated", err)
		}
	})

	t.Run("期限切れはセッションを破棄する", func(t *testing.T) {
		store := storage.NewMemoryStore()
		m := newTestManager(store)
		_ = m.SetTokens(ctx, model.SessionTokens{AccessToken: "not-a-jwt", RefreshToken: "r"})
		_ = m.SetUserData(ctx, model.UserIdentity{ID: "u1"})
		_ = storage.NewNamespace(store, storage.NamespaceNavigation).SetString(ctx, "section", "events")

		if _, err := m.Validate(ctx); !errors.Is(err, ErrNotAuthenticated) {
			t.Fatalf("Validate error = %v, want ErrNotAuthenticated", err)
		}
		if m.IsAuthenticated(ctx) {
			t.Error("expired tokens should be destroyed")
		}
		if user, _ := m.UserData(ctx); user != nil {
			t.Error("user identity should be destroyed")
		}
		// ナビゲーション状態はログアウト時のみ消去される
		if _, ok, _ := store.Get(ctx, "navigation:section"); !ok {
			t.Error("navigation snapshot should survive expiry detection")
		}
	})
}
