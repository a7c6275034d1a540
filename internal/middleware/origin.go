package middleware

import (
	"log/slog"
	"net/http"
	"slices"
)

// NewOriginCheckMiddleware はCookie付きの状態変更リクエストのOriginを検証するミドルウェアを返す。
// リレーはリフレッシュトークンのCookieをそのまま転送するため、
// 許可オリジン以外からのPOST/PUT/PATCH/DELETEは403で拒否する。
// Cookieを伴わないリクエストはBearer認証のみのため検証しない。
func NewOriginCheckMiddleware(allowedOrigins []string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) || len(r.Cookies()) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			origin := r.Header.Get("Origin")
			if origin == "" || !slices.Contains(allowedOrigins, origin) {
				slog.Warn("origin check failed",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("origin", origin),
					slog.String("request_id", RequestIDFromContext(r.Context())),
				)
				WriteErrorResponse(w, http.StatusForbidden, errForbiddenOrigin)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isSafeMethod はHTTPメソッドが安全（読み取り専用）かどうかを判定する。
func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}
