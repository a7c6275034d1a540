// Package relay はブラウザからバックエンドAPIへのリクエストを中継し、
// CORSヘッダーを付与する転送サーバーを提供する。
package relay

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/citadel/internal/metrics"
	"github.com/hitoshi/citadel/internal/middleware"
)

// Deps はNewRouterに必要な依存関係をまとめた構造体。
type Deps struct {
	// 転送先
	Upstream  *url.URL
	Transport http.RoundTripper

	// ミドルウェア依存
	AllowedOrigins []string
	RateLimiter    *middleware.RateLimiter

	// 観測
	Metrics  metrics.MetricsCollector
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// NewRouter はヘルスチェック、メトリクス、転送ルートを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → RequestID → Recovery → Logging → SecurityHeaders → CORS → OriginCheck → RateLimit
//
// /health と /metrics はレート制限の外に配置する。
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.Nop{}
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.AllowedOrigins))

	r.Get("/health", handleHealth)
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	proxy := newProxy(deps.Upstream, deps.Transport, m, logger)

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewOriginCheckMiddleware(deps.AllowedOrigins))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}
		r.Handle("/*", proxy)
	})

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
