package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/citadel/internal/config"
	"github.com/hitoshi/citadel/internal/metrics"
	"github.com/hitoshi/citadel/internal/middleware"
	"github.com/hitoshi/citadel/internal/relay"
	"github.com/hitoshi/citadel/internal/security"
)

// runRelay はリレーサーバーを起動し、ctxがキャンセルされるまで待機する。
// SIGINT/SIGTERMによるキャンセルはmainで設定する。
// 転送先はCITADEL_API_BASE_URLで、起動時にプライベートアドレスでないことを検証する。
func runRelay(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	// 1. 転送先の検証
	guard := security.NewUpstreamGuard(cfg.HTTPTimeout)
	upstream, err := guard.ValidateUpstream(cfg.APIBaseURL)
	if err != nil {
		return fmt.Errorf("invalid relay upstream: %w", err)
	}

	// 2. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 3. ルーターの構築
	limiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RelayRateLimit, cfg.RelayRateBurst))
	defer limiter.Stop()

	router := relay.NewRouter(relay.Deps{
		Upstream:       upstream,
		Transport:      guard.NewTransport(upstream),
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:    limiter,
		Metrics:        collector,
		Gatherer:       reg,
		Logger:         log,
	})

	// 4. HTTPサーバーの起動
	server := &http.Server{
		Addr:              ":" + cfg.RelayPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.HTTPTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("relay starting",
			slog.String("addr", server.Addr),
			slog.String("upstream", upstream.String()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("relay listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down relay...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("relay shutdown failed: %w", err)
	}

	log.Info("relay stopped gracefully")
	return nil
}
