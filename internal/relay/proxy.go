package relay

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/citadel/internal/metrics"
	"github.com/hitoshi/citadel/internal/middleware"
)

// proxy はバックエンドへの転送ハンドラー。
type proxy struct {
	rp      *httputil.ReverseProxy
	metrics metrics.MetricsCollector
}

// newProxy はupstreamへ転送するハンドラーを生成する。
// transportがnilの場合はhttp.DefaultTransportを使う。
func newProxy(upstream *url.URL, transport http.RoundTripper, m metrics.MetricsCollector, logger *slog.Logger) *proxy {
	if transport == nil {
		transport = http.DefaultTransport
	}

	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			pr.SetXForwarded()
			// ブラウザのOriginはバックエンドに渡さない
			pr.Out.Header.Del("Origin")
		},
		Transport: transport,
		ModifyResponse: func(res *http.Response) error {
			// CORSヘッダーはリレー側で付与するため、バックエンドの値は破棄する
			for name := range res.Header {
				if strings.HasPrefix(name, "Access-Control-") {
					res.Header.Del(name)
				}
			}
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			if errors.Is(err, context.Canceled) {
				logger.Info("client canceled relay request",
					slog.String("path", r.URL.Path),
					slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
				)
				w.WriteHeader(499)
				return
			}
			logger.Error("relay upstream failed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
				slog.String("error", err.Error()),
			)
			middleware.WriteBadGateway(w)
		},
	}

	return &proxy{rp: rp, metrics: m}
}

// ServeHTTP はリクエストを転送し、結果をメトリクスに記録する。
func (p *proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	p.rp.ServeHTTP(rec, r)
	p.metrics.RecordRelayRequest(rec.status, time.Since(start))
}

// statusWriter は転送結果のステータスコードを記録する。
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wroteHeader {
		sw.status = code
		sw.wroteHeader = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	sw.wroteHeader = true
	return sw.ResponseWriter.Write(b)
}

func (sw *statusWriter) Flush() {
	if f, ok := sw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}
