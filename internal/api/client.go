// Package api はCitadelバックエンドのRESTクライアントを提供する。
// Bearer認証、401/403応答時のトークン更新（同時に1回のみ）、
// 応答のエラー分類（model.APIError）を担う。
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/singleflight"

	"github.com/hitoshi/citadel/internal/metrics"
	"github.com/hitoshi/citadel/internal/model"
)

const (
	userAgent = "Citadel/1.0 Client"
	// maxResponseBytes は応答ボディの読み取り上限。
	maxResponseBytes = 4 << 20
	// requestIDHeader はリクエスト追跡用ヘッダー。
	requestIDHeader = "X-Request-ID"
)

// TokenStore はセッショントークンの永続化ポート。session.Managerが実装する。
type TokenStore interface {
	Tokens(ctx context.Context) (model.SessionTokens, bool, error)
	SetTokens(ctx context.Context, tokens model.SessionTokens) error
	ClearSession(ctx context.Context) error
}

// Client はCitadel APIのクライアント。
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	tokens     TokenStore
	metrics    metrics.MetricsCollector
	logger     *slog.Logger

	// refreshGroup はトークン更新を同時に1回に制限する
	refreshGroup singleflight.Group
}

// Option はClientの任意設定。
type Option func(*Client)

// WithHTTPClient はHTTPクライアントを差し替える。Cookie Jarが未設定の場合は設定する。
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMetrics はメトリクス収集先を設定する。
func WithMetrics(m metrics.MetricsCollector) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger はロガーを設定する。
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient はClientを生成する。
// リフレッシュトークンのCookieを保持するため、公開サフィックスリスト付きのCookie Jarを使う。
func NewClient(baseURL string, timeout time.Duration, tokens TokenStore, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid API base URL %q", baseURL)
	}

	c := &Client{
		baseURL: u,
		tokens:  tokens,
		metrics: metrics.Nop{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: timeout}
	}
	if c.httpClient.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		c.httpClient.Jar = jar
	}
	return c, nil
}

// request は1回のAPI呼び出しの定義。
type request struct {
	endpoint string // メトリクスのラベル
	method   string
	path     string
	query    url.Values
	body     any
	auth     bool
}

// response は受信済みの応答。
type response struct {
	status int
	body   []byte
}

// do はreqを送信し、成功応答のボディを返す。
// 認証付きリクエストが401/403を受けた場合はトークンを更新して1回だけ再送する。
func (c *Client) do(ctx context.Context, req request) ([]byte, error) {
	var token string
	if req.auth {
		tokens, ok, err := c.tokens.Tokens(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read session tokens: %w", err)
		}
		if ok {
			token = tokens.AccessToken
		}
	}

	resp, err := c.send(ctx, req, token)
	if err != nil {
		return nil, err
	}

	if req.auth && isAuthFailure(resp.status) {
		newToken, err := c.refreshAfter(ctx, token)
		if err != nil {
			return nil, err
		}
		resp, err = c.send(ctx, req, newToken)
		if err != nil {
			return nil, err
		}
	}

	if resp.status >= 200 && resp.status < 300 {
		return resp.body, nil
	}
	return nil, classifyResponse(resp.status, resp.body)
}

// send はHTTPリクエストを1回送信する。
// 接続できなかった場合はネットワークエラーを返す。
func (c *Client) send(ctx context.Context, req request, token string) (*response, error) {
	u := c.baseURL.JoinPath(req.path)
	if len(req.query) > 0 {
		u.RawQuery = req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)
	httpReq.Header.Set(requestIDHeader, uuid.NewString())
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.metrics.RecordAPIRequest(req.endpoint, 0, time.Since(start))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.Warn("APIの呼び出しに失敗しました",
			slog.String("endpoint", req.endpoint),
			slog.String("error", err.Error()),
		)
		return nil, model.NewNetworkError(networkReason(err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	c.metrics.RecordAPIRequest(req.endpoint, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, model.NewNetworkError(networkReason(err))
	}

	c.logger.Debug("api request",
		slog.String("endpoint", req.endpoint),
		slog.String("method", req.method),
		slog.Int("status", resp.StatusCode),
		slog.String("request_id", httpReq.Header.Get(requestIDHeader)),
	)
	return &response{status: resp.StatusCode, body: data}, nil
}

// networkReason はトランスポートエラーから表示用の理由を取り出す。
func networkReason(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err.Error()
	}
	return err.Error()
}

func isAuthFailure(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}
