package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/citadel/internal/metrics"
	"github.com/hitoshi/citadel/internal/model"
)

const pathRefresh = "/v1/auth/refresh"

type refreshRequest struct {
	RefreshToken string `json:"refreshToken,omitempty"`
}

type refreshResponse struct {
	Success bool                `json:"success"`
	Tokens  model.SessionTokens `json:"tokens"`
}

// refreshAfter はstaleTokenで401/403を受けた呼び出しのために新しいアクセストークンを返す。
// 既に別の呼び出しが更新を済ませていればそのトークンを使う。
// 進行中の更新があれば合流し、同じ結果を受け取る。
// トークン付きで送った後にセッションが破棄されていれば、更新せずにセッション期限切れを返す。
func (c *Client) refreshAfter(ctx context.Context, staleToken string) (string, error) {
	current, ok, err := c.tokens.Tokens(ctx)
	if err == nil {
		hasToken := ok && current.AccessToken != ""
		if hasToken && current.AccessToken != staleToken {
			return current.AccessToken, nil
		}
		if !hasToken && staleToken != "" {
			c.logger.Debug("セッションが破棄済みのためトークン更新を行いません")
			return "", model.NewSessionExpiredError()
		}
	}

	ch := c.refreshGroup.DoChan("refresh", func() (any, error) {
		return c.refresh(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// refresh はトークン更新APIを呼び出して新しいトークンを保存する。
// 失敗した場合（更新APIが401を返した場合を含む）はセッションを破棄し、
// セッション期限切れエラーを返す。
func (c *Client) refresh(ctx context.Context) (string, error) {
	var body refreshRequest
	if tokens, ok, err := c.tokens.Tokens(ctx); err == nil && ok {
		body.RefreshToken = tokens.RefreshToken
	}

	resp, err := c.send(ctx, request{
		endpoint: "refresh",
		method:   http.MethodPost,
		path:     pathRefresh,
		body:     body,
	}, "")
	if err != nil {
		return "", c.failRefresh(ctx, err)
	}
	if resp.status < 200 || resp.status >= 300 {
		return "", c.failRefresh(ctx, classifyResponse(resp.status, resp.body))
	}

	var out refreshResponse
	if err := json.Unmarshal(resp.body, &out); err != nil || out.Tokens.AccessToken == "" {
		if err == nil {
			err = errors.New("refresh response has no access token")
		}
		return "", c.failRefresh(ctx, model.NewDecodeError(err.Error()))
	}

	if err := c.tokens.SetTokens(ctx, out.Tokens); err != nil {
		return "", c.failRefresh(ctx, err)
	}

	c.metrics.RecordTokenRefresh(metrics.RefreshSuccess)
	c.logger.Info("アクセストークンを更新しました")
	return out.Tokens.AccessToken, nil
}

// failRefresh はセッションを破棄してセッション期限切れエラーを返す。
func (c *Client) failRefresh(ctx context.Context, cause error) error {
	c.metrics.RecordTokenRefresh(metrics.RefreshFailure)
	c.logger.Warn("トークン更新に失敗したためセッションを破棄します",
		slog.String("error", cause.Error()),
	)
	if err := c.tokens.ClearSession(ctx); err != nil {
		c.logger.Error("セッションの破棄に失敗しました",
			slog.String("error", err.Error()),
		)
	}
	return model.NewSessionExpiredError()
}
