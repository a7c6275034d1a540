package query

import (
	"context"
	"errors"
	"log/slog"
)

// ErrMutationInFlight は同名のミューテーションが実行中であることを示す。
var ErrMutationInFlight = errors.New("query: mutation already in flight")

// Mutation はリモート状態を変更する操作の宣言。
// 成功時に無効化するキャッシュキーをミューテーションと一緒に宣言する。
type Mutation struct {
	Name        string
	Invalidates []Key
}

// MutateFunc はミューテーション本体。
type MutateFunc[T any] func(ctx context.Context) (T, error)

// Mutate はmを実行する。同名のミューテーションが実行中の場合はErrMutationInFlightを返す。
// 成功時はm.Invalidatesに一致するキャッシュを無効化する。
func Mutate[T any](ctx context.Context, c *Cache, m Mutation, fn MutateFunc[T]) (T, error) {
	var zero T
	if !c.begin(m.Name) {
		return zero, ErrMutationInFlight
	}
	defer c.end(m.Name)

	v, err := fn(ctx)
	if err != nil {
		return zero, err
	}

	if n := c.Invalidate(m.Invalidates...); n > 0 {
		c.logger.Debug("mutation invalidated cache",
			slog.String("mutation", m.Name),
			slog.Int("entries", n),
		)
	}
	return v, nil
}

// Pending はnameのミューテーションが実行中かを返す。
// UIの読み込み表示はこの値のみから導出する。
func (c *Cache) Pending(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[name]
	return ok
}

func (c *Cache) begin(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[name]; ok {
		return false
	}
	c.pending[name] = struct{}{}
	return true
}

func (c *Cache) end(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, name)
}
