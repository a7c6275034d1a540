// Package query はリソースキー単位のリモート取得キャッシュを提供する。
// 鮮度期間内はキャッシュから返し、期間を過ぎた値は返しつつバックグラウンドで再取得する。
// 同一キーの同時読み取りは1回のリモート呼び出しに集約する。
package query

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hitoshi/citadel/internal/metrics"
)

const (
	// DefaultStaleTime は取得後に新鮮とみなす期間の既定値。
	DefaultStaleTime = time.Minute
	// DefaultGCTime は未使用エントリを保持する期間の既定値。
	DefaultGCTime = 5 * time.Minute
)

// Options はCacheの設定。
type Options struct {
	StaleTime time.Duration
	GCTime    time.Duration
	Metrics   metrics.MetricsCollector
	Logger    *slog.Logger
	Now       func() time.Time
}

// Cache はキー単位のキャッシュと進行中リクエストの集約を管理する。
type Cache struct {
	staleTime time.Duration
	gcTime    time.Duration
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
	now       func() time.Time

	group singleflight.Group

	mu      sync.Mutex
	entries map[string]*entry
	// seq はキャッシュ全体で単調増加する世代の採番元。
	// 削除後に作り直したエントリが削除前の取得と同じ集約キーを使わないようにする。
	seq     uint64
	pending map[string]struct{} // 実行中のミューテーション名
}

type entry struct {
	key        Key
	value      any
	hasValue   bool
	fetchedAt  time.Time
	lastAccess time.Time
	// generation は作成・無効化のたびにCache.seqから採番する。
	// 取得開始時と完了時で異なる場合、結果を書き戻さない。
	generation uint64
	stale      bool
	fetching   int  // 進行中の取得数
	refreshing bool // バックグラウンド再取得中
}

// New はCacheを生成する。未設定の項目には既定値を使う。
func New(opts Options) *Cache {
	c := &Cache{
		staleTime: opts.StaleTime,
		gcTime:    opts.GCTime,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		now:       opts.Now,
		entries:   make(map[string]*entry),
		pending:   make(map[string]struct{}),
	}
	if c.staleTime <= 0 {
		c.staleTime = DefaultStaleTime
	}
	if c.gcTime <= 0 {
		c.gcTime = DefaultGCTime
	}
	if c.metrics == nil {
		c.metrics = metrics.Nop{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// FetchFunc はリモートからリソースを取得する関数。
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Fetch はkeyの値を返す。
//   - 新鮮な値があればそのまま返す。
//   - 古い値があればそれを返し、バックグラウンドで再取得する。
//   - 値がないか無効化済みの場合は取得を待つ。進行中の取得があれば合流する。
//
// 待機中にctxがキャンセルされた場合はctx.Err()を返すが、取得自体は完了まで継続する。
func Fetch[T any](ctx context.Context, c *Cache, key Key, fn FetchFunc[T]) (T, error) {
	var zero T
	resource := key.Resource()
	load := func(ctx context.Context) (any, error) { return fn(ctx) }

	c.mu.Lock()
	e := c.entryLocked(key)
	now := c.now()
	e.lastAccess = now

	if e.hasValue && !e.stale {
		v, ok := e.value.(T)
		if !ok {
			c.mu.Unlock()
			return zero, fmt.Errorf("query: cached value for %v has type %T", key, e.value)
		}
		refetch := now.Sub(e.fetchedAt) >= c.staleTime && !e.refreshing
		if refetch {
			e.refreshing = true
		}
		gen := e.generation
		c.mu.Unlock()

		c.metrics.RecordCacheHit(resource)
		if refetch {
			go c.refetchInBackground(ctx, e, gen, load)
		}
		return v, nil
	}

	gen := e.generation
	coalesced := e.fetching > 0
	c.mu.Unlock()

	if coalesced {
		c.metrics.RecordCacheCoalesced(resource)
	} else {
		c.metrics.RecordCacheMiss(resource)
	}

	ch := c.group.DoChan(flightKey(key.String(), gen), func() (any, error) {
		return c.load(ctx, e, gen, load)
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, ok := res.Val.(T)
		if !ok {
			return zero, fmt.Errorf("query: fetched value for %v has type %T", key, res.Val)
		}
		return v, nil
	}
}

// refetchInBackground は古い値を返した後の再取得を行う。失敗はログに残すのみ。
func (c *Cache) refetchInBackground(ctx context.Context, e *entry, gen uint64, fn func(context.Context) (any, error)) {
	defer func() {
		c.mu.Lock()
		e.refreshing = false
		c.mu.Unlock()
	}()

	_, err, _ := c.group.Do(flightKey(e.key.String(), gen), func() (any, error) {
		return c.load(ctx, e, gen, fn)
	})
	if err != nil {
		c.logger.Warn("バックグラウンド再取得に失敗しました",
			slog.String("resource", e.key.Resource()),
			slog.String("error", err.Error()),
		)
	}
}

// load はfnを呼び出し、世代が変わっていなければ結果をキャッシュに書き込む。
// 呼び出し元のキャンセルで取得を中断しない。
func (c *Cache) load(ctx context.Context, e *entry, gen uint64, fn func(context.Context) (any, error)) (any, error) {
	c.mu.Lock()
	e.fetching++
	c.mu.Unlock()

	v, err := fn(context.WithoutCancel(ctx))

	c.mu.Lock()
	defer c.mu.Unlock()
	e.fetching--
	if err != nil {
		return nil, err
	}
	if c.entries[e.key.String()] != e || e.generation != gen {
		// 取得中に無効化・削除された結果は書き戻さない
		return v, nil
	}
	e.value = v
	e.hasValue = true
	e.stale = false
	e.fetchedAt = c.now()
	return v, nil
}

func (c *Cache) entryLocked(key Key) *entry {
	id := key.String()
	e, ok := c.entries[id]
	if !ok {
		e = &entry{key: append(Key(nil), key...), generation: c.nextGenLocked()}
		c.entries[id] = e
	}
	return e
}

func (c *Cache) nextGenLocked() uint64 {
	c.seq++
	return c.seq
}

func flightKey(id string, gen uint64) string {
	return id + "#" + strconv.FormatUint(gen, 10)
}

// SetData はkeyの値を直接書き込む。ミューテーション応答で得た最新値の反映に使う。
func SetData[T any](c *Cache, key Key, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entryLocked(key)
	e.generation = c.nextGenLocked()
	e.value = value
	e.hasValue = true
	e.stale = false
	now := c.now()
	e.fetchedAt = now
	e.lastAccess = now
}

// Peek はキャッシュ済みの値を取得せずに返す。無効化済みの値も返す。
func Peek[T any](c *Cache, key Key) (T, bool) {
	var zero T
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.String()]
	if !ok || !e.hasValue {
		return zero, false
	}
	v, ok := e.value.(T)
	return v, ok
}

// Invalidate はprefixesのいずれかに一致するエントリを無効化し、次回の読み取りで必ず再取得させる。
// 無効化したエントリ数を返す。
func (c *Cache) Invalidate(prefixes ...Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, e := range c.entries {
		for _, p := range prefixes {
			if e.key.HasPrefix(p) {
				e.generation = c.nextGenLocked()
				e.stale = true
				n++
				break
			}
		}
	}
	return n
}

// Remove はprefixesに一致するエントリを削除する。ログアウト時に使う。
func (c *Cache) Remove(prefixes ...Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, e := range c.entries {
		for _, p := range prefixes {
			if e.key.HasPrefix(p) {
				// 進行中の取得結果が書き戻されないよう世代を進めてから外す
				e.generation = c.nextGenLocked()
				delete(c.entries, id)
				break
			}
		}
	}
}

// IsFetching はkeyの取得が進行中かを返す。
func (c *Cache) IsFetching(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.String()]
	return ok && e.fetching > 0
}

// Sweep は最終アクセスからGC期間を超え、取得中でないエントリを破棄する。
// 破棄した件数を返す。
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for id, e := range c.entries {
		if e.fetching == 0 && now.Sub(e.lastAccess) >= c.gcTime {
			delete(c.entries, id)
			n++
		}
	}
	if n > 0 {
		c.metrics.RecordCacheEvicted(n)
	}
	return n
}

// Len はキャッシュ中のエントリ数を返す。
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
