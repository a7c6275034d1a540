package query

import (
	"context"
	"log/slog"
	"time"
)

// Janitor はGC期間を過ぎた未使用エントリを定期的に破棄するジョブ。
type Janitor struct {
	cache  *Cache
	logger *slog.Logger
}

// NewJanitor はJanitorを生成する。
func NewJanitor(cache *Cache, logger *slog.Logger) *Janitor {
	return &Janitor{cache: cache, logger: logger}
}

// RunOnce は1回分の破棄を行い、破棄した件数を返す。
func (j *Janitor) RunOnce() int {
	start := time.Now()
	n := j.cache.Sweep()
	if n > 0 {
		j.logger.Debug("キャッシュの破棄が完了しました",
			slog.Int("evicted_count", n),
			slog.Int("remaining", j.cache.Len()),
			slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
		)
	}
	return n
}

// Start はintervalごとにRunOnceを実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *Janitor) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Debug("キャッシュ破棄ジョブを開始しました",
		slog.Duration("interval", interval),
	)

	for {
		select {
		case <-ctx.Done():
			j.logger.Debug("キャッシュ破棄ジョブを停止しました")
			return
		case <-ticker.C:
			j.RunOnce()
		}
	}
}
