// Package app はCitadelクライアントの依存関係の組み立てとコマンドライン入口を提供する。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/citadel/internal/api"
	"github.com/hitoshi/citadel/internal/auth"
	"github.com/hitoshi/citadel/internal/booking"
	"github.com/hitoshi/citadel/internal/catalog"
	"github.com/hitoshi/citadel/internal/config"
	"github.com/hitoshi/citadel/internal/database"
	"github.com/hitoshi/citadel/internal/logger"
	"github.com/hitoshi/citadel/internal/metrics"
	"github.com/hitoshi/citadel/internal/navigation"
	"github.com/hitoshi/citadel/internal/query"
	"github.com/hitoshi/citadel/internal/resource"
	"github.com/hitoshi/citadel/internal/security"
	"github.com/hitoshi/citadel/internal/session"
	"github.com/hitoshi/citadel/internal/signup"
	"github.com/hitoshi/citadel/internal/storage"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ったJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたレベルでロガーを再構成する
	log := logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))
	return cfg, log, nil
}

// Container はクライアントコマンドが使う依存関係を保持する。
type Container struct {
	Config    *config.Config
	Logger    *slog.Logger
	Store     storage.Store
	Sessions  *session.Manager
	Client    *api.Client
	Cache     *query.Cache
	Janitor   *query.Janitor
	Resources *resource.Service
	Catalog   *catalog.Catalog
	Navigator *navigation.Navigator
	Auth      *auth.Service

	closers []func() error
}

// ContainerOption はNewContainerの任意設定。
type ContainerOption func(*containerOptions)

type containerOptions struct {
	store    storage.Store
	registry prometheus.Registerer
}

// WithStore は設定に関わらず指定のStoreを使う。
func WithStore(store storage.Store) ContainerOption {
	return func(o *containerOptions) { o.store = store }
}

// WithRegisterer はメトリクスの登録先を設定する。未設定の場合はメトリクスを記録しない。
func WithRegisterer(reg prometheus.Registerer) ContainerOption {
	return func(o *containerOptions) { o.registry = reg }
}

// NewContainer は設定からStore、セッション、APIクライアント、キャッシュ、各フローを組み立てる。
func NewContainer(ctx context.Context, cfg *config.Config, log *slog.Logger, opts ...ContainerOption) (*Container, error) {
	o := &containerOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if log == nil {
		log = slog.Default()
	}

	c := &Container{Config: cfg, Logger: log}

	// 1. ストレージ
	store := o.store
	if store == nil {
		s, closer, err := openStore(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		store = s
		if closer != nil {
			c.closers = append(c.closers, closer)
		}
	}
	c.Store = store

	// 2. メトリクス
	var collector metrics.MetricsCollector = metrics.Nop{}
	if o.registry != nil {
		collector = metrics.NewCollector(o.registry)
	}

	// 3. セッションとAPIクライアント
	c.Sessions = session.NewManager(store, cfg.TokenExpirySkew, session.WithLogger(log))
	client, err := api.NewClient(cfg.APIBaseURL, cfg.HTTPTimeout, c.Sessions,
		api.WithMetrics(collector),
		api.WithLogger(log),
	)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Client = client

	// 4. クエリキャッシュ
	c.Cache = query.New(query.Options{
		StaleTime: cfg.QueryStaleTime,
		GCTime:    cfg.QueryGCTime,
		Metrics:   collector,
		Logger:    log,
	})
	c.Janitor = query.NewJanitor(c.Cache, log)
	if cfg.QuerySweepInterval > 0 {
		janitorCtx, stopJanitor := context.WithCancel(ctx)
		go c.Janitor.Start(janitorCtx, cfg.QuerySweepInterval)
		c.closers = append(c.closers, func() error {
			stopJanitor()
			return nil
		})
	}
	c.Resources = resource.NewService(client, c.Cache, security.NewTextSanitizer())

	// 5. カタログとフロー
	cat, err := catalog.Load(cfg.CityCatalogPath)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Catalog = cat
	c.Navigator = navigation.NewNavigator(store)
	c.Auth = auth.NewService(c.Resources, c.Sessions, log)

	return c, nil
}

// SignupFlow は登録フローを生成し、保存済みの途中状態を復元する。
func (c *Container) SignupFlow(ctx context.Context) (*signup.Flow, error) {
	f := signup.NewFlow(c.Store, c.Resources, c.Sessions, c.Logger)
	if err := f.Load(ctx); err != nil {
		return nil, err
	}
	return f, nil
}

// BookingFlow は予約フローを生成し、保存済みの予約コンテキストを復元する。
// navigateには遷移先の画面パスが通知される。
func (c *Container) BookingFlow(ctx context.Context, navigate func(string)) (*booking.Flow, error) {
	f := booking.NewFlow(c.Store, c.Resources, c.Sessions, booking.Options{
		MatchingDelay: c.Config.MatchingDelay,
		Navigate:      navigate,
		Logger:        c.Logger,
	})
	if err := f.Load(ctx); err != nil {
		return nil, err
	}
	return f, nil
}

// Logout はローカル状態とキャッシュを全て消去する。
func (c *Container) Logout(ctx context.Context) error {
	c.Resources.Reset()
	return c.Sessions.Logout(ctx)
}

// Close は開いた接続を閉じる。
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	c.closers = nil
	return errors.Join(errs...)
}

// openStore はSTORAGE_DRIVERに対応するStoreを開く。
// 返すclose関数は接続を持たないドライバではnil。
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (storage.Store, func() error, error) {
	switch cfg.StorageDriver {
	case config.StorageMemory:
		return storage.NewMemoryStore(), nil, nil

	case config.StorageFile:
		if err := os.MkdirAll(filepath.Dir(cfg.StoragePath), 0o700); err != nil {
			return nil, nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
		s, err := storage.OpenFileStore(cfg.StoragePath)
		if err != nil {
			return nil, nil, err
		}
		log.Debug("file store opened", slog.String("path", s.Path()))
		return s, nil, nil

	case config.StoragePostgres:
		db, err := database.OpenAndPing(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		log.Debug("postgres store opened", slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)))
		return storage.NewPostgresStore(db, cfg.StorageScope), db.Close, nil

	case config.StorageRedis:
		client, err := storage.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return storage.NewRedisStore(client, cfg.RedisPrefix), client.Close, nil

	default:
		return nil, nil, fmt.Errorf("unsupported STORAGE_DRIVER: %q", cfg.StorageDriver)
	}
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
// 解析できないURLは全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
