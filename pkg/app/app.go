// pkg/app/app.go
package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"deltavault/pkg/builder"
	"deltavault/pkg/cache"
	"deltavault/pkg/config"
	"deltavault/pkg/export"
	"deltavault/pkg/heads"
	"deltavault/pkg/ignore"
	"deltavault/pkg/ingester"
	"deltavault/pkg/merkle"
	"deltavault/pkg/meta"
	"deltavault/pkg/storage"
	"deltavault/pkg/storage/badgerdb"
	rediscache "deltavault/pkg/storage/cache"
	"deltavault/pkg/storage/disk"
	"deltavault/pkg/storage/memory"
	"deltavault/pkg/storage/s3"
	"deltavault/pkg/telemetry"
	"deltavault/pkg/vnode"

	"github.com/spf13/viper"
)

// App 是整个引擎的依赖容器 (Dependency Container)
// 持有全部"单例"服务，按配置组装一次，处处复用
type App struct {
	Store    storage.Store
	Cache    *cache.ShardCache
	Loader   *vnode.Loader
	Builder  *builder.Builder
	Engine   *merkle.DiffEngine
	Exporter *export.Exporter
	Heads    *heads.Manager
	Ingester *ingester.Ingester
	Meta     *meta.Repository // 可选，database.driver 为 none 时为 nil
	Metrics  *telemetry.Metrics
	RepoPath string
}

// NewApp 是工厂函数，按 Viper 配置组装整台机器
// 它只认配置，不知道任何调用方 (CLI / 服务) 的存在
func NewApp(ctx context.Context, metrics *telemetry.Metrics) (*App, error) {
	if err := config.Load(viper.GetString("config")); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	storePath := viper.GetString("storage.path")
	if storePath == "" {
		return nil, fmt.Errorf("storage path not set")
	}
	repoPath := filepath.Dir(storePath)

	store, err := initStore(ctx, repoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to init storage: %w", err)
	}

	// Redis 存在性缓存是可选的装饰层，配置了 URL 才启用
	if redisURL := viper.GetString("redis.url"); redisURL != "" {
		cached, err := rediscache.NewCachedStore(store, rediscache.Config{
			RedisURL: redisURL,
			TTL:      24 * time.Hour,
			Logger:   slog.Default(),
			Metrics:  metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init redis cache: %w", err)
		}
		store = cached
	}

	shardCache := cache.NewShardCache(viper.GetInt64("cache.max_bytes"))
	loader := vnode.NewLoader(store, shardCache, metrics)

	vnodeSize := viper.GetInt("tree.vnode_size")

	matcher, err := ignore.NewMatcher(filepath.Dir(repoPath))
	if err != nil {
		return nil, fmt.Errorf("failed to init ignore matcher: %w", err)
	}

	repo, err := initMeta(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to init metadata db: %w", err)
	}

	return &App{
		Store:    store,
		Cache:    shardCache,
		Loader:   loader,
		Builder:  builder.New(builder.WithVNodeSize(vnodeSize)),
		Engine:   merkle.NewDiffEngine(loader, metrics),
		Exporter: export.NewExporter(store, loader),
		Heads:    heads.NewManager(repoPath),
		Ingester: ingester.NewIngester(matcher),
		Meta:     repo,
		Metrics:  metrics,
		RepoPath: repoPath,
	}, nil
}

// initMeta 按配置接入元数据索引层
// 它是对象存储之外的查询加速，不启用时引擎照常工作
func initMeta(ctx context.Context) (*meta.Repository, error) {
	switch d := viper.GetString("database.driver"); d {
	case "", "none":
		return nil, nil

	case "sqlite":
		db, err := meta.NewSQLiteDB(viper.GetString("database.sqlite_path"))
		if err != nil {
			return nil, err
		}
		return meta.NewRepository(db), nil

	case "postgres":
		db, err := meta.NewDB(ctx, meta.Config{
			Host:     viper.GetString("database.host"),
			Port:     viper.GetInt("database.port"),
			User:     viper.GetString("database.user"),
			Password: viper.GetString("database.password"),
			DBName:   viper.GetString("database.name"),
			SSLMode:  viper.GetString("database.sslmode"),
		})
		if err != nil {
			return nil, err
		}
		return meta.NewRepository(db), nil

	default:
		return nil, fmt.Errorf("unsupported database driver: %s", d)
	}
}

// initStore 按配置选择存储后端
// 新后端在这个 switch 里接入，上层只认 storage.Store 接口
func initStore(ctx context.Context, repoPath string) (storage.Store, error) {
	switch t := viper.GetString("storage.type"); t {
	case "disk":
		return disk.NewAdapter(viper.GetString("storage.path"))

	case "badger":
		return badgerdb.NewStore(badgerdb.Config{
			Path:       viper.GetString("storage.badger.path"),
			SyncWrites: viper.GetBool("storage.badger.sync_writes"),
			Logger:     slog.Default(),
		})

	case "s3":
		bucket := viper.GetString("storage.s3.bucket")
		if bucket == "" {
			return nil, fmt.Errorf("s3 bucket is required")
		}
		return s3.NewAdapter(ctx, s3.Config{
			Endpoint:        viper.GetString("storage.s3.endpoint"),
			Region:          viper.GetString("storage.s3.region"),
			Bucket:          bucket,
			AccessKeyID:     viper.GetString("storage.s3.access_key_id"),
			SecretAccessKey: viper.GetString("storage.s3.secret_access_key"),
		})

	case "memory":
		return memory.NewStore(), nil

	default:
		return nil, fmt.Errorf("unsupported storage type: %s", t)
	}
}
