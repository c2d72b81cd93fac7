package cache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"deltavault/pkg/core"
	"deltavault/pkg/storage"
	"deltavault/pkg/telemetry"
	"deltavault/pkg/types"

	"github.com/redis/go-redis/v9"
)

// CachedStore 是一个装饰器，它为底层的 storage.Store 添加 Redis 存在性缓存
// 场景：后端是 S3 这类高延迟存储时，大量 Has 预检 (去重) 会被网络往返拖慢，
// Redis 把这一步压到毫秒以内
type CachedStore struct {
	backend storage.Store // 被装饰的底层存储 (如 S3)
	client  *redis.Client
	ttl     time.Duration
	log     *slog.Logger
	metrics *telemetry.Metrics
}

type Config struct {
	RedisURL string        // 标准连接字符串: redis://<user>:<password>@<host>:<port>/<db>
	TTL      time.Duration // 缓存过期时间 (例如 24h)
	Logger   *slog.Logger
	Metrics  *telemetry.Metrics // 可选：观测去重命中
}

func NewCachedStore(backend storage.Store, cfg Config) (*CachedStore, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Fail-fast 连接检查
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &CachedStore{
		backend: backend,
		client:  client,
		ttl:     cfg.TTL,
		log:     log,
		metrics: cfg.Metrics,
	}, nil
}

// cacheKey 生成 Redis Key，添加前缀防止冲突
func (s *CachedStore) cacheKey(hash types.NodeHash) string {
	return "dv:obj:" + string(hash)
}

// Has 优先查 Redis，实现毫秒级去重
func (s *CachedStore) Has(ctx context.Context, hash types.NodeHash) (bool, error) {
	key := s.cacheKey(hash)

	// 1. 查 Redis
	val, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		// 架构决策：缓存故障降级 (Cache Failure Fallback)
		// Redis 挂了不应该让整个程序崩溃，而是退化为无缓存模式，直接查后端
		s.log.Warn("redis exists check failed, falling back to backend", "err", err)
	} else if val > 0 {
		// Cache Hit! 无需发起后端网络请求
		return true, nil
	}

	// 2. 缓存未命中 (Cache Miss)，查底层存储
	found, err := s.backend.Has(ctx, hash)
	if err != nil {
		return false, err
	}

	// 3. 缓存回填 (Cache Fill)
	if found {
		// 关键点：异步写入 Redis，不要阻塞主流程
		// 使用 context.Background() 确保即使上层 ctx 取消，回填也能完成
		go func() {
			fillCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			s.client.Set(fillCtx, key, "1", s.ttl)
		}()
	}

	return found, nil
}

// Put 上传对象。利用 Has 的缓存能力进行预检。
func (s *CachedStore) Put(ctx context.Context, obj core.Object) error {
	// 1. 存在性预检：如果 Redis 里有，这一步耗时 < 1ms，直接跳过上传
	exists, err := s.Has(ctx, obj.ID())
	if err != nil {
		return err
	}
	if exists {
		// 幂等性：内容已存在，跳过物理写入，这就是一次去重命中
		s.metrics.DedupHit()
		return nil
	}

	// 2. 穿透到底层存储
	if err := s.backend.Put(ctx, obj); err != nil {
		return err
	}

	// 3. 写入缓存
	// 只有后端写成功了才写 Redis；这里的 Set 错误可以忽略，不影响主流程
	s.client.Set(ctx, s.cacheKey(obj.ID()), "1", s.ttl)

	return nil
}

// Get 透传 - 我们不缓存对象内容
// 原因：叶子块可能很大，Redis 内存极其宝贵，只存 Existence 性价比最高
func (s *CachedStore) Get(ctx context.Context, hash types.NodeHash) (io.ReadCloser, error) {
	return s.backend.Get(ctx, hash)
}
