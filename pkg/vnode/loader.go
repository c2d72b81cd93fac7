package vnode

import (
	"context"
	"fmt"
	"sync/atomic"

	"deltavault/pkg/cache"
	"deltavault/pkg/core"
	"deltavault/pkg/storage"
	"deltavault/pkg/telemetry"
	"deltavault/pkg/types"
)

// Loader 负责分片子列表的懒加载：缓存优先，未命中回源存储
// 加载次数可观测 —— diff 的短路性质 (“没变就不加载”) 靠它验证
type Loader struct {
	store   storage.Store
	cache   *cache.ShardCache
	metrics *telemetry.Metrics
	loads   atomic.Int64
}

// NewLoader 创建加载器，cache 和 metrics 都允许为 nil
func NewLoader(store storage.Store, shardCache *cache.ShardCache, metrics *telemetry.Metrics) *Loader {
	return &Loader{store: store, cache: shardCache, metrics: metrics}
}

// Loads 返回真正触达存储的加载次数 (缓存命中不计)
func (l *Loader) Loads() int64 {
	return l.loads.Load()
}

// Load 物化一个分片的子列表
// 读出记录后重算分片 Hash 与 Key 比对，不一致即为存储损坏
func (l *Loader) Load(ctx context.Context, hash types.NodeHash) ([]*core.LeafBlock, error) {
	if l.cache != nil {
		if children, ok := l.cache.Get(hash); ok {
			l.metrics.CacheHit()
			return children, nil
		}
		l.metrics.CacheMiss()
	}

	data, err := storage.GetBytes(ctx, l.store, core.StorageKey(core.TypeVNode, hash))
	if err != nil {
		return nil, fmt.Errorf("load shard %s: %w", hash, err)
	}
	l.loads.Add(1)
	l.metrics.ShardLoaded()

	var rec core.VNodeRecord
	if err := core.DecodeObject(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: decode shard %s: %v", storage.ErrCorruption, hash, err)
	}

	children := make([]*core.LeafBlock, len(rec.Children))
	hashes := make([]types.NodeHash, len(rec.Children))
	for i, ref := range rec.Children {
		children[i] = ref.Block()
		hashes[i] = ref.Hash.Hash
	}

	// 记录的存储 Key 由分片 Hash 派生，而分片 Hash 可以从子列表完整重算
	// 这就是记录级的完整性校验
	if got := core.CombineAll(hashes); got != hash {
		return nil, fmt.Errorf("%w: shard key %s, recomputed %s", storage.ErrCorruption, hash, got)
	}

	if l.cache != nil {
		l.cache.Add(hash, children, int64(len(data)))
	}
	return children, nil
}

// LoadInto 物化一个 VNode (幂等，已加载直接返回)
func (l *Loader) LoadInto(ctx context.Context, v *VNode) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.children != nil {
		return nil
	}
	children, err := l.Load(ctx, v.hash)
	if err != nil {
		return err
	}
	v.children = children
	return nil
}
