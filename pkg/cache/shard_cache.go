package cache

import (
	"sync"

	"deltavault/pkg/core"
	"deltavault/pkg/types"

	"github.com/golang/groupcache/lru"
)

// ShardCache 是物化分片子列表的有界 LRU 缓存
//
// 不变量：缓存的子列表总字节数永远不超过 maxBytes。
// 被淘汰的只是物化的子列表 —— 分片 Hash 永远驻留在树里，
// 下次访问时从存储重新加载即可，淘汰绝不影响正确性。
//
// groupcache 的 lru.Cache 本身不是并发安全的，这里统一用一把锁保护。
// 条目都是小对象 (引用列表)，锁竞争不构成瓶颈。
type ShardCache struct {
	mu       sync.Mutex
	entries  *lru.Cache
	maxBytes int64
	curBytes int64
	sizes    map[lru.Key]int64

	hits      int64
	misses    int64
	evictions int64
}

// Stats 缓存运行指标快照
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Bytes     int64
	Entries   int
}

// NewShardCache 创建一个字节预算的分片缓存
// maxBytes <= 0 表示不设上限 (测试里偶尔有用，生产别这么干)
func NewShardCache(maxBytes int64) *ShardCache {
	c := &ShardCache{
		entries:  lru.New(0), // 条目数不设限，用字节预算控制
		maxBytes: maxBytes,
		sizes:    make(map[lru.Key]int64),
	}
	c.entries.OnEvicted = func(key lru.Key, _ interface{}) {
		// 只在锁内被 RemoveOldest 触发
		c.curBytes -= c.sizes[key]
		delete(c.sizes, key)
		c.evictions++
	}
	return c
}

// Get 查找分片子列表，命中会刷新 LRU 顺序
func (c *ShardCache) Get(hash types.NodeHash) ([]*core.LeafBlock, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.entries.Get(hash)
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	return v.([]*core.LeafBlock), true
}

// Add 放入一个分片的子列表
// cost 是它占用的近似字节数 (通常取序列化记录的长度)
func (c *ShardCache) Add(hash types.NodeHash, children []*core.LeafBlock, cost int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// 覆盖已有条目时先扣掉旧账
	if old, ok := c.sizes[lru.Key(hash)]; ok {
		c.curBytes -= old
	}

	c.entries.Add(hash, children)
	c.sizes[lru.Key(hash)] = cost
	c.curBytes += cost

	// 回到预算以内：按 LRU 顺序淘汰，必要时连刚放入的条目一起淘汰 ——
	// 预算是硬上限，单个超大分片也不能把它顶破
	if c.maxBytes > 0 {
		for c.curBytes > c.maxBytes && c.entries.Len() > 0 {
			c.entries.RemoveOldest()
		}
	}
}

// Stats 返回当前指标快照
func (c *ShardCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Bytes:     c.curBytes,
		Entries:   c.entries.Len(),
	}
}
