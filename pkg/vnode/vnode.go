package vnode

import (
	"encoding/binary"
	"hash/fnv"
	"sort"
	"sync"

	"deltavault/pkg/core"
	"deltavault/pkg/types"
)

// DefaultVNodeSize 触发分片布局的叶子数阈值
// 叶子数 <= 阈值的章节直接持有叶子，> 阈值的按 Hash 分桶到虚拟分片
const DefaultVNodeSize = 100

// ShardCount 返回 n 个叶子需要的分片数：ceil(n / size)
func ShardCount(n int, size int) int {
	if size <= 0 {
		size = DefaultVNodeSize
	}
	return (n + size - 1) / size
}

// ShardFor 计算一个叶子序号归属的分片下标
// 分桶基于序号的 FNV-1a 哈希而不是序号区间 —— 尾部追加叶子时
// 已有叶子的归属不变，只有新叶子所在的桶被搅动
func ShardFor(ordinal uint64, shardCount int) uint32 {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], ordinal)
	h := fnv.New32a()
	h.Write(buf[:])
	return h.Sum32() % uint32(shardCount)
}

// VNode 是一个虚拟分片：Hash 常驻内存，子列表懒加载
//
// 两种状态：
//   - Loaded:    children != nil，子列表已物化
//   - NotLoaded: children == nil，只有 Hash 和计数，需要时从存储加载
//
// Hash 在两种状态下都可用 —— diff 先比 Hash，只有不同才触发加载
type VNode struct {
	shardIndex uint32
	hash       types.NodeHash
	count      uint32

	mu       sync.Mutex
	children []*core.LeafBlock
}

func (v *VNode) ShardIndex() uint32   { return v.shardIndex }
func (v *VNode) Hash() types.NodeHash { return v.hash }
func (v *VNode) Count() uint32        { return v.count }

// Loaded 子列表是否已物化
func (v *VNode) Loaded() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.children != nil
}

// Children 返回已物化的子列表，未加载时返回 nil
func (v *VNode) Children() []*core.LeafBlock {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.children
}

// Ref 返回可嵌入章节记录的分片引用
func (v *VNode) Ref() core.ShardRef {
	return core.ShardRef{
		Index: v.shardIndex,
		Hash:  core.NewLink(v.hash),
		Count: v.count,
	}
}

// shardHash 计算分片 Hash：按序号排序后的子节点 Hash 的有序组合
// 空分片 (合法：桶可以为空) 的 Hash 是 EmptyRoot
func shardHash(children []*core.LeafBlock) types.NodeHash {
	hashes := make([]types.NodeHash, len(children))
	for i, c := range children {
		hashes[i] = c.Hash()
	}
	return core.CombineAll(hashes)
}

// BuildShards 把一组叶子分桶成 shardCount 个已加载的 VNode
// 每个桶内按序号排序，保证相同叶子集合产生相同的分片 Hash
func BuildShards(leaves []*core.LeafBlock, shardCount int) []*VNode {
	buckets := make([][]*core.LeafBlock, shardCount)
	for _, leaf := range leaves {
		i := ShardFor(leaf.Ordinal(), shardCount)
		buckets[i] = append(buckets[i], leaf)
	}

	shards := make([]*VNode, shardCount)
	for i, bucket := range buckets {
		sort.Slice(bucket, func(a, b int) bool {
			return bucket[a].Ordinal() < bucket[b].Ordinal()
		})
		if bucket == nil {
			// 保持 Loaded 语义：空桶也是已知内容的桶
			bucket = []*core.LeafBlock{}
		}
		shards[i] = &VNode{
			shardIndex: uint32(i),
			hash:       shardHash(bucket),
			count:      uint32(len(bucket)),
			children:   bucket,
		}
	}
	return shards
}

// Rebuild 用替换后的子列表重建单个分片 (子列表须已按序号排序)
// 其余分片不受影响 —— 结构共享的分片级粒度
func Rebuild(shardIndex uint32, children []*core.LeafBlock) *VNode {
	return &VNode{
		shardIndex: shardIndex,
		hash:       shardHash(children),
		count:      uint32(len(children)),
		children:   children,
	}
}

// FromRefs 从持久化的分片引用还原 NotLoaded 状态的 VNode 列表
func FromRefs(refs []core.ShardRef) []*VNode {
	shards := make([]*VNode, len(refs))
	for i, ref := range refs {
		shards[i] = &VNode{
			shardIndex: ref.Index,
			hash:       ref.Hash.Hash,
			count:      ref.Count,
		}
	}
	return shards
}

// Records 为每个分片生成可持久化的 VNodeRecord
// 要求全部分片处于 Loaded 状态 (构建路径上天然满足)
func Records(shards []*VNode) ([]*core.VNodeRecord, error) {
	records := make([]*core.VNodeRecord, 0, len(shards))
	for _, s := range shards {
		children := s.Children()
		refs := make([]core.LeafRef, len(children))
		for i, c := range children {
			refs[i] = c.Ref()
		}
		rec, err := core.NewVNodeRecord(s.shardIndex, refs, s.hash)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// Hashes 提取分片 Hash 列表 (章节根 = CombineAll(Hashes))
func Hashes(shards []*VNode) []types.NodeHash {
	hashes := make([]types.NodeHash, len(shards))
	for i, s := range shards {
		hashes[i] = s.hash
	}
	return hashes
}
