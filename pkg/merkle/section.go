package merkle

import (
	"fmt"
	"sort"

	"deltavault/pkg/core"
	"deltavault/pkg/types"
	"deltavault/pkg/vnode"
)

// SectionTree 一个章节的哈希树
//
// 两种布局，按叶子数自动选择：
//   - direct:  叶子数 <= 阈值，直接持有有序叶子和完整层级
//   - sharded: 叶子数 > 阈值，叶子按序号 Hash 分桶到 VNode，
//     树里只驻留分片 Hash，子列表懒加载
//
// 树是不可变的：更新叶子产生新树，旧树不受影响 (结构共享)
type SectionTree struct {
	index     uint32
	layout    string
	leafCount uint64
	root      types.NodeHash
	vnodeSize int

	// direct 布局
	leaves []*core.LeafBlock
	levels [][]types.NodeHash

	// sharded 布局
	shards []*vnode.VNode
}

// NewSectionTree 从有序叶子构建章节树
// vnodeSize <= 0 时使用默认阈值
func NewSectionTree(index uint32, leaves []*core.LeafBlock, vnodeSize int) *SectionTree {
	if vnodeSize <= 0 {
		vnodeSize = vnode.DefaultVNodeSize
	}
	t := &SectionTree{
		index:     index,
		leafCount: uint64(len(leaves)),
		vnodeSize: vnodeSize,
	}

	if len(leaves) > vnodeSize {
		t.layout = core.LayoutSharded
		t.shards = vnode.BuildShards(leaves, vnode.ShardCount(len(leaves), vnodeSize))
		t.root = core.CombineAll(vnode.Hashes(t.shards))
		return t
	}

	t.layout = core.LayoutDirect
	t.leaves = leaves
	if len(leaves) == 0 {
		// 空章节合法，根是稳定的空值 Hash
		t.root = core.EmptyRoot()
		return t
	}
	hashes := make([]types.NodeHash, len(leaves))
	for i, leaf := range leaves {
		hashes[i] = leaf.Hash()
	}
	t.levels = core.BuildLevels(hashes)
	t.root = t.levels[len(t.levels)-1][0]
	return t
}

func (t *SectionTree) Index() uint32        { return t.index }
func (t *SectionTree) Layout() string       { return t.layout }
func (t *SectionTree) LeafCount() uint64    { return t.leafCount }
func (t *SectionTree) Root() types.NodeHash { return t.root }

// Leaves 返回 direct 布局的有序叶子，sharded 布局返回 nil
func (t *SectionTree) Leaves() []*core.LeafBlock { return t.leaves }

// Shards 返回 sharded 布局的分片列表，direct 布局返回 nil
func (t *SectionTree) Shards() []*vnode.VNode { return t.shards }

// Ref 返回可嵌入文档记录的章节引用
func (t *SectionTree) Ref() core.SectionRef {
	return core.SectionRef{
		Index:     t.index,
		Root:      core.NewLink(t.root),
		Layout:    t.layout,
		LeafCount: t.leafCount,
	}
}

// WithUpdatedLeaves 用变更叶子 (按序号匹配) 产生一棵新树
//
// direct 布局：只重算脏叶子到根的路径，O(变更数 × 树深)，
// 其余内部节点直接复用旧树的层级。
// sharded 布局：只重算受影响的分桶，其余 VNode 原样共享 —— 这要求
// 被替换序号所在的分桶已加载 (调用方先通过 Loader 物化)。
//
// 变更叶子的序号必须已存在于树中；新增/删除叶子属于结构变化，
// 走整树重建 (NewSectionTree)
func (t *SectionTree) WithUpdatedLeaves(changed []*core.LeafBlock) (*SectionTree, error) {
	if len(changed) == 0 {
		return t, nil
	}
	if t.layout == core.LayoutSharded {
		return t.withUpdatedSharded(changed)
	}
	return t.withUpdatedDirect(changed)
}

func (t *SectionTree) withUpdatedDirect(changed []*core.LeafBlock) (*SectionTree, error) {
	pos := make(map[uint64]int, len(t.leaves))
	for i, leaf := range t.leaves {
		pos[leaf.Ordinal()] = i
	}

	leaves := make([]*core.LeafBlock, len(t.leaves))
	copy(leaves, t.leaves)

	levels := make([][]types.NodeHash, len(t.levels))
	for i, lvl := range t.levels {
		levels[i] = make([]types.NodeHash, len(lvl))
		copy(levels[i], lvl)
	}

	dirty := make(map[int]struct{}, len(changed))
	for _, leaf := range changed {
		i, ok := pos[leaf.Ordinal()]
		if !ok {
			return nil, fmt.Errorf("leaf ordinal %d not present in section %d", leaf.Ordinal(), t.index)
		}
		leaves[i] = leaf
		levels[0][i] = leaf.Hash()
		dirty[i] = struct{}{}
	}

	// 逐层只重算脏路径：p 的父节点是 p/2，落单节点原样上浮
	for l := 0; l+1 < len(levels); l++ {
		cur, next := levels[l], levels[l+1]
		parents := make(map[int]struct{}, len(dirty))
		for p := range dirty {
			k := p / 2
			if 2*k+1 < len(cur) {
				next[k] = core.CombineHashes(cur[2*k], cur[2*k+1])
			} else {
				next[k] = cur[2*k]
			}
			parents[k] = struct{}{}
		}
		dirty = parents
	}

	nt := &SectionTree{
		index:     t.index,
		layout:    t.layout,
		leafCount: t.leafCount,
		vnodeSize: t.vnodeSize,
		leaves:    leaves,
		levels:    levels,
		root:      levels[len(levels)-1][0],
	}
	return nt, nil
}

func (t *SectionTree) withUpdatedSharded(changed []*core.LeafBlock) (*SectionTree, error) {
	byShard := make(map[uint32][]*core.LeafBlock)
	for _, leaf := range changed {
		i := vnode.ShardFor(leaf.Ordinal(), len(t.shards))
		byShard[i] = append(byShard[i], leaf)
	}

	shards := make([]*vnode.VNode, len(t.shards))
	copy(shards, t.shards)

	for i, repl := range byShard {
		old := t.shards[i]
		if !old.Loaded() {
			return nil, fmt.Errorf("shard %d of section %d not loaded", i, t.index)
		}
		children := make([]*core.LeafBlock, len(old.Children()))
		copy(children, old.Children())
		byOrdinal := make(map[uint64]int, len(children))
		for j, c := range children {
			byOrdinal[c.Ordinal()] = j
		}
		for _, leaf := range repl {
			j, ok := byOrdinal[leaf.Ordinal()]
			if !ok {
				return nil, fmt.Errorf("leaf ordinal %d not present in shard %d of section %d", leaf.Ordinal(), i, t.index)
			}
			children[j] = leaf
		}
		sort.Slice(children, func(a, b int) bool {
			return children[a].Ordinal() < children[b].Ordinal()
		})
		rebuilt := vnode.Rebuild(i, children)
		shards[i] = rebuilt
	}

	nt := &SectionTree{
		index:     t.index,
		layout:    t.layout,
		leafCount: t.leafCount,
		vnodeSize: t.vnodeSize,
		shards:    shards,
		root:      core.CombineAll(vnode.Hashes(shards)),
	}
	return nt, nil
}

// restoredSection 从持久化记录还原章节树 (persist.go 使用)
func restoredSection(ref core.SectionRef, rec *core.SectionRecord, vnodeSize int) (*SectionTree, error) {
	t := &SectionTree{
		index:     rec.Index,
		layout:    rec.Layout,
		leafCount: rec.LeafCount,
		vnodeSize: vnodeSize,
	}
	switch rec.Layout {
	case core.LayoutDirect:
		leaves := make([]*core.LeafBlock, len(rec.Leaves))
		hashes := make([]types.NodeHash, len(rec.Leaves))
		for i, lr := range rec.Leaves {
			leaves[i] = lr.Block()
			hashes[i] = lr.Hash.Hash
		}
		t.leaves = leaves
		if len(leaves) == 0 {
			t.root = core.EmptyRoot()
		} else {
			t.levels = core.BuildLevels(hashes)
			t.root = t.levels[len(t.levels)-1][0]
		}
	case core.LayoutSharded:
		t.shards = vnode.FromRefs(rec.Shards)
		t.root = core.CombineAll(vnode.Hashes(t.shards))
	default:
		return nil, fmt.Errorf("unknown section layout %q", rec.Layout)
	}

	// 从子节点重算的根必须与记录的 Key (引用的 Hash) 一致
	if t.root != ref.Root.Hash {
		return nil, fmt.Errorf("section %d root mismatch: ref %s, recomputed %s", rec.Index, ref.Root.Hash, t.root)
	}
	return t, nil
}
