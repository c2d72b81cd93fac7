package merkle

import (
	"context"
	"fmt"
	"sort"

	"deltavault/pkg/core"
	"deltavault/pkg/telemetry"
	"deltavault/pkg/types"
	"deltavault/pkg/vnode"
)

// ChangeType 叶子级变更类型
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeDeleted  ChangeType = "deleted"
)

// LeafChange 一个叶子的变更
type LeafChange struct {
	Section uint32
	Ordinal uint64
	Type    ChangeType
	OldHash types.NodeHash
	NewHash types.NodeHash
}

// DiffResult 两棵树比较的完整结果
// Identical 为真时其余字段全空 —— 根相等直接短路，不触碰任何子节点
type DiffResult struct {
	Identical       bool
	ChangedSections []uint32
	Changes         []LeafChange

	// StructureChanged 章节数或分片布局发生了变化 (边界移动 / 阈值跨越)，
	// 受影响的层级走过了按序号对齐的全量回退比较
	StructureChanged bool
}

// DiffEngine 自顶向下按 Hash 比较两棵文档树
// 唯一的 I/O 来自分片懒加载：只有 Hash 不同的分片才会被物化
type DiffEngine struct {
	loader  *vnode.Loader
	metrics *telemetry.Metrics
}

// NewDiffEngine 创建比较引擎
// loader 只在遇到未加载的 sharded 章节时才需要；纯内存树可传 nil
func NewDiffEngine(loader *vnode.Loader, metrics *telemetry.Metrics) *DiffEngine {
	return &DiffEngine{loader: loader, metrics: metrics}
}

// Diff 比较两棵文档树，返回最小变更集
func (e *DiffEngine) Diff(ctx context.Context, old, new *DocumentTree) (*DiffResult, error) {
	if old.Root() == new.Root() {
		return &DiffResult{Identical: true}, nil
	}

	res := &DiffResult{}
	if old.SectionCount() != new.SectionCount() {
		res.StructureChanged = true
	}

	max := old.SectionCount()
	if new.SectionCount() > max {
		max = new.SectionCount()
	}
	for i := 0; i < max; i++ {
		os, ns := old.Section(i), new.Section(i)
		switch {
		case os == nil:
			// 新增章节：全部叶子都是新增
			if err := e.wholeSection(ctx, ns, ChangeAdded, res); err != nil {
				return nil, err
			}
		case ns == nil:
			if err := e.wholeSection(ctx, os, ChangeDeleted, res); err != nil {
				return nil, err
			}
		case os.Root() == ns.Root():
			// 章节没变，一个子节点都不看
			continue
		default:
			if err := e.diffSection(ctx, os, ns, res); err != nil {
				return nil, err
			}
		}
		res.ChangedSections = append(res.ChangedSections, uint32(i))
	}

	sort.Slice(res.Changes, func(a, b int) bool {
		if res.Changes[a].Section != res.Changes[b].Section {
			return res.Changes[a].Section < res.Changes[b].Section
		}
		return res.Changes[a].Ordinal < res.Changes[b].Ordinal
	})
	e.metrics.DiffLeaves(len(res.Changes))
	return res, nil
}

// diffSection 比较根已知不同的两个章节
func (e *DiffEngine) diffSection(ctx context.Context, os, ns *SectionTree, res *DiffResult) error {
	// 布局一致且分片数一致时可以分片对分片比较；
	// 否则 (布局切换 / 分片数变化) 按序号对齐全量回退
	if os.Layout() == core.LayoutSharded && ns.Layout() == core.LayoutSharded &&
		len(os.Shards()) == len(ns.Shards()) {
		return e.diffSharded(ctx, os, ns, res)
	}

	if os.Layout() != ns.Layout() || os.Layout() == core.LayoutSharded {
		res.StructureChanged = true
	}

	oldLeaves, err := e.sectionLeaves(ctx, os)
	if err != nil {
		return err
	}
	newLeaves, err := e.sectionLeaves(ctx, ns)
	if err != nil {
		return err
	}
	compareByOrdinal(ns.Index(), oldLeaves, newLeaves, res)
	return nil
}

// diffSharded 分片对分片：Hash 相同的分片整体跳过，只加载不同的分片
// 分桶函数只依赖序号和分片数，分片数相等时同一序号必然落在同一分片
func (e *DiffEngine) diffSharded(ctx context.Context, os, ns *SectionTree, res *DiffResult) error {
	oShards, nShards := os.Shards(), ns.Shards()
	for i := range oShards {
		if oShards[i].Hash() == nShards[i].Hash() {
			continue
		}
		oldLeaves, err := e.shardLeaves(ctx, oShards[i])
		if err != nil {
			return err
		}
		newLeaves, err := e.shardLeaves(ctx, nShards[i])
		if err != nil {
			return err
		}
		compareByOrdinal(ns.Index(), oldLeaves, newLeaves, res)
	}
	return nil
}

// wholeSection 把章节的全部叶子记为同一种变更 (章节整体新增/删除)
func (e *DiffEngine) wholeSection(ctx context.Context, s *SectionTree, ct ChangeType, res *DiffResult) error {
	leaves, err := e.sectionLeaves(ctx, s)
	if err != nil {
		return err
	}
	for ord, h := range leaves {
		c := LeafChange{Section: s.Index(), Ordinal: ord, Type: ct}
		if ct == ChangeDeleted {
			c.OldHash = h
		} else {
			c.NewHash = h
		}
		res.Changes = append(res.Changes, c)
	}
	return nil
}

// sectionLeaves 物化一个章节的 ordinal→hash 映射
// sharded 章节需要加载全部分片 —— 只在回退比较和整节增删时走到
func (e *DiffEngine) sectionLeaves(ctx context.Context, s *SectionTree) (map[uint64]types.NodeHash, error) {
	if s.Layout() == core.LayoutDirect {
		out := make(map[uint64]types.NodeHash, len(s.Leaves()))
		for _, leaf := range s.Leaves() {
			out[leaf.Ordinal()] = leaf.Hash()
		}
		return out, nil
	}
	out := make(map[uint64]types.NodeHash, s.LeafCount())
	for _, sh := range s.Shards() {
		leaves, err := e.shardLeaves(ctx, sh)
		if err != nil {
			return nil, err
		}
		for ord, h := range leaves {
			out[ord] = h
		}
	}
	return out, nil
}

func (e *DiffEngine) shardLeaves(ctx context.Context, sh *vnode.VNode) (map[uint64]types.NodeHash, error) {
	if !sh.Loaded() {
		if e.loader == nil {
			return nil, fmt.Errorf("shard %d not loaded and no loader configured", sh.ShardIndex())
		}
		if err := e.loader.LoadInto(ctx, sh); err != nil {
			return nil, err
		}
	}
	out := make(map[uint64]types.NodeHash, sh.Count())
	for _, c := range sh.Children() {
		out[c.Ordinal()] = c.Hash()
	}
	return out, nil
}

// compareByOrdinal 按序号对齐两组叶子，产出增/删/改
func compareByOrdinal(section uint32, old, new map[uint64]types.NodeHash, res *DiffResult) {
	for ord, oh := range old {
		nh, ok := new[ord]
		switch {
		case !ok:
			res.Changes = append(res.Changes, LeafChange{Section: section, Ordinal: ord, Type: ChangeDeleted, OldHash: oh})
		case nh != oh:
			res.Changes = append(res.Changes, LeafChange{Section: section, Ordinal: ord, Type: ChangeModified, OldHash: oh, NewHash: nh})
		}
	}
	for ord, nh := range new {
		if _, ok := old[ord]; !ok {
			res.Changes = append(res.Changes, LeafChange{Section: section, Ordinal: ord, Type: ChangeAdded, NewHash: nh})
		}
	}
}
