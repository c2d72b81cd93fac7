package merkle

import (
	"context"
	"fmt"

	"deltavault/pkg/core"
	"deltavault/pkg/storage"
	"deltavault/pkg/types"
	"deltavault/pkg/vnode"
)

// Save 把文档树完整持久化到内容寻址存储
//
// 写入顺序自底向上：叶子内容 → 分片记录 → 章节记录 → 文档记录。
// 存储是幂等的，跨版本共享的节点 (没变的章节 / 分片 / 叶子) 重复写入
// 只是去重命中，不产生第二份物理记录 —— 这就是版本间去重的全部机制。
//
// NotLoaded 状态的分片只可能来自已持久化的树，记录本身不重写，
// 但要确认目标存储里确实有它：往另一个存储保存懒加载的树时，
// 缺失的分片记录必须报错而不是写出一棵缺角的文档
func Save(ctx context.Context, store storage.Store, doc *DocumentTree) error {
	sectionRefs := make([]core.SectionRef, 0, doc.SectionCount())

	for _, s := range doc.Sections() {
		switch s.Layout() {
		case core.LayoutDirect:
			for _, leaf := range s.Leaves() {
				if err := putLeaf(ctx, store, leaf); err != nil {
					return err
				}
			}
			refs := make([]core.LeafRef, len(s.Leaves()))
			for i, leaf := range s.Leaves() {
				refs[i] = leaf.Ref()
			}
			rec, err := core.NewSectionRecord(s.Index(), s.Layout(), s.LeafCount(), refs, nil, s.Root())
			if err != nil {
				return err
			}
			if err := store.Put(ctx, rec); err != nil {
				return fmt.Errorf("put section %d: %w", s.Index(), err)
			}

		case core.LayoutSharded:
			shardRefs := make([]core.ShardRef, len(s.Shards()))
			for i, sh := range s.Shards() {
				shardRefs[i] = sh.Ref()
				if !sh.Loaded() {
					ok, err := store.Has(ctx, core.StorageKey(core.TypeVNode, sh.Hash()))
					if err != nil {
						return fmt.Errorf("check shard %d of section %d: %w", i, s.Index(), err)
					}
					if !ok {
						return fmt.Errorf("shard %d of section %d (%s) is not loaded and absent from target store: %w",
							i, s.Index(), sh.Hash(), storage.ErrNotFound)
					}
					continue
				}
				for _, leaf := range sh.Children() {
					if err := putLeaf(ctx, store, leaf); err != nil {
						return err
					}
				}
				recs, err := vnode.Records([]*vnode.VNode{sh})
				if err != nil {
					return err
				}
				if err := store.Put(ctx, recs[0]); err != nil {
					return fmt.Errorf("put shard %d of section %d: %w", i, s.Index(), err)
				}
			}
			rec, err := core.NewSectionRecord(s.Index(), s.Layout(), s.LeafCount(), nil, shardRefs, s.Root())
			if err != nil {
				return err
			}
			if err := store.Put(ctx, rec); err != nil {
				return fmt.Errorf("put section %d: %w", s.Index(), err)
			}
		}
		sectionRefs = append(sectionRefs, s.Ref())
	}

	rec, err := core.NewDocumentRecord(sectionRefs, doc.LeafCount(), doc.Root())
	if err != nil {
		return err
	}
	if err := store.Put(ctx, rec); err != nil {
		return fmt.Errorf("put document %s: %w", doc.Root(), err)
	}
	return nil
}

// putLeaf 持久化叶子内容；无内容的叶子引用是已存在对象，跳过
func putLeaf(ctx context.Context, store storage.Store, leaf *core.LeafBlock) error {
	if !leaf.HasContent() {
		return nil
	}
	if err := store.Put(ctx, leaf); err != nil {
		return fmt.Errorf("put leaf %d (%s): %w", leaf.Ordinal(), leaf.Hash(), err)
	}
	return nil
}

// Load 按根 Hash 从存储还原文档树骨架
//
// 章节记录全部读入 (文档骨架很小)，sharded 章节的分片保持 NotLoaded ——
// 子列表在 diff 需要时才通过 Loader 物化。
// 每一层都重算派生 Hash 与记录 Key 比对，不一致报告存储损坏
func Load(ctx context.Context, store storage.Store, root types.NodeHash, vnodeSize int) (*DocumentTree, error) {
	data, err := storage.GetBytes(ctx, store, core.StorageKey(core.TypeDocument, root))
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", root, err)
	}
	var docRec core.DocumentRecord
	if err := core.DecodeObject(data, &docRec); err != nil {
		return nil, fmt.Errorf("%w: decode document %s: %v", storage.ErrCorruption, root, err)
	}

	roots := make([]types.NodeHash, len(docRec.Sections))
	for i, ref := range docRec.Sections {
		roots[i] = ref.Root.Hash
	}
	if got := core.CombineAll(roots); got != root {
		return nil, fmt.Errorf("%w: document key %s, recomputed %s", storage.ErrCorruption, root, got)
	}

	sections := make([]*SectionTree, len(docRec.Sections))
	for i, ref := range docRec.Sections {
		secData, err := storage.GetBytes(ctx, store, core.StorageKey(core.TypeSection, ref.Root.Hash))
		if err != nil {
			return nil, fmt.Errorf("load section %d (%s): %w", ref.Index, ref.Root.Hash, err)
		}
		var secRec core.SectionRecord
		if err := core.DecodeObject(secData, &secRec); err != nil {
			return nil, fmt.Errorf("%w: decode section %s: %v", storage.ErrCorruption, ref.Root.Hash, err)
		}
		s, err := restoredSection(ref, &secRec, vnodeSize)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", storage.ErrCorruption, err)
		}
		sections[i] = s
	}
	return NewDocumentTree(sections), nil
}
