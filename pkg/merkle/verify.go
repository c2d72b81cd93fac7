package merkle

import (
	"context"
	"fmt"

	"deltavault/pkg/core"
	"deltavault/pkg/storage"
	"deltavault/pkg/types"
	"deltavault/pkg/vnode"
)

// Verify 深度校验一棵已持久化的文档树
//
// 自顶向下走遍每一层：文档根、章节根、分片 Hash 都从子节点重算比对，
// 叶子内容逐个读出重算内容 Hash。任何一处不匹配立即返回 ErrCorruption。
// 代价是完整读一遍树，只应在怀疑存储被破坏时使用
func Verify(ctx context.Context, store storage.Store, loader *vnode.Loader, doc *DocumentTree) error {
	for _, s := range doc.Sections() {
		switch s.Layout() {
		case core.LayoutDirect:
			for _, leaf := range s.Leaves() {
				if _, err := storage.GetVerifiedBlob(ctx, store, leaf.Hash()); err != nil {
					return fmt.Errorf("section %d leaf %d: %w", s.Index(), leaf.Ordinal(), err)
				}
			}
		case core.LayoutSharded:
			for _, sh := range s.Shards() {
				// Load 自带分片 Hash 重算校验
				children, err := loader.Load(ctx, sh.Hash())
				if err != nil {
					return fmt.Errorf("section %d shard %d: %w", s.Index(), sh.ShardIndex(), err)
				}
				for _, leaf := range children {
					if _, err := storage.GetVerifiedBlob(ctx, store, leaf.Hash()); err != nil {
						return fmt.Errorf("section %d shard %d leaf %d: %w", s.Index(), sh.ShardIndex(), leaf.Ordinal(), err)
					}
				}
			}
		}
	}
	// 章节根和文档根的重算校验在 Load / restoredSection 已做过一次，
	// 这里对纯内存构建的树再补一道
	roots := make([]types.NodeHash, doc.SectionCount())
	for i, s := range doc.Sections() {
		roots[i] = s.Root()
	}
	if got := core.CombineAll(roots); got != doc.Root() {
		return fmt.Errorf("%w: document root %s, recomputed %s", storage.ErrCorruption, doc.Root(), got)
	}
	return nil
}
