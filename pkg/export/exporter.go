package export

import (
	"context"
	"fmt"
	"io"
	"sort"

	"deltavault/pkg/core"
	"deltavault/pkg/merkle"
	"deltavault/pkg/storage"
	"deltavault/pkg/vnode"
)

// Exporter 把一棵已持久化的文档树还原成原始字节流
type Exporter struct {
	store  storage.Store
	loader *vnode.Loader
}

func NewExporter(store storage.Store, loader *vnode.Loader) *Exporter {
	return &Exporter{store: store, loader: loader}
}

// ExportDocument 按章节序、叶子序把文档内容写入 writer (Reassembly)
// 每个叶子的内容都走校验读：Hash 不匹配立即中止，绝不输出被偷换的字节
func (e *Exporter) ExportDocument(ctx context.Context, doc *merkle.DocumentTree, writer io.Writer) error {
	for _, s := range doc.Sections() {
		leaves, err := e.sectionLeaves(ctx, s)
		if err != nil {
			return err
		}
		for _, leaf := range leaves {
			// 匿名函数构建一个 Scope，保证句柄不堆积
			err := func() error {
				data, err := storage.GetVerifiedBlob(ctx, e.store, leaf.Hash())
				if err != nil {
					return fmt.Errorf("failed to get leaf %d of section %d: %w", leaf.Ordinal(), s.Index(), err)
				}
				if _, err := writer.Write(data); err != nil {
					return fmt.Errorf("failed to write leaf %d data: %w", leaf.Ordinal(), err)
				}
				return nil
			}()
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// sectionLeaves 取章节的全部叶子，按序号升序
// sharded 布局把各分片的子列表合并后重排 —— 分桶打乱的是物理归属，
// 逻辑顺序永远由序号决定
func (e *Exporter) sectionLeaves(ctx context.Context, s *merkle.SectionTree) ([]*core.LeafBlock, error) {
	if s.Layout() == core.LayoutDirect {
		return s.Leaves(), nil
	}

	var leaves []*core.LeafBlock
	for _, sh := range s.Shards() {
		children := sh.Children()
		if children == nil {
			loaded, err := e.loader.Load(ctx, sh.Hash())
			if err != nil {
				return nil, fmt.Errorf("failed to load shard %d of section %d: %w", sh.ShardIndex(), s.Index(), err)
			}
			children = loaded
		}
		leaves = append(leaves, children...)
	}
	sort.Slice(leaves, func(a, b int) bool {
		return leaves[a].Ordinal() < leaves[b].Ordinal()
	})
	return leaves, nil
}
