package builder

import (
	"context"
	"runtime"

	"deltavault/pkg/core"
	"deltavault/pkg/merkle"
	"deltavault/pkg/section"
	"deltavault/pkg/storage"
	"deltavault/pkg/vnode"

	"golang.org/x/sync/errgroup"
)

// Builder 把解析器产出的有序叶子和边界标记组装成文档树
//
// 章节树之间没有共享可变状态，纯 CPU 计算，按章节并行构建。
// 并行度默认取 GOMAXPROCS，章节很多时也不会失控
type Builder struct {
	vnodeSize   int
	parallelism int
}

// Option 构建器选项
type Option func(*Builder)

// WithVNodeSize 覆盖分片布局的叶子数阈值 (<=0 用默认值)
func WithVNodeSize(n int) Option {
	return func(b *Builder) { b.vnodeSize = n }
}

// WithParallelism 覆盖章节级并行度
func WithParallelism(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.parallelism = n
		}
	}
}

func New(opts ...Option) *Builder {
	b := &Builder{
		vnodeSize:   vnode.DefaultVNodeSize,
		parallelism: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build 从叶子序列和章节边界构建文档树
// 叶子必须已按序号升序；零叶子零边界产出空文档 (根为稳定空值 Hash)
func (b *Builder) Build(ctx context.Context, leaves []*core.LeafBlock, boundaries []uint64) (*merkle.DocumentTree, error) {
	groups := section.Split(leaves, boundaries)
	sections := make([]*merkle.SectionTree, len(groups))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(b.parallelism)
	for i, group := range groups {
		g.Go(func() error {
			sections[i] = merkle.NewSectionTree(uint32(i), group, b.vnodeSize)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return merkle.NewDocumentTree(sections), nil
}

// BuildAndSave 构建后立即持久化，返回树和根 Hash
func (b *Builder) BuildAndSave(ctx context.Context, store storage.Store, leaves []*core.LeafBlock, boundaries []uint64) (*merkle.DocumentTree, error) {
	doc, err := b.Build(ctx, leaves, boundaries)
	if err != nil {
		return nil, err
	}
	if err := merkle.Save(ctx, store, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// VNodeSize 返回构建器生效的分片阈值 (Load 还原时需要同一参数)
func (b *Builder) VNodeSize() int { return b.vnodeSize }
