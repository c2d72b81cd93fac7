package merkle

import (
	"fmt"

	"deltavault/pkg/core"
	"deltavault/pkg/types"
)

// DocumentTree 整个文档的哈希树：章节根的有序组合
// 与章节树一样不可变，替换单个章节只重算文档层，其余章节按引用复用
type DocumentTree struct {
	root      types.NodeHash
	leafCount uint64
	sections  []*SectionTree
}

// NewDocumentTree 从有序章节树组合出文档树
// 零章节的文档合法，根为稳定的空值 Hash
func NewDocumentTree(sections []*SectionTree) *DocumentTree {
	roots := make([]types.NodeHash, len(sections))
	var leafCount uint64
	for i, s := range sections {
		roots[i] = s.Root()
		leafCount += s.LeafCount()
	}
	return &DocumentTree{
		root:      core.CombineAll(roots),
		leafCount: leafCount,
		sections:  sections,
	}
}

func (d *DocumentTree) Root() types.NodeHash     { return d.root }
func (d *DocumentTree) LeafCount() uint64        { return d.leafCount }
func (d *DocumentTree) SectionCount() int        { return len(d.sections) }
func (d *DocumentTree) Sections() []*SectionTree { return d.sections }

// Section 按下标取章节树，越界返回 nil
func (d *DocumentTree) Section(i int) *SectionTree {
	if i < 0 || i >= len(d.sections) {
		return nil
	}
	return d.sections[i]
}

// ReplaceSection 替换一个章节并产生新文档树
// 编辑单个章节后的典型路径：其余章节原样共享，只重组文档层
func (d *DocumentTree) ReplaceSection(index int, section *SectionTree) (*DocumentTree, error) {
	if index < 0 || index >= len(d.sections) {
		return nil, fmt.Errorf("section index %d out of range [0,%d)", index, len(d.sections))
	}
	sections := make([]*SectionTree, len(d.sections))
	copy(sections, d.sections)
	sections[index] = section
	return NewDocumentTree(sections), nil
}
