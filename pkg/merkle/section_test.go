package merkle

import (
	"fmt"
	"testing"

	"deltavault/pkg/core"
	"deltavault/pkg/vnode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeLeaves(n int) []*core.LeafBlock {
	leaves := make([]*core.LeafBlock, n)
	var off int64
	for i := 0; i < n; i++ {
		data := []byte(fmt.Sprintf("leaf-%d", i))
		leaves[i] = core.NewLeafBlock(uint64(i), off, off+int64(len(data)), data)
		off += int64(len(data))
	}
	return leaves
}

func mutated(leaf *core.LeafBlock, content string) *core.LeafBlock {
	start, end := leaf.Range()
	return core.NewLeafBlock(leaf.Ordinal(), start, end, []byte(content))
}

func TestSectionTree_LayoutThreshold(t *testing.T) {
	// 阈值两侧各差一个叶子：<=100 直接布局，>100 分片布局
	direct := NewSectionTree(0, makeLeaves(vnode.DefaultVNodeSize), 0)
	assert.Equal(t, core.LayoutDirect, direct.Layout())
	assert.Nil(t, direct.Shards())

	sharded := NewSectionTree(0, makeLeaves(vnode.DefaultVNodeSize+1), 0)
	assert.Equal(t, core.LayoutSharded, sharded.Layout())
	assert.Len(t, sharded.Shards(), 2)
}

func TestSectionTree_EmptyRoot(t *testing.T) {
	empty := NewSectionTree(0, nil, 0)
	assert.Equal(t, core.EmptyRoot(), empty.Root())
	assert.Equal(t, uint64(0), empty.LeafCount())
}

func TestSectionTree_Deterministic(t *testing.T) {
	leaves := makeLeaves(50)
	a := NewSectionTree(0, leaves, 0)
	b := NewSectionTree(0, leaves, 0)
	assert.Equal(t, a.Root(), b.Root())
}

func TestSectionTree_ReorderDetected(t *testing.T) {
	leaves := makeLeaves(4)

	// 交换两个叶子的位置，内容集合不变
	swapped := []*core.LeafBlock{leaves[1], leaves[0], leaves[2], leaves[3]}

	a := NewSectionTree(0, leaves, 0)
	b := NewSectionTree(0, swapped, 0)
	assert.NotEqual(t, a.Root(), b.Root(), "重排必须被检测为变化")
}

func TestWithUpdatedLeaves_MatchesFullRebuild(t *testing.T) {
	leaves := makeLeaves(37) // 奇数，覆盖落单上浮路径
	tree := NewSectionTree(0, leaves, 0)

	newLeaf := mutated(leaves[17], "edited content")
	updated, err := tree.WithUpdatedLeaves([]*core.LeafBlock{newLeaf})
	require.NoError(t, err)

	// 增量重算的根必须等于整树重建的根
	rebuilt := make([]*core.LeafBlock, len(leaves))
	copy(rebuilt, leaves)
	rebuilt[17] = newLeaf
	assert.Equal(t, NewSectionTree(0, rebuilt, 0).Root(), updated.Root())

	// 旧树不受影响 (不可变)
	assert.Equal(t, NewSectionTree(0, leaves, 0).Root(), tree.Root())
}

func TestWithUpdatedLeaves_Sharded(t *testing.T) {
	leaves := makeLeaves(250)
	tree := NewSectionTree(0, leaves, 0)
	require.Equal(t, core.LayoutSharded, tree.Layout())

	newLeaf := mutated(leaves[123], "edited content")
	updated, err := tree.WithUpdatedLeaves([]*core.LeafBlock{newLeaf})
	require.NoError(t, err)

	rebuilt := make([]*core.LeafBlock, len(leaves))
	copy(rebuilt, leaves)
	rebuilt[123] = newLeaf
	assert.Equal(t, NewSectionTree(0, rebuilt, 0).Root(), updated.Root())

	// 只有目标分桶的 Hash 变化，其余分片按引用共享
	target := vnode.ShardFor(123, len(tree.Shards()))
	for i := range tree.Shards() {
		if uint32(i) == target {
			assert.NotEqual(t, tree.Shards()[i].Hash(), updated.Shards()[i].Hash())
		} else {
			assert.Same(t, tree.Shards()[i], updated.Shards()[i])
		}
	}
}

func TestWithUpdatedLeaves_UnknownOrdinal(t *testing.T) {
	tree := NewSectionTree(0, makeLeaves(10), 0)
	_, err := tree.WithUpdatedLeaves([]*core.LeafBlock{core.NewLeafBlock(999, 0, 1, []byte("x"))})
	assert.Error(t, err)
}

func TestDocumentTree_ReplaceSection(t *testing.T) {
	s0 := NewSectionTree(0, makeLeaves(5), 0)
	s1 := NewSectionTree(1, makeLeaves(8), 0)
	doc := NewDocumentTree([]*SectionTree{s0, s1})

	edited, err := s1.WithUpdatedLeaves([]*core.LeafBlock{mutated(s1.Leaves()[2], "new")})
	require.NoError(t, err)

	doc2, err := doc.ReplaceSection(1, edited)
	require.NoError(t, err)

	assert.NotEqual(t, doc.Root(), doc2.Root())
	// 未触碰的章节按引用共享
	assert.Same(t, doc.Section(0), doc2.Section(0))

	// 等价于从头组合
	assert.Equal(t, NewDocumentTree([]*SectionTree{s0, edited}).Root(), doc2.Root())
}

func TestDocumentTree_Empty(t *testing.T) {
	a := NewDocumentTree(nil)
	b := NewDocumentTree(nil)
	assert.Equal(t, a.Root(), b.Root(), "空文档的根必须稳定")
	assert.Equal(t, core.EmptyRoot(), a.Root())
}
