package section

import (
	"fmt"
	"testing"

	"deltavault/pkg/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeLeaves(n int) []*core.LeafBlock {
	leaves := make([]*core.LeafBlock, n)
	var off int64
	for i := 0; i < n; i++ {
		data := []byte(fmt.Sprintf("block-%d", i))
		leaves[i] = core.NewLeafBlock(uint64(i), off, off+int64(len(data)), data)
		off += int64(len(data))
	}
	return leaves
}

func TestSplit_NoBoundaries(t *testing.T) {
	leaves := makeLeaves(5)
	groups := Split(leaves, nil)

	// 没有边界：全部叶子一个章节
	require.Len(t, groups, 1)
	assert.Len(t, groups[0], 5)
}

func TestSplit_MiddleBoundary(t *testing.T) {
	leaves := makeLeaves(5)
	groups := Split(leaves, []uint64{2})

	require.Len(t, groups, 2)
	assert.Len(t, groups[0], 2, "序号 0,1")
	assert.Len(t, groups[1], 3, "序号 2,3,4")
	assert.Equal(t, uint64(2), groups[1][0].Ordinal())
}

func TestSplit_LeadingBoundary(t *testing.T) {
	leaves := makeLeaves(3)
	groups := Split(leaves, []uint64{0})

	// 边界落在首个叶子上：产出一个空的前导章节 (合法，不是错误)
	require.Len(t, groups, 2)
	assert.Empty(t, groups[0])
	assert.Len(t, groups[1], 3)
}

func TestSplit_ConsecutiveBoundaries(t *testing.T) {
	leaves := makeLeaves(4)
	groups := Split(leaves, []uint64{2, 3})

	// 相邻边界之间只有序号 2 一个叶子
	require.Len(t, groups, 3)
	assert.Len(t, groups[0], 2)
	assert.Len(t, groups[1], 1)
	assert.Len(t, groups[2], 1)
}

func TestSplit_EmptyMiddleSection(t *testing.T) {
	// 序号 2 和 3 之间没有叶子 → 中间出现空章节
	leaves := makeLeaves(2) // 序号 0,1
	groups := Split(leaves, []uint64{2, 2 + 1})

	require.Len(t, groups, 3)
	assert.Len(t, groups[0], 2)
	assert.Empty(t, groups[1])
	assert.Empty(t, groups[2])
}

func TestSplit_Empty(t *testing.T) {
	// 没有叶子也没有边界：零个章节
	assert.Nil(t, Split(nil, nil))
}

func TestSplit_UnsortedDuplicateBoundaries(t *testing.T) {
	leaves := makeLeaves(6)
	// 乱序 + 重复的边界应该被规整
	groups := Split(leaves, []uint64{4, 2, 4})

	require.Len(t, groups, 3)
	assert.Len(t, groups[0], 2)
	assert.Len(t, groups[1], 2)
	assert.Len(t, groups[2], 2)
}
