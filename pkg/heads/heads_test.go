package heads

import (
	"testing"

	"deltavault/pkg/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeads_Lifecycle(t *testing.T) {
	mgr := NewManager(t.TempDir())

	// 新仓库没有头指针
	_, err := mgr.GetHead("doc-1")
	assert.ErrorIs(t, err, ErrNoHead)

	root1 := core.CalculateBlobHash([]byte("v1"))
	require.NoError(t, mgr.UpdateHead("doc-1", root1))

	got, err := mgr.GetHead("doc-1")
	require.NoError(t, err)
	assert.Equal(t, root1, got)

	// 移动头指针
	root2 := core.CalculateBlobHash([]byte("v2"))
	require.NoError(t, mgr.UpdateHead("doc-1", root2))
	got, err = mgr.GetHead("doc-1")
	require.NoError(t, err)
	assert.Equal(t, root2, got)
}

func TestHeads_IndependentDocuments(t *testing.T) {
	mgr := NewManager(t.TempDir())

	rootA := core.CalculateBlobHash([]byte("a"))
	rootB := core.CalculateBlobHash([]byte("b"))
	require.NoError(t, mgr.UpdateHead("doc-a", rootA))
	require.NoError(t, mgr.UpdateHead("doc-b", rootB))

	gotA, err := mgr.GetHead("doc-a")
	require.NoError(t, err)
	gotB, err := mgr.GetHead("doc-b")
	require.NoError(t, err)
	assert.Equal(t, rootA, gotA)
	assert.Equal(t, rootB, gotB)
}

func TestHeads_PathSeparatorInDocumentID(t *testing.T) {
	mgr := NewManager(t.TempDir())

	// 文档 ID 里带路径分隔符也不能逃出 heads 目录
	root := core.CalculateBlobHash([]byte("x"))
	require.NoError(t, mgr.UpdateHead("team/project/doc", root))
	got, err := mgr.GetHead("team/project/doc")
	require.NoError(t, err)
	assert.Equal(t, root, got)
}
