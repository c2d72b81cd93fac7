package meta

import (
	"context"
	"fmt"
	"testing"

	"deltavault/pkg/core"
	"deltavault/pkg/merkle"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupRepo 搭建基于内存 SQLite 的测试环境
func setupRepo(t *testing.T) *Repository {
	t.Helper()

	// "file::memory:?cache=shared" 确保连接池共享同一个内存实例
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // 测试时静默日志
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&ObjectModel{}, &TreeModel{}, &TreeHead{})
	require.NoError(t, err)

	return NewRepository(NewWithConn(db))
}

func buildDoc(t *testing.T, n int) *merkle.DocumentTree {
	t.Helper()
	leaves := make([]*core.LeafBlock, n)
	var off int64
	for i := 0; i < n; i++ {
		data := []byte(fmt.Sprintf("leaf-%d", i))
		leaves[i] = core.NewLeafBlock(uint64(i), off, off+int64(len(data)), data)
		off += int64(len(data))
	}
	return merkle.NewDocumentTree([]*merkle.SectionTree{merkle.NewSectionTree(0, leaves, 0)})
}

func TestTrackObject_RefCountAccumulates(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	obj := core.NewLeafBlock(0, 0, 5, []byte("hello"))

	// 首次登记 ref_count = 1
	require.NoError(t, repo.TrackObject(ctx, obj, obj.Size()))
	n, err := repo.RefCount(ctx, obj.ID())
	require.NoError(t, err)
	assert.Equal(t, uint32(1), n)

	// 重复登记只加计数，不会报唯一约束错误
	require.NoError(t, repo.TrackObject(ctx, obj, obj.Size()))
	require.NoError(t, repo.TrackObject(ctx, obj, obj.Size()))
	n, err = repo.RefCount(ctx, obj.ID())
	require.NoError(t, err)
	assert.Equal(t, uint32(3), n)
}

func TestRefCount_Unknown(t *testing.T) {
	repo := setupRepo(t)

	n, err := repo.RefCount(context.Background(), core.CalculateBlobHash([]byte("never seen")))
	require.NoError(t, err)
	assert.Equal(t, uint32(0), n)
}

func TestStats_DedupSavings(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	obj := core.NewLeafBlock(0, 0, 10, []byte("0123456789"))
	require.NoError(t, repo.TrackObject(ctx, obj, 10))
	require.NoError(t, repo.TrackObject(ctx, obj, 10))

	st, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Objects)
	assert.Equal(t, int64(20), st.LogicalBytes)
	assert.Equal(t, int64(10), st.StoredBytes)
	assert.Equal(t, int64(10), st.Saved())
}

func TestIndexTree_IdempotentAndQueryable(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	doc := buildDoc(t, 5)

	require.NoError(t, repo.IndexTree(ctx, "doc-1", doc, []byte(`{"source":"test"}`)))
	// 重复索引同一根：Do Nothing
	require.NoError(t, repo.IndexTree(ctx, "doc-1", doc, nil))

	model, err := repo.GetTree(ctx, doc.Root())
	require.NoError(t, err)
	assert.Equal(t, "doc-1", model.DocumentID)
	assert.Equal(t, uint32(1), model.SectionCount)
	assert.Equal(t, uint64(5), model.LeafCount)

	trees, err := repo.ListTrees(ctx, "doc-1", 10)
	require.NoError(t, err)
	assert.Len(t, trees, 1)
}

func TestGetTree_NotFound(t *testing.T) {
	repo := setupRepo(t)
	_, err := repo.GetTree(context.Background(), core.CalculateBlobHash([]byte("missing")))
	assert.ErrorIs(t, err, ErrTreeNotFound)
}

func TestHeadFlow_Lifecycle(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	// 1. 初始状态应该是没有头指针
	_, err := repo.GetHead(ctx, "doc-1")
	assert.ErrorIs(t, err, ErrHeadNotFound)

	// 2. 第一次保存 (oldVersion 传 0)
	root1 := core.CalculateBlobHash([]byte("tree v1"))
	require.NoError(t, repo.UpdateHead(ctx, "doc-1", root1, 0))

	head, err := repo.GetHead(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, string(root1), head.RootHash)
	assert.Equal(t, int64(1), head.Version)

	// 3. 基于版本 1 更新
	root2 := core.CalculateBlobHash([]byte("tree v2"))
	require.NoError(t, repo.UpdateHead(ctx, "doc-1", root2, 1))

	head, err = repo.GetHead(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, string(root2), head.RootHash)
	assert.Equal(t, int64(2), head.Version)
}

func TestHeadFlow_OptimisticLocking(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	root1 := core.CalculateBlobHash([]byte("tree v1"))
	require.NoError(t, repo.UpdateHead(ctx, "doc-1", root1, 0))

	// 拿着过期的版本号更新：CAS 必须失败
	stale := core.CalculateBlobHash([]byte("stale update"))
	err := repo.UpdateHead(ctx, "doc-1", stale, 99)
	assert.ErrorIs(t, err, ErrConcurrentUpdate)

	// 头指针没被污染
	head, err := repo.GetHead(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, string(root1), head.RootHash)

	// 重复创建 (oldVersion=0) 同样撞 CAS
	err = repo.UpdateHead(ctx, "doc-1", stale, 0)
	assert.ErrorIs(t, err, ErrConcurrentUpdate)
}
