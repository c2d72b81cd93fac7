package merkle

import (
	"context"
	"testing"

	"deltavault/pkg/core"
	"deltavault/pkg/storage"
	"deltavault/pkg/storage/memory"
	"deltavault/pkg/vnode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoad_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	doc := buildDoc(t, makeLeaves(5), makeLeaves(150))
	require.NoError(t, Save(ctx, store, doc))

	loaded, err := Load(ctx, store, doc.Root(), 0)
	require.NoError(t, err)

	assert.Equal(t, doc.Root(), loaded.Root())
	assert.Equal(t, doc.LeafCount(), loaded.LeafCount())
	require.Equal(t, 2, loaded.SectionCount())
	assert.Equal(t, core.LayoutDirect, loaded.Section(0).Layout())
	assert.Equal(t, core.LayoutSharded, loaded.Section(1).Layout())

	// sharded 章节还原后保持懒加载
	for _, sh := range loaded.Section(1).Shards() {
		assert.False(t, sh.Loaded())
	}
}

func TestSave_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	doc := buildDoc(t, makeLeaves(5))
	require.NoError(t, Save(ctx, store, doc))
	physical := store.Len()
	puts := store.Puts()

	// 重复保存同一棵树：没有任何新的物理写入
	require.NoError(t, Save(ctx, store, doc))
	assert.Equal(t, physical, store.Len())
	assert.Equal(t, puts, store.Puts())

	// 但引用计数上去了
	n, err := store.RefCount(ctx, core.StorageKey(core.TypeDocument, doc.Root()))
	require.NoError(t, err)
	assert.Equal(t, uint32(2), n)
}

func TestSave_SharedLeavesStoredOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	shared := []byte("identical paragraph content")
	docA := buildDoc(t, []*core.LeafBlock{core.NewLeafBlock(0, 0, int64(len(shared)), shared)})
	docB := buildDoc(t, []*core.LeafBlock{
		core.NewLeafBlock(0, 0, int64(len(shared)), shared),
		core.NewLeafBlock(1, int64(len(shared)), int64(len(shared))+5, []byte("extra")),
	})

	require.NoError(t, Save(ctx, store, docA))
	require.NoError(t, Save(ctx, store, docB))

	// 两棵树、同一段内容：物理只有一份
	hash := core.CalculateBlobHash(shared)
	n, err := store.RefCount(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), n)
}

func TestLoad_NotFound(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	_, err := Load(ctx, store, core.CalculateBlobHash([]byte("nonexistent")), 0)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLoad_CorruptionSurfaced(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	doc := buildDoc(t, makeLeaves(5))
	require.NoError(t, Save(ctx, store, doc))

	// 把文档记录换成另一棵树的记录字节
	other := buildDoc(t, makeLeaves(7))
	otherRec, err := core.NewDocumentRecord([]core.SectionRef{other.Section(0).Ref()}, 7, other.Root())
	require.NoError(t, err)
	store.Corrupt(core.StorageKey(core.TypeDocument, doc.Root()), otherRec.Bytes())

	_, err = Load(ctx, store, doc.Root(), 0)
	assert.ErrorIs(t, err, storage.ErrCorruption)
}

func TestVerify_DetectsCorruptLeaf(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	leaves := makeLeaves(5)
	doc := buildDoc(t, leaves)
	require.NoError(t, Save(ctx, store, doc))

	loader := vnode.NewLoader(store, nil, nil)
	require.NoError(t, Verify(ctx, store, loader, doc))

	// 破坏一个叶子的内容
	store.Corrupt(leaves[2].Hash(), []byte("garbage"))
	err := Verify(ctx, store, loader, doc)
	assert.ErrorIs(t, err, storage.ErrCorruption)
}

func TestCollectStats(t *testing.T) {
	doc := buildDoc(t, makeLeaves(5), makeLeaves(150))
	st := CollectStats(doc)

	assert.Equal(t, 2, st.Sections)
	assert.Equal(t, 1, st.DirectSections)
	assert.Equal(t, 1, st.ShardedSections)
	assert.Equal(t, 2, st.Shards)
	assert.Equal(t, uint64(155), st.Leaves)
	assert.Positive(t, st.ContentBytes)
}

func TestSaveLoad_SingleLeafSection(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	// 单叶章节的根就是叶子的内容 Hash，章节记录与叶子内容
	// 必须各自落在自己的 Key 下，互不覆盖
	doc := buildDoc(t, makeLeaves(1), makeLeaves(4))
	require.NoError(t, Save(ctx, store, doc))

	loaded, err := Load(ctx, store, doc.Root(), 0)
	require.NoError(t, err)
	assert.Equal(t, doc.Root(), loaded.Root())
	require.Equal(t, 2, loaded.SectionCount())
	assert.Equal(t, uint64(1), loaded.Section(0).LeafCount())

	// 叶子内容本身仍可按内容 Hash 读回
	leaf := doc.Section(0).Leaves()[0]
	data, err := storage.GetVerifiedBlob(ctx, store, leaf.Hash())
	require.NoError(t, err)
	assert.Equal(t, []byte("leaf-0"), data)
}

func TestSaveLoad_SingleSectionDocument(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	// 最深的退化：一个章节、一个叶子。文档根 == 章节根 == 叶子 Hash，
	// 三种对象共用一个树 Hash，仍要能完整往返
	doc := buildDoc(t, makeLeaves(1))
	require.NoError(t, Save(ctx, store, doc))

	loaded, err := Load(ctx, store, doc.Root(), 0)
	require.NoError(t, err)
	assert.Equal(t, doc.Root(), loaded.Root())
	assert.Equal(t, uint64(1), loaded.LeafCount())

	loader := vnode.NewLoader(store, nil, nil)
	require.NoError(t, Verify(ctx, store, loader, loaded))
}

func TestSaveLoad_EmptyDocumentAndEmptySectionCoexist(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	// 空文档的根与空章节的根同为 EmptyRoot，两种记录要能共存
	empty := NewDocumentTree(nil)
	require.NoError(t, Save(ctx, store, empty))

	withEmpty := buildDoc(t, nil, makeLeaves(3))
	require.NoError(t, Save(ctx, store, withEmpty))

	loadedEmpty, err := Load(ctx, store, empty.Root(), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, loadedEmpty.SectionCount())

	loadedWith, err := Load(ctx, store, withEmpty.Root(), 0)
	require.NoError(t, err)
	require.Equal(t, 2, loadedWith.SectionCount())
	assert.Equal(t, uint64(0), loadedWith.Section(0).LeafCount())
}

func TestSave_LazyShardsIntoFreshStore(t *testing.T) {
	ctx := context.Background()
	source := memory.NewStore()

	doc := buildDoc(t, makeLeaves(150))
	require.NoError(t, Save(ctx, source, doc))

	// 懒加载还原：分片记录只存在于源存储
	lazy, err := Load(ctx, source, doc.Root(), 0)
	require.NoError(t, err)

	// 直接保存到空存储必须报错，绝不写出一棵缺分片的文档
	fresh := memory.NewStore()
	err = Save(ctx, fresh, lazy)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// 物化全部分片后可以正常迁移
	loader := vnode.NewLoader(source, nil, nil)
	for _, sh := range lazy.Section(0).Shards() {
		require.NoError(t, loader.LoadInto(ctx, sh))
	}
	require.NoError(t, Save(ctx, fresh, lazy))

	migrated, err := Load(ctx, fresh, doc.Root(), 0)
	require.NoError(t, err)
	assert.Equal(t, doc.Root(), migrated.Root())
}
