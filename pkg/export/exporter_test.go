package export

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"deltavault/pkg/core"
	"deltavault/pkg/merkle"
	"deltavault/pkg/storage/memory"
	"deltavault/pkg/vnode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildLeaves(n int) ([]*core.LeafBlock, []byte) {
	leaves := make([]*core.LeafBlock, n)
	var full []byte
	var off int64
	for i := 0; i < n; i++ {
		data := []byte(fmt.Sprintf("paragraph %d. ", i))
		leaves[i] = core.NewLeafBlock(uint64(i), off, off+int64(len(data)), data)
		full = append(full, data...)
		off += int64(len(data))
	}
	return leaves, full
}

func TestExportDocument_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	// 两个章节，其中一个 sharded；还原必须恢复原始字节序
	leaves, full := buildLeaves(155)
	s0 := merkle.NewSectionTree(0, leaves[:5], 0)
	s1 := merkle.NewSectionTree(1, leaves[5:], 0)
	require.Equal(t, core.LayoutSharded, s1.Layout())
	doc := merkle.NewDocumentTree([]*merkle.SectionTree{s0, s1})

	require.NoError(t, merkle.Save(ctx, store, doc))
	loaded, err := merkle.Load(ctx, store, doc.Root(), 0)
	require.NoError(t, err)

	loader := vnode.NewLoader(store, nil, nil)
	exp := NewExporter(store, loader)

	var buf bytes.Buffer
	require.NoError(t, exp.ExportDocument(ctx, loaded, &buf))
	assert.Equal(t, full, buf.Bytes())
}

func TestExportDocument_CorruptionAborts(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	leaves, _ := buildLeaves(5)
	doc := merkle.NewDocumentTree([]*merkle.SectionTree{merkle.NewSectionTree(0, leaves, 0)})
	require.NoError(t, merkle.Save(ctx, store, doc))

	store.Corrupt(leaves[3].Hash(), []byte("substituted"))

	exp := NewExporter(store, vnode.NewLoader(store, nil, nil))
	var buf bytes.Buffer
	err := exp.ExportDocument(ctx, doc, &buf)
	assert.Error(t, err, "被偷换的内容绝不能写给调用方")
}

func TestPrintStructure_Dispatch(t *testing.T) {
	leaves, _ := buildLeaves(3)
	s := merkle.NewSectionTree(0, leaves, 0)
	doc := merkle.NewDocumentTree([]*merkle.SectionTree{s})

	rec, err := core.NewDocumentRecord([]core.SectionRef{s.Ref()}, 3, doc.Root())
	require.NoError(t, err)

	var buf bytes.Buffer
	ok, err := PrintStructure(rec.Bytes(), &buf)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, buf.String(), "Document")
	assert.Contains(t, buf.String(), "direct")
}

func TestPrintStructure_RawData(t *testing.T) {
	var buf bytes.Buffer
	ok, err := PrintStructure([]byte{0xff, 0x00, 0x13}, &buf)
	require.NoError(t, err)
	assert.False(t, ok, "原始内容块交回调用方处理")
}

func TestPrintDiff(t *testing.T) {
	res := &merkle.DiffResult{
		ChangedSections: []uint32{1},
		Changes: []merkle.LeafChange{
			{Section: 1, Ordinal: 7, Type: merkle.ChangeModified, OldHash: core.CalculateBlobHash([]byte("a")), NewHash: core.CalculateBlobHash([]byte("b"))},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, PrintDiff(res, &buf))
	assert.True(t, strings.Contains(buf.String(), "modified"))

	buf.Reset()
	require.NoError(t, PrintDiff(&merkle.DiffResult{Identical: true}, &buf))
	assert.Contains(t, buf.String(), "Identical")
}
