package core

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamingHasher_MatchesOneShot(t *testing.T) {
	data := make([]byte, 300*1024) // 跨多个 64KB 块
	_, err := rand.Read(data)
	require.NoError(t, err)

	oneShot := CalculateBlobHash(data)

	// 不管怎么切块，结果都必须等于一次性哈希
	chunkings := [][]int{
		{len(data)},
		{1, len(data) - 1},
		{64 * 1024, 64 * 1024, len(data) - 128*1024},
		{7, 13, 64*1024 - 1, len(data) - 7 - 13 - (64*1024 - 1)},
	}
	for _, sizes := range chunkings {
		s := NewStreamingHasher()
		off := 0
		for _, n := range sizes {
			require.NoError(t, s.Update(data[off:off+n]))
			off += n
		}
		got, err := s.Finalize()
		require.NoError(t, err)
		assert.Equal(t, oneShot, got)
	}
}

func TestStreamingHasher_UpdateAfterFinalize(t *testing.T) {
	s := NewStreamingHasher()
	require.NoError(t, s.Update([]byte("data")))
	_, err := s.Finalize()
	require.NoError(t, err)

	// Finalize 之后的 Update 是误用，必须报错
	err = s.Update([]byte("more"))
	assert.ErrorIs(t, err, ErrHashingFailed)
}

func TestHashReader_MatchesOneShot(t *testing.T) {
	data := bytes.Repeat([]byte("deltavault"), 20000) // ~200KB

	h, n, err := HashReader(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)
	assert.Equal(t, CalculateBlobHash(data), h)
}

type failingReader struct {
	data []byte
	read bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.read {
		r.read = true
		n := copy(p, r.data)
		return n, nil
	}
	return 0, errors.New("disk on fire")
}

func TestHashReader_NeverReturnsPartialHash(t *testing.T) {
	// 中途读失败：绝不能返回“读到一半”的 Hash
	h, _, err := HashReader(&failingReader{data: []byte("partial")})
	assert.ErrorIs(t, err, ErrHashingFailed)
	assert.Empty(t, h)
}

func TestHashReader_Empty(t *testing.T) {
	h, n, err := HashReader(bytes.NewReader(nil))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, EmptyRoot(), h)
}
