package core

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"

	"deltavault/pkg/types"
)

// ErrHashingFailed 表示流式哈希过程中发生了 I/O 错误
// 关键约定：中断的读取绝不会产生“部分正确”的 Hash —— 要么完整，要么报错
var ErrHashingFailed = errors.New("hashing failed")

// StreamChunkSize 流式读取的块大小
// 64KB 是顺序读的甜点值：足够摊薄系统调用开销，又不会占用太多内存
const StreamChunkSize = 64 * 1024

// StreamingHasher 对不适合一次性载入内存的内容做分块哈希
// 约定：任意切分方式的 Update 序列，结果都等于对完整字节一次性哈希
// (SHA256 本身保证这一点，这里只是封装状态机防止误用)
type StreamingHasher struct {
	h      hash.Hash
	done   bool
	failed bool
}

func NewStreamingHasher() *StreamingHasher {
	return &StreamingHasher{h: sha256.New()}
}

// Update 喂入一块数据，可以调用任意多次
func (s *StreamingHasher) Update(chunk []byte) error {
	if s.done {
		return fmt.Errorf("%w: update after finalize", ErrHashingFailed)
	}
	if s.failed {
		return fmt.Errorf("%w: hasher already failed", ErrHashingFailed)
	}
	// sha256 的 Write 永远不会返回错误，但保持防御性
	if _, err := s.h.Write(chunk); err != nil {
		s.failed = true
		return fmt.Errorf("%w: %v", ErrHashingFailed, err)
	}
	return nil
}

// Finalize 结束哈希并返回结果
func (s *StreamingHasher) Finalize() (types.NodeHash, error) {
	if s.failed {
		return "", fmt.Errorf("%w: hasher in failed state", ErrHashingFailed)
	}
	s.done = true
	return types.NodeHash(hex.EncodeToString(s.h.Sum(nil))), nil
}

// HashReader 以固定大小的块读取 reader 并返回内容 Hash 和总字节数
// 读取错误 (包括 io.ErrUnexpectedEOF) 会标记 hasher 失败并返回 ErrHashingFailed，
// 绝不静默返回错误的 Hash
func HashReader(r io.Reader) (types.NodeHash, int64, error) {
	s := NewStreamingHasher()
	buf := make([]byte, StreamChunkSize)
	var total int64

	for {
		n, err := r.Read(buf)
		if n > 0 {
			if uerr := s.Update(buf[:n]); uerr != nil {
				return "", 0, uerr
			}
			total += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			s.failed = true
			return "", 0, fmt.Errorf("%w: read: %v", ErrHashingFailed, err)
		}
	}

	h, err := s.Finalize()
	if err != nil {
		return "", 0, err
	}
	return h, total, nil
}

// HashFile 流式哈希一个完整文件，永远不会把全文件读进内存
func HashFile(path string) (types.NodeHash, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("%w: open %s: %v", ErrHashingFailed, path, err)
	}
	defer f.Close()

	return HashReader(f)
}
