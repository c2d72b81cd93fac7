package memory

import (
	"bytes"
	"context"
	"io"
	"sync"
	"sync/atomic"

	"deltavault/pkg/core"
	"deltavault/pkg/storage"
	"deltavault/pkg/types"
)

// Store 是内存实现，主要用于测试和小规模场景
// 自带读取计数器：diff 的“未变分片零加载”特性靠它观测
type Store struct {
	mu       sync.RWMutex
	objects  map[types.NodeHash][]byte
	refCount map[types.NodeHash]uint32

	loads atomic.Int64 // Get 调用次数 (命中才计数)
	puts  atomic.Int64 // 实际落盘次数 (去重跳过的不算)
}

func NewStore() *Store {
	return &Store{
		objects:  make(map[types.NodeHash][]byte),
		refCount: make(map[types.NodeHash]uint32),
	}
}

func (s *Store) Put(ctx context.Context, obj core.Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := obj.ID()
	// 去重：物理记录只存一份，计数加一
	if _, exists := s.objects[hash]; exists {
		s.refCount[hash]++
		return nil
	}

	data := make([]byte, len(obj.Bytes()))
	copy(data, obj.Bytes())
	s.objects[hash] = data
	s.refCount[hash] = 1
	s.puts.Add(1)
	return nil
}

func (s *Store) Get(ctx context.Context, hash types.NodeHash) (io.ReadCloser, error) {
	s.mu.RLock()
	data, ok := s.objects[hash]
	s.mu.RUnlock()

	if !ok {
		return nil, storage.ErrNotFound
	}
	s.loads.Add(1)
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *Store) Has(ctx context.Context, hash types.NodeHash) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[hash]
	return ok, nil
}

// RefCount 实现 storage.RefCounter
func (s *Store) RefCount(ctx context.Context, hash types.NodeHash) (uint32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.refCount[hash]
	if !ok {
		return 0, storage.ErrNotFound
	}
	return n, nil
}

// Loads 返回累计 Get 次数 (测试断言 diff 短路时为零增量)
func (s *Store) Loads() int64 { return s.loads.Load() }

// Puts 返回实际物理写入次数 (测试断言去重)
func (s *Store) Puts() int64 { return s.puts.Load() }

// Len 物理记录条数
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// Corrupt 将指定 Key 的内容原地破坏 (仅测试用，模拟磁盘损坏)
func (s *Store) Corrupt(hash types.NodeHash, garbage []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[hash]; ok {
		s.objects[hash] = garbage
	}
}
