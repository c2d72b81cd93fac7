// Package badgerdb 提供基于 BadgerDB 的嵌入式存储后端。
//
// BadgerDB 适合本地低延迟场景 (~100µs 级别的读)：
// 节点记录都是小 value，LSM 树的写放大可以接受，
// 而且单文件目录部署比 fan-out 的对象目录更好管理。
package badgerdb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"deltavault/pkg/core"
	"deltavault/pkg/storage"
	"deltavault/pkg/types"

	"github.com/dgraph-io/badger/v4"
)

// Config BadgerDB 实例配置
type Config struct {
	// Path 数据目录，InMemory 为 true 时忽略
	Path string

	// InMemory 纯内存模式 (测试用，不落盘)
	InMemory bool

	// SyncWrites 同步写，生产环境建议开启
	SyncWrites bool

	// Logger 为 nil 时关闭 Badger 内部日志
	Logger *slog.Logger
}

// Store 实现了 storage.Store 接口
type Store struct {
	db  *badger.DB
	log *slog.Logger
}

// keyPrefix 防止未来在同一个 DB 里混放其它数据时冲突
const keyPrefix = "dv:obj:"

func NewStore(cfg Config) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path).
		WithInMemory(cfg.InMemory).
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(nil) // Badger 自己的日志太吵，统一走 slog

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %s: %w", cfg.Path, err)
	}

	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Store{db: db, log: log}, nil
}

func (s *Store) key(hash types.NodeHash) []byte {
	return []byte(keyPrefix + string(hash))
}

func (s *Store) Put(ctx context.Context, obj core.Object) error {
	key := s.key(obj.ID())

	err := s.db.Update(func(txn *badger.Txn) error {
		// 幂等性：已存在直接跳过，避免重写 value log
		if _, err := txn.Get(key); err == nil {
			return nil
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, obj.Bytes())
	})
	if err != nil {
		return fmt.Errorf("%w: badger put %s: %v", storage.ErrStorageFailed, obj.ID(), err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, hash types.NodeHash) (io.ReadCloser, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key(hash))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: badger get %s: %v", storage.ErrStorageFailed, hash, err)
	}

	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *Store) Has(ctx context.Context, hash types.NodeHash) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(s.key(hash))
		return err
	})

	if err == nil {
		return true, nil
	}
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("%w: badger has %s: %v", storage.ErrStorageFailed, hash, err)
}

// Close 关闭底层数据库，进程退出前必须调用
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		s.log.Warn("badger close failed", "err", err)
		return err
	}
	return nil
}
