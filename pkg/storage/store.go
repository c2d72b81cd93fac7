package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"deltavault/pkg/core"
	"deltavault/pkg/types"
)

var (
	// ErrNotFound 对象不存在
	ErrNotFound = errors.New("object not found")

	// ErrStorageFailed 底层 I/O 失败 (磁盘 / 网络 / 数据库)
	// 调用方可以选择重试；构建和 diff 遇到它会整体中止，绝不返回缺角的树
	ErrStorageFailed = errors.New("storage failed")

	// ErrCorruption 读出的内容与 Key 不匹配 (数据完整性被破坏)
	// 永远向上抛出，绝不静默替换或自动修复 —— 重试损坏读是没有意义的
	ErrCorruption = errors.New("stored content corrupted")

	// ErrAmbiguousHash 短 Hash 前缀命中了多个对象
	ErrAmbiguousHash = errors.New("ambiguous hash prefix")
)

// Store defines the interface for a content-addressed storage backend.
// Implementations can be local disk, embedded KV, cloud storage, or in-memory storage.
type Store interface {
	// Put 将一个节点持久化
	// 幂等：相同内容重复 Put 不报错、不产生第二份物理记录
	Put(ctx context.Context, obj core.Object) error

	// Get 根据 Hash 读取原始数据
	// 注意：返回 io.ReadCloser 而不是 []byte
	// 原因：为了支持大内容的流式读取，避免一次性读进内存
	Get(ctx context.Context, hash types.NodeHash) (io.ReadCloser, error)

	// Has 检查对象是否存在 (用于去重逻辑)
	Has(ctx context.Context, hash types.NodeHash) (bool, error)
}

// RefCounter 支持引用计数的存储可以额外实现这个接口
// 重复 Put 相同内容 = 物理一份 + 计数加一 (回收策略由上层决定，本层只暴露计数)
type RefCounter interface {
	RefCount(ctx context.Context, hash types.NodeHash) (uint32, error)
}

// GetBytes 读出对象的完整字节 (小对象的便捷方法)
func GetBytes(ctx context.Context, s Store, hash types.NodeHash) ([]byte, error) {
	rc, err := s.Get(ctx, hash)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrStorageFailed, hash, err)
	}
	return data, nil
}

// GetVerifiedBlob 读出内容块并校验其 Hash 与 Key 一致
// 对 Blob 而言 Key 就是内容的 SHA256，不一致即为存储损坏
func GetVerifiedBlob(ctx context.Context, s Store, hash types.NodeHash) ([]byte, error) {
	data, err := GetBytes(ctx, s, hash)
	if err != nil {
		return nil, err
	}
	if got := core.CalculateBlobHash(data); got != hash {
		return nil, fmt.Errorf("%w: key %s, recomputed %s", ErrCorruption, hash, got)
	}
	return data, nil
}
