package ingester

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"deltavault/pkg/core"
	"deltavault/pkg/ignore"
)

// DefaultInlineLimit 读进内存并随树一起存储的文件大小上限
// 超过的文件只做流式哈希，内容留在原地 (叶子只持有引用)
const DefaultInlineLimit = 1 << 20 // 1 MiB

// Snapshot 一次目录摄取的产物：有序叶子 + 章节边界 + 路径清单
// 边界语义与树构建一致：每个目录是一个章节
type Snapshot struct {
	Leaves     []*core.LeafBlock
	Boundaries []uint64
	Manifest   *Manifest
}

// Ingester 把一个目录变成解析器风格的输出：
// 文件按路径排序逐个成为叶子，目录切换处打章节边界
type Ingester struct {
	matcher     *ignore.Matcher
	inlineLimit int64
}

// Option 摄取器选项
type Option func(*Ingester)

// WithInlineLimit 覆盖内容内联上限
func WithInlineLimit(n int64) Option {
	return func(ing *Ingester) {
		if n > 0 {
			ing.inlineLimit = n
		}
	}
}

func NewIngester(matcher *ignore.Matcher, opts ...Option) *Ingester {
	ing := &Ingester{
		matcher:     matcher,
		inlineLimit: DefaultInlineLimit,
	}
	for _, opt := range opts {
		opt(ing)
	}
	return ing
}

// IngestDirectory 扫描目录，产出可直接喂给 Builder 的叶子和边界
//
// WalkDir 的遍历顺序是按文件名字典序的，两次扫描同一棵未变的目录树
// 产出完全相同的叶子序列 —— 快照的确定性建立在这之上。
// 字节范围是快照内的累计偏移 (把整个快照看作一条逻辑字节流)
func (ing *Ingester) IngestDirectory(ctx context.Context, root string, manifestPath string) (*Snapshot, error) {
	manifest, err := NewManifest(manifestPath)
	if err != nil {
		return nil, err
	}
	manifest.Reset()

	snap := &Snapshot{Manifest: manifest}
	var ordinal uint64
	var offset int64
	lastDir := ""

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = CleanPath(rel)
		if rel == "." {
			return nil
		}

		if ing.matcher != nil && ing.matcher.Matches(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		// 目录切换 = 章节边界 (首个目录不打边界，第一个章节从序号 0 开始)
		dir := filepath.Dir(rel)
		if dir != lastDir {
			if ordinal > 0 {
				snap.Boundaries = append(snap.Boundaries, ordinal)
			}
			lastDir = dir
		}

		leaf, err := ing.ingestFile(path, ordinal, offset)
		if err != nil {
			return err
		}
		snap.Leaves = append(snap.Leaves, leaf)
		manifest.Add(rel, leaf.Hash(), leaf.Size(), ordinal)

		offset += leaf.Size()
		ordinal++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ingest directory %s: %w", root, err)
	}

	if err := manifest.Save(); err != nil {
		return nil, fmt.Errorf("failed to save manifest: %w", err)
	}
	return snap, nil
}

// ingestFile 把单个文件变成一个叶子
// 小文件内联内容 (随树持久化)，大文件流式哈希、只持有引用
func (ing *Ingester) ingestFile(path string, ordinal uint64, offset int64) (*core.LeafBlock, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if info.Size() <= ing.inlineLimit {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		return core.NewLeafBlock(ordinal, offset, offset+int64(len(data)), data), nil
	}

	hash, size, err := core.HashFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return core.NewLeafRef(ordinal, offset, offset+size, hash, size), nil
}

// IngestReader 把一条字节流按固定块长切成叶子 (起始序号由调用方给)
// 解析器缺位时的最低限度切块；有语义边界的内容应该用真正的解析器
func (ing *Ingester) IngestReader(ctx context.Context, r io.Reader, startOrdinal uint64, blockSize int) ([]*core.LeafBlock, error) {
	if blockSize <= 0 {
		blockSize = core.StreamChunkSize
	}
	var leaves []*core.LeafBlock
	ordinal := startOrdinal
	var offset int64

	buf := make([]byte, blockSize)
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			leaves = append(leaves, core.NewLeafBlock(ordinal, offset, offset+int64(n), data))
			offset += int64(n)
			ordinal++
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read stream: %w", err)
		}
	}
	return leaves, nil
}
