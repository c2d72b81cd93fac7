package ingester

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"time"

	"deltavault/pkg/types"
)

// Entry 快照清单中的一条记录：路径到内容 Hash 的映射
type Entry struct {
	Path       string         `json:"path"`        // 相对路径 (如 "docs/chapter1.md")
	Hash       types.NodeHash `json:"hash"`        // 文件内容 Hash
	Size       int64          `json:"size"`        // 文件大小
	Ordinal    uint64         `json:"ordinal"`     // 对应叶子的序号
	ModifiedAt time.Time      `json:"modified_at"` // 修改时间
}

// Manifest 记录一次目录快照里每个文件对应的叶子
// 树只认序号和 Hash，路径语义在这里保留，供人和上层工具查询
type Manifest struct {
	path    string           // 物理文件路径 (.dv/manifest.json)
	Entries map[string]Entry `json:"entries"`
	mu      sync.RWMutex
}

// NewManifest 加载或创建一个新的 Manifest
func NewManifest(manifestPath string) (*Manifest, error) {
	m := &Manifest{
		path:    manifestPath,
		Entries: make(map[string]Entry),
	}

	// 尝试加载现有文件
	if _, err := os.Stat(manifestPath); err == nil {
		data, err := os.ReadFile(manifestPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read manifest: %w", err)
		}
		if err := json.Unmarshal(data, m); err != nil {
			return nil, fmt.Errorf("corrupted manifest file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	return m, nil
}

// Add 更新一条记录
func (m *Manifest) Add(path string, hash types.NodeHash, size int64, ordinal uint64) {
	key := CleanPath(path)
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Entries[key] = Entry{
		Path:       key,
		Hash:       hash,
		Size:       size,
		Ordinal:    ordinal,
		ModifiedAt: time.Now(),
	}
}

// Save 将清单持久化到磁盘
func (m *Manifest) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(m.path, data, 0644)
}

// Snapshot 返回当前 Entry 的副本，用于并发安全的读取
func (m *Manifest) Snapshot() map[string]Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := make(map[string]Entry, len(m.Entries))
	maps.Copy(snap, m.Entries)
	return snap
}

func (m *Manifest) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = make(map[string]Entry)
}

// IsEmpty 检查清单是否有内容
func (m *Manifest) IsEmpty() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.Entries) == 0
}

func (m *Manifest) Remove(path string) {
	key := CleanPath(path)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Entries, key)
}

func CleanPath(p string) string {
	return filepath.ToSlash(filepath.Clean(p))
}
