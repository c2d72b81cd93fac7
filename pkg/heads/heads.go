package heads

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"deltavault/pkg/types"
)

var ErrNoHead = errors.New("HEAD not found (no snapshot yet)")

// Manager 管理每个文档当前生效的树根指针 (文件版)
// 单机场景用它就够了；多写入方场景用 meta.Repository 的 CAS 头指针
type Manager struct {
	rootPath string
}

func NewManager(rootPath string) *Manager {
	return &Manager{rootPath: rootPath}
}

// headPath 返回 .dv/heads/<docID> 的物理路径
// 文档 ID 里的路径分隔符替换掉，保证永远落在 heads 目录内
func (m *Manager) headPath(docID types.DocumentID) string {
	name := strings.NewReplacer("/", "_", "\\", "_").Replace(string(docID))
	return filepath.Join(m.rootPath, "heads", name)
}

// GetHead 读取文档当前的树根 Hash
// 文档从未保存过快照时返回 ErrNoHead
func (m *Manager) GetHead(docID types.DocumentID) (types.NodeHash, error) {
	data, err := os.ReadFile(m.headPath(docID))
	if os.IsNotExist(err) {
		return "", ErrNoHead
	}
	if err != nil {
		return "", fmt.Errorf("failed to read HEAD for %s: %w", docID, err)
	}

	// 清理换行符 (手工编辑时可能会带 \n)
	return types.NodeHash(strings.TrimSpace(string(data))), nil
}

// UpdateHead 把文档头指针移到新的树根
func (m *Manager) UpdateHead(docID types.DocumentID, root types.NodeHash) error {
	path := m.headPath(docID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create heads dir: %w", err)
	}
	return os.WriteFile(path, []byte(root), 0644)
}
