// pkg/types/common.go
package types

// NodeHash 代表内容寻址节点的唯一标识符 (SHA256 Hex String, 64 字符)
// 这是一个“值对象”，应当是不可变的。
// NodeHash 相等 (在密码学强度的概率下) 意味着底层内容相等。
type NodeHash string

func (h NodeHash) String() string { return string(h) }

// 验证 Hash 合法性
func (h NodeHash) IsZero() bool  { return h == "" }
func (h NodeHash) IsValid() bool { return len(h) == 64 } // 简单的长度检查

// HashPrefix 短 Hash，用于人类可读展示和前缀查找
type HashPrefix string

func (p HashPrefix) String() string { return string(p) }

// DocumentID 标识一份文档 (通常是规范化后的路径)
// 同一份文档的多个快照共享一个 DocumentID，各自拥有不同的根 NodeHash。
type DocumentID string

func (d DocumentID) String() string { return string(d) }
