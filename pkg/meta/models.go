package meta

import (
	"time"

	"gorm.io/datatypes"
)

// ObjectModel 内容寻址对象在关系库中的账本行
// 存储本身只管字节，去重的可观测性 (引用计数 / 节省字节) 在这里
type ObjectModel struct {
	// Hash 是主键，即对象的内容 Hash
	Hash string `gorm:"primaryKey;type:char(64)"`

	// Kind 对象类型 (blob / vnode / section / document)
	Kind string `gorm:"index;type:varchar(16)"`

	// Size 对象的物理字节数 (只存一份，无论被引用多少次)
	Size int64 `gorm:"not null"`

	// RefCount 有多少棵树 / 多少次写入引用了这份内容
	RefCount uint32 `gorm:"not null;default:1"`

	CreatedAt time.Time
}

func (ObjectModel) TableName() string {
	return "objects"
}

// TreeModel 文档树根在关系库中的投影 (索引)
// 用于按文档查历史版本、按时间排序，不承载树本身
type TreeModel struct {
	// RootHash 是主键 (文档根 Hash)
	RootHash string `gorm:"primaryKey;type:char(64)"`

	DocumentID string `gorm:"index;type:varchar(255)"`

	SectionCount uint32 `gorm:"not null"`
	LeafCount    uint64 `gorm:"not null"`

	// Meta 存调用方附带的任意元数据 (来源路径、构建参数等)
	Meta datatypes.JSON

	CreatedAt time.Time
}

func (TreeModel) TableName() string {
	return "trees"
}

// TreeHead 每个文档当前生效的树根指针
type TreeHead struct {
	// DocumentID 是主键
	DocumentID string `gorm:"primaryKey;type:varchar(255)"`

	RootHash string `gorm:"type:char(64);not null"`

	// Version 用于乐观锁并发控制 (CAS)
	// 每次更新 +1，防止并发覆盖
	Version int64 `gorm:"default:1"`

	UpdatedAt time.Time
}

func (TreeHead) TableName() string {
	return "tree_heads"
}
