package core

import (
	"fmt"

	"deltavault/pkg/types"
)

// FormatVersion 当前记录序列化格式版本
// SectionRecord / DocumentRecord 的字段有破坏性变更时递增，用于向前迁移
const FormatVersion uint32 = 1

// 章节布局：Direct 直接持有全部叶子；Sharded 按 Hash 分桶到 VNode
const (
	LayoutDirect  = "direct"
	LayoutSharded = "sharded"
)

// -----------------------------------------------------------------------------
// VNodeRecord：一个虚拟分片的子节点列表 (L2)
// -----------------------------------------------------------------------------

// VNodeRecord 持久化一个分片的全部子节点引用
// 存储 Key 由分片 Hash (子节点 Hash 的有序组合) 派生，不是记录字节的 Hash ——
// 这样 diff 发现分片 Hash 不同后，能直接用这个 Hash 去存储加载子列表
type VNodeRecord struct {
	id       types.NodeHash `cbor:"-"`
	rawBytes []byte         `cbor:"-"`

	TypeVal    ObjectType `cbor:"t"`
	ShardIndex uint32     `cbor:"i"`
	Count      uint32     `cbor:"n"`
	Children   []LeafRef  `cbor:"c"`
}

// NewVNodeRecord 创建分片记录
// shardHash 由 vnode 层基于有序子节点 Hash 计算，这里只负责序列化
func NewVNodeRecord(shardIndex uint32, children []LeafRef, shardHash types.NodeHash) (*VNodeRecord, error) {
	rec := &VNodeRecord{
		id:         StorageKey(TypeVNode, shardHash),
		TypeVal:    TypeVNode,
		ShardIndex: shardIndex,
		Count:      uint32(len(children)),
		Children:   children,
	}
	data, err := Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal vnode record: %w", err)
	}
	rec.rawBytes = data
	return rec, nil
}

func (v *VNodeRecord) Type() ObjectType   { return TypeVNode }
func (v *VNodeRecord) ID() types.NodeHash { return v.id }
func (v *VNodeRecord) Bytes() []byte      { return v.rawBytes }

// -----------------------------------------------------------------------------
// SectionRecord：一个章节树的元数据 (L3)
// -----------------------------------------------------------------------------

// ShardRef 是 VNode 在章节记录里的投影：Hash 永远驻留，子列表懒加载
type ShardRef struct {
	Index uint32 `cbor:"i"`
	Hash  Link   `cbor:"h"`
	Count uint32 `cbor:"n"`
}

// SectionRecord 持久化一个章节树，存储 Key 由章节根 Hash 派生
// Direct 布局填 Leaves，Sharded 布局填 Shards，二者互斥
type SectionRecord struct {
	id       types.NodeHash `cbor:"-"`
	rawBytes []byte         `cbor:"-"`

	TypeVal   ObjectType `cbor:"t"`
	Version   uint32     `cbor:"v"`
	Index     uint32     `cbor:"x"`
	Layout    string     `cbor:"l"`
	LeafCount uint64     `cbor:"n"`
	Leaves    []LeafRef  `cbor:"b,omitempty"`
	Shards    []ShardRef `cbor:"s,omitempty"`
}

func NewSectionRecord(index uint32, layout string, leafCount uint64, leaves []LeafRef, shards []ShardRef, root types.NodeHash) (*SectionRecord, error) {
	rec := &SectionRecord{
		id:        StorageKey(TypeSection, root),
		TypeVal:   TypeSection,
		Version:   FormatVersion,
		Index:     index,
		Layout:    layout,
		LeafCount: leafCount,
		Leaves:    leaves,
		Shards:    shards,
	}
	data, err := Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal section record: %w", err)
	}
	rec.rawBytes = data
	return rec, nil
}

func (s *SectionRecord) Type() ObjectType   { return TypeSection }
func (s *SectionRecord) ID() types.NodeHash { return s.id }
func (s *SectionRecord) Bytes() []byte      { return s.rawBytes }

// -----------------------------------------------------------------------------
// DocumentRecord：文档树顶层元数据 (L4)
// -----------------------------------------------------------------------------

// SectionRef 是章节在文档记录里的投影
type SectionRef struct {
	Index     uint32 `cbor:"i"`
	Root      Link   `cbor:"h"`
	Layout    string `cbor:"l"`
	LeafCount uint64 `cbor:"n"`
}

// DocumentRecord 持久化整棵文档树的骨架，存储 Key 由文档根 Hash 派生
type DocumentRecord struct {
	id       types.NodeHash `cbor:"-"`
	rawBytes []byte         `cbor:"-"`

	TypeVal      ObjectType   `cbor:"t"`
	Version      uint32       `cbor:"v"`
	SectionCount uint32       `cbor:"m"`
	LeafCount    uint64       `cbor:"n"`
	Sections     []SectionRef `cbor:"s"`
}

func NewDocumentRecord(sections []SectionRef, leafCount uint64, root types.NodeHash) (*DocumentRecord, error) {
	rec := &DocumentRecord{
		id:           StorageKey(TypeDocument, root),
		TypeVal:      TypeDocument,
		Version:      FormatVersion,
		SectionCount: uint32(len(sections)),
		LeafCount:    leafCount,
		Sections:     sections,
	}
	data, err := Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document record: %w", err)
	}
	rec.rawBytes = data
	return rec, nil
}

func (d *DocumentRecord) Type() ObjectType   { return TypeDocument }
func (d *DocumentRecord) ID() types.NodeHash { return d.id }
func (d *DocumentRecord) Bytes() []byte      { return d.rawBytes }
