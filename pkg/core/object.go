package core

import (
	"crypto/sha256"
	"encoding/hex"

	"deltavault/pkg/types"
)

// ObjectType 定义了 deltavault 中持久化节点的类型
type ObjectType string

const (
	TypeBlob     ObjectType = "blob"     // 叶子块的原始内容 (L1)
	TypeVNode    ObjectType = "vnode"    // 虚拟分片的子节点列表 (L2)
	TypeSection  ObjectType = "section"  // 章节树元数据 (L3)
	TypeDocument ObjectType = "document" // 文档树元数据 (L4)
)

// StorageKey 把对象的逻辑树 Hash 映射为存储 Key
//
// Blob 的 Key 就是内容 Hash。派生记录 (VNode/Section/Document) 的 Key
// 在树 Hash 之上混入类型标签：退化形态下不同层级的树 Hash 会相等 ——
// 单叶章节的根等于叶子内容 Hash，单章节文档的根等于章节根，
// 空章节与空文档同为 EmptyRoot ——
// 类型标签把它们隔进互不重叠的 Key 空间，幂等 Put 才不会把
// 一种记录悄悄去重成另一种
func StorageKey(t ObjectType, hash types.NodeHash) types.NodeHash {
	if t == TypeBlob {
		return hash
	}
	h := sha256.New()
	h.Write([]byte(t))
	h.Write([]byte(":"))
	h.Write([]byte(hash))
	return types.NodeHash(hex.EncodeToString(h.Sum(nil)))
}

// Object 是所有内容寻址节点的通用接口
type Object interface {
	// Type 返回对象类型
	Type() ObjectType

	// ID 返回对象在存储中的 Key
	// 对于 Blob 是内容 Hash，对于 VNode/Section/Document 是
	// StorageKey(类型, 对应树节点 Hash)
	ID() types.NodeHash

	// Bytes 返回对象的序列化数据 (用于存储)
	Bytes() []byte
}
