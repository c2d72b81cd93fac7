package core

import "deltavault/pkg/types"

// LeafBlock 是被哈希的原子单元：解析器切出的一个内容块
// 一旦创建绝不修改 —— 内容变了就是一个新的 LeafBlock，旧的只是不再被新树引用
type LeafBlock struct {
	ordinal uint64
	start   int64
	end     int64
	size    int64
	hash    types.NodeHash
	data    []byte // 可能为 nil (仅持有引用，内容在存储里)
}

// NewLeafBlock 从原始内容创建叶子块并计算内容 Hash
func NewLeafBlock(ordinal uint64, start, end int64, data []byte) *LeafBlock {
	return &LeafBlock{
		ordinal: ordinal,
		start:   start,
		end:     end,
		size:    int64(len(data)),
		hash:    CalculateBlobHash(data),
		data:    data,
	}
}

// NewLeafRef 创建一个只有元数据的叶子块 (内容留在存储里，不在内存)
// 用于从持久化记录还原树结构 —— 结构共享的基础
func NewLeafRef(ordinal uint64, start, end int64, hash types.NodeHash, size int64) *LeafBlock {
	return &LeafBlock{
		ordinal: ordinal,
		start:   start,
		end:     end,
		size:    size,
		hash:    hash,
	}
}

func (b *LeafBlock) Ordinal() uint64      { return b.ordinal }
func (b *LeafBlock) Hash() types.NodeHash { return b.hash }
func (b *LeafBlock) Range() (int64, int64) {
	return b.start, b.end
}

// Data 返回内容字节，没有内容时为 nil (需要从存储加载)
func (b *LeafBlock) Data() []byte { return b.data }
func (b *LeafBlock) Size() int64  { return b.size }

// Object 接口实现：LeafBlock 以 Blob 身份持久化，Key 即内容 Hash
func (b *LeafBlock) Type() ObjectType   { return TypeBlob }
func (b *LeafBlock) ID() types.NodeHash { return b.hash }
func (b *LeafBlock) Bytes() []byte      { return b.data }
func (b *LeafBlock) HasContent() bool   { return b.data != nil }

// Ref 返回可持久化的引用记录
func (b *LeafBlock) Ref() LeafRef {
	return LeafRef{
		Ordinal: b.ordinal,
		Start:   b.start,
		End:     b.end,
		Hash:    NewLink(b.hash),
		Size:    b.size,
	}
}

// LeafRef 是 LeafBlock 在父节点记录 (VNode / Section) 中的投影
// 只含定位元数据和内容 Hash，往返序列化必须无损
type LeafRef struct {
	Ordinal uint64 `cbor:"o"`
	Start   int64  `cbor:"s"`
	End     int64  `cbor:"e"`
	Hash    Link   `cbor:"h"`
	Size    int64  `cbor:"z"`
}

// Block 从引用还原一个无内容的 LeafBlock
func (r LeafRef) Block() *LeafBlock {
	return NewLeafRef(r.Ordinal, r.Start, r.End, r.Hash.Hash, r.Size)
}
