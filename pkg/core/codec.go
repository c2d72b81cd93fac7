package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"deltavault/pkg/types"

	"github.com/fxamacker/cbor/v2"
)

// 定义符合 DAG-CBOR 规范的编码选项
var encOptions = cbor.EncOptions{
	// 1. 强制 Map Key 排序 (Canonical)
	// 保证相同的节点元数据生成唯一的 Hash
	Sort: cbor.SortCanonical,

	// 2. 浮点数必须使用最短确定性表示
	ShortestFloat: cbor.ShortestFloatNone,

	// 3. 时间格式化为 Unix 整数
	// 禁止自动生成 Tag 0/1 (RFC 3339 字符串)，那是 DAG-CBOR 不推荐的
	Time:    cbor.TimeUnix,
	TimeTag: cbor.EncTagNone,

	// 4. 禁止不定长编码 (Indefinite Length)
	// 数组和 Map 必须在头部声明长度，否则同一对象可能有多种编码
	IndefLength: cbor.IndefLengthForbidden,

	BigIntConvert: cbor.BigIntConvertShortest,
}

// 全局复用的编码模式
var em, _ = encOptions.EncMode()

// 定义符合 DAG-CBOR 规范的解码选项
var decOptions = cbor.DecOptions{
	// --- 安全性配置 (防 DoS) ---
	// 限制容器元素数量和嵌套深度，防止恶意构造的头部耗尽内存或栈
	// 注意：单个 VNode 分片最多 VNodeSize 个子节点，但 Direct 布局的
	// 叶子列表可以到阈值上限，这里放宽到十万级别
	MaxArrayElements: 131072,
	MaxMapPairs:      131072,
	MaxNestedLevels:  100,

	// --- 规范性配置 ---
	IndefLength: cbor.IndefLengthForbidden,

	// 强制检查 Map Key 重复
	DupMapKey: cbor.DupMapKeyEnforcedAPF,

	BignumTag: cbor.BignumTagForbidden,
	TimeTag:   cbor.DecTagIgnored,
}

// 导出 dm 供包内部使用 (如 link.go)
var dm, _ = decOptions.DecMode()

// CalculateHash 计算节点元数据的 Hash 和规范化序列化数据
// 相同的逻辑内容 (无论字段赋值顺序) 永远产生相同的字节和相同的 Hash
func CalculateHash(v any) (types.NodeHash, []byte, error) {
	data, err := em.Marshal(v)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal node: %w", err)
	}

	hashBytes := sha256.Sum256(data)
	hashStr := hex.EncodeToString(hashBytes[:])

	return types.NodeHash(hashStr), data, nil
}

// CalculateBlobHash 计算原始内容块的 Hash
func CalculateBlobHash(data []byte) types.NodeHash {
	hashBytes := sha256.Sum256(data)
	return types.NodeHash(hex.EncodeToString(hashBytes[:]))
}

// Marshal 使用规范化编码序列化任意节点记录
func Marshal(v any) ([]byte, error) {
	return em.Marshal(v)
}

// DecodeObject 通用的解码函数 (供存储层读回记录时使用)
func DecodeObject(data []byte, v any) error {
	return dm.Unmarshal(data, v)
}
