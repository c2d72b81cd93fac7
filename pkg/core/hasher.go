package core

import (
	"crypto/sha256"
	"encoding/hex"

	"deltavault/pkg/types"
)

// 域分离前缀：叶子内容和内部节点的组合使用不同前缀，
// 防止“一段恰好等于两个 Hash 拼接的内容”伪造出内部节点 Hash (second preimage)
const (
	nodePrefix byte = 0x01
)

// CombineHashes 把两个子节点 Hash 组合成父节点 Hash
// 注意：组合是顺序敏感的 —— CombineHashes(a, b) != CombineHashes(b, a)
// 这正是“叶子重排也必须被检测为变化”的来源
func CombineHashes(left, right types.NodeHash) types.NodeHash {
	h := sha256.New()
	h.Write([]byte{nodePrefix})
	h.Write([]byte(left))
	h.Write([]byte(right))
	return types.NodeHash(hex.EncodeToString(h.Sum(nil)))
}

// EmptyRoot 返回空集合 (零叶子的章节 / 零章节的文档) 的根 Hash
// 定义为空字节串的 SHA256，跨进程、跨版本稳定
func EmptyRoot() types.NodeHash {
	return CalculateBlobHash(nil)
}

// BuildLevels 自底向上逐层两两组合，返回完整的层级结构
// levels[0] 是输入本身，最后一层恰好一个元素 (根)
// 奇数层尾部的落单节点原样上浮，不与自身配对也不重复参与哈希
func BuildLevels(hashes []types.NodeHash) [][]types.NodeHash {
	if len(hashes) == 0 {
		return nil
	}
	levels := [][]types.NodeHash{hashes}
	cur := hashes
	for len(cur) > 1 {
		next := make([]types.NodeHash, 0, (len(cur)+1)/2)
		for i := 0; i+1 < len(cur); i += 2 {
			next = append(next, CombineHashes(cur[i], cur[i+1]))
		}
		if len(cur)%2 == 1 {
			next = append(next, cur[len(cur)-1])
		}
		levels = append(levels, next)
		cur = next
	}
	return levels
}

// CombineAll 返回一组 Hash 的组合根
// 空输入返回 EmptyRoot，单元素直接返回自身
func CombineAll(hashes []types.NodeHash) types.NodeHash {
	if len(hashes) == 0 {
		return EmptyRoot()
	}
	levels := BuildLevels(hashes)
	return levels[len(levels)-1][0]
}
