package section

import (
	"sort"

	"deltavault/pkg/core"
)

// Split 按边界序号把叶子序列切成章节分组
//
// 边界语义：序号 b 出现在 boundaries 里，表示序号 >= b 的叶子属于新章节。
// 推论：
//   - 边界落在首个叶子之前 → 产生一个空的前导章节
//   - 相邻两个边界之间没有叶子 → 产生空章节 (空章节合法，根为 EmptyRoot)
//   - 没有边界 → 全部叶子属于同一个章节
//   - 没有叶子也没有边界 → 零个章节
//
// 输入叶子必须已按序号升序 (解析器输出天然有序)；边界会在内部排序去重
func Split(leaves []*core.LeafBlock, boundaries []uint64) [][]*core.LeafBlock {
	if len(leaves) == 0 && len(boundaries) == 0 {
		return nil
	}

	bounds := make([]uint64, 0, len(boundaries))
	seen := make(map[uint64]struct{}, len(boundaries))
	for _, b := range boundaries {
		if _, ok := seen[b]; !ok {
			seen[b] = struct{}{}
			bounds = append(bounds, b)
		}
	}
	sort.Slice(bounds, func(i, j int) bool { return bounds[i] < bounds[j] })

	sections := make([][]*core.LeafBlock, 0, len(bounds)+1)
	cur := []*core.LeafBlock{}
	bi := 0
	for _, leaf := range leaves {
		for bi < len(bounds) && bounds[bi] <= leaf.Ordinal() {
			sections = append(sections, cur)
			cur = []*core.LeafBlock{}
			bi++
		}
		cur = append(cur, leaf)
	}
	// 尾部剩余的边界各自关闭一个 (可能为空的) 章节
	for bi < len(bounds) {
		sections = append(sections, cur)
		cur = []*core.LeafBlock{}
		bi++
	}
	sections = append(sections, cur)
	return sections
}
