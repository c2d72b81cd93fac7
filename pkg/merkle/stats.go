package merkle

import "deltavault/pkg/core"

// TreeStats 文档树的结构统计
type TreeStats struct {
	Sections        int
	DirectSections  int
	ShardedSections int
	Shards          int
	Leaves          uint64
	ContentBytes    int64
}

// CollectStats 统计树的结构信息，不触发任何分片加载
// sharded 章节的 ContentBytes 只统计已物化分片里的叶子
func CollectStats(doc *DocumentTree) TreeStats {
	st := TreeStats{
		Sections: doc.SectionCount(),
		Leaves:   doc.LeafCount(),
	}
	for _, s := range doc.Sections() {
		switch s.Layout() {
		case core.LayoutDirect:
			st.DirectSections++
			for _, leaf := range s.Leaves() {
				st.ContentBytes += leaf.Size()
			}
		case core.LayoutSharded:
			st.ShardedSections++
			st.Shards += len(s.Shards())
			for _, sh := range s.Shards() {
				for _, leaf := range sh.Children() {
					st.ContentBytes += leaf.Size()
				}
			}
		}
	}
	return st
}
