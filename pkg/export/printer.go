package export

import (
	"fmt"
	"io"
	"text/tabwriter"

	"deltavault/pkg/core"
	"deltavault/pkg/merkle"
)

// PrintStructure 解析并打印结构化对象 (VNode/Section/Document)
// 如果是原始内容块 (Blob)，返回 false，由调用者决定如何展示
func PrintStructure(data []byte, w io.Writer) (bool, error) {
	// 先探测类型
	var header struct {
		TypeVal core.ObjectType `cbor:"t"`
	}

	// 连基本的 CBOR 头都解不出来，说明是 Raw Data
	if err := core.DecodeObject(data, &header); err != nil {
		return false, nil
	}

	switch header.TypeVal {
	case core.TypeDocument:
		return true, printDocument(data, w)
	case core.TypeSection:
		return true, printSection(data, w)
	case core.TypeVNode:
		return true, printVNode(data, w)
	default:
		// 未知类型，或者巧合的二进制数据
		return false, nil
	}
}

func printDocument(data []byte, w io.Writer) error {
	var d core.DocumentRecord
	if err := core.DecodeObject(data, &d); err != nil {
		return err
	}
	fmt.Fprintf(w, "Type:     Document\n")
	fmt.Fprintf(w, "Version:  %d\n", d.Version)
	fmt.Fprintf(w, "Sections: %d\n", d.SectionCount)
	fmt.Fprintf(w, "Leaves:   %d\n\n", d.LeafCount)

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "INDEX\tLAYOUT\tLEAVES\tROOT\n")
	for _, s := range d.Sections {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", s.Index, s.Layout, s.LeafCount, shortHash(string(s.Root.Hash)))
	}
	return tw.Flush()
}

func printSection(data []byte, w io.Writer) error {
	var s core.SectionRecord
	if err := core.DecodeObject(data, &s); err != nil {
		return err
	}
	fmt.Fprintf(w, "Type:    Section\n")
	fmt.Fprintf(w, "Version: %d\n", s.Version)
	fmt.Fprintf(w, "Index:   %d\n", s.Index)
	fmt.Fprintf(w, "Layout:  %s\n", s.Layout)
	fmt.Fprintf(w, "Leaves:  %d\n\n", s.LeafCount)

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	switch s.Layout {
	case core.LayoutDirect:
		fmt.Fprintf(tw, "ORDINAL\tRANGE\tSIZE\tHASH\n")
		for _, leaf := range s.Leaves {
			fmt.Fprintf(tw, "%d\t[%d,%d)\t%s\t%s\n", leaf.Ordinal, leaf.Start, leaf.End, fmtSize(leaf.Size), shortHash(string(leaf.Hash.Hash)))
		}
	case core.LayoutSharded:
		fmt.Fprintf(tw, "SHARD\tCHILDREN\tHASH\n")
		for _, sh := range s.Shards {
			fmt.Fprintf(tw, "%d\t%d\t%s\n", sh.Index, sh.Count, shortHash(string(sh.Hash.Hash)))
		}
	}
	return tw.Flush()
}

func printVNode(data []byte, w io.Writer) error {
	var v core.VNodeRecord
	if err := core.DecodeObject(data, &v); err != nil {
		return err
	}
	fmt.Fprintf(w, "Type:     VNode\n")
	fmt.Fprintf(w, "Shard:    %d\n", v.ShardIndex)
	fmt.Fprintf(w, "Children: %d\n\n", v.Count)

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "ORDINAL\tSIZE\tHASH\n")
	for _, leaf := range v.Children {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", leaf.Ordinal, fmtSize(leaf.Size), shortHash(string(leaf.Hash.Hash)))
	}
	return tw.Flush()
}

// PrintDiff 把比较结果打印成人能读的表格
func PrintDiff(res *merkle.DiffResult, w io.Writer) error {
	if res.Identical {
		fmt.Fprintln(w, "Identical (roots match, nothing compared below)")
		return nil
	}
	fmt.Fprintf(w, "Changed sections: %v\n", res.ChangedSections)
	if res.StructureChanged {
		fmt.Fprintln(w, "Structure changed (positional fallback used)")
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "SECTION\tORDINAL\tCHANGE\tOLD\tNEW\n")
	for _, c := range res.Changes {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\n", c.Section, c.Ordinal, c.Type, shortHash(string(c.OldHash)), shortHash(string(c.NewHash)))
	}
	return tw.Flush()
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	if h == "" {
		return "-"
	}
	return h
}

func fmtSize(s int64) string {
	if s < 1024 {
		return fmt.Sprintf("%dB", s)
	} else if s < 1024*1024 {
		return fmt.Sprintf("%.1fKB", float64(s)/1024)
	}
	return fmt.Sprintf("%.2fMB", float64(s)/1024/1024)
}
