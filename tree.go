package crdtstore

import (
	"fmt"

	"github.com/xlab/treeprint"
)

// DumpTree renders the branch and its live descendants (sequence items and
// keyed entries that embed nested branches) as an indented tree, for
// debugging nested document structure.
func (b *Branch) DumpTree() string {
	root := treeprint.New()
	label := b.Name
	if label == "" {
		label = fmt.Sprintf("<%d>", b.TypeRef)
	}
	root.SetValue(label)
	b.addChildren(root)
	return root.String()
}

func (b *Branch) addChildren(node treeprint.Tree) {
	b.Iter(func(it *Item) bool {
		if ct, ok := it.Content.(*ContentType); ok {
			branch := ct.Branch
			child := node.AddBranch(branchLabel(branch))
			branch.addChildren(child)
		} else {
			node.AddNode(contentLabel(it.Content))
		}
		return true
	})
	b.Entries(func(key string, it *Item) bool {
		if ct, ok := it.Content.(*ContentType); ok {
			branch := ct.Branch
			child := node.AddBranch(key + ": " + branchLabel(branch))
			branch.addChildren(child)
		} else {
			node.AddNode(fmt.Sprintf("%s: %s", key, contentLabel(it.Content)))
		}
		return true
	})
}

func branchLabel(b *Branch) string {
	if b.Name != "" {
		return b.Name
	}
	return fmt.Sprintf("<%d>", b.TypeRef)
}

func contentLabel(c ItemContent) string {
	switch v := c.(type) {
	case *ContentString:
		return fmt.Sprintf("%q", v.String())
	case *ContentJSON:
		return fmt.Sprintf("%v", v.Values)
	case *ContentBinary:
		return fmt.Sprintf("binary(%d bytes)", len(v.Data))
	default:
		return fmt.Sprintf("kind=%d", c.Kind())
	}
}
