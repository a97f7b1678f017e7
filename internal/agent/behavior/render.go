package behavior

import (
	"fmt"

	"github.com/charmbracelet/lipgloss/tree"
)

// Walk visits root and its descendants depth first. Children of a node are
// skipped when fn returns false for it.
func Walk(root Node, fn func(n Node, depth int) bool) {
	walk(root, 0, fn)
}

func walk(n Node, depth int, fn func(Node, int) bool) {
	if n == nil || !fn(n, depth) {
		return
	}
	for _, child := range n.Children() {
		walk(child, depth+1, fn)
	}
}

// Render draws the tree with each node labelled by name and status.
func Render(root Node) string {
	if root == nil {
		return "<nil node>"
	}
	return renderNode(root).String()
}

func renderNode(n Node) *tree.Tree {
	t := tree.Root(label(n))
	for _, child := range n.Children() {
		switch {
		case child == nil:
			t.Child("<nil node>")
		case len(child.Children()) == 0:
			t.Child(label(child))
		default:
			t.Child(renderNode(child))
		}
	}
	return t
}

func label(n Node) string {
	return fmt.Sprintf("%s [%v]", n.Name(), n.Status())
}

// NodeSnapshot is a serialisable copy of a tree's shape and statuses.
type NodeSnapshot struct {
	Name     string         `json:"name"`
	Status   Status         `json:"status"`
	Children []NodeSnapshot `json:"children,omitempty"`
}

// Snapshot copies the tree under root. A nil root gives a zero snapshot.
func Snapshot(root Node) NodeSnapshot {
	if root == nil {
		return NodeSnapshot{}
	}
	s := NodeSnapshot{Name: root.Name(), Status: root.Status()}
	for _, child := range root.Children() {
		s.Children = append(s.Children, Snapshot(child))
	}
	return s
}
