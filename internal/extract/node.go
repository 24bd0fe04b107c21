package extract

import (
	"strings"

	"golang.org/x/net/html"
)

// previousNode returns the element that precedes n in document order: the
// deepest last descendant of its previous sibling, or its parent when there
// is no previous sibling.
func previousNode(n *html.Node) *html.Node {
	if n.PrevSibling != nil {
		cur := n.PrevSibling
		for cur.LastChild != nil {
			cur = cur.LastChild
		}
		return cur
	}
	return n.Parent
}

// findPrevious walks backward in document order from n and returns the first
// element with the given tag carrying every listed class. The walk crosses
// sibling and ancestor boundaries, so a header rendered outside the post
// fragment's own subtree is still found.
func findPrevious(n *html.Node, tag string, classes ...string) *html.Node {
	for cur := previousNode(n); cur != nil; cur = previousNode(cur) {
		if cur.Type != html.ElementNode || cur.Data != tag {
			continue
		}
		if hasClasses(cur, classes...) {
			return cur
		}
	}
	return nil
}

func hasClasses(n *html.Node, classes ...string) bool {
	var attr string
	for _, a := range n.Attr {
		if a.Key == "class" {
			attr = a.Val
			break
		}
	}
	if attr == "" {
		return false
	}
	have := make(map[string]bool)
	for _, c := range strings.Fields(attr) {
		have[c] = true
	}
	for _, c := range classes {
		if !have[c] {
			return false
		}
	}
	return true
}
