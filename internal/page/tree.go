package page

import (
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DocumentElement returns the root <html> element.
func (d *Document) DocumentElement() *html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	return findElement(d.root, atom.Html)
}

// Children returns the element children of n with the given tag name, or
// all element children when tag is empty.
func (d *Document) Children(n *html.Node, tag string) []*html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (tag == "" || c.Data == tag) {
			out = append(out, c)
		}
	}
	return out
}

// Parent returns the parent element of n.
func (d *Document) Parent(n *html.Node) *html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n.Parent != nil && n.Parent.Type == html.ElementNode {
		return n.Parent
	}
	return nil
}

// Matches reports whether n matches selector.
func (d *Document) Matches(n *html.Node, selector string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return goquery.NewDocumentFromNode(n).Selection.Is(selector)
}

// Closest returns the nearest ancestor-or-self of n matching selector.
func (d *Document) Closest(n *html.Node, selector string) *html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	sel := goquery.NewDocumentFromNode(n).Selection.Closest(selector)
	if sel.Length() == 0 {
		return nil
	}
	return sel.Nodes[0]
}
