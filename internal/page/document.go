// Package page models a loaded web page: its parsed DOM, location, cookies
// and navigation. Mutations made through a Document are reported to
// observers, which is how prompts notice being removed and how content
// filters react to late-arriving results.
package page

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/publicsuffix"
)

// ErrUnloaded is returned by mutations on a page that has been unloaded.
var ErrUnloaded = errors.New("page unloaded")

// Document is a mutable, concurrency-safe page.
//
// Read helpers run under the document lock. Callbacks (observers, event
// listeners, unload hooks) run after the lock is released in the goroutine
// that caused them, so they may mutate the document again.
type Document struct {
	mu       sync.Mutex
	root     *html.Node
	location *url.URL
	jar      http.CookieJar
	nav      Navigator
	unloaded bool

	observers map[int]*Observer
	nextObs   int

	listeners map[*html.Node]map[string][]*listener
	custom    map[string][]*listener
	nextLis   int
	onUnload  []*listener
}

type listener struct {
	id int
	fn func(detail string)
}

// Option configures a Document.
type Option func(*Document)

// WithJar sets the cookie jar backing Cookie and SetCookie.
func WithJar(j http.CookieJar) Option { return func(d *Document) { d.jar = j } }

// WithNavigator sets the navigator used by Reload, Replace and Assign.
func WithNavigator(n Navigator) Option { return func(d *Document) { d.nav = n } }

// NewJar returns a cookie jar using the public suffix list.
func NewJar() http.CookieJar {
	j, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	return j
}

// Parse reads HTML from r as the page at location.
func Parse(r io.Reader, location string, opts ...Option) (*Document, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("parse location: %w", err)
	}
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	d := &Document{
		root:      root,
		location:  u,
		observers: map[int]*Observer{},
		listeners: map[*html.Node]map[string][]*listener{},
		custom:    map[string][]*listener{},
	}
	for _, o := range opts {
		o(d)
	}
	if d.jar == nil {
		d.jar = NewJar()
	}
	if d.nav == nil {
		d.nav = &RecordingNavigator{}
	}
	return d, nil
}

// ParseString is Parse over a string.
func ParseString(src, location string, opts ...Option) (*Document, error) {
	return Parse(strings.NewReader(src), location, opts...)
}

// Location returns a copy of the page URL.
func (d *Document) Location() *url.URL {
	d.mu.Lock()
	defer d.mu.Unlock()
	u := *d.location
	return &u
}

// Hostname returns the page host without port.
func (d *Document) Hostname() string {
	return d.Location().Hostname()
}

// Jar returns the cookie jar of the page.
func (d *Document) Jar() http.CookieJar { return d.jar }

// Navigator returns the page navigator.
func (d *Document) Navigator() Navigator { return d.nav }

// Read runs fn with a goquery view of the document under the lock. fn must
// not call other Document methods.
func (d *Document) Read(fn func(doc *goquery.Document)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(goquery.NewDocumentFromNode(d.root))
}

// Exists reports whether selector matches anything.
func (d *Document) Exists(selector string) bool {
	var ok bool
	d.Read(func(doc *goquery.Document) { ok = doc.Find(selector).Length() > 0 })
	return ok
}

// Attr returns attribute name of the first match of selector.
func (d *Document) Attr(selector, name string) (string, bool) {
	var (
		v  string
		ok bool
	)
	d.Read(func(doc *goquery.Document) { v, ok = doc.Find(selector).First().Attr(name) })
	return v, ok
}

// Attrs returns attribute name of every match of selector that has it.
func (d *Document) Attrs(selector, name string) []string {
	var out []string
	d.Read(func(doc *goquery.Document) {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			if v, ok := s.Attr(name); ok {
				out = append(out, v)
			}
		})
	})
	return out
}

// Texts returns the text content of every match of selector.
func (d *Document) Texts(selector string) []string {
	var out []string
	d.Read(func(doc *goquery.Document) {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			out = append(out, s.Text())
		})
	})
	return out
}

// Nodes returns the nodes matching selector.
func (d *Document) Nodes(selector string) []*html.Node {
	var out []*html.Node
	d.Read(func(doc *goquery.Document) { out = append(out, doc.Find(selector).Nodes...) })
	return out
}

// NodesWithin returns the nodes under n matching selector.
func (d *Document) NodesWithin(n *html.Node, selector string) []*html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	return goquery.NewDocumentFromNode(n).Find(selector).Nodes
}

// TextOf returns the text content of n.
func (d *Document) TextOf(n *html.Node) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return goquery.NewDocumentFromNode(n).Text()
}

// Lang returns the lang attribute of the root element.
func (d *Document) Lang() string {
	v, _ := d.Attr("html", "lang")
	return v
}

// HTML serializes the document.
func (d *Document) HTML() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var buf bytes.Buffer
	_ = html.Render(&buf, d.root)
	return buf.String()
}

// Body returns the body element.
func (d *Document) Body() *html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	return findElement(d.root, atom.Body)
}

// Head returns the head element.
func (d *Document) Head() *html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	return findElement(d.root, atom.Head)
}

// Contains reports whether n is attached to the document.
func (d *Document) Contains(n *html.Node) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return isAncestor(d.root, n)
}

// NodeByID returns the element with the given id attribute.
func (d *Document) NodeByID(id string) *html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	var found *html.Node
	walk(d.root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && attr(n, "id") == id {
			found = n
			return false
		}
		return true
	})
	return found
}

// HasClass reports whether n carries class cls.
func (d *Document) HasClass(n *html.Node, cls string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return hasClass(n, cls)
}

// ParseFragment parses src as children of parent without attaching them.
func (d *Document) ParseFragment(parent *html.Node, src string) ([]*html.Node, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ctx := parent
	if ctx == nil || ctx.Type != html.ElementNode {
		ctx = &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	}
	nodes, err := html.ParseFragment(strings.NewReader(src), ctx)
	if err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}
	return nodes, nil
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	var found *html.Node
	walk(n, func(c *html.Node) bool {
		if c.Type == html.ElementNode && c.DataAtom == a {
			found = c
			return false
		}
		return true
	})
	return found
}

// walk visits n and its descendants depth first until fn returns false.
func walk(n *html.Node, fn func(*html.Node) bool) bool {
	if !fn(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}

func isAncestor(anc, n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == anc {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, cls string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == cls {
			return true
		}
	}
	return false
}
