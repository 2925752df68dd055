package page

import (
	"slices"
	"strings"
	"sync"

	"golang.org/x/net/html"
)

// MutationType distinguishes tree changes from attribute changes.
type MutationType int

const (
	ChildList MutationType = iota
	Attributes
)

// MutationRecord describes one change. For ChildList records Target is the
// parent whose children changed.
type MutationRecord struct {
	Type          MutationType
	Target        *html.Node
	Added         []*html.Node
	Removed       []*html.Node
	AttributeName string
}

// ObserveOptions selects which records an Observer receives.
type ObserveOptions struct {
	ChildList  bool
	Attributes bool
	// Subtree extends observation to every descendant of the target.
	Subtree bool
}

// Observer receives mutation records until disconnected.
type Observer struct {
	id     int
	d      *Document
	target *html.Node
	opts   ObserveOptions
	fn     func([]MutationRecord)

	mu     sync.Mutex
	active bool
}

// Disconnect stops delivery. No callback starts after Disconnect returns.
func (o *Observer) Disconnect() {
	o.mu.Lock()
	o.active = false
	o.mu.Unlock()

	o.d.mu.Lock()
	delete(o.d.observers, o.id)
	o.d.mu.Unlock()
}

// Active reports whether the observer is still connected.
func (o *Observer) Active() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

func (o *Observer) wants(r MutationRecord) bool {
	switch r.Type {
	case ChildList:
		if !o.opts.ChildList {
			return false
		}
	case Attributes:
		if !o.opts.Attributes {
			return false
		}
	}
	if r.Target == o.target {
		return true
	}
	return o.opts.Subtree && isAncestor(o.target, r.Target)
}

// Observe registers fn for mutations of target.
func (d *Document) Observe(target *html.Node, opts ObserveOptions, fn func([]MutationRecord)) *Observer {
	d.mu.Lock()
	defer d.mu.Unlock()
	o := &Observer{id: d.nextObs, d: d, target: target, opts: opts, fn: fn, active: !d.unloaded}
	d.nextObs++
	if o.active {
		d.observers[o.id] = o
	}
	return o
}

type delivery struct {
	obs  *Observer
	recs []MutationRecord
}

// mutate applies change under the lock and delivers the resulting records
// once the lock is released.
func (d *Document) mutate(change func() []MutationRecord) error {
	d.mu.Lock()
	if d.unloaded {
		d.mu.Unlock()
		return ErrUnloaded
	}
	recs := change()

	ids := make([]int, 0, len(d.observers))
	for id := range d.observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var out []delivery
	for _, id := range ids {
		o := d.observers[id]
		var mine []MutationRecord
		for _, r := range recs {
			if o.wants(r) {
				mine = append(mine, r)
			}
		}
		if len(mine) > 0 {
			out = append(out, delivery{obs: o, recs: mine})
		}
	}
	d.mu.Unlock()

	for _, dv := range out {
		if dv.obs.Active() {
			dv.obs.fn(dv.recs)
		}
	}
	return nil
}

func detach(n *html.Node) (MutationRecord, bool) {
	p := n.Parent
	if p == nil {
		return MutationRecord{}, false
	}
	p.RemoveChild(n)
	return MutationRecord{Type: ChildList, Target: p, Removed: []*html.Node{n}}, true
}

// AppendChild moves child to the end of parent's children.
func (d *Document) AppendChild(parent, child *html.Node) error {
	return d.mutate(func() []MutationRecord {
		var recs []MutationRecord
		if r, ok := detach(child); ok {
			recs = append(recs, r)
		}
		parent.AppendChild(child)
		return append(recs, MutationRecord{Type: ChildList, Target: parent, Added: []*html.Node{child}})
	})
}

// InsertHTML parses src and appends the resulting nodes to parent.
func (d *Document) InsertHTML(parent *html.Node, src string) ([]*html.Node, error) {
	nodes, err := d.ParseFragment(parent, src)
	if err != nil {
		return nil, err
	}
	err = d.mutate(func() []MutationRecord {
		for _, n := range nodes {
			parent.AppendChild(n)
		}
		return []MutationRecord{{Type: ChildList, Target: parent, Added: nodes}}
	})
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

// Remove detaches n from its parent. Removing a detached node is a no-op.
func (d *Document) Remove(n *html.Node) error {
	return d.mutate(func() []MutationRecord {
		if r, ok := detach(n); ok {
			return []MutationRecord{r}
		}
		return nil
	})
}

// SetAttr sets attribute key on n.
func (d *Document) SetAttr(n *html.Node, key, val string) error {
	return d.mutate(func() []MutationRecord {
		if setAttr(n, key, val) {
			return []MutationRecord{{Type: Attributes, Target: n, AttributeName: key}}
		}
		return nil
	})
}

// AddClass adds cls to the class list of n.
func (d *Document) AddClass(n *html.Node, cls string) error {
	return d.mutate(func() []MutationRecord {
		if hasClass(n, cls) {
			return nil
		}
		classes := append(strings.Fields(attr(n, "class")), cls)
		setAttr(n, "class", strings.Join(classes, " "))
		return []MutationRecord{{Type: Attributes, Target: n, AttributeName: "class"}}
	})
}

// RemoveClass removes cls from the class list of n.
func (d *Document) RemoveClass(n *html.Node, cls string) error {
	return d.mutate(func() []MutationRecord {
		if !hasClass(n, cls) {
			return nil
		}
		var keep []string
		for _, c := range strings.Fields(attr(n, "class")) {
			if c != cls {
				keep = append(keep, c)
			}
		}
		setAttr(n, "class", strings.Join(keep, " "))
		return []MutationRecord{{Type: Attributes, Target: n, AttributeName: "class"}}
	})
}

func setAttr(n *html.Node, key, val string) bool {
	for i, a := range n.Attr {
		if a.Key == key {
			if a.Val == val {
				return false
			}
			n.Attr[i].Val = val
			return true
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
	return true
}
