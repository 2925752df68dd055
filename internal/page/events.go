package page

import "golang.org/x/net/html"

// AddEventListener registers fn for events of type typ dispatched on n or
// bubbling up from its descendants. The returned function removes it.
func (d *Document) AddEventListener(n *html.Node, typ string, fn func()) (remove func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l := &listener{id: d.nextLis, fn: func(string) { fn() }}
	d.nextLis++
	if d.listeners[n] == nil {
		d.listeners[n] = map[string][]*listener{}
	}
	d.listeners[n][typ] = append(d.listeners[n][typ], l)
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if byType := d.listeners[n]; byType != nil {
			byType[typ] = without(byType[typ], l.id)
		}
	}
}

// Click dispatches a click on n. Listeners run from n up to the root.
func (d *Document) Click(n *html.Node) {
	d.Dispatch(n, "click")
}

// Dispatch fires event typ on n with bubbling.
func (d *Document) Dispatch(n *html.Node, typ string) {
	d.mu.Lock()
	var fns []func(string)
	for p := n; p != nil; p = p.Parent {
		for _, l := range d.listeners[p][typ] {
			fns = append(fns, l.fn)
		}
	}
	d.mu.Unlock()
	for _, fn := range fns {
		fn("")
	}
}

// OnCustomEvent registers fn for page-level custom events named name.
func (d *Document) OnCustomEvent(name string, fn func(detail string)) (remove func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l := &listener{id: d.nextLis, fn: fn}
	d.nextLis++
	d.custom[name] = append(d.custom[name], l)
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.custom[name] = without(d.custom[name], l.id)
	}
}

// DispatchCustomEvent delivers detail to every listener of name.
func (d *Document) DispatchCustomEvent(name, detail string) {
	d.mu.Lock()
	fns := make([]func(string), 0, len(d.custom[name]))
	for _, l := range d.custom[name] {
		fns = append(fns, l.fn)
	}
	d.mu.Unlock()
	for _, fn := range fns {
		fn(detail)
	}
}

// OnUnload registers fn to run when the page unloads. The returned function
// unregisters it.
func (d *Document) OnUnload(fn func()) (remove func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.unloaded {
		go fn()
		return func() {}
	}
	l := &listener{id: d.nextLis, fn: func(string) { fn() }}
	d.nextLis++
	d.onUnload = append(d.onUnload, l)
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.onUnload = without(d.onUnload, l.id)
	}
}

// UnloadHooks reports how many unload hooks are registered.
func (d *Document) UnloadHooks() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.onUnload)
}

// Unload tears the page down: observers are disconnected, listeners
// dropped and unload hooks run. Later mutations fail with ErrUnloaded.
func (d *Document) Unload() {
	d.mu.Lock()
	if d.unloaded {
		d.mu.Unlock()
		return
	}
	d.unloaded = true
	obs := make([]*Observer, 0, len(d.observers))
	for _, o := range d.observers {
		obs = append(obs, o)
	}
	d.observers = map[int]*Observer{}
	d.listeners = map[*html.Node]map[string][]*listener{}
	d.custom = map[string][]*listener{}
	hooks := d.onUnload
	d.onUnload = nil
	d.mu.Unlock()

	for _, o := range obs {
		o.mu.Lock()
		o.active = false
		o.mu.Unlock()
	}
	for _, l := range hooks {
		l.fn("")
	}
}

// Unloaded reports whether Unload ran.
func (d *Document) Unloaded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.unloaded
}

func without(ls []*listener, id int) []*listener {
	out := ls[:0:0]
	for _, l := range ls {
		if l.id != id {
			out = append(out, l)
		}
	}
	return out
}
