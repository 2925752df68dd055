// Package consent shows the transient call-to-action prompt and turns the
// user's answer into a Decision.
package consent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/net/html"

	"github.com/MeKo-Tech/lahidna/internal/page"
)

var (
	// ErrDeclined is returned when the user presses "later".
	ErrDeclined = errors.New("user answered no to options")
	// ErrNodeRemoved is returned when the prompt disappears without an answer.
	ErrNodeRemoved = errors.New("node removed")
	// ErrNoBody is returned when the page has no <body> to attach to.
	ErrNoBody = errors.New("page has no body")
)

const (
	HostID     = "lu-shadow-host"
	PanelClass = "lahidnaUkrainizatsiya"
	YesClass   = "yes-btn"
	NoClass    = "no-btn"
)

var promptsShown = promauto.NewCounter(prometheus.CounterOpts{
	Name: "lahidna_prompts_shown_total",
	Help: "Total number of consent prompts shown",
})

var promptTemplate = template.Must(template.New("prompt").Parse(
	`<div id="{{.HostID}}"><template shadowrootmode="open"><style>
.{{.PanelClass}} { z-index: 5000; width: 100%; position: fixed; top: 0; font-family: sans-serif; }
.{{.PanelClass}} .panel { margin: 20px; padding: 10px; border: 1px solid rgba(0,0,0,.09); box-shadow: 15px -4px 17px 1px rgba(19,19,22,.28); border-radius: 3px; background: #f3f1f1; }
.{{.PanelClass}} .buttons { float: right; }
.{{.PanelClass}} button { padding: 4px; }
</style><div class="{{.PanelClass}}"><div class="panel"><span class="cta">{{.CTA}}</span><div class="buttons"><button type="button" class="{{.YesClass}}">Так</button><button type="button" class="{{.NoClass}}">Пізніше</button></div></div></div></template></div>`))

// State is the lifecycle stage of a Controller.
type State int

const (
	Idle State = iota
	Shown
	Resolved
)

func (s State) String() string {
	switch s {
	case Shown:
		return "shown"
	case Resolved:
		return "resolved"
	default:
		return "idle"
	}
}

// Decision is the pending answer to one prompt.
type Decision struct {
	once sync.Once
	done chan struct{}
	cfg  any
	err  error

	cancel func(error)
}

func newDecision() *Decision {
	return &Decision{done: make(chan struct{})}
}

func (d *Decision) settle(cfg any, err error) bool {
	settled := false
	d.once.Do(func() {
		d.cfg, d.err = cfg, err
		settled = true
		close(d.done)
	})
	return settled
}

// Done is closed once the decision is settled.
func (d *Decision) Done() <-chan struct{} { return d.done }

// Wait blocks until the user answers or ctx ends. Cancellation removes the
// prompt from the page.
func (d *Decision) Wait(ctx context.Context) (any, error) {
	select {
	case <-d.done:
		return d.cfg, d.err
	case <-ctx.Done():
		if d.cancel != nil {
			d.cancel(ctx.Err())
		} else {
			d.settle(nil, ctx.Err())
		}
		<-d.done
		return d.cfg, d.err
	}
}

type prompt struct {
	doc      *page.Document
	host     *html.Node
	obs      *page.Observer
	removers []func()
	decision *Decision
}

func (p *prompt) finish(cfg any, err error) {
	if !p.decision.settle(cfg, err) {
		return
	}
	if p.obs != nil {
		p.obs.Disconnect()
	}
	for _, rm := range p.removers {
		rm()
	}
	if err := p.doc.Remove(p.host); err != nil && !errors.Is(err, page.ErrUnloaded) {
		slog.Debug("Failed to remove prompt", "error", err)
	}
}

// Controller owns at most one prompt at a time.
type Controller struct {
	mu      sync.Mutex
	current *prompt
	state   State
}

// NewController returns an idle controller.
func NewController() *Controller {
	return &Controller{}
}

// State reports the lifecycle stage.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Shown && c.current != nil {
		select {
		case <-c.current.decision.done:
			return Resolved
		default:
		}
	}
	return c.state
}

// Show renders the prompt with cta on doc. A previous prompt is removed and
// its decision fails with ErrNodeRemoved.
func (c *Controller) Show(doc *page.Document, cta string, cfg any) *Decision {
	c.mu.Lock()
	prev := c.current
	c.current = nil
	c.mu.Unlock()
	if prev != nil {
		prev.finish(nil, ErrNodeRemoved)
	}
	removeStale(doc)

	d := newDecision()
	body := doc.Body()
	if body == nil {
		d.settle(nil, ErrNoBody)
		return d
	}

	var buf bytes.Buffer
	err := promptTemplate.Execute(&buf, map[string]string{
		"HostID": HostID, "PanelClass": PanelClass,
		"YesClass": YesClass, "NoClass": NoClass, "CTA": cta,
	})
	if err != nil {
		d.settle(nil, fmt.Errorf("render prompt: %w", err))
		return d
	}
	nodes, err := doc.InsertHTML(body, buf.String())
	if err != nil || len(nodes) == 0 {
		d.settle(nil, fmt.Errorf("insert prompt: %w", err))
		return d
	}

	p := &prompt{doc: doc, host: nodes[0], decision: d}
	d.cancel = func(err error) { p.finish(nil, err) }

	p.obs = doc.Observe(body, page.ObserveOptions{ChildList: true}, func(recs []page.MutationRecord) {
		for _, r := range recs {
			for _, n := range r.Removed {
				if n == p.host {
					p.finish(nil, ErrNodeRemoved)
					return
				}
			}
		}
	})

	if yes := doc.NodesWithin(p.host, "."+YesClass); len(yes) > 0 {
		p.removers = append(p.removers, doc.AddEventListener(yes[0], "click", func() {
			p.finish(cfg, nil)
		}))
	}
	if no := doc.NodesWithin(p.host, "."+NoClass); len(no) > 0 {
		p.removers = append(p.removers, doc.AddEventListener(no[0], "click", func() {
			p.finish(nil, declined(cfg))
		}))
	}
	p.removers = append(p.removers, doc.OnUnload(func() { p.finish(nil, ErrNodeRemoved) }))

	c.mu.Lock()
	c.current = p
	c.state = Shown
	c.mu.Unlock()

	promptsShown.Inc()
	slog.Debug("Consent prompt shown", "host", doc.Hostname())
	return d
}

// Answer clicks the yes or later button of the current prompt. It reports
// false when no prompt is pending.
func (c *Controller) Answer(yes bool) bool {
	c.mu.Lock()
	p := c.current
	c.mu.Unlock()
	if p == nil {
		return false
	}
	select {
	case <-p.decision.done:
		return false
	default:
	}
	cls := NoClass
	if yes {
		cls = YesClass
	}
	btn := p.doc.NodesWithin(p.host, "."+cls)
	if len(btn) == 0 {
		return false
	}
	p.doc.Click(btn[0])
	return true
}

// removeStale drops prompt hosts left on the page by earlier flows.
func removeStale(doc *page.Document) {
	for {
		n := doc.NodeByID(HostID)
		if n == nil {
			return
		}
		if err := doc.Remove(n); err != nil {
			return
		}
	}
}

func declined(cfg any) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		raw = []byte("null")
	}
	return fmt.Errorf("%w %s", ErrDeclined, raw)
}
