package page

import (
	"context"
	"fmt"
	"net/http"
	"sync"
)

// NavKind is the kind of location change.
type NavKind string

const (
	NavReload  NavKind = "reload"
	NavReplace NavKind = "replace"
	NavAssign  NavKind = "assign"
)

// Navigation is one requested location change.
type Navigation struct {
	Kind NavKind `json:"kind"`
	URL  string  `json:"url"`
}

// Navigator carries out location changes for a page.
type Navigator interface {
	Navigate(ctx context.Context, n Navigation) error
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, n Navigation) error

func (f NavigatorFunc) Navigate(ctx context.Context, n Navigation) error { return f(ctx, n) }

// RecordingNavigator remembers navigations without performing them.
type RecordingNavigator struct {
	mu      sync.Mutex
	history []Navigation
}

func (r *RecordingNavigator) Navigate(_ context.Context, n Navigation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, n)
	return nil
}

// History returns the recorded navigations.
func (r *RecordingNavigator) History() []Navigation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Navigation(nil), r.history...)
}

// Reload reloads the page and unloads this document.
func (d *Document) Reload(ctx context.Context) error {
	return d.navigate(ctx, Navigation{Kind: NavReload, URL: d.Location().String()})
}

// Replace navigates to target without a history entry.
func (d *Document) Replace(ctx context.Context, target string) error {
	u, err := d.Location().Parse(target)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", target, err)
	}
	return d.navigate(ctx, Navigation{Kind: NavReplace, URL: u.String()})
}

// Assign navigates to target adding a history entry.
func (d *Document) Assign(ctx context.Context, target string) error {
	u, err := d.Location().Parse(target)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", target, err)
	}
	return d.navigate(ctx, Navigation{Kind: NavAssign, URL: u.String()})
}

func (d *Document) navigate(ctx context.Context, n Navigation) error {
	if err := d.nav.Navigate(ctx, n); err != nil {
		return err
	}
	d.Unload()
	return nil
}

// Cookie returns the value of cookie name visible to the page.
func (d *Document) Cookie(name string) (string, bool) {
	for _, c := range d.jar.Cookies(d.Location()) {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

// SetCookie stores a cookie written in Set-Cookie syntax, the way a script
// assigns document.cookie.
func (d *Document) SetCookie(raw string) error {
	c, err := http.ParseSetCookie(raw)
	if err != nil {
		return fmt.Errorf("parse cookie: %w", err)
	}
	d.jar.SetCookies(d.Location(), []*http.Cookie{c})
	return nil
}
