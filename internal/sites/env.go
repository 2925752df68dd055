package sites

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/MeKo-Tech/lahidna/internal/features"
	"github.com/MeKo-Tech/lahidna/internal/lang"
	"github.com/MeKo-Tech/lahidna/internal/langdetect"
	"github.com/MeKo-Tech/lahidna/internal/page"
	"github.com/MeKo-Tech/lahidna/internal/relay"
	"github.com/MeKo-Tech/lahidna/internal/storage"
	"github.com/MeKo-Tech/lahidna/internal/telemetry"
)

const maxPageBody = 8 << 20

// Env is everything an adapter may touch during one page load.
type Env struct {
	Doc      *page.Document
	Pref     lang.Preference
	Storage  storage.Scopes
	HTTP     *http.Client
	Relay    relay.Client
	Flags    *features.Flags
	Detector *langdetect.Detector
	Sink     telemetry.Sink
	Logger   *slog.Logger

	Version    string
	UserID     string
	OptionsURL string

	Now func() time.Time
}

// Time returns the current time from Now, or the wall clock.
func (e *Env) Time() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Log returns Logger or the default logger.
func (e *Env) Log() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// Telemetry returns Sink or a sink discarding everything.
func (e *Env) Telemetry() telemetry.Sink {
	if e.Sink != nil {
		return e.Sink
	}
	return telemetry.Nop{}
}

func (e *Env) client() *http.Client {
	if e.HTTP != nil {
		return e.HTTP
	}
	return &http.Client{Jar: e.Doc.Jar(), Timeout: 30 * time.Second}
}

// Default holds the behaviour shared by adapters. Sites call it explicitly.
type Default struct {
	Env       *Env
	Name      string
	Supported []string
}

// DefaultCallToAction is shown when a site has no wording of its own.
const DefaultCallToAction = "Цей сайт підтримує Українську. Налаштувати?"

// DefaultCacheTTL applies to sites that do not declare a TTL.
const DefaultCacheTTL = time.Hour

// UILanguage is the primary subtag of the page's <html lang>.
func (d Default) UILanguage() string {
	return lang.Primary(d.Env.Doc.Lang())
}

// UITarget computes the single-UI-language target for ui.
func (d Default) UITarget(ui string) ([]string, error) {
	target, ok := lang.UITarget(ui, d.Env.Pref, d.Supported)
	if !ok {
		return nil, ErrSkip
	}
	return target, nil
}

// reconcileAppending is lang.Reconcile for sites that list added
// languages after the ones they already had.
func reconcileAppending(current []string, p lang.Preference, supported []string) ([]string, bool) {
	next, changed := lang.Reconcile(current, p, supported)
	added := len(next) - len(lang.Without(current, p.LessLanguages))
	return slices.Concat(next[added:], next[:added]), changed
}

// Origin is scheme and host of the current page.
func (d Default) Origin() string {
	loc := d.Env.Doc.Location()
	return loc.Scheme + "://" + loc.Host
}

// Reload reloads the page.
func (d Default) Reload(ctx context.Context) error {
	return d.Env.Doc.Reload(ctx)
}

// Do performs a same-origin request with the page's cookies.
func (d Default) Do(ctx context.Context, op, method, url string, headers map[string]string, body string) (int, string, error) {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return 0, "", &NetworkError{Adapter: d.Name, Op: op, Err: err}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := d.Env.client().Do(req)
	if err != nil {
		return 0, "", &NetworkError{Adapter: d.Name, Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBody))
	if err != nil {
		return resp.StatusCode, "", &NetworkError{Adapter: d.Name, Op: op, Status: resp.StatusCode, Err: err}
	}
	return resp.StatusCode, string(data), nil
}

// Get fetches url and fails on non-2xx responses.
func (d Default) Get(ctx context.Context, op, url string) (string, error) {
	status, body, err := d.Do(ctx, op, http.MethodGet, url, nil, "")
	if err != nil {
		return "", err
	}
	if status < 200 || status > 299 {
		return "", &NetworkError{Adapter: d.Name, Op: op, Status: status}
	}
	return body, nil
}

// Post sends body and fails on non-2xx responses.
func (d Default) Post(ctx context.Context, op, url string, headers map[string]string, body string) error {
	status, _, err := d.Do(ctx, op, http.MethodPost, url, headers, body)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return &NetworkError{Adapter: d.Name, Op: op, Status: status}
	}
	return nil
}

// GetDocument fetches url and parses it.
func (d Default) GetDocument(ctx context.Context, op, url string) (*goquery.Document, string, error) {
	body, err := d.Get(ctx, op, url)
	if err != nil {
		return nil, "", err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("%s: parse %s: %w", d.Name, op, err)
	}
	return doc, body, nil
}

// RelayPost sends a POST through the privileged background context.
func (d Default) RelayPost(ctx context.Context, op, url string, headers map[string]string, body string) error {
	if d.Env.Relay == nil {
		return d.Post(ctx, op, url, headers, body)
	}
	resp, err := relay.Fetch(ctx, d.Env.Relay, relay.FetchRequest{
		Method: http.MethodPost, URL: url, Headers: headers, Body: body,
	})
	if err != nil {
		return &NetworkError{Adapter: d.Name, Op: op, Err: err}
	}
	if resp.Status < 200 || resp.Status > 299 {
		return &NetworkError{Adapter: d.Name, Op: op, Status: resp.Status}
	}
	return nil
}

// All runs every fn concurrently and joins their errors. A failure does not
// cancel the others.
func All(ctx context.Context, fns ...func(context.Context) error) error {
	errs := make([]error, len(fns))
	var wg sync.WaitGroup
	for i, fn := range fns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("panic: %v", r)
				}
			}()
			errs[i] = fn(ctx)
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}
