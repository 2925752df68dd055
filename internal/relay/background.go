package relay

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/MeKo-Tech/lahidna/internal/page"
	"github.com/MeKo-Tech/lahidna/internal/storage"
	"github.com/MeKo-Tech/lahidna/internal/telemetry"
)

const maxFetchBody = 8 << 20

// Background serves the privileged side of the relay. Jar is the browser
// cookie store; fetches send and update it like credentialed requests.
type Background struct {
	Local     storage.Store
	Client    *http.Client
	Jar       http.CookieJar
	Sink      telemetry.Sink
	UserAgent string
}

// Register installs the background handlers on d.
func (b *Background) Register(d *Dispatcher) {
	d.Handle(MsgFetch, Typed(b.fetch))
	d.Handle(MsgExpectAchievement, Typed(b.expect))
	d.Handle(MsgTakeExpectedAchievement, Typed(b.takeExpected))
	d.Handle(MsgTrackAchievement, Typed(b.track))
}

func (b *Background) fetch(ctx context.Context, req FetchRequest) (any, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}
	r, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if b.UserAgent != "" {
		r.Header.Set("User-Agent", b.UserAgent)
	}
	for k, v := range req.Headers {
		r.Header.Set(k, v)
	}

	resp, err := b.client().Do(r)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, req.URL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return FetchResponse{Status: resp.StatusCode, Body: string(data)}, nil
}

func (b *Background) client() *http.Client {
	client := b.Client
	if client == nil {
		client = http.DefaultClient
	}
	if b.Jar == nil || client.Jar == b.Jar {
		return client
	}
	withJar := *client
	withJar.Jar = b.Jar
	return &withJar
}

func (b *Background) expect(ctx context.Context, p ExpectAchievement) (any, error) {
	if p.Adapter == "" || p.Key == "" {
		return nil, fmt.Errorf("adapter and key are required")
	}
	return nil, storage.SetJSON(ctx, b.Local, storage.ExpectedAchievementKey(p.Adapter), p.Key)
}

func (b *Background) takeExpected(ctx context.Context, p TakeExpectedAchievement) (any, error) {
	key := storage.ExpectedAchievementKey(p.Adapter)
	var achievement string
	found, err := storage.GetJSON(ctx, b.Local, key, &achievement)
	if found {
		if rmErr := b.Local.Remove(ctx, key); rmErr != nil {
			return nil, rmErr
		}
	}
	if err != nil {
		return nil, err
	}
	return ExpectedAchievement{Expected: found, Key: achievement}, nil
}

func (b *Background) track(_ context.Context, p TrackAchievement) (any, error) {
	if b.Sink != nil {
		b.Sink.SendEvent("achievement", map[string]string{"key": p.Key})
	}
	return nil, nil
}

// RegisterPage installs the page-side handlers for doc on d.
func RegisterPage(d *Dispatcher, doc *page.Document) {
	d.Handle(MsgRedirectContentPage, Typed(func(ctx context.Context, p RedirectContentPage) (any, error) {
		if p.URL == "" {
			return nil, fmt.Errorf("url is required")
		}
		if p.ReplacesBrowserHistory {
			return nil, doc.Replace(ctx, p.URL)
		}
		return nil, doc.Assign(ctx, p.URL)
	}))
}
