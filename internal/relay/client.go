package relay

import (
	"context"
	"fmt"
	"time"
)

// DefaultTimeout bounds every relay call without an explicit deadline.
const DefaultTimeout = 10 * time.Second

// Client sends a message and waits for its response.
type Client interface {
	Send(ctx context.Context, msg Message) (Response, error)
}

// Loopback delivers messages to an in-process dispatcher.
type Loopback struct {
	Dispatcher *Dispatcher
	Timeout    time.Duration
}

// NewLoopback returns a loopback client with the default timeout.
func NewLoopback(d *Dispatcher) *Loopback {
	return &Loopback{Dispatcher: d, Timeout: DefaultTimeout}
}

func (l *Loopback) Send(ctx context.Context, msg Message) (Response, error) {
	ctx, cancel := withTimeout(ctx, l.Timeout)
	defer cancel()

	out := make(chan Response, 1)
	go func() { out <- l.Dispatcher.Dispatch(ctx, msg) }()
	select {
	case resp := <-out:
		return resp, nil
	case <-ctx.Done():
		return Response{}, fmt.Errorf("relay %s: %w", msg.Subtype, ctx.Err())
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultTimeout
	}
	return context.WithTimeout(ctx, d)
}

// Call sends payload as subtype over c and decodes the result into R.
func Call[R any](ctx context.Context, c Client, subtype Subtype, payload any) (R, error) {
	var out R
	msg, err := NewMessage(subtype, payload)
	if err != nil {
		return out, err
	}
	resp, err := c.Send(ctx, msg)
	if err != nil {
		return out, err
	}
	if err := decodeResponse(subtype, resp, &out); err != nil {
		return out, err
	}
	return out, nil
}

// Notify sends payload as subtype and only checks for success.
func Notify(ctx context.Context, c Client, subtype Subtype, payload any) error {
	msg, err := NewMessage(subtype, payload)
	if err != nil {
		return err
	}
	resp, err := c.Send(ctx, msg)
	if err != nil {
		return err
	}
	return decodeResponse(subtype, resp, nil)
}

// Fetch performs req through the background context.
func Fetch(ctx context.Context, c Client, req FetchRequest) (FetchResponse, error) {
	return Call[FetchResponse](ctx, c, MsgFetch, req)
}

// Achievements is the page-side view of achievement bookkeeping.
type Achievements struct {
	Client Client
}

// Expect records that adapter should verify key on its next load.
func (a Achievements) Expect(ctx context.Context, adapter, key string) error {
	return Notify(ctx, a.Client, MsgExpectAchievement, ExpectAchievement{Adapter: adapter, Key: key})
}

// TakeExpected consumes the pending expectation of adapter.
func (a Achievements) TakeExpected(ctx context.Context, adapter string) (ExpectedAchievement, error) {
	return Call[ExpectedAchievement](ctx, a.Client, MsgTakeExpectedAchievement, TakeExpectedAchievement{Adapter: adapter})
}

// Track reports that key was reached.
func (a Achievements) Track(ctx context.Context, key string) error {
	return Notify(ctx, a.Client, MsgTrackAchievement, TrackAchievement{Key: key})
}
