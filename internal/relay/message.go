// Package relay carries typed request/response messages between a page
// context and the privileged background context.
package relay

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// TypeContent marks messages originating from a page context.
const TypeContent = "content"

// Subtype names a message kind.
type Subtype string

const (
	MsgFetch                   Subtype = "MsgFetch"
	MsgExpectAchievement       Subtype = "MsgExpectAchievement"
	MsgTakeExpectedAchievement Subtype = "MsgTakeExpectedAchievement"
	MsgTrackAchievement        Subtype = "MsgTrackAchievement"
	MsgRedirectContentPage     Subtype = "MsgRedirectContentPage"
)

// Message is one request crossing the boundary.
type Message struct {
	Type    string          `json:"type"`
	Subtype Subtype         `json:"subtype"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response answers the Message with the same ID.
type Response struct {
	ID     string          `json:"id"`
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// RemoteError is a failure reported by the other side.
type RemoteError struct {
	Subtype Subtype
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("relay %s: %s", e.Subtype, e.Message)
}

// NewMessage builds a content message with a fresh id.
func NewMessage(subtype Subtype, payload any) (Message, error) {
	msg := Message{Type: TypeContent, Subtype: subtype, ID: uuid.NewString()}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Message{}, fmt.Errorf("encode %s payload: %w", subtype, err)
		}
		msg.Payload = raw
	}
	return msg, nil
}

// FetchRequest asks the background to perform an HTTP request.
type FetchRequest struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// FetchResponse is the outcome of a FetchRequest.
type FetchResponse struct {
	Status int    `json:"status"`
	Body   string `json:"body"`
}

// ExpectAchievement records that the next load of Adapter should verify Key.
type ExpectAchievement struct {
	Adapter string `json:"adapter"`
	Key     string `json:"key"`
}

// TakeExpectedAchievement consumes the expectation of Adapter.
type TakeExpectedAchievement struct {
	Adapter string `json:"adapter"`
}

// ExpectedAchievement answers TakeExpectedAchievement.
type ExpectedAchievement struct {
	Expected bool   `json:"expected"`
	Key      string `json:"key,omitempty"`
}

// TrackAchievement counts a reached achievement.
type TrackAchievement struct {
	Key string `json:"key"`
}

// RedirectContentPage tells a page to navigate.
type RedirectContentPage struct {
	URL                    string `json:"url"`
	ReplacesBrowserHistory bool   `json:"replacesBrowserHistory"`
}

var errEmptyResult = errors.New("empty result")

func decodeResponse(subtype Subtype, resp Response, v any) error {
	if !resp.OK {
		return &RemoteError{Subtype: subtype, Message: resp.Error}
	}
	if v == nil {
		return nil
	}
	if len(resp.Result) == 0 {
		return fmt.Errorf("relay %s: %w", subtype, errEmptyResult)
	}
	if err := json.Unmarshal(resp.Result, v); err != nil {
		return fmt.Errorf("relay %s: decode result: %w", subtype, err)
	}
	return nil
}
