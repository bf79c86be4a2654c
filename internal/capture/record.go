// Package capture observes a tab's network traffic through CDP events,
// filters and samples it, and buffers matching records for a pull-based
// consumer.
package capture

import (
	"encoding/json"
	"time"
)

// Kind classifies one observed network event.
type Kind string

const (
	KindRequest     Kind = "request"
	KindResponse    Kind = "response"
	KindSocketOpen  Kind = "socket-open"
	KindSocketFrame Kind = "socket-frame"
)

// Record is one captured network event. Immutable once appended to the
// buffer. Exactly one of JSON/Text carries the payload; both may be empty
// when the body was unavailable or not retained.
type Record struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	URL       string          `json:"url"`
	Method    string          `json:"method,omitempty"` // requests
	Status    int64           `json:"status,omitempty"` // responses
	JSON      json.RawMessage `json:"json,omitempty"`
	Text      string          `json:"text,omitempty"`
	Truncated bool            `json:"truncated,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Payload returns the raw payload bytes, preferring the structured body.
func (r Record) Payload() []byte {
	if len(r.JSON) > 0 {
		return r.JSON
	}
	return []byte(r.Text)
}
