package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/sqlrest/internal/postgrest"
)

// Reply is one scripted outcome for RecordingClient.
type Reply struct {
	Response *postgrest.Response
	Err      error
}

// RecordingClient is a postgrest.Client that records every request and
// answers from a script.
//
// Replies are consumed in order. Once the script is exhausted every call
// gets an empty successful response.
//
// Thread-safety: RecordingClient is safe for concurrent use via internal mutex.
type RecordingClient struct {
	mu       sync.Mutex
	requests []*postgrest.Request
	replies  []Reply
}

// NewRecordingClient creates a client that answers with replies in order.
func NewRecordingClient(replies ...Reply) *RecordingClient {
	return &RecordingClient{replies: replies}
}

// Rows builds a successful reply carrying rows.
func Rows(rows ...map[string]any) Reply {
	if rows == nil {
		rows = []map[string]any{}
	}
	return Reply{Response: &postgrest.Response{Rows: rows, Affected: int64(len(rows))}}
}

// Count builds a successful count reply.
func Count(n int64) Reply {
	return Reply{Response: &postgrest.Response{Rows: []map[string]any{}, Count: &n}}
}

// Fail builds a failing reply.
func Fail(err error) Reply {
	return Reply{Err: err}
}

// Execute implements postgrest.Client.
func (c *RecordingClient) Execute(ctx context.Context, req *postgrest.Request) (*postgrest.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if req == nil {
		return nil, fmt.Errorf("RecordingClient: nil request")
	}
	c.requests = append(c.requests, req)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(c.replies) == 0 {
		return &postgrest.Response{Rows: []map[string]any{}}, nil
	}
	reply := c.replies[0]
	c.replies = c.replies[1:]
	return reply.Response, reply.Err
}

// Requests returns the recorded requests in call order.
func (c *RecordingClient) Requests() []*postgrest.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*postgrest.Request, len(c.requests))
	copy(out, c.requests)
	return out
}

// Calls returns the number of recorded requests.
func (c *RecordingClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

// Last returns the most recent request, or nil if none was made.
func (c *RecordingClient) Last() *postgrest.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.requests) == 0 {
		return nil
	}
	return c.requests[len(c.requests)-1]
}
