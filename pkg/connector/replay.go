package connector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// ErrReplayExhausted is returned when a Replay has no scripted step left.
var ErrReplayExhausted = errors.New("replay: no scripted response left")

// ReplayStep is one scripted outcome. When Err is set the step fails at
// the transport level and the other fields are ignored.
type ReplayStep struct {
	StatusCode int
	Header     http.Header
	Body       string
	Err        error
}

// Replay is a Connector that answers requests from a fixed script and
// records what it was sent. It is meant for tests and offline demos.
type Replay struct {
	mu       sync.Mutex
	steps    []ReplayStep
	requests []*Request
}

// NewReplay returns a Replay that serves steps in order.
func NewReplay(steps ...ReplayStep) *Replay {
	return &Replay{steps: steps}
}

// Add appends steps to the script.
func (r *Replay) Add(steps ...ReplayStep) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, steps...)
}

// Send implements Connector.
func (r *Replay) Send(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.requests = append(r.requests, req.Clone())
	if len(r.steps) == 0 {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w for %s %s", ErrReplayExhausted, req.Method, req.URL)
	}
	step := r.steps[0]
	r.steps = r.steps[1:]
	r.mu.Unlock()

	if step.Err != nil {
		return nil, step.Err
	}

	header := http.Header{}
	for name, values := range step.Header {
		header[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	}
	status := step.StatusCode
	if status == 0 {
		status = http.StatusOK
	}

	return &Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(step.Body)),
		URL:        req.URL,
	}, nil
}

// Requests returns copies of every request sent so far.
func (r *Replay) Requests() []*Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Request, len(r.requests))
	for i, req := range r.requests {
		out[i] = req.Clone()
	}
	return out
}

// Remaining returns the number of unserved steps.
func (r *Replay) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.steps)
}
