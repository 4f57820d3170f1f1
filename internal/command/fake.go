package command

import (
	"context"
	"sync"
)

// Recorder is a Runner that records every call and answers from a
// user-supplied function. Used by package tests across the module.
type Recorder struct {
	mu     sync.Mutex
	Calls  []Spec
	Handle func(spec Spec) ([]byte, error)
}

func (r *Recorder) Run(ctx context.Context, spec Spec) ([]byte, error) {
	r.mu.Lock()
	r.Calls = append(r.Calls, spec)
	handle := r.Handle
	r.mu.Unlock()
	if handle == nil {
		return nil, nil
	}
	return handle(spec)
}

// Commands returns the recorded calls rendered as strings.
func (r *Recorder) Commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.Calls))
	for i, c := range r.Calls {
		out[i] = c.String()
	}
	return out
}
