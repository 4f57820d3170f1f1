package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Summary is the result tree of a run: the root describes the run, each
// child one target.
type Summary struct {
	Values   map[string]any `json:"values"`
	Children []*Summary     `json:"children,omitempty"`
}

func NewSummary() *Summary {
	return &Summary{Values: make(map[string]any)}
}

func (s *Summary) Set(key string, value any) *Summary {
	s.Values[key] = value
	return s
}

func (s *Summary) AddChild(child *Summary) {
	s.Children = append(s.Children, child)
}

// Walk visits s and its descendants depth first.
func (s *Summary) Walk(fn func(*Summary)) {
	fn(s)
	for _, c := range s.Children {
		c.Walk(fn)
	}
}

// Consumer flattens a Summary into some persisted form.
type Consumer interface {
	Consume(s *Summary) error
}

type TraceEvent struct {
	Name  string         `json:"name"`
	Phase string         `json:"ph"`
	TS    int64          `json:"ts"`
	Args  map[string]any `json:"args"`
}

type TraceFile struct {
	TraceEvents []TraceEvent `json:"traceEvents"`
}

// TraceEventConsumer writes one instant event per summary node to a
// chrome://tracing compatible file.
type TraceEventConsumer struct {
	Path  string
	Event string
	Now   func() time.Time
}

func NewTraceEventConsumer(path, plugin string) *TraceEventConsumer {
	return &TraceEventConsumer{Path: path, Event: monitorName(plugin), Now: time.Now}
}

func monitorName(plugin string) string {
	b := []byte(plugin)
	for i, c := range b {
		if c == '-' {
			b[i] = '_'
		}
	}
	return string(b) + "_monitor"
}

func (c *TraceEventConsumer) Events(s *Summary) []TraceEvent {
	ts := c.Now().UnixMilli()
	var events []TraceEvent
	s.Walk(func(n *Summary) {
		if !meaningful(n.Values) {
			return
		}
		events = append(events, TraceEvent{Name: c.Event, Phase: "i", TS: ts, Args: n.Values})
	})
	return events
}

// meaningful skips nodes that carry nothing beyond a name.
func meaningful(values map[string]any) bool {
	if len(values) == 0 {
		return false
	}
	if _, ok := values["name"]; ok && len(values) == 1 {
		return false
	}
	return true
}

func (c *TraceEventConsumer) Consume(s *Summary) error {
	events := c.Events(s)
	if events == nil {
		events = []TraceEvent{}
	}
	data, err := json.MarshalIndent(TraceFile{TraceEvents: events}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling trace events: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.Path), 0o755); err != nil {
		return fmt.Errorf("creating trace dir: %w", err)
	}
	return os.WriteFile(c.Path, data, 0o644)
}

func ReadTraceFile(path string) (*TraceFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading trace file: %w", err)
	}
	var tf TraceFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parsing trace file: %w", err)
	}
	return &tf, nil
}
