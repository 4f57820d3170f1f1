package logging_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/signalnine/crucible/internal/logging"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		level     string
		debugSeen bool
		infoSeen  bool
	}{
		{"debug", true, true},
		{"info", false, true},
		{"warn", false, false},
		{"bogus", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			log := logging.New(tt.level, "text", &buf)
			log.Debug("dbg-line")
			log.Info("info-line")
			out := buf.String()
			if strings.Contains(out, "dbg-line") != tt.debugSeen {
				t.Errorf("debug visibility = %v, want %v", !tt.debugSeen, tt.debugSeen)
			}
			if strings.Contains(out, "info-line") != tt.infoSeen {
				t.Errorf("info visibility = %v, want %v", !tt.infoSeen, tt.infoSeen)
			}
		})
	}
}

func TestNewJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New("info", "json", &buf)
	log.Info("hello", "target", "unit_a")
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v: %s", err, buf.String())
	}
	if rec["target"] != "unit_a" {
		t.Errorf("target attr = %v", rec["target"])
	}
}

func TestOrDiscard(t *testing.T) {
	if logging.OrDiscard(nil) == nil {
		t.Fatal("OrDiscard(nil) returned nil")
	}
}
