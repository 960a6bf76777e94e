package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestLevelString(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{DebugLevel, "DEBUG"},
		{InfoLevel, "INFO"},
		{WarnLevel, "WARN"},
		{ErrorLevel, "ERROR"},
		{Level(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("Level(%d).String() = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DebugLevel},
		{"WARN", WarnLevel},
		{"warning", WarnLevel},
		{"error", ErrorLevel},
		{"nonsense", InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoggerFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, WarnLevel)
	l.Info("should not appear")
	l.Warn("should appear")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}
	var decoded entry
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Message != "should appear" || decoded.Level != "WARN" {
		t.Fatalf("unexpected entry: %+v", decoded)
	}
}

func TestWithMergesFields(t *testing.T) {
	var buf bytes.Buffer
	base := New(&buf, DebugLevel).With(Component("lsm"))
	base.Info("flush", Count(3))

	var decoded entry
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Fields["component"] != "lsm" || decoded.Fields["count"].(float64) != 3 {
		t.Fatalf("unexpected fields: %+v", decoded.Fields)
	}
}

func TestErrField(t *testing.T) {
	f := Err(errors.New("boom"))
	if f.Value != "boom" {
		t.Fatalf("got %v", f.Value)
	}
	if Err(nil).Value != nil {
		t.Fatalf("expected nil value for nil error")
	}
}

func TestTimerDone(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, DebugLevel)
	timer := StartTimer(l, "compaction")
	timer.Done()
	if !strings.Contains(buf.String(), "latency") {
		t.Fatalf("expected latency field in %q", buf.String())
	}
}
