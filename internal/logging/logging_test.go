package logging

import (
	"bytes"
	"log"
	"os"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
	}{
		{"debug", LevelDebug},
		{"Debug", LevelDebug},
		{"info", LevelInfo},
		{"WARN", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"trace", LevelInfo},
		{"", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := ParseLevel(tt.input)
			if result != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{LevelDebug, "debug"},
		{LevelInfo, "info"},
		{LevelWarn, "warn"},
		{LevelError, "error"},
		{LogLevel(999), "info"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := tt.level.String()
			if result != tt.expected {
				t.Errorf("%v.String() = %q, want %q", tt.level, result, tt.expected)
			}
		})
	}
}

func TestSetLevel(t *testing.T) {
	originalLevel := Level
	originalDebugLogs := DebugLogs
	defer func() {
		Level = originalLevel
		DebugLogs = originalDebugLogs
	}()

	for _, l := range []LogLevel{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		SetLevel(l)
		if Level != l {
			t.Errorf("SetLevel(%v): Level = %v", l, Level)
		}
		if DebugLogs != (l == LevelDebug) {
			t.Errorf("SetLevel(%v): DebugLogs = %v", l, DebugLogs)
		}
	}
}

func TestLevelFiltersOutput(t *testing.T) {
	originalLevel := Level
	originalDebugLogs := DebugLogs
	var buf bytes.Buffer
	log.SetOutput(&buf)
	flags := log.Flags()
	log.SetFlags(0)
	defer func() {
		Level = originalLevel
		DebugLogs = originalDebugLogs
		log.SetOutput(os.Stderr)
		log.SetFlags(flags)
	}()

	SetLevel(LevelWarn)
	Debugf("window reload at %d", 0)
	Infof("opened %s", "disk.img")
	Warnf("geometry query failed")
	Errorf("flush failed")

	out := buf.String()
	if strings.Contains(out, "window reload") || strings.Contains(out, "opened") {
		t.Errorf("debug/info output leaked at warn level: %q", out)
	}
	if !strings.Contains(out, "[WARN] geometry query failed") {
		t.Errorf("missing warn line in %q", out)
	}
	if !strings.Contains(out, "[ERROR] flush failed") {
		t.Errorf("missing error line in %q", out)
	}
}
