package logging

import (
	"log"
	"strings"
)

// LogLevel orders log output from most to least verbose.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Level is the minimum level that is printed.
var Level = LevelInfo

// DebugLogs mirrors Level == LevelDebug for callers that only gate on debug output.
var DebugLogs bool

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	}
	return "info"
}

// ParseLevel converts a flag value into a LogLevel. Unknown values map to info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	}
	return LevelInfo
}

func SetLevel(l LogLevel) {
	Level = l
	DebugLogs = l == LevelDebug
}

func logf(l LogLevel, format string, args ...any) {
	if l < Level {
		return
	}
	log.Printf("["+strings.ToUpper(l.String())+"] "+format, args...)
}

func Debugf(format string, args ...any) {
	if DebugLogs || Level <= LevelDebug {
		log.Printf("[DEBUG] "+format, args...)
	}
}

func Infof(format string, args ...any) {
	logf(LevelInfo, format, args...)
}

func Warnf(format string, args ...any) {
	logf(LevelWarn, format, args...)
}

func Errorf(format string, args ...any) {
	logf(LevelError, format, args...)
}
