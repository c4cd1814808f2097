package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// Field represents a structured logging field
type Field struct {
	Key   string
	Value interface{}
}

var (
	root   hclog.Logger = newRoot("info", false, os.Stderr)
	rootMu sync.RWMutex
)

func newRoot(level string, json bool, out io.Writer) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:       "tonearm",
		Level:      hclog.LevelFromString(level),
		JSONFormat: json,
		Output:     out,
	})
}

// Configure replaces the root logger. Level is one of trace, debug, info, warn, error.
func Configure(level string, json bool) {
	rootMu.Lock()
	defer rootMu.Unlock()
	root = newRoot(level, json, os.Stderr)
}

// SetOutput redirects the root logger, mostly for tests.
func SetOutput(w io.Writer) {
	rootMu.Lock()
	defer rootMu.Unlock()
	root = newRoot(root.GetLevel().String(), false, w)
}

// Root returns the process-wide logger.
func Root() hclog.Logger {
	rootMu.RLock()
	defer rootMu.RUnlock()
	return root
}

// Named returns a sub-logger for a component.
func Named(name string) hclog.Logger {
	return Root().Named(name)
}

// Info logs informational messages (supports both old format and new structured format)
func Info(format string, args ...interface{}) {
	emit(hclog.Info, format, args...)
}

// Warn logs warning messages
func Warn(format string, args ...interface{}) {
	emit(hclog.Warn, format, args...)
}

// Error logs error messages
func Error(format string, args ...interface{}) {
	emit(hclog.Error, format, args...)
}

// Debug logs debug messages
func Debug(format string, args ...interface{}) {
	emit(hclog.Debug, format, args...)
}

// emit formats printf-style arguments. A trailing []Field is logged as key/value pairs.
func emit(level hclog.Level, format string, args ...interface{}) {
	var kv []interface{}
	if len(args) > 0 {
		if fields, ok := args[len(args)-1].([]Field); ok {
			args = args[:len(args)-1]
			kv = flatten(fields)
		}
	}
	msg := format
	switch {
	case len(args) == 0:
	case isKeyValues(format, args):
		kv = append(args, kv...)
	default:
		msg = fmt.Sprintf(format, args...)
	}
	Root().Log(level, msg, kv...)
}

// isKeyValues reports whether args are hclog-style pairs rather than printf
// operands: the message has no verbs and every even argument is a string.
func isKeyValues(format string, args []interface{}) bool {
	if strings.Contains(format, "%") || len(args)%2 != 0 {
		return false
	}
	for i := 0; i < len(args); i += 2 {
		if _, ok := args[i].(string); !ok {
			return false
		}
	}
	return true
}

func flatten(fields []Field) []interface{} {
	kv := make([]interface{}, 0, len(fields)*2)
	for _, f := range fields {
		kv = append(kv, f.Key, f.Value)
	}
	return kv
}

// Helper functions for common field types
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

func Err(key string, err error) Field {
	if err == nil {
		return Field{Key: key, Value: nil}
	}
	return Field{Key: key, Value: err.Error()}
}
