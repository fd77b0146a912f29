// Package debug provides the engine's logger. Protocol traces are
// written at debug level and are enabled by setting WAYLAND_DEBUG to a
// positive number, or by setting LOG_LEVEL to debug.
package debug

import (
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
)

var Logger *log.Logger

func init() {
	Logger = New(os.Stderr, os.Getenv("LOG_LEVEL"), os.Getenv("WAYLAND_DEBUG"))
}

// New creates a logger that writes to w. level is a LOG_LEVEL value
// and wayland a WAYLAND_DEBUG value.
func New(w io.Writer, level, wayland string) *log.Logger {
	l := log.NewWithOptions(w, log.Options{Prefix: "wl"})
	l.SetLevel(ParseLevel(level))

	n, err := strconv.ParseInt(wayland, 10, 0)
	if (err == nil) && (n > 0) {
		l.SetLevel(log.DebugLevel)
	}

	return l
}

// ParseLevel converts a LOG_LEVEL value to a level. Unknown values
// yield the default, warn.
func ParseLevel(level string) log.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return log.DebugLevel
	case "INFO":
		return log.InfoLevel
	case "WARN", "WARNING":
		return log.WarnLevel
	case "ERROR":
		return log.ErrorLevel
	case "FATAL":
		return log.FatalLevel
	default:
		return log.WarnLevel
	}
}
