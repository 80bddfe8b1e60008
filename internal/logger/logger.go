package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"log/slog"
)

var (
	levelVar   slog.LevelVar
	loggerMu   sync.RWMutex
	baseLogger *slog.Logger
)

func init() {
	levelVar.Set(slog.LevelInfo)
	baseLogger = newLogger(os.Stdout)
}

func newLogger(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: &levelVar})
	return slog.New(handler)
}

func SetOutput(w io.Writer) {
	loggerMu.Lock()
	baseLogger = newLogger(w)
	loggerMu.Unlock()
}

func SetLevel(level string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "info":
		levelVar.Set(slog.LevelInfo)
	case "warn", "warning":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		levelVar.Set(slog.LevelInfo)
	}
}

func activeLogger() *slog.Logger {
	loggerMu.RLock()
	l := baseLogger
	loggerMu.RUnlock()
	if l != nil {
		return l
	}
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if baseLogger == nil {
		baseLogger = newLogger(os.Stdout)
	}
	return baseLogger
}

// Component emits records carrying a component attribute, so one
// subsystem's noise (a flaky portal, the profile watcher) can be filtered
// out of the shared stream.
type Component struct {
	name string
}

// ForComponent returns a logger scoped to one subsystem.
func ForComponent(name string) Component { return Component{name: name} }

func (c Component) Debugf(format string, v ...any) {
	activeLogger().Debug(fmt.Sprintf(format, v...), slog.String("component", c.name))
}

func (c Component) Infof(format string, v ...any) {
	activeLogger().Info(fmt.Sprintf(format, v...), slog.String("component", c.name))
}

func (c Component) Warnf(format string, v ...any) {
	activeLogger().Warn(fmt.Sprintf(format, v...), slog.String("component", c.name))
}

func (c Component) Errorf(format string, v ...any) {
	activeLogger().Error(fmt.Sprintf(format, v...), slog.String("component", c.name))
}

func Debugf(format string, v ...any) {
	activeLogger().Debug(fmt.Sprintf(format, v...))
}

func Infof(format string, v ...any) {
	activeLogger().Info(fmt.Sprintf(format, v...))
}

func Warnf(format string, v ...any) {
	activeLogger().Warn(fmt.Sprintf(format, v...))
}

func Errorf(format string, v ...any) {
	activeLogger().Error(fmt.Sprintf(format, v...))
}
