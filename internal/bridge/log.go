package bridge

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// consoleLog writes a host-style log line through the global logger.
// Unknown level names are logged without a level.
func consoleLog(level, message, source string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.NoLevel
	}

	evt := log.WithLevel(lvl)
	if source != "" {
		evt = evt.Str("source", source)
	}
	evt.Msg(message)
}

// LogWriter is a zerolog.LevelWriter feeding the host log sink.
// Outside the host it writes to Fallback, so log calls behave the same everywhere.
type LogWriter struct {
	Adapter  *Adapter
	Source   string
	Fallback io.Writer

	mu sync.RWMutex
}

// NewLogWriter builds a writer for source, falling back to a console writer
func NewLogWriter(a *Adapter, source string) *LogWriter {
	return &LogWriter{
		Adapter:  a,
		Source:   source,
		Fallback: zerolog.ConsoleWriter{Out: os.Stderr},
	}
}

// SetAdapter points the writer at another host bridge
func (w *LogWriter) SetAdapter(a *Adapter) {
	w.mu.Lock()
	w.Adapter = a
	w.mu.Unlock()
}

// Write implements io.Writer
func (w *LogWriter) Write(p []byte) (int, error) {
	return w.WriteLevel(zerolog.NoLevel, p)
}

// WriteLevel implements zerolog.LevelWriter
func (w *LogWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	w.mu.RLock()
	a := w.Adapter
	w.mu.RUnlock()

	if !a.Available() {
		if w.Fallback == nil {
			return len(p), nil
		}
		return w.Fallback.Write(p)
	}

	name := level.String()
	if level == zerolog.NoLevel {
		name = "log"
	}
	a.Log(name, strings.TrimRight(string(p), "\n"), w.Source)
	return len(p), nil
}
