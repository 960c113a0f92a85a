package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/skobkin/machinecfg/internal/config"
)

// Manager owns the process logger. Loggers handed out by Logger keep following
// the handler installed by the latest Configure call, so a level or format
// change applies to components created earlier.
type Manager struct {
	mu      sync.Mutex
	file    *os.File
	current atomic.Pointer[slog.Handler]
	root    *slog.Logger
	stdout  io.Writer
}

func NewManager() *Manager {
	m := &Manager{stdout: os.Stdout}
	m.install(slog.NewTextHandler(m.stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	m.root = slog.New(&switchHandler{current: &m.current})

	return m
}

// Configure applies cfg and makes the manager's logger the slog default. The
// previous log file, if any, is closed.
func (m *Manager) Configure(cfg config.LoggingConfig, filePath string) error {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var file *os.File
	out := m.stdout
	if cfg.LogToFile {
		// #nosec G304 -- the path comes from the resolved app paths.
		file, err = os.OpenFile(filepath.Clean(filePath), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		out = newFanoutWriter(m.stdout, file)
	}

	m.install(newHandler(cfg.Format, out, level))
	if m.file != nil {
		_ = m.file.Close()
	}
	m.file = file
	slog.SetDefault(m.root)

	return nil
}

func (m *Manager) Logger(component string) *slog.Logger {
	return m.root.With("component", component)
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file == nil {
		return nil
	}
	// Keep logging to stdout only once the file is gone.
	m.install(slog.NewTextHandler(m.stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	err := m.file.Close()
	m.file = nil

	return err
}

func (m *Manager) install(h slog.Handler) {
	m.current.Store(&h)
}

// switchHandler forwards records to the handler currently installed in the
// manager, replaying the attributes and groups bound through With.
type switchHandler struct {
	current *atomic.Pointer[slog.Handler]
	derive  []func(slog.Handler) slog.Handler
}

func (h *switchHandler) target() slog.Handler {
	out := *h.current.Load()
	for _, fn := range h.derive {
		out = fn(out)
	}

	return out
}

func (h *switchHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return (*h.current.Load()).Enabled(ctx, level)
}

func (h *switchHandler) Handle(ctx context.Context, record slog.Record) error {
	return h.target().Handle(ctx, record)
}

func (h *switchHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.with(func(next slog.Handler) slog.Handler { return next.WithAttrs(attrs) })
}

func (h *switchHandler) WithGroup(name string) slog.Handler {
	return h.with(func(next slog.Handler) slog.Handler { return next.WithGroup(name) })
}

func (h *switchHandler) with(fn func(slog.Handler) slog.Handler) slog.Handler {
	derive := make([]func(slog.Handler) slog.Handler, 0, len(h.derive)+1)
	derive = append(derive, h.derive...)

	return &switchHandler{current: h.current, derive: append(derive, fn)}
}

func newHandler(format config.LogFormat, w io.Writer, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == config.LogFormatJSON {
		return slog.NewJSONHandler(w, opts)
	}

	return slog.NewTextHandler(w, opts)
}

func parseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported log level: %q", raw)
	}
}

// fanoutWriter writes to every destination and succeeds when at least one
// of them took the whole record.
type fanoutWriter []io.Writer

func newFanoutWriter(writers ...io.Writer) io.Writer {
	out := make(fanoutWriter, 0, len(writers))
	for _, w := range writers {
		if w != nil {
			out = append(out, w)
		}
	}

	return out
}

func (w fanoutWriter) Write(p []byte) (int, error) {
	var firstErr error
	delivered := len(w) == 0
	for _, dst := range w {
		n, err := dst.Write(p)
		switch {
		case err != nil:
		case n != len(p):
			err = io.ErrShortWrite
		default:
			delivered = true

			continue
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if delivered {
		return len(p), nil
	}

	return 0, firstErr
}
