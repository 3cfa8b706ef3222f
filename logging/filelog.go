// Package logging mirrors engine log output to a file so unattended
// runs keep a durable record beyond the terminal.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/log"
)

// NewFileTee wraps primary so every record is also written, as JSON, to
// the file at path. The returned closer owns the file handle.
func NewFileTee(primary slog.Handler, path string) (slog.Handler, io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return &teeHandler{primary: primary, secondary: log.JSONHandler(f)}, f, nil
}

// teeHandler fans one record out to two handlers. The primary handler
// decides enablement so the file never gets records the terminal level
// would suppress.
type teeHandler struct {
	primary   slog.Handler
	secondary slog.Handler
}

func (t *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return t.primary.Enabled(ctx, level)
}

func (t *teeHandler) Handle(ctx context.Context, record slog.Record) error {
	err := t.primary.Handle(ctx, record)
	if ferr := t.secondary.Handle(ctx, record.Clone()); err == nil {
		err = ferr
	}
	return err
}

func (t *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &teeHandler{
		primary:   t.primary.WithAttrs(attrs),
		secondary: t.secondary.WithAttrs(attrs),
	}
}

func (t *teeHandler) WithGroup(name string) slog.Handler {
	return &teeHandler{
		primary:   t.primary.WithGroup(name),
		secondary: t.secondary.WithGroup(name),
	}
}
