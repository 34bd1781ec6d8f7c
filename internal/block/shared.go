package block

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mattjoyce/barline/internal/config"
)

// StateStore persists small per-block JSON values across restarts.
type StateStore interface {
	Load(ctx context.Context, key string, v any) (bool, error)
	Save(ctx context.Context, key string, v any) error
}

// Shared is the process-wide context handed to every block. It is built once
// and closed at shutdown.
type Shared struct {
	Logger *slog.Logger
	HTTP   *http.Client
	State  StateStore // nil when persistence is disabled
	Theme  config.ThemeConfig

	closers []io.Closer
}

// NewShared builds the shared block context. state may be nil.
func NewShared(logger *slog.Logger, state StateStore, theme config.ThemeConfig) *Shared {
	s := &Shared{
		Logger: logger,
		HTTP:   &http.Client{Timeout: 30 * time.Second},
		State:  state,
		Theme:  theme,
	}
	if c, ok := state.(io.Closer); ok {
		s.closers = append(s.closers, c)
	}
	return s
}

// Close releases shared resources.
func (s *Shared) Close() error {
	if s == nil {
		return nil
	}
	s.HTTP.CloseIdleConnections()
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Env is what a factory gets to build one block.
type Env struct {
	ID       int
	Type     string
	Shared   *Shared
	Requests Requester
}

// Logger returns a logger tagged with the block's id and type.
func (e Env) Logger() *slog.Logger {
	var l *slog.Logger
	if e.Shared != nil && e.Shared.Logger != nil {
		l = e.Shared.Logger
	} else {
		l = slog.Default()
	}
	return l.With(slog.Int("block_id", e.ID), slog.String("block", e.Type))
}

// RequestUpdate asks the dispatcher to update this block.
func (e Env) RequestUpdate() error {
	return e.Requests.Request(e.ID)
}

// StateKey is the persistence key for this block.
func (e Env) StateKey() string {
	return fmt.Sprintf("%d:%s", e.ID, e.Type)
}

// LoadState reads this block's persisted value into v. It reports false when
// nothing is stored or persistence is disabled.
func (e Env) LoadState(ctx context.Context, v any) (bool, error) {
	if e.Shared == nil || e.Shared.State == nil {
		return false, nil
	}
	return e.Shared.State.Load(ctx, e.StateKey(), v)
}

// SaveState persists v for this block. It is a no-op without a store.
func (e Env) SaveState(ctx context.Context, v any) error {
	if e.Shared == nil || e.Shared.State == nil {
		return nil
	}
	return e.Shared.State.Save(ctx, e.StateKey(), v)
}
