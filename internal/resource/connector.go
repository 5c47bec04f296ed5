package resource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/roach88/statewire/internal/ir"
	"github.com/roach88/statewire/internal/state"
)

// Cell is a resource state holding graph values.
type Cell = state.Resource[ir.Value, state.ReadError]

// Result is the envelope a Cell delivers.
type Result = state.Result[ir.Value, state.ReadError]

// Connector is a connector for Cells.
type Connector = state.Connector[ir.Value, state.ReadError]

// DefaultPollInterval is used by polling backends when none is configured.
const DefaultPollInterval = time.Second

func ok(v ir.Value) Result {
	return state.Ok[ir.Value, state.ReadError](v)
}

// failure converts an I/O error to an Err result.
func failure(op string, err error) Result {
	code := state.CodeUnavailable
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		code = state.CodeTimeout
	}
	return state.Err[ir.Value](state.NewReadError(code, fmt.Sprintf("%s: %v", op, err)))
}

// deliver posts res to r from any goroutine.
func deliver(r *Cell, res Result) {
	r.Scheduler().Post(func() { r.UpdateResource(res) })
}

// settle posts the outcome of a write from any goroutine.
func settle(r *Cell, done *state.Future[error], err error) {
	r.Scheduler().Post(func() { done.Resolve(err) })
}

// poll calls fn every interval until ctx is done.
func poll(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// session tracks the goroutines of one live connection.
type session struct {
	cancel context.CancelFunc
}

func startSession(run func(ctx context.Context)) *session {
	ctx, cancel := context.WithCancel(context.Background())
	go run(ctx)
	return &session{cancel: cancel}
}

// stop cancels the session without waiting for it to exit; waiting on the
// scheduler thread could deadlock against a pending Post.
func (s *session) stop() {
	if s != nil {
		s.cancel()
	}
}

func loggerOr(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}
