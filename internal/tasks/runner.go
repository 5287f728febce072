// Package tasks runs fire-and-forget background work with bounded
// concurrency. Every task runs under a per-session context, so eviction or
// socket close cancels whatever is still pending for that session without
// touching its neighbors.
package tasks

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/govoice/internal/telemetry"
)

type Runner struct {
	base context.Context
	g    *errgroup.Group
	log  *slog.Logger

	mu     sync.Mutex
	scopes map[string]*scope
}

type scope struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewRunner creates an executor capped at limit concurrent tasks. All task
// contexts derive from ctx, so cancelling it drains the executor.
func NewRunner(ctx context.Context, limit int, log *slog.Logger) *Runner {
	if limit <= 0 {
		limit = 64
	}
	if log == nil {
		log = slog.Default()
	}
	g := &errgroup.Group{}
	g.SetLimit(limit)
	return &Runner{
		base:   ctx,
		g:      g,
		log:    log,
		scopes: make(map[string]*scope),
	}
}

// Submit schedules fn under the session's context and reports whether it
// was accepted. Submit never blocks: when the executor is saturated the
// task is dropped with a log line, which callers treat like any other
// transient background failure.
func (r *Runner) Submit(sessionID, name string, fn func(ctx context.Context) error) bool {
	sc := r.scope(sessionID)
	accepted := r.g.TryGo(func() error {
		ctx, span := telemetry.Tracer().Start(sc.ctx, "task."+name,
			trace.WithAttributes(attribute.String("session.id", sessionID)))
		defer span.End()
		if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			r.log.Warn("task.failed", "task", name, "session_id", sessionID, "error", err)
		}
		return nil
	})
	if !accepted {
		r.log.Warn("task.rejected", "task", name, "session_id", sessionID)
	}
	return accepted
}

// CancelSession cancels every pending and running task for the session.
func (r *Runner) CancelSession(sessionID string) {
	r.mu.Lock()
	sc, ok := r.scopes[sessionID]
	delete(r.scopes, sessionID)
	r.mu.Unlock()
	if ok {
		sc.cancel()
	}
}

// Wait blocks until all accepted tasks finish. Call after cancelling the
// base context on shutdown.
func (r *Runner) Wait() {
	r.g.Wait()
}

func (r *Runner) scope(sessionID string) *scope {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sc, ok := r.scopes[sessionID]; ok {
		return sc
	}
	ctx, cancel := context.WithCancel(r.base)
	sc := &scope{ctx: ctx, cancel: cancel}
	r.scopes[sessionID] = sc
	return sc
}
