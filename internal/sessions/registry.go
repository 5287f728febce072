package sessions

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Clock supplies the current instant; injected so eviction and rate limits
// are testable.
type Clock func() time.Time

// Config tunes the registry. Zero values take the defaults below.
type Config struct {
	// IdleAfter is how long a session may sit without activity before
	// eviction. Default 5 minutes.
	IdleAfter time.Duration
	// SweepEvery is the eviction scan interval. Default 60 seconds.
	SweepEvery time.Duration
	// GreetEvery is the minimum gap between greetings per user. Default 5
	// seconds.
	GreetEvery time.Duration
	Clock      Clock
	// OnEvict runs for every evicted session, after it has left the map and
	// been marked abandoned. Callers use it to finalize the persisted row
	// and cancel the session's background work.
	OnEvict func(st *State)
	Log     *slog.Logger
}

// greeter pairs a user's greeting limiter with its last use so stale entries
// can be pruned by the maintenance job.
type greeter struct {
	lim  *rate.Limiter
	seen time.Time
}

// Registry is the in-memory map of live sessions. Exactly one State exists
// per session id; concurrent attaches converge on the first entry.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*State
	greeters map[string]*greeter

	idleAfter  time.Duration
	sweepEvery time.Duration
	greetEvery time.Duration
	clock      Clock
	onEvict    func(*State)
	log        *slog.Logger
}

func NewRegistry(cfg Config) *Registry {
	if cfg.IdleAfter <= 0 {
		cfg.IdleAfter = 5 * time.Minute
	}
	if cfg.SweepEvery <= 0 {
		cfg.SweepEvery = 60 * time.Second
	}
	if cfg.GreetEvery <= 0 {
		cfg.GreetEvery = 5 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Registry{
		sessions:   make(map[string]*State),
		greeters:   make(map[string]*greeter),
		idleAfter:  cfg.IdleAfter,
		sweepEvery: cfg.SweepEvery,
		greetEvery: cfg.GreetEvery,
		clock:      cfg.Clock,
		onEvict:    cfg.OnEvict,
		log:        cfg.Log,
	}
}

// Attach returns the live state for sessionID, creating it when absent.
// When a concurrent peer attached first, the existing entry wins and
// created is false; the late arriver joins it.
func (r *Registry) Attach(sessionID, userID, email string) (st *State, created bool) {
	now := r.clock()
	r.mu.Lock()
	defer r.mu.Unlock()

	if st, ok := r.sessions[sessionID]; ok {
		st.Touch(now)
		return st, false
	}
	st = newState(sessionID, userID, email, now)
	r.sessions[sessionID] = st
	return st, true
}

// Get returns the live state for sessionID, if attached.
func (r *Registry) Get(sessionID string) (*State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.sessions[sessionID]
	return st, ok
}

// Remove detaches sessionID and returns its state, or nil when absent.
func (r *Registry) Remove(sessionID string) *State {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	return st
}

// Len reports the number of attached sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// AllowGreeting reports whether the user may be greeted now. The limit is
// one greeting per GreetEvery per user, shared across that user's sessions.
func (r *Registry) AllowGreeting(userID string) bool {
	now := r.clock()
	r.mu.Lock()
	g, ok := r.greeters[userID]
	if !ok {
		g = &greeter{lim: rate.NewLimiter(rate.Every(r.greetEvery), 1)}
		r.greeters[userID] = g
	}
	g.seen = now
	r.mu.Unlock()
	return g.lim.AllowN(now, 1)
}

// PruneGreeting drops greeting limiters unused for longer than olderThan and
// returns the number removed. Without it the per-user map grows with every
// user ever greeted.
func (r *Registry) PruneGreeting(olderThan time.Duration) int {
	now := r.clock()
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, g := range r.greeters {
		if now.Sub(g.seen) > olderThan {
			delete(r.greeters, id)
			n++
		}
	}
	return n
}

// Run sweeps for idle sessions until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	t := time.NewTicker(r.sweepEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Sweep()
		}
	}
}

// Sweep evicts sessions idle past the threshold, marking each abandoned and
// invoking the eviction callback outside the registry lock. Sessions with a
// turn in flight are skipped so a slow turn is never finalized under itself.
// Returns the number evicted.
func (r *Registry) Sweep() int {
	now := r.clock()

	r.mu.Lock()
	var evicted []*State
	for id, st := range r.sessions {
		if st.Processing() {
			continue
		}
		if now.Sub(st.LastActivity()) > r.idleAfter {
			delete(r.sessions, id)
			evicted = append(evicted, st)
		}
	}
	r.mu.Unlock()

	for _, st := range evicted {
		st.SetPhase(PhaseAbandoned)
		r.log.Info("session.evicted",
			"session_id", st.SessionID,
			"user_id", st.UserID,
			"idle", now.Sub(st.LastActivity()).Round(time.Second).String(),
		)
		if r.onEvict != nil {
			r.onEvict(st)
		}
	}
	return len(evicted)
}
