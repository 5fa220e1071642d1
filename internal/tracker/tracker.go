// Package tracker maintains the ephemeral per-session focus state: the
// depth gauge, elapsed time, and idle detection. Nothing here is persisted;
// a tracker lives exactly as long as its session's live connection.
package tracker

import (
	"sync"
	"time"

	"github.com/flowlabs/flowd/internal/clock"
)

// State is the tracker's activity state.
type State int

const (
	// StateIdle indicates no qualifying input for the idle timeout.
	StateIdle State = iota
	// StateActiveNoSession indicates recent activity outside a session.
	StateActiveNoSession
	// StateActiveInSession indicates recent activity with a session running.
	StateActiveInSession
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActiveNoSession:
		return "active"
	case StateActiveInSession:
		return "in_session"
	default:
		return "unknown"
	}
}

// Config holds tracker tuning knobs.
type Config struct {
	IdleTimeout  time.Duration
	TickInterval time.Duration
	DepthPerTick float64
}

// DefaultConfig returns the reference behavior: 2 minute idle timeout,
// 1 second ticks, 0.5 depth per tick.
func DefaultConfig() Config {
	return Config{
		IdleTimeout:  2 * time.Minute,
		TickInterval: time.Second,
		DepthPerTick: 0.5,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	if c.TickInterval <= 0 {
		c.TickInterval = d.TickInterval
	}
	if c.DepthPerTick <= 0 {
		c.DepthPerTick = d.DepthPerTick
	}
	return c
}

// Snapshot is a point-in-time copy of tracker state.
type Snapshot struct {
	State          string  `json:"state"`
	Depth          float64 `json:"depth"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
	Idle           bool    `json:"idle"`
	InSession      bool    `json:"in_session"`
}

// Tracker is the per-session depth/idle state machine. It is driven by a
// ticker goroutine (Run) and by Touch calls from activity events.
type Tracker struct {
	cfg Config
	clk clock.Clock

	mu             sync.Mutex
	state          State
	depth          float64
	elapsedSeconds int
	lastActivity   time.Time
	inSession      bool
	onTick         func(Snapshot)

	ticker   clock.Ticker
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a tracker in the active-in-session state; the caller starts
// the tick loop with Run.
func New(clk clock.Clock, cfg Config) *Tracker {
	if clk == nil {
		clk = clock.System{}
	}
	cfg = cfg.withDefaults()
	t := &Tracker{
		cfg:          cfg,
		clk:          clk,
		state:        StateActiveInSession,
		inSession:    true,
		lastActivity: clk.Now(),
		done:         make(chan struct{}),
	}
	t.ticker = clk.NewTicker(cfg.TickInterval)
	return t
}

// OnTick registers a callback invoked with a snapshot after every tick.
// Must be set before Run.
func (t *Tracker) OnTick(fn func(Snapshot)) {
	t.mu.Lock()
	t.onTick = fn
	t.mu.Unlock()
}

// Run drives the tracker from its ticker until Stop. Call in a goroutine.
func (t *Tracker) Run() {
	for {
		select {
		case <-t.done:
			return
		case now := <-t.ticker.C():
			t.Tick(now)
		}
	}
}

// Stop cancels the ticker and terminates Run. Safe to call more than once;
// no timer or goroutine survives it.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() {
		t.ticker.Stop()
		close(t.done)
	})
}

// Stopped reports whether the tracker has been stopped.
func (t *Tracker) Stopped() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Touch records a qualifying input event: it restarts the idle deadline and
// immediately leaves the idle state.
func (t *Tracker) Touch() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastActivity = t.clk.Now()
	if t.state == StateIdle {
		if t.inSession {
			t.state = StateActiveInSession
		} else {
			t.state = StateActiveNoSession
		}
	}
}

// EndSession marks the session over; the gauge resets and ticking no longer
// accumulates depth.
func (t *Tracker) EndSession() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inSession = false
	t.depth = 0
	t.elapsedSeconds = 0
	if t.state == StateActiveInSession {
		t.state = StateActiveNoSession
	}
}

// Tick advances the state machine by one tick at the given instant. While
// in session and not idle it adds the configured depth increment up to the
// ceiling of 100; idleness suspends accumulation entirely.
func (t *Tracker) Tick(now time.Time) Snapshot {
	t.mu.Lock()

	if now.Sub(t.lastActivity) >= t.cfg.IdleTimeout {
		t.state = StateIdle
	}

	if t.state == StateActiveInSession {
		t.elapsedSeconds++
		t.depth += t.cfg.DepthPerTick
		if t.depth > 100 {
			t.depth = 100
		}
	}

	snap := t.snapshotLocked()
	onTick := t.onTick
	t.mu.Unlock()

	if onTick != nil {
		onTick(snap)
	}
	return snap
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Depth returns the current depth gauge value.
func (t *Tracker) Depth() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.depth
}

// Elapsed returns accumulated in-session time.
func (t *Tracker) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return time.Duration(t.elapsedSeconds) * time.Second
}

func (t *Tracker) snapshotLocked() Snapshot {
	return Snapshot{
		State:          t.state.String(),
		Depth:          t.depth,
		ElapsedSeconds: t.elapsedSeconds,
		Idle:           t.state == StateIdle,
		InSession:      t.inSession,
	}
}
