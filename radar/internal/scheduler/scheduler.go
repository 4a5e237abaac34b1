// Package scheduler decides when each source runs: steady intervals
// for cheap REST feeds, a jittered interval inside an active-hours
// window for the browser source, and per-source exponential backoff
// on failure. It owns timing policy only; what a cycle does is the
// caller's RunFunc.
package scheduler

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
)

// Status classifies a completed cycle.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusError   Status = "error"
)

// CycleSummary is the structured report emitted after every cycle.
type CycleSummary struct {
	Source       string        `json:"source"`
	Items        int           `json:"items"`
	Inserted     int           `json:"inserted"`
	Status       Status        `json:"status"`
	ErrorMessage string        `json:"error_message,omitempty"`
	AuthFailures int           `json:"auth_failures,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// RunFunc executes one cycle for the named source.
type RunFunc func(ctx context.Context, source string) CycleSummary

// Window is an hour-of-day range in UTC during which a source may
// run. Start == End means the window never opens.
type Window struct {
	StartHour int
	EndHour   int
}

// Contains reports whether t falls inside the window. Windows may
// wrap midnight (e.g. 22 → 4).
func (w Window) Contains(t time.Time) bool {
	h := t.UTC().Hour()
	if w.StartHour <= w.EndHour {
		return h >= w.StartHour && h < w.EndHour
	}
	return h >= w.StartHour || h < w.EndHour
}

// NextStart returns the next moment the window opens at or after t.
func (w Window) NextStart(t time.Time) time.Time {
	u := t.UTC()
	start := time.Date(u.Year(), u.Month(), u.Day(), w.StartHour, 0, 0, 0, time.UTC)
	if !start.After(u) {
		start = start.Add(24 * time.Hour)
	}
	return start
}

// SourcePlan is the timing policy for one source.
type SourcePlan struct {
	Name     string
	Interval time.Duration
	// JitterPct spreads the interval by ±pct (0.2 = ±20%). Fixed
	// periodicity is a detection fingerprint for the browser source.
	JitterPct float64
	// ActiveHours gates the source to a window. Nil runs around the
	// clock. Outside the window the source sleeps until window start
	// instead of being re-checked every tick.
	ActiveHours *Window
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

func (p *SourcePlan) defaults() {
	if p.Interval <= 0 {
		p.Interval = 30 * time.Minute
	}
	if p.BackoffBase <= 0 {
		p.BackoffBase = 2 * time.Minute
	}
	if p.BackoffCap <= 0 {
		p.BackoffCap = time.Hour
	}
}

type sourceState struct {
	plan        SourcePlan
	lastRun     time.Time
	nextAllowed time.Time
	failCount   int
	running     bool
}

// observe folds a finished cycle into the source's timing state.
// Failure doubles the backoff per consecutive failure, capped;
// anything else resets it and schedules the next jittered run.
func (st *sourceState) observe(sum CycleSummary, now time.Time) {
	st.lastRun = now
	if sum.Status == StatusError {
		st.failCount++
		st.nextAllowed = now.Add(backoffFor(st.plan, st.failCount))
		return
	}
	st.failCount = 0
	st.nextAllowed = now.Add(jitter(st.plan.Interval, st.plan.JitterPct))
}

func backoffFor(plan SourcePlan, failCount int) time.Duration {
	d := plan.BackoffBase
	for i := 1; i < failCount; i++ {
		d *= 2
		if d >= plan.BackoffCap {
			return plan.BackoffCap
		}
	}
	if d > plan.BackoffCap {
		return plan.BackoffCap
	}
	return d
}

func jitter(d time.Duration, pct float64) time.Duration {
	if pct <= 0 {
		return d
	}
	spread := (rand.Float64()*2 - 1) * pct
	return time.Duration(float64(d) * (1 + spread))
}

// Scheduler drives the wake-tick loop.
type Scheduler struct {
	run     RunFunc
	logger  *slog.Logger
	tick    time.Duration
	now     func() time.Time
	onCycle func(CycleSummary)

	mu      sync.Mutex
	sources map[string]*sourceState
	order   []string
	wg      sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTick overrides the wake-tick interval. Default: 60s.
func WithTick(d time.Duration) Option {
	return func(s *Scheduler) { s.tick = d }
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithCycleObserver registers a callback invoked after every cycle.
func WithCycleObserver(fn func(CycleSummary)) Option {
	return func(s *Scheduler) { s.onCycle = fn }
}

// New creates a Scheduler that executes cycles through run.
func New(run RunFunc, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		run:     run,
		logger:  logger,
		tick:    time.Minute,
		now:     time.Now,
		sources: make(map[string]*sourceState),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddSource registers a source plan. Not safe after Start.
func (s *Scheduler) AddSource(plan SourcePlan) {
	plan.defaults()
	s.sources[plan.Name] = &sourceState{plan: plan}
	s.order = append(s.order, plan.Name)
}

// Start runs the loop until ctx is cancelled, then waits for
// in-flight cycles so sessions reach their Closed state instead of
// being abandoned mid-browser.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("scheduler: started", "sources", len(s.order), "tick", s.tick)
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.logger.Info("scheduler: stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep launches a cycle for every eligible source. Each source runs
// in its own goroutine so a slow browser session never starves the
// REST feeds, but one source never overlaps itself.
func (s *Scheduler) sweep(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	var eligible []*sourceState
	for _, name := range s.order {
		st := s.sources[name]
		if st.running {
			continue
		}
		if w := st.plan.ActiveHours; w != nil && !w.Contains(now) {
			next := w.NextStart(now)
			if st.nextAllowed.Before(next) {
				st.nextAllowed = next
				s.logger.Debug("scheduler: outside active hours, sleeping",
					"source", name, "until", next)
			}
			continue
		}
		if now.Before(st.nextAllowed) {
			continue
		}
		st.running = true
		eligible = append(eligible, st)
	}
	s.mu.Unlock()

	for _, st := range eligible {
		st := st
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runSource(ctx, st)
		}()
	}
}

func (s *Scheduler) runSource(ctx context.Context, st *sourceState) {
	name := st.plan.Name
	start := s.now()
	summary := s.run(ctx, name)
	if summary.Source == "" {
		summary.Source = name
	}
	if summary.Duration == 0 {
		summary.Duration = s.now().Sub(start)
	}

	s.mu.Lock()
	st.running = false
	st.observe(summary, s.now())
	next := st.nextAllowed
	s.mu.Unlock()

	s.logger.Info("scheduler: cycle complete",
		"source", name,
		"status", summary.Status,
		"items", summary.Items,
		"inserted", summary.Inserted,
		"duration", summary.Duration,
		"next_allowed", next)

	if s.onCycle != nil {
		s.onCycle(summary)
	}
}
