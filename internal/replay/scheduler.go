package replay

import (
	"sync"
	"time"
)

// PlaybackState is a snapshot of the scheduler's controls. CurrentIteration
// is 1-based and always within [1, total].
type PlaybackState struct {
	CurrentIteration int     `json:"current_iteration"`
	Playing          bool    `json:"playing"`
	Speed            float64 `json:"speed"`
	Loop             bool    `json:"loop"`
}

// Scheduler advances a replay's current iteration on a timer. It owns the
// playback state exclusively; renderers read it through State. A single
// pending timer exists at any moment, and a generation counter invalidates
// callbacks from timers that were stopped or rescheduled, so changing speed
// or loop mid-playback never double-schedules and Close never leaves an
// orphaned tick behind.
type Scheduler struct {
	mu        sync.Mutex
	total     int
	state     PlaybackState
	timer     *time.Timer
	gen       int
	closed    bool
	onAdvance func(PlaybackState)
}

// NewScheduler creates a stopped scheduler over totalIterations iterations
// at 1x speed. A totalIterations below 1 is treated as 1.
func NewScheduler(totalIterations int) *Scheduler {
	if totalIterations < 1 {
		totalIterations = 1
	}
	return &Scheduler{
		total: totalIterations,
		state: PlaybackState{CurrentIteration: 1, Speed: 1},
	}
}

// OnAdvance registers a callback invoked (outside the scheduler's lock) each
// time the timer advances the current iteration. Controls such as Scrub do
// not fire it; callers already know the state they just set.
func (s *Scheduler) OnAdvance(fn func(PlaybackState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onAdvance = fn
}

// State returns a copy of the current playback state.
func (s *Scheduler) State() PlaybackState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Play starts or resumes playback. Playing from the final iteration restarts
// the run from iteration 1.
func (s *Scheduler) Play() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.state.Playing {
		return
	}
	if s.state.CurrentIteration >= s.total {
		s.state.CurrentIteration = 1
	}
	s.state.Playing = true
	s.scheduleLocked()
}

// Pause halts playback, retaining the current iteration.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Playing = false
	s.stopTimerLocked()
}

// Stop halts playback and rewinds to iteration 1.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Playing = false
	s.state.CurrentIteration = 1
	s.stopTimerLocked()
}

// Scrub jumps to iteration n, clamped to [1, total]. Scrubbing always pauses
// playback to hand control back to the user.
func (s *Scheduler) Scrub(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 1 {
		n = 1
	}
	if n > s.total {
		n = s.total
	}
	s.state.CurrentIteration = n
	s.state.Playing = false
	s.stopTimerLocked()
}

// SetSpeed changes the playback speed multiplier. Non-positive values are
// ignored. If playing, the pending tick is rescheduled at the new cadence.
func (s *Scheduler) SetSpeed(speed float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if speed <= 0 || s.closed {
		return
	}
	s.state.Speed = speed
	if s.state.Playing {
		s.scheduleLocked()
	}
}

// SetLoop toggles wrap-around at the end of the run.
func (s *Scheduler) SetLoop(loop bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Loop = loop
}

// Close stops the scheduler permanently. Safe to call more than once; no
// tick fires after Close returns.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.state.Playing = false
	s.stopTimerLocked()
}

// scheduleLocked arms the timer for the next tick, replacing any pending one.
func (s *Scheduler) scheduleLocked() {
	s.stopTimerLocked()
	s.gen++
	gen := s.gen
	interval := time.Duration(float64(time.Second) / s.state.Speed)
	s.timer = time.AfterFunc(interval, func() { s.fire(gen) })
}

// stopTimerLocked cancels the pending timer and invalidates in-flight
// callbacks that already left AfterFunc but have not taken the lock yet.
func (s *Scheduler) stopTimerLocked() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler) fire(gen int) {
	s.mu.Lock()
	if s.closed || !s.state.Playing || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.advanceLocked()
	state := s.state
	notify := s.onAdvance
	s.mu.Unlock()

	if notify != nil {
		notify(state)
	}
}

// advanceLocked moves the iteration pointer one step and either arms the
// next tick or, at the end of a non-looping run, parks the scheduler paused
// on the final iteration.
func (s *Scheduler) advanceLocked() {
	next := s.state.CurrentIteration + 1
	if next > s.total {
		// Only reachable when looping: a non-looping run pauses the
		// moment it lands on the final iteration.
		next = 1
	}
	s.state.CurrentIteration = next
	if next >= s.total && !s.state.Loop {
		s.state.Playing = false
		s.stopTimerLocked()
		return
	}
	s.scheduleLocked()
}
