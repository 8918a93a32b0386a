// Package sleep implements the eye-closure timer that decides whether a
// watched person has fallen asleep.
package sleep

import (
	"math"
	"time"

	"vigil/internal/config"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// State of the eye-closure machine.
type State int

const (
	Awake    State = iota
	Watching       // eyes closed, timer running
	Sleeping       // eyes closed for at least the sleep time
)

func (s State) String() string {
	switch s {
	case Awake:
		return "AWAKE"
	case Watching:
		return "WATCHING"
	case Sleeping:
		return "SLEEPING"
	}
	return "UNKNOWN"
}

// Status is the machine output after a frame.
type Status struct {
	State      State
	Confidence float64       // only non-zero while Sleeping
	ClosedFor  time.Duration // time since the eyes closed, 0 when open
	EAR        float64
	Observed   bool // false when the frame carried no face
}

// TransitionFunc is called on every state change.
type TransitionFunc func(from, to State, st Status)

// Monitor is the eye-closure state machine. The frame loop owns it; it is not
// safe for concurrent use.
type Monitor struct {
	th          config.Thresholds
	clock       Clock
	state       State
	closedSince *time.Time
	lastEAR     float64
	onChange    TransitionFunc
}

// New creates a monitor in the Awake state. A nil clock uses the system clock.
func New(th config.Thresholds, clock Clock) *Monitor {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Monitor{th: th, clock: clock}
}

// OnTransition registers fn to run on each state change.
func (m *Monitor) OnTransition(fn TransitionFunc) {
	m.onChange = fn
}

// Observe feeds one eye-aspect-ratio sample.
func (m *Monitor) Observe(ear float64) Status {
	now := m.clock.Now()
	m.lastEAR = ear
	next := m.state

	if ear < m.th.EARThreshold {
		switch {
		case m.closedSince == nil:
			m.closedSince = &now
			next = Watching
		case now.Sub(*m.closedSince) >= m.th.SleepTime:
			next = Sleeping
		}
	} else {
		m.closedSince = nil
		next = Awake
	}

	st := m.status(now, true)
	st.State = next
	if next == Sleeping {
		st.Confidence = m.confidence(now)
	}

	if next != m.state {
		from := m.state
		m.state = next
		if m.onChange != nil {
			m.onChange(from, next, st)
		}
	}
	return st
}

// ObserveMissing handles a frame without a face: nothing changes.
func (m *Monitor) ObserveMissing() Status {
	return m.status(m.clock.Now(), false)
}

// Status reports the current state without feeding a sample.
func (m *Monitor) Status() Status {
	return m.status(m.clock.Now(), false)
}

func (m *Monitor) status(now time.Time, observed bool) Status {
	st := Status{State: m.state, EAR: m.lastEAR, Observed: observed}
	if m.closedSince != nil {
		st.ClosedFor = now.Sub(*m.closedSince)
	}
	if m.state == Sleeping {
		st.Confidence = m.confidence(now)
	}
	return st
}

func (m *Monitor) confidence(now time.Time) float64 {
	if m.closedSince == nil {
		return 0
	}
	return math.Min(float64(now.Sub(*m.closedSince))/float64(m.th.SleepTime), 1.0)
}

// State returns the current state.
func (m *Monitor) State() State { return m.state }
