package responses

import (
	"math"
	"sync"
	"time"
)

// Clock supplies the current time. Tests swap in a fake.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// TimeAccumulator measures whole seconds elapsed since its last reset.
type TimeAccumulator struct {
	mu        sync.Mutex
	clock     Clock
	reference time.Time
}

// NewTimeAccumulator starts accumulating from clock.Now().
func NewTimeAccumulator(clock Clock) *TimeAccumulator {
	if clock == nil {
		clock = SystemClock{}
	}
	return &TimeAccumulator{
		clock:     clock,
		reference: clock.Now(),
	}
}

// ElapsedSeconds rounds the time since the reference to the nearest second.
// A reference in the future counts as zero.
func (a *TimeAccumulator) ElapsedSeconds() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	d := a.clock.Now().Sub(a.reference)
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds()))
}

// Reset moves the reference to now.
func (a *TimeAccumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reference = a.clock.Now()
}

// Reference returns the current reference timestamp.
func (a *TimeAccumulator) Reference() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reference
}

func (a *TimeAccumulator) setReference(t time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reference = t
}
