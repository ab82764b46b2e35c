// Package frame implements the owning execution cycle of a render session:
// a single goroutine that runs posted tasks, completions of background
// work and display-paced frame callbacks, one at a time.
package frame

import (
	"context"
	"sync"
	"time"
)

// DefaultInterval paces frames at 60 Hz.
const DefaultInterval = time.Second / 60

// Loop serializes work onto whichever goroutine drives it with Run or
// Pump. Post and Go are safe to call from any goroutine; everything they
// schedule executes on the driving goroutine.
type Loop struct {
	interval time.Duration

	mu      sync.Mutex
	tasks   []func()
	frames  []func(time.Time)
	pending int

	wake chan struct{}
}

// New returns a loop pacing frames at interval. A non-positive interval
// selects DefaultInterval.
func New(interval time.Duration) *Loop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Loop{
		interval: interval,
		wake:     make(chan struct{}, 1),
	}
}

// Interval returns the frame pacing interval.
func (l *Loop) Interval() time.Duration { return l.interval }

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Post schedules fn to run on the owning cycle before the next frame.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()
	l.signal()
}

// Go runs work on a new goroutine. The function work returns, if any, is
// then run on the owning cycle. Run does not return while such work is
// outstanding.
func (l *Loop) Go(work func() func()) {
	l.mu.Lock()
	l.pending++
	l.mu.Unlock()
	go func() {
		done := work()
		l.Post(func() {
			l.mu.Lock()
			l.pending--
			l.mu.Unlock()
			if done != nil {
				done()
			}
		})
	}()
}

// RequestFrame schedules fn for the next frame tick. Callbacks requested
// while a frame is running are deferred to the following tick.
func (l *Loop) RequestFrame(fn func(now time.Time)) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.frames = append(l.frames, fn)
	l.mu.Unlock()
	l.signal()
}

// Pending reports queued tasks, requested frames and outstanding
// background work.
func (l *Loop) Pending() (tasks, frames, background int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks), len(l.frames), l.pending
}

// Idle reports whether nothing is queued, requested or outstanding.
func (l *Loop) Idle() bool {
	t, f, b := l.Pending()
	return t == 0 && f == 0 && b == 0
}

// RunTasks runs every task queued so far, including tasks they post, and
// returns how many ran.
func (l *Loop) RunTasks() int {
	n := 0
	for {
		l.mu.Lock()
		batch := l.tasks
		l.tasks = nil
		l.mu.Unlock()
		if len(batch) == 0 {
			return n
		}
		for _, fn := range batch {
			fn()
			n++
		}
	}
}

// Pump runs queued tasks and then one frame tick at now. It returns the
// number of frame callbacks invoked.
func (l *Loop) Pump(now time.Time) int {
	l.RunTasks()
	l.mu.Lock()
	batch := l.frames
	l.frames = nil
	l.mu.Unlock()
	for _, fn := range batch {
		fn(now)
	}
	return len(batch)
}

// Run drives the loop on the calling goroutine until it is idle or ctx is
// done. Frames are paced by a ticker at the loop interval.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		l.RunTasks()
		tasks, frames, background := l.Pending()
		if tasks == 0 && frames == 0 && background == 0 {
			return nil
		}
		if tasks > 0 {
			continue
		}
		if frames > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case now := <-ticker.C:
				l.Pump(now)
			case <-l.wake:
			}
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}
