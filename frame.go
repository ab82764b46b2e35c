package rendercore

import (
	"errors"
	"time"
)

// Frame is passed to the loop callback once per display tick. Clear and
// Draw are submitted in call order. A Frame is only valid during the
// callback it was passed to.
type Frame struct {
	// Elapsed is the time since the first frame of the current loop.
	Elapsed time.Duration
	// Index counts frames of the current loop from zero.
	Index uint64

	s    *Session
	err  error
	done bool
}

// Session returns the session the frame belongs to.
func (f *Frame) Session() *Session { return f.s }

// Clear clears the target like Session.Clear.
func (f *Frame) Clear() error {
	if err := f.check("Frame.Clear"); err != nil {
		return err
	}
	return f.record(f.s.clear())
}

// Draw submits one draw call.
func (f *Frame) Draw(p *Program, g *Geometry, prim Primitive) error {
	if err := f.check("Frame.Draw"); err != nil {
		return err
	}
	return f.record(f.s.draw(p, g, prim))
}

// DrawActive draws with the session's current program.
func (f *Frame) DrawActive(g *Geometry, prim Primitive) error {
	if err := f.check("Frame.DrawActive"); err != nil {
		return err
	}
	if f.s.active == nil {
		return f.record(ErrNoProgram)
	}
	return f.record(f.s.draw(f.s.active, g, prim))
}

func (f *Frame) check(op string) error {
	if f.done || f.s.state == StateReleased {
		return &StateError{Op: op, State: f.s.state}
	}
	return nil
}

func (f *Frame) record(err error) error {
	if err != nil && f.err == nil {
		f.err = err
	}
	return err
}

// StartLoop calls fn once per display tick, at the session's refresh
// rate, while the owning cycle is driven by Run or Pump. It is allowed in
// StateConfigured and StateStopped; restarting after Stop begins a new
// elapsed-time origin.
//
// A Clear or Draw that fails inside fn stops the loop after the frame;
// Run then returns the error.
func (s *Session) StartLoop(fn func(*Frame)) error {
	if err := s.require("StartLoop", StateConfigured, StateStopped); err != nil {
		return err
	}
	if fn == nil {
		return errors.New("rendercore: StartLoop with nil callback")
	}
	s.loopGen++
	s.loopCB = fn
	s.loopStart = time.Time{}
	s.loopErr = nil
	s.state = StateLooping
	s.requestFrame(s.loopGen, 0)
	Logger().Debug("rendercore: loop started", "generation", s.loopGen)
	return nil
}

// Stop ends the loop. The frame in progress, if any, completes; no
// callback begins after Stop returns. Stop is idempotent and may be called
// from inside the callback.
func (s *Session) Stop() {
	if s.state != StateLooping {
		return
	}
	s.state = StateStopped
	s.loopCB = nil
	Logger().Debug("rendercore: loop stopped", "generation", s.loopGen, "frames", s.stats.Frames)
}

// Looping reports whether the loop is running.
func (s *Session) Looping() bool { return s.state == StateLooping }

func (s *Session) requestFrame(gen, index uint64) {
	s.loop.RequestFrame(func(now time.Time) { s.tick(gen, index, now) })
}

// tick runs one loop frame. Frames of an earlier loop generation are
// dropped, so a Stop followed by StartLoop never runs the old callback.
func (s *Session) tick(gen, index uint64, now time.Time) {
	if s.state != StateLooping || s.loopGen != gen || s.loopCB == nil {
		return
	}
	if s.loopStart.IsZero() {
		s.loopStart = now
	}
	elapsed := now.Sub(s.loopStart)
	if elapsed < 0 {
		elapsed = 0
	}

	f := &Frame{Elapsed: elapsed, Index: index, s: s}
	s.loopCB(f)
	f.done = true
	s.stats.Frames++

	if f.err != nil && s.loopGen == gen {
		Logger().Warn("rendercore: frame failed, stopping loop", "frame", index, "err", f.err)
		s.Stop()
		s.loopErr = f.err
		return
	}
	if s.state == StateLooping && s.loopGen == gen {
		s.requestFrame(gen, index+1)
	}
}
