package byd

import (
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const (
	// touchTimeout is how long the session waits for another report before
	// it treats the finger as lifted. The protocol has no explicit lift
	// packet in relative mode, so absence of traffic is the only signal.
	defaultTouchTimeout = 32 * time.Millisecond

	// touchDebounce suppresses spurious re-touch flicker right after a
	// touch end; needed to detect tap when edge scrolling.
	defaultTouchDebounce = 64 * time.Millisecond
)

// State is the snapshot handed to the Sink after every frame. All motion is
// surfaced as absolute position; the scroll fields are momentary pulses that
// are set for exactly one report.
type State struct {
	X int32
	Y int32

	Left  bool
	Right bool
	Touch bool

	// FingerPresent is constant true on every emission. The device is an
	// absolute pointer driven by a single finger tool; Touch carries the
	// contact state, this does not vary with it.
	FingerPresent bool

	ScrollUp    bool
	ScrollDown  bool
	ScrollLeft  bool
	ScrollRight bool
}

// Sink consumes state snapshots. Report is called under the session lock and
// must not block.
type Sink interface {
	Report(State)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(State)

func (f SinkFunc) Report(s State) { f(s) }

type sessionOptions struct {
	now          func() time.Time
	touchTimeout time.Duration
	debounce     time.Duration
}

// SessionOption customizes session timing; the defaults match the device.
type SessionOption func(*sessionOptions)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) SessionOption {
	return func(o *sessionOptions) {
		o.now = now
	}
}

// WithTouchTimeout overrides the liveness window.
func WithTouchTimeout(d time.Duration) SessionOption {
	return func(o *sessionOptions) {
		o.touchTimeout = d
	}
}

// WithTouchDebounce overrides the re-touch debounce interval.
func WithTouchDebounce(d time.Duration) SessionOption {
	return func(o *sessionOptions) {
		o.debounce = d
	}
}

// Session holds the accumulated pointer state of one attached pad. It is
// mutated from two directions: the packet path and the liveness timer
// callback. Both run under mu; nothing else may touch the state.
//
// A session is only ever produced by a successful Init.
type Session struct {
	log     *zap.Logger
	sink    Sink
	model   Model
	options sessionOptions

	frames  atomic.Uint64
	reports atomic.Uint64

	mu        sync.Mutex
	closed    bool
	absX      int32
	absY      int32
	relX      int16
	relY      int16
	left      bool
	right     bool
	touch     bool
	vscroll   int8
	hscroll   int8
	lastTouch time.Time
	timer     *time.Timer
}

func newSession(log *zap.Logger, model Model, sink Sink, opts ...SessionOption) *Session {
	options := sessionOptions{
		now:          time.Now,
		touchTimeout: defaultTouchTimeout,
		debounce:     defaultTouchDebounce,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Session{
		log:     log,
		sink:    sink,
		model:   model,
		options: options,
	}
}

// Model returns the descriptor matched during detection.
func (s *Session) Model() Model {
	return s.model
}

// Frames returns the number of frames processed so far.
func (s *Session) Frames() uint64 {
	return s.frames.Load()
}

// Reports returns the number of snapshots emitted so far.
func (s *Session) Reports() uint64 {
	return s.reports.Load()
}

// ProcessPacket consumes one complete frame, updates the accumulated state
// and emits a snapshot. Unrecognized packet types leave the state as last
// computed but are still emitted.
func (s *Session) ProcessPacket(p Packet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.frames.Inc()
	now := s.options.now()

	switch p.Type() {
	case PacketAbsolute:
		// On first touch the absolute packet anchors the start location.
		// While a touch is in progress later absolute packets are ignored:
		// anchored motion arrives as relative deltas.
		if !s.touch {
			s.left, s.right = p.Buttons()
			s.absX = p.AbsX()
			s.absY = p.AbsY()
			if now.Sub(s.lastTouch) > s.options.debounce {
				s.touch = true
			}
		}
	case PacketRelative:
		s.left, s.right = p.Buttons()
		s.relX = p.RelX()
		s.relY = p.RelY()
		s.absX = clampCoord(s.absX+int32(s.relX)*relUnitScale, PadWidth)
		s.absY = clampCoord(s.absY+int32(s.relY)*relUnitScale, PadHeight)
		s.touch = true
	case PacketTwoFingerUp:
		s.vscroll = 1
		s.report()
		s.vscroll = 0
	case PacketTwoFingerDown:
		s.vscroll = -1
		s.report()
		s.vscroll = 0
	case PacketTwoFingerRight:
		s.hscroll = -1
		s.report()
		s.hscroll = 0
	case PacketTwoFingerLeft:
		s.hscroll = 1
		s.report()
		s.hscroll = 0
	default:
		s.log.Debug("unhandled packet type", zap.Uint8("type", byte(p.Type())))
	}

	s.report()

	if s.touch {
		// the deadline basis must be the same instant the timer is armed
		// from, after the sink call, not the frame arrival time
		s.lastTouch = s.options.now()
		s.armTimer()
	}
}

// report emits the current state. Two-finger scroll pulses are communicated
// as a press/release pair: one report with the pulse set, then the
// end-of-frame report with it cleared.
func (s *Session) report() {
	s.reports.Inc()
	s.sink.Report(State{
		X:             s.absX,
		Y:             s.absY,
		Left:          s.left,
		Right:         s.right,
		Touch:         s.touch,
		FingerPresent: true,
		ScrollUp:      s.vscroll == 1,
		ScrollDown:    s.vscroll == -1,
		ScrollLeft:    s.hscroll == 1,
		ScrollRight:   s.hscroll == -1,
	})
}

// armTimer (re)arms the single-shot liveness deadline. The timer is created
// lazily so a fresh session carries no pending deadline until the first
// touch frame.
func (s *Session) armTimer() {
	if s.timer == nil {
		s.timer = time.AfterFunc(s.options.touchTimeout, s.touchTimedOut)
		return
	}
	s.timer.Reset(s.options.touchTimeout)
}

func (s *Session) touchTimedOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	// the timer is only armed while a touch is active, so the early
	// returns never owe an emission
	if s.closed || !s.touch {
		return
	}
	// Reset does not stop a callback that has already fired and is waiting
	// on mu; a frame may have extended the deadline in the meantime
	if elapsed := s.options.now().Sub(s.lastTouch); elapsed < s.options.touchTimeout {
		s.timer.Reset(s.options.touchTimeout - elapsed)
		return
	}
	s.touch = false
	s.report()
}

// Close cancels the liveness timer and marks the session dead. A timer
// callback that already fired blocks on mu and then observes closed, so no
// state mutation or emission can happen after Close returns.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	timer := s.timer
	s.timer = nil
	s.mu.Unlock()
	if timer != nil {
		timer.Stop()
	}
}

func clampCoord(v, max int32) int32 {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
