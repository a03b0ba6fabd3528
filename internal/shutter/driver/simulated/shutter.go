package simulated

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jkaflik/shuttersim/internal/shutter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const DefaultTravelTime = 5 * time.Second

// MovePolicy decides what happens to a pending settle when a new target
// arrives before it fired.
type MovePolicy int

const (
	// CancelPending stops the pending settle timer before scheduling a new one.
	CancelPending MovePolicy = iota
	// OverlapPending leaves earlier timers running. Each timer settles to the
	// target in force when it fires, so a superseded timer completes the newer
	// move before its full travel time.
	OverlapPending
)

var ErrUnknownMovePolicy = errors.New("unknown move policy")

func (p MovePolicy) String() string {
	if p == OverlapPending {
		return "overlap"
	}

	return "cancel"
}

func ParseMovePolicy(s string) (MovePolicy, error) {
	switch strings.ToLower(s) {
	case "", "cancel":
		return CancelPending, nil
	case "overlap":
		return OverlapPending, nil
	}

	return CancelPending, errors.Wrapf(ErrUnknownMovePolicy, "%q", s)
}

type Option func(s *Shutter)

func WithTravelTime(d time.Duration) Option {
	return func(s *Shutter) {
		s.travelTime = d
	}
}

func WithMovePolicy(p MovePolicy) Option {
	return func(s *Shutter) {
		s.policy = p
	}
}

func WithClock(c Clock) Option {
	return func(s *Shutter) {
		s.clock = c
	}
}

// Shutter simulates a motorized covering. Position stays at its pre-move value
// until the travel time elapses, then jumps to the target.
type Shutter struct {
	name       string
	travelTime time.Duration
	policy     MovePolicy
	clock      Clock

	// notifyMu keeps notifications in mutation order and is always taken
	// before mu. Handlers run holding only notifyMu.
	notifyMu sync.Mutex
	mu       sync.Mutex

	updateHandler shutter.UpdateHandler

	currentPosition int
	targetPosition  int
	currentState    shutter.MotionState

	pending Timer
	// move identifies the latest scheduled move.
	move uint64
}

func NewShutter(name string, opts ...Option) *Shutter {
	s := &Shutter{
		name:         name,
		travelTime:   DefaultTravelTime,
		policy:       CancelPending,
		clock:        SystemClock,
		currentState: shutter.Stopped,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Shutter) Name() string {
	return s.name
}

func (s *Shutter) Position() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.currentPosition
}

func (s *Shutter) TargetPosition() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.targetPosition
}

func (s *Shutter) State() shutter.MotionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.currentState
}

func (s *Shutter) TravelTime() time.Duration {
	return s.travelTime
}

func (s *Shutter) MovePolicy() MovePolicy {
	return s.policy
}

func (s *Shutter) OnUpdate(h shutter.UpdateHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.updateHandler = h
}

func (s *Shutter) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return fmt.Sprintf("%s(current=%d target=%d state=%s)", s.name, s.currentPosition, s.targetPosition, s.currentState)
}

func (s *Shutter) SetTarget(targetPosition int) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	logrus.Infof("%s: set target position to %d", s.name, targetPosition)

	if s.policy == CancelPending {
		if s.pending != nil && s.pending.Stop() {
			logrus.Debugf("%s: found pending move, cancel", s.name)
		}
		s.pending = nil
	}
	s.move++

	s.targetPosition = targetPosition
	switch {
	case targetPosition == s.currentPosition:
		s.currentState = shutter.Stopped
	case targetPosition > s.currentPosition:
		s.currentState = shutter.Decreasing
	default:
		s.currentState = shutter.Increasing
	}

	if s.currentState != shutter.Stopped {
		logrus.Debugf("%s: move %d -> %d (%s)", s.name, s.currentPosition, targetPosition, s.travelTime.String())

		move := s.move
		s.pending = s.clock.AfterFunc(s.travelTime, func() {
			s.settle(move)
		})
	} else {
		logrus.Debugf("%s: already on a position %d", s.name, targetPosition)
	}

	state := s.currentState
	h := s.updateHandler
	s.mu.Unlock()

	if h != nil {
		h(shutter.PositionState, int(state))
	}
}

func (s *Shutter) settle(move uint64) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	// a cancelled timer may still fire if Stop raced with expiry
	if s.policy == CancelPending && move != s.move {
		s.mu.Unlock()
		logrus.Debugf("%s: stale move ignored", s.name)
		return
	}
	if move == s.move {
		s.pending = nil
	}

	s.currentPosition = s.targetPosition
	s.currentState = shutter.Stopped
	position := s.currentPosition
	h := s.updateHandler
	s.mu.Unlock()

	logrus.Infof("%s: updated state %s, position %d", s.name, shutter.Stopped, position)

	if h != nil {
		h(shutter.CurrentPosition, position)
		h(shutter.PositionState, int(shutter.Stopped))
	}
}
