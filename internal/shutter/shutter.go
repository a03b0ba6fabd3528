package shutter

import (
	"strings"

	"github.com/pkg/errors"
)

const (
	MinPosition = 0
	MaxPosition = 100
)

// MotionState values match the PositionState characteristic wire values.
type MotionState int

const (
	Decreasing MotionState = iota
	Increasing
	Stopped
)

func (s MotionState) String() string {
	switch s {
	case Decreasing:
		return "decreasing"
	case Increasing:
		return "increasing"
	case Stopped:
		return "stopped"
	}

	return "unknown"
}

type Characteristic int

const (
	CurrentPosition Characteristic = iota
	TargetPosition
	PositionState
	HoldPosition
	Identify
)

var characteristicNames = map[Characteristic]string{
	CurrentPosition: "CurrentPosition",
	TargetPosition:  "TargetPosition",
	PositionState:   "PositionState",
	HoldPosition:    "HoldPosition",
	Identify:        "Identify",
}

var ErrUnknownCharacteristic = errors.New("unknown characteristic")

func (c Characteristic) String() string {
	if name, ok := characteristicNames[c]; ok {
		return name
	}

	return "Unknown"
}

// ParseCharacteristic accepts names case-insensitively, so "targetposition"
// and "TargetPosition" resolve to the same characteristic.
func ParseCharacteristic(name string) (Characteristic, error) {
	for c, n := range characteristicNames {
		if strings.EqualFold(n, name) {
			return c, nil
		}
	}

	return 0, errors.Wrapf(ErrUnknownCharacteristic, "%q", name)
}

func ValidPosition(position int) bool {
	return position >= MinPosition && position <= MaxPosition
}

type UpdateHandler func(c Characteristic, value int)

type Shutter interface {
	Name() string

	Position() int
	TargetPosition() int
	State() MotionState

	OnUpdate(h UpdateHandler)

	// SetTarget expects a position already validated by the caller.
	SetTarget(position int)
}
