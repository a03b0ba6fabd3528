// Package accessory exposes a shutter as a set of characteristics that a
// host (MQTT, HTTP) can read and write.
package accessory

import (
	"sync"

	"github.com/google/uuid"
	"github.com/jkaflik/shuttersim/internal/shutter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	ErrInvalidRange = errors.New("value out of range")
	ErrNotReadable  = errors.New("characteristic is not readable")
	ErrNotWritable  = errors.New("characteristic is not writable")
)

type Info struct {
	Name             string `json:"name"`
	Manufacturer     string `json:"manufacturer"`
	Model            string `json:"model"`
	SerialNumber     string `json:"serial_number"`
	FirmwareRevision string `json:"firmware_revision"`
}

type Accessory struct {
	info    Info
	shutter shutter.Shutter

	mu       sync.RWMutex
	handlers []shutter.UpdateHandler
}

func New(info Info, s shutter.Shutter) *Accessory {
	if info.Name == "" {
		info.Name = s.Name()
	}
	if info.SerialNumber == "" {
		info.SerialNumber = uuid.New().String()
	}

	a := &Accessory{info: info, shutter: s}
	s.OnUpdate(a.dispatch)

	return a
}

func (a *Accessory) Name() string {
	return a.info.Name
}

func (a *Accessory) Info() Info {
	return a.info
}

// OnUpdate registers h next to previously registered handlers.
func (a *Accessory) OnUpdate(h shutter.UpdateHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.handlers = append(a.handlers, h)
}

func (a *Accessory) dispatch(c shutter.Characteristic, value int) {
	a.mu.RLock()
	handlers := a.handlers
	a.mu.RUnlock()

	logrus.Debugf("%s: %s changed to %d", a.info.Name, c, value)
	for _, h := range handlers {
		h(c, value)
	}
}

func (a *Accessory) Get(c shutter.Characteristic) (int, error) {
	switch c {
	case shutter.CurrentPosition:
		return a.shutter.Position(), nil
	case shutter.TargetPosition:
		return a.shutter.TargetPosition(), nil
	case shutter.PositionState:
		return int(a.shutter.State()), nil
	}

	return 0, errors.Wrapf(ErrNotReadable, "%s: %s", a.info.Name, c)
}

// Values returns every readable characteristic keyed by name.
func (a *Accessory) Values() map[string]int {
	return map[string]int{
		shutter.CurrentPosition.String(): a.shutter.Position(),
		shutter.TargetPosition.String():  a.shutter.TargetPosition(),
		shutter.PositionState.String():   int(a.shutter.State()),
	}
}

// Set acknowledges as soon as the value is accepted; a target move settles
// later and is reported through OnUpdate handlers.
func (a *Accessory) Set(c shutter.Characteristic, value int) error {
	switch c {
	case shutter.TargetPosition:
		if !shutter.ValidPosition(value) {
			return errors.Wrapf(ErrInvalidRange, "%s: target position %d not in [%d, %d]",
				a.info.Name, value, shutter.MinPosition, shutter.MaxPosition)
		}
		a.shutter.SetTarget(value)
		return nil
	case shutter.HoldPosition:
		logrus.Infof("%s: hold position %t ignored", a.info.Name, value != 0)
		return nil
	}

	return errors.Wrapf(ErrNotWritable, "%s: %s", a.info.Name, c)
}

func (a *Accessory) SetTargetPosition(position int) error {
	return a.Set(shutter.TargetPosition, position)
}

func (a *Accessory) SetHoldPosition(hold bool) error {
	v := 0
	if hold {
		v = 1
	}
	return a.Set(shutter.HoldPosition, v)
}

func (a *Accessory) Identify() {
	logrus.Infof("%s: identify (%s %s, serial %s)", a.info.Name, a.info.Manufacturer, a.info.Model, a.info.SerialNumber)
}
