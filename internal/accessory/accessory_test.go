package accessory

import (
	"testing"
	"time"

	"github.com/jkaflik/shuttersim/internal/shutter"
	"github.com/jkaflik/shuttersim/internal/shutter/driver/simulated"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubShutter struct {
	position int
	target   int
	state    shutter.MotionState
	calls    []int
	h        shutter.UpdateHandler
}

func (s *stubShutter) Name() string                     { return "stub" }
func (s *stubShutter) Position() int                    { return s.position }
func (s *stubShutter) TargetPosition() int              { return s.target }
func (s *stubShutter) State() shutter.MotionState       { return s.state }
func (s *stubShutter) OnUpdate(h shutter.UpdateHandler) { s.h = h }
func (s *stubShutter) SetTarget(position int) {
	s.calls = append(s.calls, position)
	s.target = position
}

func TestNew(t *testing.T) {
	t.Run("name and serial default", func(t *testing.T) {
		a := New(Info{}, &stubShutter{})
		assert.Equal(t, "stub", a.Name())
		assert.NotEmpty(t, a.Info().SerialNumber)
	})

	t.Run("configured serial kept", func(t *testing.T) {
		a := New(Info{Name: "salon", SerialNumber: "SN-1"}, &stubShutter{})
		assert.Equal(t, "salon", a.Name())
		assert.Equal(t, "SN-1", a.Info().SerialNumber)
	})
}

func TestAccessoryGet(t *testing.T) {
	s := &stubShutter{position: 10, target: 40, state: shutter.Decreasing}
	a := New(Info{}, s)

	v, err := a.Get(shutter.CurrentPosition)
	require.NoError(t, err)
	assert.Equal(t, 10, v)

	v, err = a.Get(shutter.TargetPosition)
	require.NoError(t, err)
	assert.Equal(t, 40, v)

	v, err = a.Get(shutter.PositionState)
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	_, err = a.Get(shutter.HoldPosition)
	assert.ErrorIs(t, err, ErrNotReadable)

	assert.Equal(t, map[string]int{
		"CurrentPosition": 10,
		"TargetPosition":  40,
		"PositionState":   0,
	}, a.Values())
}

func TestAccessorySet(t *testing.T) {
	t.Run("target position in range reaches the shutter", func(t *testing.T) {
		s := &stubShutter{}
		a := New(Info{}, s)

		require.NoError(t, a.SetTargetPosition(0))
		require.NoError(t, a.SetTargetPosition(100))
		assert.Equal(t, []int{0, 100}, s.calls)
	})

	t.Run("target position out of range is rejected before the shutter", func(t *testing.T) {
		s := &stubShutter{}
		a := New(Info{}, s)

		assert.ErrorIs(t, a.SetTargetPosition(-1), ErrInvalidRange)
		assert.ErrorIs(t, a.SetTargetPosition(101), ErrInvalidRange)
		assert.Empty(t, s.calls)
	})

	t.Run("hold position is accepted without effect", func(t *testing.T) {
		s := &stubShutter{position: 20, target: 20, state: shutter.Stopped}
		a := New(Info{}, s)

		require.NoError(t, a.SetHoldPosition(true))
		assert.Empty(t, s.calls)
		assert.Equal(t, 20, s.target)
		assert.Equal(t, shutter.Stopped, s.state)
	})

	t.Run("read only characteristics are not writable", func(t *testing.T) {
		a := New(Info{}, &stubShutter{})

		assert.ErrorIs(t, a.Set(shutter.CurrentPosition, 10), ErrNotWritable)
		assert.ErrorIs(t, a.Set(shutter.PositionState, 1), ErrNotWritable)
	})
}

func TestAccessoryOnUpdate(t *testing.T) {
	s := &stubShutter{}
	a := New(Info{}, s)

	var first, second []shutter.Characteristic
	a.OnUpdate(func(c shutter.Characteristic, _ int) { first = append(first, c) })
	a.OnUpdate(func(c shutter.Characteristic, _ int) { second = append(second, c) })

	s.h(shutter.PositionState, int(shutter.Decreasing))
	s.h(shutter.CurrentPosition, 30)

	expected := []shutter.Characteristic{shutter.PositionState, shutter.CurrentPosition}
	assert.Equal(t, expected, first)
	assert.Equal(t, expected, second)
}

func TestAccessoryWithSimulatedShutter(t *testing.T) {
	s := simulated.NewShutter("salon", simulated.WithTravelTime(time.Millisecond*5))
	a := New(Info{}, s)

	require.NoError(t, a.SetTargetPosition(60))
	state, _ := a.Get(shutter.PositionState)
	assert.Equal(t, int(shutter.Decreasing), state)

	assert.Eventually(t, func() bool {
		v, _ := a.Get(shutter.CurrentPosition)
		return v == 60
	}, time.Second, time.Millisecond)
	state, _ = a.Get(shutter.PositionState)
	assert.Equal(t, int(shutter.Stopped), state)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	first := New(Info{Name: "a"}, &stubShutter{})
	second := New(Info{Name: "b"}, &stubShutter{})

	require.NoError(t, r.Add(first))
	require.NoError(t, r.Add(second))
	assert.ErrorIs(t, r.Add(New(Info{Name: "a"}, &stubShutter{})), ErrDuplicate)

	got, err := r.Get("b")
	require.NoError(t, err)
	assert.Same(t, second, got)

	_, err = r.Get("c")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, []*Accessory{first, second}, r.All())
}
