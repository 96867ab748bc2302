package core

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBusStopsAtFirstHandler(t *testing.T) {
	bus := NewEventBus()
	var calls []string

	require.True(t, bus.Register(EVENT_CODE_KEY_PRESSED, "a", func(ctx EventContext) bool {
		calls = append(calls, "a")
		return ctx.Key == KEY_ESCAPE
	}))
	require.True(t, bus.Register(EVENT_CODE_KEY_PRESSED, "b", func(EventContext) bool {
		calls = append(calls, "b")
		return true
	}))
	assert.False(t, bus.Register(EVENT_CODE_KEY_PRESSED, "a", func(EventContext) bool { return false }))

	assert.True(t, bus.Fire(EventContext{Code: EVENT_CODE_KEY_PRESSED, Key: KEY_W}))
	assert.Equal(t, []string{"a", "b"}, calls)

	calls = nil
	assert.True(t, bus.Fire(EventContext{Code: EVENT_CODE_KEY_PRESSED, Key: KEY_ESCAPE}))
	assert.Equal(t, []string{"a"}, calls)

	assert.True(t, bus.Unregister(EVENT_CODE_KEY_PRESSED, "a"))
	assert.False(t, bus.Unregister(EVENT_CODE_KEY_PRESSED, "a"))
	assert.False(t, bus.Fire(EventContext{Code: EVENT_CODE_RESIZED}))
}

func TestInputSnapshots(t *testing.T) {
	bus := NewEventBus()
	var pressed []KeyCode
	bus.Register(EVENT_CODE_KEY_PRESSED, t, func(ctx EventContext) bool {
		pressed = append(pressed, ctx.Key)
		return true
	})
	in := NewInput(bus)

	in.ProcessKey(KEY_W, true)
	in.ProcessKey(KEY_W, true)
	assert.Equal(t, []KeyCode{KEY_W}, pressed)
	assert.True(t, in.IsKeyDown(KEY_W))
	assert.True(t, in.KeyPressed(KEY_W))

	in.ProcessMouseMove(10, 20)
	in.Update()
	assert.False(t, in.KeyPressed(KEY_W))
	assert.True(t, in.WasKeyDown(KEY_W))

	in.ProcessMouseMove(15, 18)
	dx, dy := in.MouseDelta()
	assert.Equal(t, 5.0, dx)
	assert.Equal(t, -2.0, dy)

	in.ProcessButton(BUTTON_RIGHT, true)
	assert.True(t, in.IsButtonDown(BUTTON_RIGHT))
	in.ProcessMouseWheel(1.5)
	assert.Equal(t, 1.5, in.MouseWheel())
	in.Update()
	assert.Zero(t, in.MouseWheel())
}

func TestFrameMetrics(t *testing.T) {
	m := NewFrameMetrics()
	for i := 0; i < int(AVG_COUNT); i++ {
		m.Update(10 * time.Millisecond)
	}
	assert.InDelta(t, 10.0, m.FrameTime(), 1e-9)
	assert.EqualValues(t, AVG_COUNT, m.Frames())

	// the 101st frame pushes the accumulated time past one second
	for i := 0; i < 71; i++ {
		m.Update(10 * time.Millisecond)
	}
	assert.Equal(t, 100.0, m.FPS())
}

func TestErrorHelpers(t *testing.T) {
	err := NilDependency("window")
	assert.True(t, errors.Is(err, ErrNilDependency))
	assert.Contains(t, err.Error(), "window")

	cause := errors.New("out of device memory")
	err = CreationFailed(cause, "create buffer size %d", 256)
	assert.True(t, errors.Is(err, ErrDeviceCreation))
	assert.Contains(t, err.Error(), "create buffer size 256")
	assert.Contains(t, err.Error(), "out of device memory")

	err = CreationFailed(nil, "create heap %s", "shader")
	assert.True(t, errors.Is(err, ErrDeviceCreation))
}

func TestSetLogLevel(t *testing.T) {
	require.NoError(t, SetLogLevel("warn"))
	assert.Error(t, SetLogLevel("loud"))
	require.NoError(t, SetLogLevel("debug"))
}

func TestClock(t *testing.T) {
	c := NewClock()
	c.Update()
	assert.Zero(t, c.Elapsed())
	c.Start()
	time.Sleep(time.Millisecond)
	c.Update()
	assert.Greater(t, c.Elapsed(), time.Duration(0))
	c.Stop()
	e := c.Elapsed()
	c.Update()
	assert.Equal(t, e, c.Elapsed())
}
