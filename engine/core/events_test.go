package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventsAreQueuedUntilDispatch(t *testing.T) {
	require.True(t, EventSystemInitialize())
	t.Cleanup(func() { _ = EventSystemShutdown() })

	listener := &struct{ name string }{"resize"}
	var got []uint32
	require.True(t, EventRegister(EVENT_CODE_RESIZED, listener, func(ctx EventContext) {
		se := ctx.Data.(*SystemEvent)
		got = append(got, se.WindowWidth)
	}))
	assert.False(t, EventRegister(EVENT_CODE_RESIZED, listener, func(EventContext) {}), "duplicate listener")

	assert.True(t, EventFire(EventContext{Type: EVENT_CODE_RESIZED, Data: &SystemEvent{WindowWidth: 640}}))
	assert.True(t, EventFire(EventContext{Type: EVENT_CODE_RESIZED, Data: &SystemEvent{WindowWidth: 800}}))
	assert.Empty(t, got)

	assert.Equal(t, 2, EventDispatch())
	assert.Equal(t, []uint32{640, 800}, got)
	assert.Equal(t, 0, EventDispatch())
}

func TestEventFireWithoutListeners(t *testing.T) {
	require.True(t, EventSystemInitialize())
	t.Cleanup(func() { _ = EventSystemShutdown() })

	assert.False(t, EventFire(EventContext{Type: EVENT_CODE_CONFIG_CHANGED}))

	listener := &struct{}{}
	require.True(t, EventRegister(EVENT_CODE_CONFIG_CHANGED, listener, func(EventContext) {}))
	assert.True(t, EventUnregister(EVENT_CODE_CONFIG_CHANGED, listener))
	assert.False(t, EventUnregister(EVENT_CODE_CONFIG_CHANGED, listener))
	assert.False(t, EventFire(EventContext{Type: EVENT_CODE_CONFIG_CHANGED}))
}

func TestInputProcessKeyFiresOnTransition(t *testing.T) {
	require.True(t, EventSystemInitialize())
	require.NoError(t, InputInitialize())
	t.Cleanup(func() { _ = EventSystemShutdown() })

	listener := &struct{}{}
	pressed := 0
	require.True(t, EventRegister(EVENT_CODE_KEY_PRESSED, listener, func(ctx EventContext) {
		if ctx.Data.(*KeyEvent).KeyCode == KEY_F7 {
			pressed++
		}
	}))

	InputProcessKey(KEY_F7, true)
	InputProcessKey(KEY_F7, true)
	EventDispatch()
	assert.Equal(t, 1, pressed)
	assert.True(t, InputIsKeyDown(KEY_F7))
	assert.False(t, InputWasKeyDown(KEY_F7))

	InputUpdate()
	assert.True(t, InputWasKeyDown(KEY_F7))
	InputProcessKey(KEY_F7, false)
	assert.False(t, InputIsKeyDown(KEY_F7))
}

func TestMetricsAverage(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < int(AVG_COUNT); i++ {
		m.Update(0.016)
	}
	assert.InDelta(t, 16.0, m.FrameTime(), 1e-9)
	for i := 0; i < 40; i++ {
		m.Update(0.016)
	}
	assert.Greater(t, m.FPS(), 0.0)
}
