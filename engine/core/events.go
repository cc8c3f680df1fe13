package core

import "sync"

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01

	// Keyboard key pressed. Data is a *KeyEvent.
	EVENT_CODE_KEY_PRESSED SystemEventCode = 0x02

	// Keyboard key released. Data is a *KeyEvent.
	EVENT_CODE_KEY_RELEASED SystemEventCode = 0x03

	// Resized/resolution changed from the OS. Data is a *SystemEvent.
	EVENT_CODE_RESIZED SystemEventCode = 0x08

	// One or more shader binaries changed on disk. Data is a *FileEvent.
	EVENT_CODE_SHADERS_CHANGED SystemEventCode = 0x10

	// The configuration file changed on disk. Data is a *FileEvent.
	EVENT_CODE_CONFIG_CHANGED SystemEventCode = 0x11

	// Toggle a render pass on or off. Data is a *PassEvent.
	EVENT_CODE_TOGGLE_PASS SystemEventCode = 0x12

	// Select what the composition pass outputs. Data is a *PassEvent.
	EVENT_CODE_SHADING_OUTPUT SystemEventCode = 0x13

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

type EventContext struct {
	Type SystemEventCode
	Data interface{}
}

type KeyEvent struct {
	KeyCode KeyCode
}

type SystemEvent struct {
	WindowWidth  uint32
	WindowHeight uint32
}

type FileEvent struct {
	Path string
}

type PassEvent struct {
	Name  string
	Value string
}

type FnOnEvent func(context EventContext)

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

type eventSystemState struct {
	mu         sync.Mutex
	registered map[SystemEventCode][]*registeredEvent
	queue      []EventContext
}

var onceEvent sync.Once
var eventState *eventSystemState = nil

func EventSystemInitialize() bool {
	onceEvent.Do(func() {
		eventState = &eventSystemState{
			registered: make(map[SystemEventCode][]*registeredEvent),
		}
	})
	return eventState != nil
}

func EventSystemShutdown() error {
	if eventState == nil {
		return nil
	}
	eventState.mu.Lock()
	defer eventState.mu.Unlock()
	eventState.registered = make(map[SystemEventCode][]*registeredEvent)
	eventState.queue = nil
	return nil
}

// EventRegister adds a listener for the given code. A listener can only be
// registered once per code.
func EventRegister(code SystemEventCode, listener interface{}, onEvent FnOnEvent) bool {
	if eventState == nil || code > MAX_EVENT_CODE {
		return false
	}
	eventState.mu.Lock()
	defer eventState.mu.Unlock()

	for _, e := range eventState.registered[code] {
		if e.listener == listener {
			LogWarn("listener already registered for event code `%d`", code)
			return false
		}
	}
	eventState.registered[code] = append(eventState.registered[code], &registeredEvent{
		listener: listener,
		callback: onEvent,
	})
	return true
}

func EventUnregister(code SystemEventCode, listener interface{}) bool {
	if eventState == nil {
		return false
	}
	eventState.mu.Lock()
	defer eventState.mu.Unlock()

	events := eventState.registered[code]
	for i, e := range events {
		if e.listener == listener {
			eventState.registered[code] = append(events[:i], events[i+1:]...)
			return true
		}
	}
	return false
}

// EventFire queues an event. It is safe to call from any goroutine; listeners
// only run when EventDispatch is called from the frame thread.
func EventFire(context EventContext) bool {
	if eventState == nil {
		return false
	}
	eventState.mu.Lock()
	defer eventState.mu.Unlock()
	if len(eventState.registered[context.Type]) == 0 {
		return false
	}
	eventState.queue = append(eventState.queue, context)
	return true
}

// EventDispatch delivers every queued event to its listeners and returns how
// many events were delivered.
func EventDispatch() int {
	if eventState == nil {
		return 0
	}
	eventState.mu.Lock()
	queue := eventState.queue
	eventState.queue = nil
	eventState.mu.Unlock()

	for _, ctx := range queue {
		eventState.mu.Lock()
		listeners := append([]*registeredEvent(nil), eventState.registered[ctx.Type]...)
		eventState.mu.Unlock()
		for _, l := range listeners {
			l.callback(ctx)
		}
	}
	return len(queue)
}
