package core

import "sync"

// Key code definitions
type KeyCode uint16

const (
	KEY_UNKNOWN KeyCode = 0x00
	KEY_ENTER   KeyCode = 0x0D
	KEY_ESCAPE  KeyCode = 0x1B
	KEY_SPACE   KeyCode = 0x20
	KEY_R       KeyCode = 0x52

	KEY_F1 KeyCode = 0x70
	KEY_F2 KeyCode = 0x71
	KEY_F3 KeyCode = 0x72
	KEY_F4 KeyCode = 0x73
	KEY_F5 KeyCode = 0x74
	KEY_F6 KeyCode = 0x75
	KEY_F7 KeyCode = 0x76
	KEY_F8 KeyCode = 0x77
	KEY_F9 KeyCode = 0x78

	KEYS_MAX_KEYS KeyCode = 0xFF
)

type inputState struct {
	mu       sync.Mutex
	current  [KEYS_MAX_KEYS]bool
	previous [KEYS_MAX_KEYS]bool
}

var onceInput sync.Once
var input *inputState

func InputInitialize() error {
	onceInput.Do(func() {
		input = &inputState{}
	})
	return nil
}

func InputShutdown() error {
	return nil
}

// InputUpdate copies the current key state into the previous one. Call it
// once at the end of every frame.
func InputUpdate() {
	if input == nil {
		return
	}
	input.mu.Lock()
	defer input.mu.Unlock()
	input.previous = input.current
}

func InputIsKeyDown(key KeyCode) bool {
	if input == nil || key >= KEYS_MAX_KEYS {
		return false
	}
	input.mu.Lock()
	defer input.mu.Unlock()
	return input.current[key]
}

func InputWasKeyDown(key KeyCode) bool {
	if input == nil || key >= KEYS_MAX_KEYS {
		return false
	}
	input.mu.Lock()
	defer input.mu.Unlock()
	return input.previous[key]
}

// InputProcessKey records a key transition and fires the matching event.
func InputProcessKey(key KeyCode, pressed bool) {
	if input == nil || key >= KEYS_MAX_KEYS {
		return
	}
	input.mu.Lock()
	changed := input.current[key] != pressed
	input.current[key] = pressed
	input.mu.Unlock()

	if !changed {
		return
	}
	code := EVENT_CODE_KEY_RELEASED
	if pressed {
		code = EVENT_CODE_KEY_PRESSED
	}
	EventFire(EventContext{
		Type: code,
		Data: &KeyEvent{KeyCode: key},
	})
}
