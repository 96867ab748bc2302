package core

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01
	// Keyboard key pressed. Key holds the key code.
	EVENT_CODE_KEY_PRESSED SystemEventCode = 0x02
	// Keyboard key released. Key holds the key code.
	EVENT_CODE_KEY_RELEASED SystemEventCode = 0x03
	// Mouse button pressed. Button holds the button.
	EVENT_CODE_BUTTON_PRESSED SystemEventCode = 0x04
	// Mouse button released. Button holds the button.
	EVENT_CODE_BUTTON_RELEASED SystemEventCode = 0x05
	// Mouse moved. X and Y hold the new position.
	EVENT_CODE_MOUSE_MOVED SystemEventCode = 0x06
	// Mouse wheel. Y holds the delta.
	EVENT_CODE_MOUSE_WHEEL SystemEventCode = 0x07
	// Resized/resolution changed from the OS. Width and Height hold the new client size.
	EVENT_CODE_RESIZED SystemEventCode = 0x08

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

type EventContext struct {
	Code   SystemEventCode
	Key    KeyCode
	Button Button
	X, Y   float64
	Width  uint32
	Height uint32
}

// Should return true if handled. A handled event is not passed to later listeners.
type FnOnEvent func(ctx EventContext) bool

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

// EventBus dispatches events synchronously on the caller's goroutine.
type EventBus struct {
	registered map[SystemEventCode][]registeredEvent
}

func NewEventBus() *EventBus {
	return &EventBus{
		registered: make(map[SystemEventCode][]registeredEvent),
	}
}

// Register listens for events sent with the provided code. A listener can
// register once per code; duplicates return false.
func (b *EventBus) Register(code SystemEventCode, listener interface{}, onEvent FnOnEvent) bool {
	for _, e := range b.registered[code] {
		if e.listener == listener {
			LogWarn("listener already registered for event code %d", code)
			return false
		}
	}
	b.registered[code] = append(b.registered[code], registeredEvent{listener: listener, callback: onEvent})
	return true
}

// Unregister removes the listener from the code. Returns false if it was not registered.
func (b *EventBus) Unregister(code SystemEventCode, listener interface{}) bool {
	events := b.registered[code]
	for i, e := range events {
		if e.listener == listener {
			b.registered[code] = append(events[:i], events[i+1:]...)
			return true
		}
	}
	return false
}

// Fire sends ctx to every listener of its code until one handles it.
func (b *EventBus) Fire(ctx EventContext) bool {
	for _, e := range b.registered[ctx.Code] {
		if e.callback(ctx) {
			return true
		}
	}
	return false
}
