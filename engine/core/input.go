package core

type Button uint16

const (
	BUTTON_LEFT Button = iota
	BUTTON_RIGHT
	BUTTON_MIDDLE
	BUTTON_MAX_BUTTONS
)

// Key code definitions
type KeyCode uint16

const (
	KEY_UNKNOWN  KeyCode = 0x00
	KEY_TAB      KeyCode = 0x09
	KEY_ENTER    KeyCode = 0x0D
	KEY_SHIFT    KeyCode = 0x10
	KEY_CONTROL  KeyCode = 0x11
	KEY_ESCAPE   KeyCode = 0x1B
	KEY_SPACE    KeyCode = 0x20
	KEY_LEFT     KeyCode = 0x25
	KEY_UP       KeyCode = 0x26
	KEY_RIGHT    KeyCode = 0x27
	KEY_DOWN     KeyCode = 0x28
	KEY_A        KeyCode = 0x41
	KEY_C        KeyCode = 0x43
	KEY_D        KeyCode = 0x44
	KEY_E        KeyCode = 0x45
	KEY_F        KeyCode = 0x46
	KEY_Q        KeyCode = 0x51
	KEY_S        KeyCode = 0x53
	KEY_W        KeyCode = 0x57
	KEY_F1       KeyCode = 0x70
	KEY_F2       KeyCode = 0x71
	KEY_F3       KeyCode = 0x72
	KEY_F4       KeyCode = 0x73
	KEYS_MAX_KEYS
)

// Mouse state structure
type MouseState struct {
	X       float64
	Y       float64
	Wheel   float64
	Buttons [BUTTON_MAX_BUTTONS]bool // button states (pressed/released)
}

// Keyboard state structure
type KeyboardState struct {
	Keys [256]bool
}

// Input holds the current and previous snapshots for keyboard and mouse.
// The platform layer writes into it from its callbacks, the frame loop
// calls Update once per frame after everything has read it.
type Input struct {
	keyboardCurrent  KeyboardState
	keyboardPrevious KeyboardState
	mouseCurrent     MouseState
	mousePrevious    MouseState

	events *EventBus
}

// NewInput creates an input snapshot. events may be nil.
func NewInput(events *EventBus) *Input {
	return &Input{events: events}
}

// Update rolls the current state into the previous one.
func (in *Input) Update() {
	in.keyboardPrevious = in.keyboardCurrent
	in.mousePrevious = in.mouseCurrent
	in.mouseCurrent.Wheel = 0
}

// keyboard input
func (in *Input) IsKeyDown(key KeyCode) bool {
	return in.keyboardCurrent.Keys[key]
}

func (in *Input) IsKeyUp(key KeyCode) bool {
	return !in.keyboardCurrent.Keys[key]
}

func (in *Input) WasKeyDown(key KeyCode) bool {
	return in.keyboardPrevious.Keys[key]
}

// KeyPressed is true only on the frame the key went down.
func (in *Input) KeyPressed(key KeyCode) bool {
	return in.keyboardCurrent.Keys[key] && !in.keyboardPrevious.Keys[key]
}

func (in *Input) ProcessKey(key KeyCode, pressed bool) {
	// Only handle this if the state actually changed.
	if in.keyboardCurrent.Keys[key] == pressed {
		return
	}
	in.keyboardCurrent.Keys[key] = pressed

	code := EVENT_CODE_KEY_RELEASED
	if pressed {
		code = EVENT_CODE_KEY_PRESSED
	}
	in.fire(EventContext{Code: code, Key: key})
}

// mouse input
func (in *Input) IsButtonDown(button Button) bool {
	return in.mouseCurrent.Buttons[button]
}

func (in *Input) WasButtonDown(button Button) bool {
	return in.mousePrevious.Buttons[button]
}

func (in *Input) MousePosition() (float64, float64) {
	return in.mouseCurrent.X, in.mouseCurrent.Y
}

// MouseDelta is the pointer movement since the previous frame.
func (in *Input) MouseDelta() (float64, float64) {
	return in.mouseCurrent.X - in.mousePrevious.X, in.mouseCurrent.Y - in.mousePrevious.Y
}

func (in *Input) MouseWheel() float64 {
	return in.mouseCurrent.Wheel
}

func (in *Input) ProcessButton(button Button, pressed bool) {
	if button >= BUTTON_MAX_BUTTONS || in.mouseCurrent.Buttons[button] == pressed {
		return
	}
	in.mouseCurrent.Buttons[button] = pressed

	code := EVENT_CODE_BUTTON_RELEASED
	if pressed {
		code = EVENT_CODE_BUTTON_PRESSED
	}
	in.fire(EventContext{Code: code, Button: button})
}

func (in *Input) ProcessMouseMove(x, y float64) {
	if in.mouseCurrent.X == x && in.mouseCurrent.Y == y {
		return
	}
	in.mouseCurrent.X = x
	in.mouseCurrent.Y = y
	in.fire(EventContext{Code: EVENT_CODE_MOUSE_MOVED, X: x, Y: y})
}

func (in *Input) ProcessMouseWheel(delta float64) {
	in.mouseCurrent.Wheel += delta
	in.fire(EventContext{Code: EVENT_CODE_MOUSE_WHEEL, Y: delta})
}

func (in *Input) fire(ctx EventContext) {
	if in.events != nil {
		in.events.Fire(ctx)
	}
}
