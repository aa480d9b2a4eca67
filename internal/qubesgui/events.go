package qubesgui

import (
	"encoding/binary"
	"fmt"
)

// KeymapSize is the size in bytes of the 256-bit keymap bitmap.
const KeymapSize = 32

// Event is the parsed form of one daemon-to-agent frame. Exactly one
// field is populated, matching Header.Type.
type Event struct {
	Window uint32

	Motion      *MotionEvent
	Crossing    *CrossingEvent
	Close       bool
	Keypress    *KeypressEvent
	Button      *ButtonEvent
	Copy        bool
	Paste       *PasteEvent
	Keymap      *KeymapEvent
	Redraw      *RedrawEvent
	Configure   *Configure
	Focus       *FocusEvent
	WindowFlags *WindowFlagsEvent

	// Unknown is true when the message type is not recognized; the
	// caller should log and skip it.
	Unknown bool
}

// MotionEvent is MSG_MOTION.
type MotionEvent struct {
	Coordinates Coordinates
	// the remaining daemon-supplied fields (state, is_hint) are not
	// consumed by the bridge and are intentionally omitted.
}

// CrossingEvent is MSG_CROSSING. Only logged; fields are opaque.
type CrossingEvent struct {
	Type uint32
}

// KeypressEvent is MSG_KEYPRESS.
type KeypressEvent struct {
	Type    uint32
	Keycode int32
}

// ButtonEvent is MSG_BUTTON.
type ButtonEvent struct {
	Type   uint32
	Button uint32
}

// PasteEvent is MSG_CLIPBOARD_DATA. Payload is untrusted and opaque.
type PasteEvent struct {
	UntrustedData []byte
}

// KeymapEvent is MSG_KEYMAP_NOTIFY: a 256-bit bitmap, bit i set means
// key i is currently pressed.
type KeymapEvent struct {
	Keys [KeymapSize]byte
}

// Pressed reports whether bit i (i in [0,256)) is set.
func (k KeymapEvent) Pressed(i int) bool {
	return (k.Keys[i/8]>>(uint(i)%8))&1 == 1
}

// RedrawEvent is MSG_MAP (redraw request). Logged only.
type RedrawEvent struct {
	Rect Rectangle
}

// FocusEvent is MSG_FOCUS.
type FocusEvent struct {
	Type   uint32
	Mode   uint32
	Detail uint32
}

// WindowFlagsEvent is an inbound MSG_WINDOW_FLAGS notification.
type WindowFlagsEvent struct {
	Flags WindowFlags
}

// ParseEvent decodes a frame body according to hdr.Type. It returns
// (Event{Unknown:true}, nil) for any type it does not parse and an
// error only for a body too short to parse its declared type.
func ParseEvent(hdr Header, body []byte) (Event, error) {
	ev := Event{Window: hdr.Window}
	switch hdr.Type {
	case MsgMotion:
		if len(body) < 8 {
			return ev, fmt.Errorf("qubesgui: short Motion body: %d bytes", len(body))
		}
		ev.Motion = &MotionEvent{Coordinates: Coordinates{
			X: binary.LittleEndian.Uint32(body[0:4]),
			Y: binary.LittleEndian.Uint32(body[4:8]),
		}}
	case MsgCrossing:
		if len(body) < 4 {
			return ev, fmt.Errorf("qubesgui: short Crossing body: %d bytes", len(body))
		}
		ev.Crossing = &CrossingEvent{Type: binary.LittleEndian.Uint32(body[0:4])}
	case MsgClose:
		ev.Close = true
	case MsgKeypress:
		if len(body) < 8 {
			return ev, fmt.Errorf("qubesgui: short Keypress body: %d bytes", len(body))
		}
		ev.Keypress = &KeypressEvent{
			Type:    binary.LittleEndian.Uint32(body[0:4]),
			Keycode: int32(binary.LittleEndian.Uint32(body[4:8])),
		}
	case MsgButton:
		if len(body) < 8 {
			return ev, fmt.Errorf("qubesgui: short Button body: %d bytes", len(body))
		}
		ev.Button = &ButtonEvent{
			Type:   binary.LittleEndian.Uint32(body[0:4]),
			Button: binary.LittleEndian.Uint32(body[4:8]),
		}
	case MsgClipboardReq:
		ev.Copy = true
	case MsgClipboardData:
		ev.Paste = &PasteEvent{UntrustedData: append([]byte(nil), body...)}
	case MsgKeymapNotify:
		var k KeymapEvent
		n := copy(k.Keys[:], body)
		_ = n // short bodies leave the tail zeroed (all released), matching a short daemon write
		ev.Keymap = &k
	case MsgMap:
		if len(body) < rectangleSize {
			return ev, fmt.Errorf("qubesgui: short Redraw body: %d bytes", len(body))
		}
		ev.Redraw = &RedrawEvent{Rect: decodeRectangle(body)}
	case MsgConfigure:
		cfg, err := decodeConfigure(body)
		if err != nil {
			return ev, err
		}
		ev.Configure = &cfg
	case MsgFocus:
		if len(body) < 12 {
			return ev, fmt.Errorf("qubesgui: short Focus body: %d bytes", len(body))
		}
		ev.Focus = &FocusEvent{
			Type:   binary.LittleEndian.Uint32(body[0:4]),
			Mode:   binary.LittleEndian.Uint32(body[4:8]),
			Detail: binary.LittleEndian.Uint32(body[8:12]),
		}
	case MsgWindowFlags:
		if len(body) < 8 {
			return ev, fmt.Errorf("qubesgui: short WindowFlags body: %d bytes", len(body))
		}
		ev.WindowFlags = &WindowFlagsEvent{Flags: WindowFlags{
			Set:   binary.LittleEndian.Uint32(body[0:4]),
			Unset: binary.LittleEndian.Uint32(body[4:8]),
		}}
	default:
		ev.Unknown = true
	}
	return ev, nil
}
