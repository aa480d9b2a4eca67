package bridge

import (
	"fmt"
	"log"

	"github.com/QubesOS/qubes-gui-agent-wayland/internal/framebuffer"
	"github.com/QubesOS/qubes-gui-agent-wayland/internal/grant"
	"github.com/QubesOS/qubes-gui-agent-wayland/internal/qubesgui"
	"github.com/QubesOS/qubes-gui-agent-wayland/internal/registry"
	"github.com/QubesOS/qubes-gui-agent-wayland/internal/waylandrole"
)

// Linux input event codes the daemon's Button messages translate to.
const (
	btnLeft   uint32 = 0x110
	btnRight  uint32 = 0x111
	btnMiddle uint32 = 0x112
)

// wheelScrollStep is the axis value Qubes always reports for a wheel
// click.
const wheelScrollStep = 10.0

// InboundTranslator consumes daemon events and drives the registry,
// the seat, and the xdg-shell roles.
type InboundTranslator struct {
	client *qubesgui.Client
	alloc  grant.Allocator
	reg    *registry.Registry
	seat   waylandrole.Seat
	surfaces map[uint32]*SurfaceData

	selfFB            *framebuffer.Manager
	selfWidth         uint32
	selfHeight        uint32

	startedAt func() uint32 // millisecond clock relative to process start

	// Running is cleared when the daemon closes the self-window; the
	// reactor checks it at each loop boundary.
	Running *bool
}

// NewInboundTranslator builds a translator. clockMS returns an
// elapsed-millisecond timestamp relative to process start, used for
// pointer/keyboard event timestamps.
func NewInboundTranslator(client *qubesgui.Client, alloc grant.Allocator, reg *registry.Registry, seat waylandrole.Seat, surfaces map[uint32]*SurfaceData, clockMS func() uint32, running *bool) *InboundTranslator {
	return &InboundTranslator{
		client:    client,
		alloc:     alloc,
		reg:       reg,
		seat:      seat,
		surfaces:  surfaces,
		selfFB:    framebuffer.New(alloc),
		startedAt: clockMS,
		Running:   running,
	}
}

// Dispatch handles a single parsed event. It logs and ignores anything
// the protocol doesn't define a reaction for (Crossing, Redraw,
// WindowFlags inbound, Copy, Paste), and logs+drops events for unknown
// window ids.
func (t *InboundTranslator) Dispatch(ev qubesgui.Event) error {
	switch {
	case ev.Configure != nil:
		return t.handleConfigure(ev.Window, *ev.Configure)
	case ev.Close:
		return t.handleClose(ev.Window)
	case ev.Motion != nil:
		t.handleMotion(ev.Window, *ev.Motion)
	case ev.Button != nil:
		t.handleButton(*ev.Button)
	case ev.Keypress != nil:
		t.handleKeypress(*ev.Keypress)
	case ev.Keymap != nil:
		t.handleKeymap(*ev.Keymap)
	case ev.Focus != nil:
		t.handleFocus(ev.Window, *ev.Focus)
	case ev.Crossing != nil:
		log.Printf("qubes-gui: crossing event for window %d (unhandled)", ev.Window)
	case ev.Redraw != nil:
		log.Printf("qubes-gui: redraw event for window %d (unhandled)", ev.Window)
	case ev.WindowFlags != nil:
		log.Printf("qubes-gui: window-flags event for window %d (unhandled)", ev.Window)
	case ev.Copy:
		log.Printf("qubes-gui: clipboard data requested")
	case ev.Paste != nil:
		log.Printf("qubes-gui: clipboard data reply (%d bytes)", len(ev.Paste.UntrustedData))
	case ev.Unknown:
		log.Printf("qubes-gui: unknown message type for window %d, skipping", ev.Window)
	}
	return nil
}

func (t *InboundTranslator) handleConfigure(window uint32, m qubesgui.Configure) error {
	if window == registry.SelfWindowID {
		return t.handleSelfConfigure(m)
	}
	return t.handleClientConfigure(window, m)
}

// handleSelfConfigure reallocates only on an area change, fills the
// liveness band, and only resends MSG_WINDOW_DUMP when a reallocation
// happened. A Configure reporting the exact same size as last time is
// a complete no-op.
func (t *InboundTranslator) handleSelfConfigure(m qubesgui.Configure) error {
	width, height := m.Rect.Size.Width, m.Rect.Size.Height
	if width == t.selfWidth && height == t.selfHeight {
		return nil
	}
	needsDump, err := t.selfFB.Resize(width, height)
	if err != nil {
		return fmt.Errorf("bridge: self-window resize: %w", err)
	}
	t.selfWidth, t.selfHeight = width, height

	fillSelfWindowLivenessBand(t.selfFB, width, height)

	if needsDump {
		if err := t.client.SendRaw(t.selfFB.Header(), registry.SelfWindowID, qubesgui.MsgWindowDump); err != nil {
			return err
		}
	}
	if err := t.client.Send(m, registry.SelfWindowID); err != nil {
		return err
	}
	return t.client.Send(qubesgui.ShmImage{Rect: m.Rect}, registry.SelfWindowID)
}

func (t *InboundTranslator) handleClientConfigure(window uint32, m qubesgui.Configure) error {
	entry, ok := t.reg.Get(window)
	if !ok {
		log.Printf("qubes-gui: configure for unknown window %d, ignoring", window)
		return nil
	}
	width, height := int32(m.Rect.Size.Width), int32(m.Rect.Size.Height)

	// ShmImage is echoed before Configure.
	if err := t.client.Send(qubesgui.ShmImage{Rect: m.Rect}, window); err != nil {
		return err
	}
	if err := t.client.Send(m, window); err != nil {
		return err
	}

	entry.Placement = waylandrole.Point{X: int32(m.Rect.TopLeft.X), Y: int32(m.Rect.TopLeft.Y)}
	if sd, ok := t.surfaces[window]; ok {
		sd.Coordinates = entry.Placement
	}

	pendingW, pendingH := width, height
	if !entry.Configured {
		pendingW, pendingH = 0, 0
	}
	changed := entry.Surface.SetPendingSize(pendingW, pendingH)
	if !changed && entry.Configured {
		return nil // idempotent: unchanged size, already configured
	}
	entry.Surface.SendConfigure()
	entry.Configured = true
	return nil
}

func (t *InboundTranslator) handleClose(window uint32) error {
	if window == registry.SelfWindowID {
		*t.Running = false
		return nil
	}
	entry, ok := t.reg.Get(window)
	if !ok {
		log.Printf("qubes-gui: close for unknown window %d, ignoring", window)
		return nil
	}
	entry.Surface.SendClose()
	return nil
}

func (t *InboundTranslator) handleMotion(window uint32, m qubesgui.MotionEvent) {
	entry, ok := t.reg.Get(window)
	var focus waylandrole.Surface
	x, y := int32(m.Coordinates.X), int32(m.Coordinates.Y)
	if ok {
		place := entry.Placement
		if place.X < 0 {
			place.X = 0
		}
		if place.Y < 0 {
			place.Y = 0
		}
		x = saturatingAdd32(x, place.X)
		y = saturatingAdd32(y, place.Y)
		if sd, ok := t.surfaces[window]; ok {
			if sd.Geometry != nil {
				x = saturatingAdd32(x, sd.Geometry.Loc.X)
				y = saturatingAdd32(y, sd.Geometry.Loc.Y)
			}
			focus = entry.Surface.Surface()
		}
	}
	serial := t.seat.NextSerial()
	t.seat.Pointer().Motion(x, y, serial, t.startedAt(), focus)
}

func (t *InboundTranslator) handleButton(ev qubesgui.ButtonEvent) {
	time := t.startedAt()
	switch ev.Button {
	case 4, 5, 6, 7:
		kind := waylandrole.AxisVertical
		value := -wheelScrollStep
		switch ev.Button {
		case 4:
			kind, value = waylandrole.AxisVertical, -wheelScrollStep
		case 5:
			kind, value = waylandrole.AxisVertical, wheelScrollStep
		case 6:
			kind, value = waylandrole.AxisHorizontal, -wheelScrollStep
		case 7:
			kind, value = waylandrole.AxisHorizontal, wheelScrollStep
		}
		t.seat.Pointer().Axis(kind, value, time)
	case 1, 2, 3:
		var code uint32
		switch ev.Button {
		case 1:
			code = btnLeft
		case 2:
			code = btnMiddle
		case 3:
			code = btnRight
		}
		pressed, ok := buttonPressed(ev.Type)
		if !ok {
			log.Printf("qubes-gui: daemon bug: strange button event type %d", ev.Type)
			return
		}
		serial := t.seat.NextSerial()
		t.seat.Pointer().Button(code, pressed, serial, time)
	default:
		// other buttons are ignored
	}
}

func buttonPressed(ty uint32) (pressed bool, ok bool) {
	switch ty {
	case 4:
		return true, true
	case 5:
		return false, true
	default:
		return false, false
	}
}

func (t *InboundTranslator) handleKeypress(ev qubesgui.KeypressEvent) {
	if ev.Keycode < 8 || ev.Keycode >= 0x108 {
		log.Printf("qubes-gui: daemon bug: bad keycode %d", ev.Keycode)
		return
	}
	var pressed bool
	switch ev.Type {
	case 2:
		pressed = true
	case 3:
		pressed = false
	default:
		return
	}
	serial := t.seat.NextSerial()
	t.seat.Keyboard().Key(uint32(ev.Keycode-8), pressed, serial, t.startedAt())
}

func (t *InboundTranslator) handleKeymap(ev qubesgui.KeymapEvent) {
	serial := t.seat.NextSerial()
	time := t.startedAt()
	for i := 0; i < 256; i++ {
		t.seat.Keyboard().Key(uint32(i), ev.Pressed(i), serial, time)
	}
}

func (t *InboundTranslator) handleFocus(window uint32, ev qubesgui.FocusEvent) {
	if ev.Mode != 0 {
		log.Printf("qubes-gui: daemon bug: focus event with mode %d (window %d)", ev.Mode, window)
	}
	var hasFocus bool
	switch ev.Type {
	case 9:
		hasFocus = true
	case 10:
		hasFocus = false
	default:
		log.Printf("qubes-gui: daemon bug: bad focus event type %d (window %d)", ev.Type, window)
		return
	}
	if ev.Detail > 7 {
		log.Printf("qubes-gui: daemon bug: bad focus detail %d (window %d)", ev.Detail, window)
		return
	}

	entry, ok := t.reg.Get(window)
	var focusSurface waylandrole.Surface
	if ok {
		role := entry.Surface
		changed := false
		if role.Kind() == waylandrole.Toplevel {
			changed = role.SetActivated(hasFocus)
		} else if role.Kind() == waylandrole.Popup && !hasFocus {
			role.SendClose() // popup_done
		}
		if changed {
			role.SendConfigure()
		}
		if hasFocus {
			focusSurface = role.Surface()
		}
	}
	serial := t.seat.NextSerial()
	t.seat.Keyboard().SetFocus(focusSurface, serial)
}

func saturatingAdd32(a, b int32) int32 {
	sum := int64(a) + int64(b)
	const maxI32 = int64(1)<<31 - 1
	const minI32 = -(int64(1) << 31)
	if sum > maxI32 {
		return int32(maxI32)
	}
	if sum < minI32 {
		return int32(minI32)
	}
	return int32(sum)
}
