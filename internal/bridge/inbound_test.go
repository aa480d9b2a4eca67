package bridge

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/QubesOS/qubes-gui-agent-wayland/internal/grant"
	"github.com/QubesOS/qubes-gui-agent-wayland/internal/qubesgui"
	"github.com/QubesOS/qubes-gui-agent-wayland/internal/registry"
	"github.com/QubesOS/qubes-gui-agent-wayland/internal/waylandrole"
)

type recordingRole struct {
	kind           waylandrole.Kind
	alive          bool
	configureCalls int
	closeCalls     int
	pendingChanged bool
	activated      bool
	activatedCalls int
}

func (r *recordingRole) Kind() waylandrole.Kind { return r.kind }
func (r *recordingRole) SendConfigure()         { r.configureCalls++ }
func (r *recordingRole) SendClose()             { r.closeCalls++ }
func (r *recordingRole) Alive() bool            { return r.alive }
func (r *recordingRole) Client() waylandrole.Client { return nil }
func (r *recordingRole) SetPendingSize(w, h int32) bool {
	return r.pendingChanged
}
func (r *recordingRole) SetActivated(active bool) bool {
	r.activatedCalls++
	changed := r.activated != active
	r.activated = active
	return changed
}
func (r *recordingRole) Surface() waylandrole.Surface { return nil }

type recordingKeyboard struct {
	keys       []uint32
	focusCalls int
	lastFocus  waylandrole.Surface
}

func (k *recordingKeyboard) Key(keycode uint32, pressed bool, serial uint32, timeMS uint32) {
	k.keys = append(k.keys, keycode)
}
func (k *recordingKeyboard) SetFocus(surface waylandrole.Surface, serial uint32) {
	k.focusCalls++
	k.lastFocus = surface
}

type recordingPointer struct {
	motions []struct{ x, y int32 }
	buttons []struct {
		code    uint32
		pressed bool
	}
	axisCalls []struct {
		kind  waylandrole.AxisKind
		value float64
	}
}

func (p *recordingPointer) Motion(x, y int32, serial uint32, timeMS uint32, focus waylandrole.Surface) {
	p.motions = append(p.motions, struct{ x, y int32 }{x, y})
}
func (p *recordingPointer) Button(code uint32, pressed bool, serial uint32, timeMS uint32) {
	p.buttons = append(p.buttons, struct {
		code    uint32
		pressed bool
	}{code, pressed})
}
func (p *recordingPointer) Axis(kind waylandrole.AxisKind, value float64, timeMS uint32) {
	p.axisCalls = append(p.axisCalls, struct {
		kind  waylandrole.AxisKind
		value float64
	}{kind, value})
}

type recordingSeat struct {
	kb     *recordingKeyboard
	ptr    *recordingPointer
	serial uint32
}

func (s *recordingSeat) Keyboard() waylandrole.Keyboard { return s.kb }
func (s *recordingSeat) Pointer() waylandrole.Pointer   { return s.ptr }
func (s *recordingSeat) NextSerial() uint32 {
	s.serial++
	return s.serial
}

func newTestInbound(t *testing.T) (*InboundTranslator, *registry.Registry, *recordingSeat, *recordingTransport) {
	rt := &recordingTransport{}
	client := qubesgui.NewClient(rt)
	reg := registry.New()
	alloc := grant.NewSHMAllocator(t.TempDir())
	seat := &recordingSeat{kb: &recordingKeyboard{}, ptr: &recordingPointer{}}
	surfaces := make(map[uint32]*SurfaceData)
	running := true
	clock := func() uint32 { return 0 }
	it := NewInboundTranslator(client, alloc, reg, seat, surfaces, clock, &running)
	return it, reg, seat, rt
}

func TestHandleSelfConfigureNoOpWhenUnchanged(t *testing.T) {
	it, _, _, rt := newTestInbound(t)
	cfg := qubesgui.Configure{Rect: qubesgui.Rectangle{Size: qubesgui.WindowSize{Width: 0x200, Height: 0x100}}}
	require.NoError(t, it.handleSelfConfigure(cfg))
	rt.Reset()

	require.NoError(t, it.handleSelfConfigure(cfg))
	require.Empty(t, rt.Bytes(), "unchanged self-configure must be a complete no-op")
}

func TestHandleSelfConfigureResizesOnChange(t *testing.T) {
	it, _, _, rt := newTestInbound(t)
	cfg := qubesgui.Configure{Rect: qubesgui.Rectangle{Size: qubesgui.WindowSize{Width: 8, Height: 8}}}
	require.NoError(t, it.handleSelfConfigure(cfg))

	hdrs := drainFrames(t, rt)
	require.Len(t, hdrs, 3)
	require.Equal(t, qubesgui.MsgWindowDump, hdrs[0].Type)
	require.Equal(t, qubesgui.MsgConfigure, hdrs[1].Type)
	require.Equal(t, qubesgui.MsgShmImage, hdrs[2].Type)
}

func TestHandleClientConfigureSendsShmImageBeforeConfigure(t *testing.T) {
	it, reg, _, rt := newTestInbound(t)
	require.NoError(t, reg.Insert(2, &registry.BackendEntry{Surface: &recordingRole{kind: waylandrole.Toplevel}}))

	cfg := qubesgui.Configure{Rect: qubesgui.Rectangle{Size: qubesgui.WindowSize{Width: 10, Height: 10}}}
	require.NoError(t, it.handleClientConfigure(2, cfg))

	hdrs := drainFrames(t, rt)
	require.Len(t, hdrs, 2)
	require.Equal(t, qubesgui.MsgShmImage, hdrs[0].Type)
	require.Equal(t, qubesgui.MsgConfigure, hdrs[1].Type)

	entry, _ := reg.Get(2)
	require.True(t, entry.Configured)
}

func TestHandleClientConfigureIdempotentWhenUnchanged(t *testing.T) {
	it, reg, _, _ := newTestInbound(t)
	role := &recordingRole{kind: waylandrole.Toplevel, pendingChanged: false}
	require.NoError(t, reg.Insert(2, &registry.BackendEntry{Surface: role, Configured: true}))

	cfg := qubesgui.Configure{Rect: qubesgui.Rectangle{Size: qubesgui.WindowSize{Width: 10, Height: 10}}}
	require.NoError(t, it.handleClientConfigure(2, cfg))
	require.Equal(t, 0, role.configureCalls)
}

func TestHandleClientConfigureUnknownWindowIgnored(t *testing.T) {
	it, _, _, _ := newTestInbound(t)
	cfg := qubesgui.Configure{}
	require.NoError(t, it.handleClientConfigure(99, cfg))
}

func TestHandleCloseSelfWindowStopsRunning(t *testing.T) {
	it, _, _, _ := newTestInbound(t)
	require.NoError(t, it.handleClose(registry.SelfWindowID))
	require.False(t, *it.Running)
}

func TestHandleCloseClientWindow(t *testing.T) {
	it, reg, _, _ := newTestInbound(t)
	role := &recordingRole{kind: waylandrole.Toplevel}
	require.NoError(t, reg.Insert(2, &registry.BackendEntry{Surface: role}))
	require.NoError(t, it.handleClose(2))
	require.Equal(t, 1, role.closeCalls)
}

func TestHandleCloseUnknownWindowIgnored(t *testing.T) {
	it, _, _, _ := newTestInbound(t)
	require.NoError(t, it.handleClose(77))
}

func TestHandleMotionClampsNegativePlacement(t *testing.T) {
	it, reg, seat, _ := newTestInbound(t)
	require.NoError(t, reg.Insert(2, &registry.BackendEntry{
		Surface:   &recordingRole{kind: waylandrole.Toplevel},
		Placement: waylandrole.Point{X: -5, Y: -5},
	}))
	it.handleMotion(2, qubesgui.MotionEvent{Coordinates: qubesgui.Coordinates{X: 10, Y: 10}})
	require.Len(t, seat.ptr.motions, 1)
	require.Equal(t, int32(10), seat.ptr.motions[0].x)
	require.Equal(t, int32(10), seat.ptr.motions[0].y)
}

func TestHandleButtonWheel(t *testing.T) {
	it, _, seat, _ := newTestInbound(t)
	it.handleButton(qubesgui.ButtonEvent{Button: 4})
	require.Len(t, seat.ptr.axisCalls, 1)
	require.Equal(t, waylandrole.AxisVertical, seat.ptr.axisCalls[0].kind)
	require.Equal(t, -wheelScrollStep, seat.ptr.axisCalls[0].value)
}

func TestHandleButtonLeftPressRelease(t *testing.T) {
	it, _, seat, _ := newTestInbound(t)
	it.handleButton(qubesgui.ButtonEvent{Button: 1, Type: 4})
	it.handleButton(qubesgui.ButtonEvent{Button: 1, Type: 5})
	require.Len(t, seat.ptr.buttons, 2)
	require.True(t, seat.ptr.buttons[0].pressed)
	require.False(t, seat.ptr.buttons[1].pressed)
}

func TestHandleButtonBadTypeLogsAndSkips(t *testing.T) {
	it, _, seat, _ := newTestInbound(t)
	it.handleButton(qubesgui.ButtonEvent{Button: 1, Type: 99})
	require.Empty(t, seat.ptr.buttons)
}

func TestHandleKeypressValidRange(t *testing.T) {
	it, _, seat, _ := newTestInbound(t)
	it.handleKeypress(qubesgui.KeypressEvent{Type: 2, Keycode: 38})
	require.Equal(t, []uint32{30}, seat.kb.keys)
}

func TestHandleKeypressOutOfRangeIgnored(t *testing.T) {
	it, _, seat, _ := newTestInbound(t)
	it.handleKeypress(qubesgui.KeypressEvent{Type: 2, Keycode: 3})
	require.Empty(t, seat.kb.keys)
}

func TestHandleKeymapDeliversAll256(t *testing.T) {
	it, _, seat, _ := newTestInbound(t)
	var ev qubesgui.KeymapEvent
	ev.Keys[0] = 0x01
	it.handleKeymap(ev)
	require.Len(t, seat.kb.keys, 256)
}

func TestHandleFocusActivatesToplevelAndSetsKeyboardFocus(t *testing.T) {
	it, reg, seat, _ := newTestInbound(t)
	role := &recordingRole{kind: waylandrole.Toplevel}
	require.NoError(t, reg.Insert(2, &registry.BackendEntry{Surface: role}))
	it.handleFocus(2, qubesgui.FocusEvent{Type: 9, Mode: 0, Detail: 0})
	require.Equal(t, 1, role.activatedCalls)
	require.Equal(t, 1, role.configureCalls)
	require.Equal(t, 1, seat.kb.focusCalls)
}

func TestHandleFocusOutClosesPopup(t *testing.T) {
	it, reg, _, _ := newTestInbound(t)
	role := &recordingRole{kind: waylandrole.Popup}
	require.NoError(t, reg.Insert(2, &registry.BackendEntry{Surface: role}))
	it.handleFocus(2, qubesgui.FocusEvent{Type: 10, Mode: 0, Detail: 0})
	require.Equal(t, 1, role.closeCalls)
}

func TestHandleFocusBadDetailIgnored(t *testing.T) {
	it, reg, seat, _ := newTestInbound(t)
	role := &recordingRole{kind: waylandrole.Toplevel}
	require.NoError(t, reg.Insert(2, &registry.BackendEntry{Surface: role}))
	it.handleFocus(2, qubesgui.FocusEvent{Type: 9, Mode: 0, Detail: 8})
	require.Equal(t, 0, role.activatedCalls)
	require.Equal(t, 0, seat.kb.focusCalls)
}
