package qubesgui

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseEventMotion(t *testing.T) {
	body := make([]byte, 8)
	binary.LittleEndian.PutUint32(body[0:4], 10)
	binary.LittleEndian.PutUint32(body[4:8], 20)
	ev, err := ParseEvent(Header{Type: MsgMotion, Window: 3}, body)
	require.NoError(t, err)
	require.NotNil(t, ev.Motion)
	require.Equal(t, uint32(10), ev.Motion.Coordinates.X)
	require.Equal(t, uint32(20), ev.Motion.Coordinates.Y)
	require.Equal(t, uint32(3), ev.Window)
}

func TestParseEventMotionShortBody(t *testing.T) {
	_, err := ParseEvent(Header{Type: MsgMotion}, []byte{1, 2, 3})
	require.Error(t, err)
}

func TestParseEventClose(t *testing.T) {
	ev, err := ParseEvent(Header{Type: MsgClose}, nil)
	require.NoError(t, err)
	require.True(t, ev.Close)
}

func TestParseEventKeypress(t *testing.T) {
	body := make([]byte, 8)
	binary.LittleEndian.PutUint32(body[0:4], 2) // pressed
	binary.LittleEndian.PutUint32(body[4:8], 38)
	ev, err := ParseEvent(Header{Type: MsgKeypress}, body)
	require.NoError(t, err)
	require.Equal(t, uint32(2), ev.Keypress.Type)
	require.Equal(t, int32(38), ev.Keypress.Keycode)
}

func TestParseEventButton(t *testing.T) {
	body := make([]byte, 8)
	binary.LittleEndian.PutUint32(body[0:4], 4)
	binary.LittleEndian.PutUint32(body[4:8], 0x110)
	ev, err := ParseEvent(Header{Type: MsgButton}, body)
	require.NoError(t, err)
	require.Equal(t, uint32(0x110), ev.Button.Button)
}

func TestParseEventKeymapBitTest(t *testing.T) {
	body := make([]byte, KeymapSize)
	body[1] = 0x02 // bit 9 set
	ev, err := ParseEvent(Header{Type: MsgKeymapNotify}, body)
	require.NoError(t, err)
	require.True(t, ev.Keymap.Pressed(9))
	require.False(t, ev.Keymap.Pressed(8))
}

func TestParseEventKeymapShortBodyLeavesTailZeroed(t *testing.T) {
	ev, err := ParseEvent(Header{Type: MsgKeymapNotify}, []byte{0xFF})
	require.NoError(t, err)
	require.True(t, ev.Keymap.Pressed(0))
	require.False(t, ev.Keymap.Pressed(8))
}

func TestParseEventFocus(t *testing.T) {
	body := make([]byte, 12)
	binary.LittleEndian.PutUint32(body[0:4], 9)
	binary.LittleEndian.PutUint32(body[4:8], 0)
	binary.LittleEndian.PutUint32(body[8:12], 2)
	ev, err := ParseEvent(Header{Type: MsgFocus}, body)
	require.NoError(t, err)
	require.Equal(t, uint32(9), ev.Focus.Type)
	require.Equal(t, uint32(2), ev.Focus.Detail)
}

func TestParseEventConfigure(t *testing.T) {
	c := Configure{Rect: Rectangle{TopLeft: Coordinates{X: 1, Y: 1}, Size: WindowSize{Width: 5, Height: 6}}}
	ev, err := ParseEvent(Header{Type: MsgConfigure}, c.Encode())
	require.NoError(t, err)
	require.Equal(t, c, *ev.Configure)
}

func TestParseEventUnknown(t *testing.T) {
	ev, err := ParseEvent(Header{Type: 0xDEAD}, nil)
	require.NoError(t, err)
	require.True(t, ev.Unknown)
}
