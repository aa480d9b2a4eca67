// Package qubesgui implements the wire format of the Qubes GUI protocol:
// the fixed message header, the message bodies the agent emits and
// consumes, and the (de)serialization between them and daemon-facing
// byte streams.
//
// The protocol itself -- framing, message layout, field widths -- is
// not a third-party concern; there is no Go library for it, so this
// package hand-rolls encode/decode using encoding/binary in
// little-endian (the byte order qubes-gui-daemon speaks on x86).
package qubesgui

import (
	"encoding/binary"
	"fmt"
)

// Message type identifiers, matching MSG_* from the Qubes GUI protocol.
const (
	MsgCreate      uint32 = 1
	MsgDestroy     uint32 = 2
	MsgMap         uint32 = 3
	MsgUnmap       uint32 = 4
	MsgConfigure   uint32 = 5
	MsgFocus       uint32 = 6
	MsgClipboardReq uint32 = 7
	MsgClipboardData uint32 = 8
	MsgMotion      uint32 = 9
	MsgCrossing    uint32 = 10
	MsgClose       uint32 = 11
	MsgKeypress    uint32 = 12
	MsgButton      uint32 = 13
	MsgClipboardOld uint32 = 14
	MsgKeymapNotify uint32 = 15
	MsgDock        uint32 = 16
	MsgWindowFlags uint32 = 17
	MsgWindowDump  uint32 = 18
	MsgCursor      uint32 = 19
	MsgSetTitle    uint32 = 20
	MsgShmImage    uint32 = 21
	MsgMapInfo     uint32 = 22
)

// HeaderSize is the size in bytes of a fixed frame header.
const HeaderSize = 12

// TitleBufSize is the fixed size of a MSG_SET_TITLE payload.
const TitleBufSize = 128

// Header is the fixed frame header preceding every message body.
type Header struct {
	Type          uint32
	Window        uint32
	UntrustedLen  uint32
}

// DecodeHeader parses a 12-byte frame header.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("qubesgui: short header: got %d bytes, want %d", len(b), HeaderSize)
	}
	return Header{
		Type:         binary.LittleEndian.Uint32(b[0:4]),
		Window:       binary.LittleEndian.Uint32(b[4:8]),
		UntrustedLen: binary.LittleEndian.Uint32(b[8:12]),
	}, nil
}

// Encode writes the header in wire format.
func (h Header) Encode() []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Type)
	binary.LittleEndian.PutUint32(b[4:8], h.Window)
	binary.LittleEndian.PutUint32(b[8:12], h.UntrustedLen)
	return b
}

// Coordinates is a logical top-left position.
type Coordinates struct {
	X, Y uint32
}

// WindowSize is a width/height pair in pixels.
type WindowSize struct {
	Width, Height uint32
}

// Rectangle is a top-left position plus a size.
type Rectangle struct {
	TopLeft Coordinates
	Size    WindowSize
}

const rectangleSize = 16

func decodeRectangle(b []byte) Rectangle {
	return Rectangle{
		TopLeft: Coordinates{
			X: binary.LittleEndian.Uint32(b[0:4]),
			Y: binary.LittleEndian.Uint32(b[4:8]),
		},
		Size: WindowSize{
			Width:  binary.LittleEndian.Uint32(b[8:12]),
			Height: binary.LittleEndian.Uint32(b[12:16]),
		},
	}
}

func (r Rectangle) encodeInto(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], r.TopLeft.X)
	binary.LittleEndian.PutUint32(b[4:8], r.TopLeft.Y)
	binary.LittleEndian.PutUint32(b[8:12], r.Size.Width)
	binary.LittleEndian.PutUint32(b[12:16], r.Size.Height)
}

// Message is implemented by every outbound message body.
type Message interface {
	// MsgType returns the MSG_* identifier for this message.
	MsgType() uint32
	// Encode returns the wire body (not including the header).
	Encode() []byte
}

// Create is MSG_CREATE: a new window, created with no contents.
type Create struct {
	Rect             Rectangle
	Parent           uint32 // 0 means no parent
	OverrideRedirect uint32
}

func (Create) MsgType() uint32 { return MsgCreate }

func (c Create) Encode() []byte {
	b := make([]byte, rectangleSize+8)
	c.Rect.encodeInto(b)
	binary.LittleEndian.PutUint32(b[rectangleSize:rectangleSize+4], c.Parent)
	binary.LittleEndian.PutUint32(b[rectangleSize+4:rectangleSize+8], c.OverrideRedirect)
	return b
}

// Configure is MSG_CONFIGURE, sent both by the daemon and echoed by
// the agent.
type Configure struct {
	Rect             Rectangle
	OverrideRedirect uint32
}

func (Configure) MsgType() uint32 { return MsgConfigure }

func (c Configure) Encode() []byte {
	b := make([]byte, rectangleSize+4)
	c.Rect.encodeInto(b)
	binary.LittleEndian.PutUint32(b[rectangleSize:rectangleSize+4], c.OverrideRedirect)
	return b
}

func decodeConfigure(b []byte) (Configure, error) {
	if len(b) < rectangleSize+4 {
		return Configure{}, fmt.Errorf("qubesgui: short Configure body: %d bytes", len(b))
	}
	return Configure{
		Rect:             decodeRectangle(b),
		OverrideRedirect: binary.LittleEndian.Uint32(b[rectangleSize : rectangleSize+4]),
	}, nil
}

// MapInfo is MSG_MAP_INFO.
type MapInfo struct {
	OverrideRedirect uint32
	TransientFor     uint32
}

func (MapInfo) MsgType() uint32 { return MsgMapInfo }

func (m MapInfo) Encode() []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b[0:4], m.OverrideRedirect)
	binary.LittleEndian.PutUint32(b[4:8], m.TransientFor)
	return b
}

// ShmImage is MSG_SHMIMAGE: "the rectangle at this offset in my
// shared framebuffer changed, redraw it".
type ShmImage struct {
	Rect Rectangle
}

func (ShmImage) MsgType() uint32 { return MsgShmImage }

func (s ShmImage) Encode() []byte {
	b := make([]byte, rectangleSize)
	s.Rect.encodeInto(b)
	return b
}

// SetTitle is MSG_SET_TITLE: a fixed 128-byte zero-padded buffer.
type SetTitle struct {
	Title [TitleBufSize]byte
}

func (SetTitle) MsgType() uint32 { return MsgSetTitle }

func (s SetTitle) Encode() []byte {
	b := make([]byte, TitleBufSize)
	copy(b, s.Title[:])
	return b
}

// NewSetTitle builds a SetTitle from a Go string, truncating to the
// fixed buffer size and zero-padding the remainder.
func NewSetTitle(title string) SetTitle {
	var s SetTitle
	n := copy(s.Title[:], title)
	for i := n; i < TitleBufSize; i++ {
		s.Title[i] = 0
	}
	return s
}

// Destroy is MSG_DESTROY: an empty body.
type Destroy struct{}

func (Destroy) MsgType() uint32  { return MsgDestroy }
func (Destroy) Encode() []byte   { return nil }

// WindowFlags is MSG_WINDOW_FLAGS.
type WindowFlags struct {
	Set, Unset uint32
}

func (WindowFlags) MsgType() uint32 { return MsgWindowFlags }

func (w WindowFlags) Encode() []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b[0:4], w.Set)
	binary.LittleEndian.PutUint32(b[4:8], w.Unset)
	return b
}
