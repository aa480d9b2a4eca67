package bridge

import (
	"encoding/binary"

	"github.com/QubesOS/qubes-gui-agent-wayland/internal/framebuffer"
	"github.com/QubesOS/qubes-gui-agent-wayland/internal/qubesgui"
	"github.com/QubesOS/qubes-gui-agent-wayland/internal/registry"
)

// selfWindowTitle is the title of the agent's own liveness window.
const selfWindowTitle = "Qubes Demo Rust GUI Agent"

// selfWindowInitialWidth/Height/X/Y are the self-window's starting
// geometry.
const (
	selfWindowInitialWidth  = 0x200
	selfWindowInitialHeight = 0x100
	selfWindowInitialX      = 50
	selfWindowInitialY      = 400
)

// selfWindowFillPixel is the repeated 32-bit pixel value ("0xFF00
// repeated") used as the self-window's liveness indicator fill.
const selfWindowFillPixel uint32 = 0xFF00

// fillSelfWindowLivenessBand fills exactly the band of rows
// [height/4, height/4+height/2) with the repeated fill pixel.
func fillSelfWindowLivenessBand(fb *framebuffer.Manager, width, height uint32) {
	lines := height / 2
	lineWidthBytes := width * bytesPerPixel
	startOffset := int((height / 4) * lineWidthBytes)

	row := make([]byte, lineWidthBytes)
	for px := uint32(0); px+4 <= lineWidthBytes; px += 4 {
		binary.LittleEndian.PutUint32(row[px:px+4], selfWindowFillPixel)
	}
	for i := uint32(0); i < lines; i++ {
		fb.Write(row, startOffset+int(i*lineWidthBytes))
	}
}

// Bootstrap emits the self-window's initial Create/SetTitle/
// WindowDump/MapInfo sequence and fills its liveness band. It must run
// exactly once, before the reactor starts processing daemon events.
func (t *InboundTranslator) Bootstrap() error {
	rect := qubesgui.Rectangle{
		TopLeft: qubesgui.Coordinates{X: selfWindowInitialX, Y: selfWindowInitialY},
		Size:    qubesgui.WindowSize{Width: selfWindowInitialWidth, Height: selfWindowInitialHeight},
	}
	if err := t.client.Send(qubesgui.Create{Rect: rect, Parent: 0, OverrideRedirect: 0}, registry.SelfWindowID); err != nil {
		return err
	}
	title := qubesgui.NewSetTitle(selfWindowTitle)
	if err := t.client.SendRaw(title.Encode(), registry.SelfWindowID, qubesgui.MsgSetTitle); err != nil {
		return err
	}
	if _, err := t.selfFB.Resize(selfWindowInitialWidth, selfWindowInitialHeight); err != nil {
		return err
	}
	t.selfWidth, t.selfHeight = selfWindowInitialWidth, selfWindowInitialHeight
	fillSelfWindowLivenessBand(t.selfFB, selfWindowInitialWidth, selfWindowInitialHeight)
	if err := t.client.SendRaw(t.selfFB.Header(), registry.SelfWindowID, qubesgui.MsgWindowDump); err != nil {
		return err
	}
	return t.client.Send(qubesgui.MapInfo{OverrideRedirect: 0, TransientFor: 0}, registry.SelfWindowID)
}
