package bridge

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/QubesOS/qubes-gui-agent-wayland/internal/framebuffer"
	"github.com/QubesOS/qubes-gui-agent-wayland/internal/grant"
	"github.com/QubesOS/qubes-gui-agent-wayland/internal/qubesgui"
	"github.com/QubesOS/qubes-gui-agent-wayland/internal/registry"
)

type capturingBuffer struct{ data []byte }

func (b *capturingBuffer) Write(p []byte, offset int) { copy(b.data[offset:], p) }
func (b *capturingBuffer) Len() int                   { return len(b.data) }
func (b *capturingBuffer) Header() []byte             { return nil }
func (b *capturingBuffer) Release()                   {}

type capturingAllocator struct{ last *capturingBuffer }

func newCapturingAllocator() *capturingAllocator { return &capturingAllocator{} }

func (a *capturingAllocator) Alloc(w, h uint32) (grant.Buffer, error) {
	b := &capturingBuffer{data: make([]byte, w*h*bytesPerPixel)}
	a.last = b
	return b, nil
}

func newManagerForTest(alloc grant.Allocator) *framebuffer.Manager {
	return framebuffer.New(alloc)
}

func TestBootstrapSendsExpectedSequence(t *testing.T) {
	it, _, _, rt := newTestInbound(t)
	require.NoError(t, it.Bootstrap())

	hdrs := drainFrames(t, rt)
	require.Len(t, hdrs, 4)
	require.Equal(t, qubesgui.MsgCreate, hdrs[0].Type)
	require.Equal(t, qubesgui.MsgSetTitle, hdrs[1].Type)
	require.Equal(t, qubesgui.MsgWindowDump, hdrs[2].Type)
	require.Equal(t, qubesgui.MsgMapInfo, hdrs[3].Type)
	for _, h := range hdrs {
		require.Equal(t, registry.SelfWindowID, h.Window)
	}
}

func TestFillSelfWindowLivenessBandCoversExactRows(t *testing.T) {
	alloc := newCapturingAllocator()
	fb := newManagerForTest(alloc)
	_, err := fb.Resize(4, 8) // height/4=2, lines=4 -> rows [2,6)
	require.NoError(t, err)

	fillSelfWindowLivenessBand(fb, 4, 8)

	buf := alloc.last
	lineWidthBytes := 4 * bytesPerPixel
	for row := 0; row < 8; row++ {
		start := row * lineWidthBytes
		chunk := buf.data[start : start+lineWidthBytes]
		inBand := row >= 2 && row < 6
		allFill := true
		for px := 0; px+4 <= len(chunk); px += 4 {
			if chunk[px] != 0x00 || chunk[px+1] != 0xFF || chunk[px+2] != 0 || chunk[px+3] != 0 {
				allFill = false
			}
		}
		require.Equal(t, inBand, allFill, "row %d fill mismatch", row)
	}
}
