// Package bridge implements the outbound and inbound translators: the
// core surface<->window multiplexing and protocol translation logic
// between the Wayland compositor side and the Qubes GUI daemon.
package bridge

import (
	"github.com/QubesOS/qubes-gui-agent-wayland/internal/framebuffer"
	"github.com/QubesOS/qubes-gui-agent-wayland/internal/waylandrole"
)

// SurfaceData is the per-Wayland-surface state the translators
// maintain. It holds only the window id as a back-reference into the
// registry -- never a strong handle to the role, which the registry
// already owns -- to avoid a reference cycle.
type SurfaceData struct {
	// clientBuffer is the most recently attached client buffer, or nil.
	clientBuffer waylandrole.ClientBuffer
	// fb is this surface's Qubes-side shared framebuffer.
	fb *framebuffer.Manager

	BufferWidth, BufferHeight int32
	BufferScale               int32

	Geometry *waylandrole.Rectangle

	Window uint32

	Coordinates waylandrole.Point
}

// NewSurfaceData allocates SurfaceData for a freshly-registered
// window.
func NewSurfaceData(window uint32, fb *framebuffer.Manager) *SurfaceData {
	return &SurfaceData{Window: window, fb: fb}
}

// HasBuffer reports whether a client buffer is currently attached.
func (s *SurfaceData) HasBuffer() bool { return s.clientBuffer != nil }
