package bridge

import (
	"fmt"
	"math"

	"github.com/QubesOS/qubes-gui-agent-wayland/internal/framebuffer"
	"github.com/QubesOS/qubes-gui-agent-wayland/internal/grant"
	"github.com/QubesOS/qubes-gui-agent-wayland/internal/qubesgui"
	"github.com/QubesOS/qubes-gui-agent-wayland/internal/registry"
	"github.com/QubesOS/qubes-gui-agent-wayland/internal/waylandrole"
)

const bytesPerPixel = 4

// OutboundTranslator converts Wayland surface-commit outcomes into
// Qubes protocol messages.
type OutboundTranslator struct {
	client *qubesgui.Client
	alloc  grant.Allocator
	reg    *registry.Registry
	ids    *registry.Allocator
}

// NewOutboundTranslator builds a translator sharing the given
// registry, id allocator, client connection and grant allocator with
// the rest of the agent.
func NewOutboundTranslator(client *qubesgui.Client, alloc grant.Allocator, reg *registry.Registry, ids *registry.Allocator) *OutboundTranslator {
	return &OutboundTranslator{client: client, alloc: alloc, reg: reg, ids: ids}
}

// NewToplevel registers a freshly-created xdg_toplevel, allocates it
// a window id, and emits Create/Configure/MapInfo in that order.
func (t *OutboundTranslator) NewToplevel(role waylandrole.Role, w, h int32) (*SurfaceData, error) {
	return t.newRoot(role, 0, w, h)
}

// NewPopup registers a freshly-created xdg_popup, parented to
// parentWindow: Create with parent set, initial Configure from the
// positioner geometry.
func (t *OutboundTranslator) NewPopup(role waylandrole.Role, parentWindow uint32, w, h int32) (*SurfaceData, error) {
	return t.newRoot(role, parentWindow, w, h)
}

// NewSubsurface registers a wl_subsurface encountered during a
// surface-commit tree walk, giving it its own window id parented to
// parentWindow (the top surface's window id). Unlike a toplevel or
// popup it has no window decoration or input focus of its own, but it
// shares the same Create/Configure/MapInfo registration sequence and
// damage-commit path as any other window.
func (t *OutboundTranslator) NewSubsurface(role waylandrole.Role, parentWindow uint32, w, h int32) (*SurfaceData, error) {
	return t.newRoot(role, parentWindow, w, h)
}

func (t *OutboundTranslator) newRoot(role waylandrole.Role, parentWindow uint32, w, h int32) (*SurfaceData, error) {
	id, err := t.ids.Next()
	if err != nil {
		return nil, fmt.Errorf("bridge: %w", err)
	}
	// Never create a zero-size window even when the client's current
	// size is reported as 0.
	width := uint32(max32(w, 1))
	height := uint32(max32(h, 1))

	entry := &registry.BackendEntry{Surface: role, Parent: parentWindow}
	if err := t.reg.Insert(id, entry); err != nil {
		return nil, fmt.Errorf("bridge: %w", err)
	}

	rect := qubesgui.Rectangle{
		TopLeft: qubesgui.Coordinates{X: 0, Y: 0},
		Size:    qubesgui.WindowSize{Width: width, Height: height},
	}
	var parent uint32
	if parentWindow != 0 {
		parent = parentWindow
	}
	if err := t.client.Send(qubesgui.Create{Rect: rect, Parent: parent, OverrideRedirect: 0}, id); err != nil {
		return nil, err
	}
	if err := t.client.Send(qubesgui.Configure{Rect: rect, OverrideRedirect: 0}, id); err != nil {
		return nil, err
	}
	if err := t.client.Send(qubesgui.MapInfo{OverrideRedirect: 0, TransientFor: 0}, id); err != nil {
		return nil, err
	}

	fb := framebuffer.New(t.alloc)
	return NewSurfaceData(id, fb), nil
}

func max32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}

// Commit implements the per-surface-commit walk: attach/retire the
// client buffer, sanitize and copy damage, and emit the resulting
// ShmImage traffic.
func (t *OutboundTranslator) Commit(sd *SurfaceData, c waylandrole.Commit) error {
	if c.NewBuffer != nil {
		if err := t.attachBuffer(sd, c.NewBuffer, c.BufferScale); err != nil {
			return err
		}
	} else if c.BufferRemoved {
		if sd.clientBuffer != nil {
			sd.clientBuffer.Release()
		}
		sd.clientBuffer = nil
		sd.BufferWidth, sd.BufferHeight = 0, 0
	}

	if len(c.Damage) == 0 || sd.clientBuffer == nil {
		return nil
	}
	return t.commitDamage(sd, c)
}

func (t *OutboundTranslator) attachBuffer(sd *SurfaceData, buf waylandrole.ClientBuffer, scale int32) error {
	meta := buf.Metadata()
	if meta.Width <= 0 || meta.Height <= 0 {
		buf.PostError(waylandrole.ErrInvalidStride, "attached buffer has non-positive dimensions")
		return nil
	}
	needsDump, err := sd.fb.Resize(uint32(meta.Width), uint32(meta.Height))
	if err != nil {
		// Allocation failure is fatal for this window only: leave the
		// surface without a usable buffer and propagate so the caller
		// can log it; no further ShmImage is emitted because
		// sd.clientBuffer is cleared here and stays nil until a later
		// attach succeeds.
		if sd.clientBuffer != nil {
			sd.clientBuffer.Release()
			sd.clientBuffer = nil
		}
		sd.BufferWidth, sd.BufferHeight = 0, 0
		return fmt.Errorf("bridge: commit: %w", err)
	}
	if needsDump {
		if err := t.client.SendRaw(sd.fb.Header(), sd.Window, qubesgui.MsgWindowDump); err != nil {
			return err
		}
	}
	if sd.clientBuffer != nil {
		sd.clientBuffer.Release()
	}
	sd.clientBuffer = buf
	sd.BufferWidth, sd.BufferHeight = meta.Width, meta.Height
	sd.BufferScale = scale
	return nil
}

func (t *OutboundTranslator) commitDamage(sd *SurfaceData, c waylandrole.Commit) error {
	buf := sd.clientBuffer
	meta := buf.Metadata()
	pool := buf.Bytes()

	if len(pool) > math.MaxInt32 {
		buf.PostError(waylandrole.ErrInvalidFd, "pool size not valid")
		return nil
	}
	poolLen := int32(len(pool))
	offset, width, height, stride := meta.Offset, meta.Width, meta.Height, meta.Stride
	if offset < 0 || height <= 0 || width <= 0 || stride/bytesPerPixel < width {
		buf.PostError(waylandrole.ErrInvalidStride, "parameters not valid")
		return nil
	}
	product, overflow := mulOverflowsI32(stride, height)
	if overflow || poolLen < product || offset > poolLen-product {
		buf.PostError(waylandrole.ErrInvalidStride, "parameters not valid")
		return nil
	}

	for _, d := range c.Damage {
		loc, w, h := d.Loc, d.Width, d.Height
		if d.Kind == waylandrole.DamageSurface {
			loc = waylandrole.Point{X: loc.X * sd.BufferScale, Y: loc.Y * sd.BufferScale}
			w *= sd.BufferScale
			h *= sd.BufferScale
		}
		if w <= 0 || h <= 0 || loc.X < 0 || loc.Y < 0 || loc.X > width || loc.Y > height {
			buf.PostError(waylandrole.ErrInvalidStride, "invalid damage region")
			return nil
		}
		w = min32(w, width-loc.X)
		h = min32(h, height-loc.Y)
		x, y := loc.X, loc.Y

		// Geometry offset compensation: Qubes cannot render outside
		// the window bounding box, so
		// shift the copy source by the xdg geometry offset and shrink
		// the extent by the same amount.
		sx, sy := x, y
		if c.Geometry != nil {
			if c.Geometry.Loc.X > 0 && w > c.Geometry.Loc.X {
				w -= c.Geometry.Loc.X
				sx = x + c.Geometry.Loc.X
			}
			if c.Geometry.Loc.Y > 0 && h > c.Geometry.Loc.Y {
				h -= c.Geometry.Loc.Y
				sy = y + c.Geometry.Loc.Y
			}
		}

		rowBytes := int(bytesPerPixel * w)
		srcBase := int(offset + bytesPerPixel*sx + sy*stride)
		for i := int32(0); i < h; i++ {
			srcStart := srcBase + int(i*stride)
			row := pool[srcStart : srcStart+rowBytes]
			destOffset := int(bytesPerPixel * (x + (i+y)*sd.BufferWidth))
			if err := sd.fb.Write(row, destOffset); err != nil {
				return fmt.Errorf("bridge: commit damage: %w", err)
			}
			rect := qubesgui.Rectangle{
				TopLeft: qubesgui.Coordinates{X: uint32(x), Y: uint32(y + i)},
				Size:    qubesgui.WindowSize{Width: uint32(w), Height: 1},
			}
			if err := t.client.Send(qubesgui.ShmImage{Rect: rect}, sd.Window); err != nil {
				return err
			}
		}
	}
	return nil
}

func min32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}

func mulOverflowsI32(a, b int32) (product int32, overflow bool) {
	wide := int64(a) * int64(b)
	if wide > math.MaxInt32 || wide < math.MinInt32 {
		return 0, true
	}
	return int32(wide), false
}
