// Package framebuffer implements the shared-framebuffer manager: one
// grant-shared pixel buffer per window, reallocated whenever the
// window's area changes.
package framebuffer

import (
	"fmt"

	"github.com/QubesOS/qubes-gui-agent-wayland/internal/grant"
)

// Manager owns one window's shared pixel buffer and knows how to
// resize it as the window's dimensions change.
type Manager struct {
	alloc         grant.Allocator
	buf           grant.Buffer
	width, height uint32
}

// New creates a Manager with no buffer allocated yet; call Resize
// before the first Write.
func New(alloc grant.Allocator) *Manager {
	return &Manager{alloc: alloc}
}

// Resize allocates a new buffer of w*h*4 bytes if the area differs
// from the current one, releasing the old buffer only after the new
// one is installed: a new header must be published before any
// ShmImage referencing the new geometry. It reports whether a
// reallocation (and therefore a fresh MSG_WINDOW_DUMP) is needed.
func (m *Manager) Resize(w, h uint32) (needsDump bool, err error) {
	if m.buf != nil && m.width*m.height == w*h {
		return false, nil
	}
	newBuf, err := m.alloc.Alloc(w, h)
	if err != nil {
		return false, fmt.Errorf("framebuffer: resize to %dx%d: %w", w, h, err)
	}
	old := m.buf
	m.buf = newBuf
	m.width, m.height = w, h
	if old != nil {
		old.Release()
	}
	return true, nil
}

// Write copies bytes into the buffer at offset. It returns an error,
// and writes nothing, when no buffer is allocated or when offset is
// negative or offset+len(bytes) exceeds Cap(), so no write can land
// outside the shared framebuffer.
func (m *Manager) Write(bytes []byte, offset int) error {
	if m.buf == nil {
		return fmt.Errorf("framebuffer: write with no buffer allocated")
	}
	if offset < 0 || offset+len(bytes) > m.buf.Len() {
		return fmt.Errorf("framebuffer: write out of bounds: offset=%d len=%d cap=%d", offset, len(bytes), m.buf.Len())
	}
	m.buf.Write(bytes, offset)
	return nil
}

// Header returns the pre-serialized MSG_WINDOW_DUMP payload for the
// current buffer, or nil if none is allocated.
func (m *Manager) Header() []byte {
	if m.buf == nil {
		return nil
	}
	return m.buf.Header()
}

// Cap returns the current buffer's capacity in bytes, or 0 if none is
// allocated.
func (m *Manager) Cap() int {
	if m.buf == nil {
		return 0
	}
	return m.buf.Len()
}

// Dims returns the current width/height in pixels.
func (m *Manager) Dims() (w, h uint32) { return m.width, m.height }

// Release frees the current buffer, if any. Subsequent ShmImage
// writes must not happen until a successful Resize reallocates one --
// the caller is responsible for enforcing that.
func (m *Manager) Release() {
	if m.buf != nil {
		m.buf.Release()
		m.buf = nil
		m.width, m.height = 0, 0
	}
}
