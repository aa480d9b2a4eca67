// Package stubcompositor provides a minimal, headless implementation
// of the waylandrole interfaces and the reactor's DisplayConn, so the
// cmd/qubes-gui-agent-wayland binary links and runs end to end without
// a real Wayland compositor plugged in. A production deployment swaps
// this package for a real compositor connection and wires its
// surface-commit / new-toplevel / new-popup hooks into internal/bridge's
// OutboundTranslator. This package exists purely so the reactor has a
// display fd to poll and the seat has somewhere to log input it received.
package stubcompositor

import (
	"fmt"
	"log"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/QubesOS/qubes-gui-agent-wayland/internal/waylandrole"
)

// Display is a no-op DisplayConn: its fd never becomes readable, so
// the reactor's display source never fires, and Flush/DispatchReadable
// do nothing. It exists only so reactor.New has a real fd to register.
type Display struct {
	fd int
}

// NewDisplay creates an eventfd-backed placeholder display.
func NewDisplay() (*Display, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("stubcompositor: eventfd: %w", err)
	}
	return &Display{fd: fd}, nil
}

func (d *Display) Fd() int                { return d.fd }
func (d *Display) DispatchReadable() error { return nil }
func (d *Display) Flush() error           { return nil }
func (d *Display) Close() error           { return unix.Close(d.fd) }

// Seat is a headless waylandrole.Seat that logs every input event it
// receives instead of delivering it to a real wl_keyboard/wl_pointer.
type Seat struct {
	serial   uint32
	keyboard keyboard
	pointer  pointer
}

// NewSeat returns a logging-only Seat.
func NewSeat() *Seat { return &Seat{} }

func (s *Seat) Keyboard() waylandrole.Keyboard { return s.keyboard }
func (s *Seat) Pointer() waylandrole.Pointer   { return s.pointer }

func (s *Seat) NextSerial() uint32 {
	return atomic.AddUint32(&s.serial, 1)
}

type keyboard struct{}

func (keyboard) Key(keycode uint32, pressed bool, serial uint32, timeMS uint32) {
	log.Printf("stubcompositor: key %d pressed=%v serial=%d t=%dms", keycode, pressed, serial, timeMS)
}

func (keyboard) SetFocus(surface waylandrole.Surface, serial uint32) {
	log.Printf("stubcompositor: keyboard focus -> %v serial=%d", surface != nil, serial)
}

type pointer struct{}

func (pointer) Motion(x, y int32, serial uint32, timeMS uint32, focus waylandrole.Surface) {
	log.Printf("stubcompositor: pointer motion (%d,%d) focus=%v serial=%d t=%dms", x, y, focus != nil, serial, timeMS)
}

func (pointer) Button(code uint32, pressed bool, serial uint32, timeMS uint32) {
	log.Printf("stubcompositor: pointer button 0x%x pressed=%v serial=%d t=%dms", code, pressed, serial, timeMS)
}

func (pointer) Axis(kind waylandrole.AxisKind, value float64, timeMS uint32) {
	log.Printf("stubcompositor: pointer axis kind=%v value=%.1f t=%dms", kind, value, timeMS)
}
