// Package waylandrole defines the Wayland role interface the bridge
// consumes: xdg-shell toplevel/popup role handles, the seat
// (keyboard/pointer), and the small pieces of surface state the
// compositor exposes. The Wayland compositor protocol itself --
// surface trees, subsurfaces, xdg-shell role bookkeeping -- lives
// outside this package; it only names the seam a real compositor
// implementation plugs into.
package waylandrole

// Point is a logical (x, y) position.
type Point struct {
	X, Y int32
}

// Add returns p shifted by q.
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Rectangle is a logical top-left position plus a size, used for xdg
// window geometry.
type Rectangle struct {
	Loc           Point
	Width, Height int32
}

// Kind distinguishes the two xdg-shell role types a BackendEntry can
// wrap: Toplevel or Popup.
type Kind int

const (
	Toplevel Kind = iota
	Popup
)

// Client is the owning Wayland client of a role, used only to check
// liveness; the bridge never needs more than that.
type Client interface {
	Alive() bool
}

// Role is the xdg-shell toplevel-or-popup handle a BackendEntry owns.
// Consumers obtain one of these from the surface-commit / new-toplevel
// / new-popup hooks the real compositor fires (out of scope here).
type Role interface {
	Kind() Kind
	// SendConfigure flushes whatever has been staged by SetPendingSize
	// and SetActivated to the client as a new xdg-shell configure
	// event.
	SendConfigure()
	// SendClose delivers toplevel "close" or popup "popup_done"
	// depending on Kind.
	SendClose()
	// Alive reports whether the underlying wl_surface still exists;
	// false means the role should be torn down on the next tick.
	Alive() bool
	// Client returns the owning client.
	Client() Client
	// SetPendingSize stages a new size for the next SendConfigure and
	// reports whether it differs from whatever was staged before.
	SetPendingSize(w, h int32) (changed bool)
	// SetActivated stages the xdg_toplevel "activated" state flag for
	// toplevels and reports whether it changed; it is a no-op
	// returning false for popups.
	SetActivated(active bool) (changed bool)
	// Surface returns the underlying Wayland surface handle, for
	// looking up SurfaceData.
	Surface() Surface
}

// Surface is the Wayland surface a Role is attached to: the piece of
// compositor state the bridge reads on every tick (title, pending
// frame callbacks).
type Surface interface {
	// Title returns the current window title, or "" if none has been
	// set yet.
	Title() string
	// DrainFrameCallbacks invokes every wl_callback.done registered
	// since the last drain, passing timestampMS, then clears them.
	DrainFrameCallbacks(timestampMS uint32)
}

// Seat is the compositor's input-focus object: the keyboard and
// pointer devices, plus the serial counter shared between them.
type Seat interface {
	Keyboard() Keyboard
	Pointer() Pointer
	// NextSerial returns a fresh monotonic serial for the next input
	// event.
	NextSerial() uint32
}

// Keyboard is the seat's keyboard device.
type Keyboard interface {
	// Key delivers one key event; pressed is true for press, false
	// for release.
	Key(keycode uint32, pressed bool, serial uint32, timeMS uint32)
	// SetFocus sets (or, with a nil surface, clears) keyboard focus.
	SetFocus(surface Surface, serial uint32)
}

// AxisKind distinguishes vertical and horizontal wheel axes.
type AxisKind int

const (
	AxisVertical AxisKind = iota
	AxisHorizontal
)

// Pointer is the seat's pointer device.
type Pointer interface {
	// Motion delivers absolute logical coordinates.
	Motion(x, y int32, serial uint32, timeMS uint32, focus Surface)
	// Button delivers a pointer button event; code is the Linux input
	// event code (e.g. 0x110 = BTN_LEFT).
	Button(code uint32, pressed bool, serial uint32, timeMS uint32)
	// Axis delivers one wheel-scroll frame.
	Axis(kind AxisKind, value float64, timeMS uint32)
}

// ClientBufferMeta is the untrusted shm buffer metadata a real
// compositor reports for an attached client buffer (offset/width/
// height/stride, in bytes/pixels as the client claims them to be --
// none of it may be trusted until the outbound translator validates
// it).
type ClientBufferMeta struct {
	Offset, Width, Height, Stride int32
}

// ClientBuffer is an attached wl_buffer backed by client shared
// memory. The bridge treats its contents and metadata as hostile
// until validated.
type ClientBuffer interface {
	ErrorReporter
	// Metadata returns the untrusted buffer parameters.
	Metadata() ClientBufferMeta
	// Bytes returns the raw backing pool. Its length is untrusted and
	// must be range-checked against an int32 before use.
	Bytes() []byte
	// Release sends wl_buffer.release back to the client.
	Release()
}

// DamageKind distinguishes the two coordinate spaces a damage
// rectangle can arrive in.
type DamageKind int

const (
	DamageSurface DamageKind = iota
	DamageBuffer
)

// Damage is one damaged rectangle from a surface commit, in whichever
// coordinate space Kind says.
type Damage struct {
	Kind          DamageKind
	Loc           Point
	Width, Height int32
}

// Commit is what a surface-commit hook reports to the outbound
// translator for one non-sync surface.
type Commit struct {
	// NewBuffer is the buffer attached in this commit, or nil if none
	// was (re)attached.
	NewBuffer ClientBuffer
	// BufferRemoved is true when this commit detached the buffer
	// (wl_surface.attach with buffer=NULL).
	BufferRemoved bool
	// BufferScale is the client's declared buffer_scale at the time
	// of this commit.
	BufferScale int32
	// Damage lists every damaged rectangle reported in this commit.
	Damage []Damage
	// Geometry is the surface's current xdg window geometry, if any
	// has been set.
	Geometry *Rectangle
}

// ProtocolErrorKind names the two client buffer protocol errors the
// outbound translator can post, matching wl_shm.error.
type ProtocolErrorKind int

const (
	ErrInvalidFd ProtocolErrorKind = iota
	ErrInvalidStride
)

// ErrorReporter posts a Wayland protocol error against the offending
// client object and is otherwise a no-op for the connection (the
// client can continue issuing new requests; only the invalid buffer
// commit is rejected).
type ErrorReporter interface {
	PostError(kind ProtocolErrorKind, message string)
}
