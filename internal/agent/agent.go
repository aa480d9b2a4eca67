// Package agent wires the registry, translators, and reactor from
// internal/bridge, internal/registry, internal/framebuffer and
// internal/reactor into a single running process.
package agent

import (
	"errors"
	"fmt"
	"time"

	"github.com/QubesOS/qubes-gui-agent-wayland/internal/bridge"
	"github.com/QubesOS/qubes-gui-agent-wayland/internal/grant"
	"github.com/QubesOS/qubes-gui-agent-wayland/internal/qubesgui"
	"github.com/QubesOS/qubes-gui-agent-wayland/internal/reactor"
	"github.com/QubesOS/qubes-gui-agent-wayland/internal/registry"
	"github.com/QubesOS/qubes-gui-agent-wayland/internal/stubcompositor"
	"github.com/QubesOS/qubes-gui-agent-wayland/internal/transport"
	"github.com/QubesOS/qubes-gui-agent-wayland/internal/waylandrole"
)

// TickInterval is the reactor's periodic-tick period.
const TickInterval = 16 * time.Millisecond

// Config configures a new Agent.
type Config struct {
	// SocketPath is the AF_UNIX path the Qubes GUI daemon listens on.
	SocketPath string
	// RuntimeDir is the scratch directory the development shm grant
	// allocator creates its backing tmpfiles in (normally
	// XDG_RUNTIME_DIR); empty uses the environment variable.
	RuntimeDir string
}

// Agent is the running bridge: one Qubes daemon connection, one
// window registry, and the translators/reactor that drive them.
type Agent struct {
	socket    *transport.UnixSocket
	client    *qubesgui.Client
	reg       *registry.Registry
	ids       *registry.Allocator
	alloc     grant.Allocator
	outbound  *bridge.OutboundTranslator
	inbound   *bridge.InboundTranslator
	ticker    *bridge.Ticker
	surfaces  map[uint32]*bridge.SurfaceData
	display   *stubcompositor.Display
	seat      *stubcompositor.Seat
	loop      *reactor.Reactor
	running   bool
	startedAt time.Time
}

// New connects to the daemon, performs the self-window bootstrap, and
// returns a ready-to-run Agent. It never itself calls log.Fatal --
// the caller (cmd/qubes-gui-agent-wayland) is responsible for treating
// a non-nil error as fatal and exiting the process.
func New(cfg Config) (*Agent, error) {
	socket, err := transport.DialUnix(cfg.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}
	client := qubesgui.NewClient(socket)
	alloc := grant.NewSHMAllocator(cfg.RuntimeDir)
	reg := registry.New()
	ids := registry.NewAllocator()
	surfaces := make(map[uint32]*bridge.SurfaceData)

	display, err := stubcompositor.NewDisplay()
	if err != nil {
		socket.Close()
		return nil, fmt.Errorf("agent: %w", err)
	}
	seat := stubcompositor.NewSeat()

	a := &Agent{
		socket:    socket,
		client:    client,
		reg:       reg,
		ids:       ids,
		alloc:     alloc,
		surfaces:  surfaces,
		display:   display,
		seat:      seat,
		startedAt: time.Now(),
	}
	a.running = true

	a.outbound = bridge.NewOutboundTranslator(client, alloc, reg, ids)
	a.inbound = bridge.NewInboundTranslator(client, alloc, reg, seat, surfaces, a.elapsedMS, &a.running)
	a.ticker = bridge.NewTicker(client, reg, surfaces)

	if err := a.inbound.Bootstrap(); err != nil {
		a.Close()
		return nil, fmt.Errorf("agent: self-window bootstrap: %w", err)
	}

	loop, err := reactor.New(client.Fd(), TickInterval, display, &a.running, a.drainDaemon, a.ticker.Tick)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("agent: %w", err)
	}
	a.loop = loop
	return a, nil
}

func (a *Agent) elapsedMS() uint32 {
	return uint32(time.Since(a.startedAt).Milliseconds())
}

// drainDaemon reads framed daemon messages until the transport would
// block, dispatching each to the inbound translator.
func (a *Agent) drainDaemon() error {
	for {
		hdr, body, err := a.client.ReadFrame()
		if err != nil {
			if errors.Is(err, qubesgui.ErrWouldBlock) {
				return nil
			}
			return fmt.Errorf("agent: %w", err)
		}
		ev, err := qubesgui.ParseEvent(hdr, body)
		if err != nil {
			return fmt.Errorf("agent: %w", err)
		}
		if err := a.inbound.Dispatch(ev); err != nil {
			return fmt.Errorf("agent: %w", err)
		}
	}
}

// NewToplevel registers a freshly-created xdg_toplevel with the
// bridge, for a real compositor integration to call from its
// new-toplevel hook.
func (a *Agent) NewToplevel(role waylandrole.Role, w, h int32) (*bridge.SurfaceData, error) {
	sd, err := a.outbound.NewToplevel(role, w, h)
	if err != nil {
		return nil, err
	}
	a.surfaces[sd.Window] = sd
	return sd, nil
}

// NewPopup registers a freshly-created xdg_popup, parented to
// parentWindow.
func (a *Agent) NewPopup(role waylandrole.Role, parentWindow uint32, w, h int32) (*bridge.SurfaceData, error) {
	sd, err := a.outbound.NewPopup(role, parentWindow, w, h)
	if err != nil {
		return nil, err
	}
	a.surfaces[sd.Window] = sd
	return sd, nil
}

// NewSubsurface registers a wl_subsurface encountered while walking a
// surface's children, parented to parentWindow, for a real compositor
// integration to call from its surface-commit tree walk.
func (a *Agent) NewSubsurface(role waylandrole.Role, parentWindow uint32, w, h int32) (*bridge.SurfaceData, error) {
	sd, err := a.outbound.NewSubsurface(role, parentWindow, w, h)
	if err != nil {
		return nil, err
	}
	a.surfaces[sd.Window] = sd
	return sd, nil
}

// Commit forwards a surface commit to the outbound translator.
func (a *Agent) Commit(sd *bridge.SurfaceData, c waylandrole.Commit) error {
	return a.outbound.Commit(sd, c)
}

// Run drives the reactor until the self-window is closed or a fatal
// error occurs.
func (a *Agent) Run() error {
	return a.loop.Run()
}

// Close releases the agent's file descriptors.
func (a *Agent) Close() {
	if a.loop != nil {
		a.loop.Close()
	}
	if a.display != nil {
		a.display.Close()
	}
	if a.socket != nil {
		a.socket.Close()
	}
}
