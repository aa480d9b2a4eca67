// Package reactor implements the single-threaded event loop that
// drives the agent: the daemon socket, a periodic ~16ms tick, and the
// Wayland display fd, all serialized through one epoll instance.
package reactor

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// DisplayConn is the Wayland display's side of the reactor: just
// enough of the compositor protocol connection to be driven by the
// event loop, without the reactor needing to know about surface
// trees, subsurfaces, or xdg-shell bookkeeping.
type DisplayConn interface {
	// Fd returns the Wayland display's file descriptor.
	Fd() int
	// DispatchReadable handles one readiness notification, which may
	// re-enter the outbound translator via surface-commit callbacks.
	DispatchReadable() error
	// Flush writes out any buffered client requests.
	Flush() error
}

// Reactor is the single-threaded cooperative event loop. It has no
// internal locking: every callback it invokes runs to completion
// before the next is dispatched.
type Reactor struct {
	epfd      int
	timerFd   int
	daemonFd  int
	display   DisplayConn
	tickEvery time.Duration

	onDaemonReadable func() error
	// onTick is called once per periodic wakeup with a monotonic
	// millisecond timestamp relative to process start.
	onTick func(timestampMS uint32) error

	running  *bool
	start    time.Time
}

// New builds a Reactor. daemonFd must already be set O_NONBLOCK.
// tickEvery is normally 16ms.
func New(daemonFd int, tickEvery time.Duration, display DisplayConn, running *bool, onDaemonReadable func() error, onTick func(uint32) error) (*Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}
	timerFd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_CLOEXEC|unix.TFD_NONBLOCK)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("reactor: timerfd_create: %w", err)
	}
	spec := unix.ItimerSpec{
		Interval: unix.NsecToTimespec(tickEvery.Nanoseconds()),
		Value:    unix.NsecToTimespec(tickEvery.Nanoseconds()),
	}
	if err := unix.TimerfdSettime(timerFd, 0, &spec, nil); err != nil {
		unix.Close(epfd)
		unix.Close(timerFd)
		return nil, fmt.Errorf("reactor: timerfd_settime: %w", err)
	}

	r := &Reactor{
		epfd:             epfd,
		timerFd:          timerFd,
		daemonFd:         daemonFd,
		display:          display,
		tickEvery:        tickEvery,
		onDaemonReadable: onDaemonReadable,
		onTick:           onTick,
		running:          running,
		start:            time.Now(),
	}

	// The daemon socket is registered edge-triggered, readable and
	// writable.
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, daemonFd, &unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLOUT | unix.EPOLLET,
		Fd:     int32(daemonFd),
	}); err != nil {
		r.Close()
		return nil, fmt.Errorf("reactor: register daemon fd: %w", err)
	}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, timerFd, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(timerFd),
	}); err != nil {
		r.Close()
		return nil, fmt.Errorf("reactor: register timer fd: %w", err)
	}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, display.Fd(), &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(display.Fd()),
	}); err != nil {
		r.Close()
		return nil, fmt.Errorf("reactor: register display fd: %w", err)
	}
	return r, nil
}

// Close releases the epoll and timer file descriptors.
func (r *Reactor) Close() {
	unix.Close(r.timerFd)
	unix.Close(r.epfd)
}

// elapsedMS returns milliseconds since the reactor was created.
func (r *Reactor) elapsedMS() uint32 {
	return uint32(time.Since(r.start).Milliseconds())
}

// Run drives the loop until *running is cleared. It flushes the
// Wayland display before and after each dispatch, with a 16ms epoll
// wait timeout.
func (r *Reactor) Run() error {
	events := make([]unix.EpollEvent, 8)
	for *r.running {
		if err := r.display.Flush(); err != nil {
			return fmt.Errorf("reactor: display flush: %w", err)
		}

		n, err := unix.EpollWait(r.epfd, events, int(r.tickEvery.Milliseconds()))
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("reactor: epoll_wait: %w", err)
		}
		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			switch fd {
			case r.daemonFd:
				if err := r.onDaemonReadable(); err != nil {
					return fmt.Errorf("reactor: daemon source: %w", err)
				}
			case r.timerFd:
				if err := r.drainTimer(); err != nil {
					return err
				}
				if err := r.onTick(r.elapsedMS()); err != nil {
					return fmt.Errorf("reactor: tick source: %w", err)
				}
			case r.display.Fd():
				if err := r.display.DispatchReadable(); err != nil {
					return fmt.Errorf("reactor: display source: %w", err)
				}
			}
		}

		if err := r.display.Flush(); err != nil {
			return fmt.Errorf("reactor: display flush: %w", err)
		}
	}
	return nil
}

// drainTimer reads the timerfd's expiration counter so it doesn't
// immediately re-fire as readable.
func (r *Reactor) drainTimer() error {
	var buf [8]byte
	_, err := unix.Read(r.timerFd, buf[:])
	if err != nil && err != unix.EAGAIN {
		return fmt.Errorf("reactor: drain timerfd: %w", err)
	}
	return nil
}
