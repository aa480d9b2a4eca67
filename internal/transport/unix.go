// Package transport provides the non-blocking AF_UNIX stream socket
// the agent speaks the Qubes GUI protocol over. It is a thin wrapper
// around golang.org/x/sys/unix rather than net.Conn so the resulting
// file descriptor can be registered directly with the reactor's
// epoll instance (net.Conn hides its fd behind a poller of its own).
package transport

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// UnixSocket is a non-blocking AF_UNIX stream socket implementing
// qubesgui.Transport.
type UnixSocket struct {
	fd int
}

// DialUnix connects to the daemon's listening socket at path and
// arms O_NONBLOCK, since every read and write against it assumes a
// non-blocking socket.
func DialUnix(path string) (*UnixSocket, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("transport: socket: %w", err)
	}
	addr := &unix.SockaddrUnix{Name: path}
	if err := unix.Connect(fd, addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: connect %s: %w", path, err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: set nonblocking: %w", err)
	}
	return &UnixSocket{fd: fd}, nil
}

// Fd returns the underlying file descriptor.
func (s *UnixSocket) Fd() int { return s.fd }

// Read implements io.Reader; a would-block read (unix.EAGAIN) surfaces
// as wouldBlockErr, whose Timeout() method qubesgui.Client recognizes
// as a would-block condition.
func (s *UnixSocket) Read(b []byte) (int, error) {
	n, err := unix.Read(s.fd, b)
	if err != nil {
		if err == unix.EAGAIN {
			return 0, wouldBlockErr{}
		}
		return 0, fmt.Errorf("transport: read: %w", err)
	}
	return n, nil
}

// Write implements io.Writer.
func (s *UnixSocket) Write(b []byte) (int, error) {
	n, err := unix.Write(s.fd, b)
	if err != nil {
		if err == unix.EAGAIN {
			return n, wouldBlockErr{}
		}
		return n, fmt.Errorf("transport: write: %w", err)
	}
	return n, nil
}

// Close releases the socket.
func (s *UnixSocket) Close() error {
	return unix.Close(s.fd)
}

// wouldBlockErr implements the net.Error-shaped Timeout() method
// qubesgui.Client's isWouldBlock checks for.
type wouldBlockErr struct{}

func (wouldBlockErr) Error() string { return "transport: would block" }
func (wouldBlockErr) Timeout() bool { return true }
func (wouldBlockErr) Temporary() bool { return true }
