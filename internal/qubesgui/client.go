package qubesgui

import (
	"errors"
	"fmt"
	"io"
)

// ErrWouldBlock is returned by Client.ReadFrame when the transport has
// no more complete frames buffered right now; the reactor should
// re-arm on the next readiness notification rather than treat this as
// fatal.
var ErrWouldBlock = errors.New("qubesgui: would block")

// Transport is the non-blocking stream the agent's daemon connection
// rides on. A production agent backs this with a non-blocking
// AF_UNIX socket; tests back it with an in-memory pipe.
type Transport interface {
	io.Reader
	io.Writer
	// Fd returns the underlying file descriptor, for registration
	// with the reactor's poller.
	Fd() int
}

// Client frames and deframes Qubes GUI protocol messages on top of a
// Transport. It is not safe for concurrent use -- the reactor is the
// sole owner, per the single-threaded cooperative model.
type Client struct {
	t   Transport
	buf []byte // bytes read but not yet consumed into a full frame
}

// NewClient wraps a transport.
func NewClient(t Transport) *Client {
	return &Client{t: t}
}

// Fd exposes the underlying descriptor for reactor registration.
func (c *Client) Fd() int { return c.t.Fd() }

// Send encodes and writes a full message (header + body).
func (c *Client) Send(m Message, window uint32) error {
	body := m.Encode()
	return c.SendRaw(body, window, m.MsgType())
}

// SendRaw writes a header for the given type/window followed by a
// caller-supplied body, used for MSG_WINDOW_DUMP and MSG_SET_TITLE
// whose bodies are not built from a Message.
func (c *Client) SendRaw(body []byte, window uint32, msgType uint32) error {
	hdr := Header{Type: msgType, Window: window, UntrustedLen: uint32(len(body))}
	frame := append(hdr.Encode(), body...)
	if _, err := c.t.Write(frame); err != nil {
		return fmt.Errorf("qubesgui: write failed: %w", err)
	}
	return nil
}

// fill reads whatever is available from the transport into buf. It
// returns ErrWouldBlock when nothing more is currently
// available and nothing else has failed.
func (c *Client) fill() error {
	var tmp [4096]byte
	n, err := c.t.Read(tmp[:])
	if n > 0 {
		c.buf = append(c.buf, tmp[:n]...)
	}
	if err != nil {
		if isWouldBlock(err) {
			if n > 0 {
				return nil
			}
			return ErrWouldBlock
		}
		return fmt.Errorf("qubesgui: read failed: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("qubesgui: daemon closed connection: %w", io.EOF)
	}
	return nil
}

// isWouldBlock reports whether err indicates a non-blocking read had
// nothing available: either an error with a Timeout() method returning
// true (the net.Error shape, which transport.UnixSocket uses) or
// ErrWouldBlock itself. A bare syscall.EAGAIN is not recognized.
func isWouldBlock(err error) bool {
	type timeoutError interface {
		Timeout() bool
	}
	var te timeoutError
	if errors.As(err, &te) {
		return te.Timeout()
	}
	return errors.Is(err, ErrWouldBlock)
}

// ReadFrame returns the next fully-buffered frame, reading more from
// the transport as needed. It returns ErrWouldBlock when the
// transport has no more data right now and no full frame is pending;
// the reactor's drain loop should stop iterating on that error.
func (c *Client) ReadFrame() (Header, []byte, error) {
	for {
		if len(c.buf) >= HeaderSize {
			hdr, err := DecodeHeader(c.buf)
			if err != nil {
				return Header{}, nil, err
			}
			total := HeaderSize + int(hdr.UntrustedLen)
			if len(c.buf) >= total {
				body := append([]byte(nil), c.buf[HeaderSize:total]...)
				c.buf = c.buf[total:]
				return hdr, body, nil
			}
		}
		if err := c.fill(); err != nil {
			return Header{}, nil, err
		}
	}
}
