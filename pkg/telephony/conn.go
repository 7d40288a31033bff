package telephony

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrConnClosed is returned by write operations after Close.
var ErrConnClosed = errors.New("telephony: connection closed")

const (
	writeWait = 10 * time.Second
	closeWait = time.Second
)

// Socket is the subset of a WebSocket connection the adapter needs. Both
// gorilla/websocket and the fasthttp-based connection handed out by
// gofiber/websocket satisfy it.
type Socket interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// Conn owns the inbound WebSocket from the telephony provider. It decodes
// inbound frames onto an ordered event channel and serializes outbound
// writes. One Conn exists per phone call.
type Conn struct {
	sock   Socket
	logger *slog.Logger

	writeMu sync.Mutex
	events  chan *Message

	closeOnce sync.Once
	closed    chan struct{}

	readDeadline time.Duration
}

// ConnOption configures a Conn.
type ConnOption func(*Conn)

// WithReadDeadline sets the per-read deadline. Zero disables it.
func WithReadDeadline(d time.Duration) ConnOption {
	return func(c *Conn) {
		c.readDeadline = d
	}
}

// NewConn wraps an accepted media stream socket.
func NewConn(sock Socket, logger *slog.Logger, opts ...ConnOption) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Conn{
		sock:   sock,
		logger: logger.With("component", "telephony"),
		events: make(chan *Message, 64),
		closed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Events returns the ordered inbound event stream. The channel is closed
// when the socket closes or errors.
func (c *Conn) Events() <-chan *Message {
	return c.events
}

// Run reads frames until the socket closes and must be called exactly once,
// from its own goroutine. Malformed JSON frames are logged and dropped; they
// never terminate the call.
func (c *Conn) Run() {
	defer close(c.events)
	defer c.Close()

	for {
		if c.readDeadline > 0 {
			_ = c.sock.SetReadDeadline(time.Now().Add(c.readDeadline))
		}
		_, data, err := c.sock.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				select {
				case <-c.closed:
				default:
					c.logger.Warn("media stream read failed", "error", err)
				}
			}
			return
		}

		msg, err := Decode(data)
		if err != nil {
			c.logger.Warn("dropping malformed media stream frame", "error", err)
			continue
		}

		select {
		case c.events <- msg:
		case <-c.closed:
			return
		}
	}
}

// SendMedia sends one base64 audio chunk to the caller.
func (c *Conn) SendMedia(streamSID, payloadB64 string) error {
	data, err := EncodeMedia(streamSID, payloadB64)
	if err != nil {
		return err
	}
	return c.write(data)
}

// SendMark sends a playback-tracking mark; the provider echoes it back as a
// mark event once the audio queued before it has played out.
func (c *Conn) SendMark(streamSID, name string) error {
	data, err := EncodeMark(streamSID, name)
	if err != nil {
		return err
	}
	return c.write(data)
}

// SendClear tells the provider to discard queued, unplayed audio. Used on
// barge-in.
func (c *Conn) SendClear(streamSID string) error {
	data, err := EncodeClear(streamSID)
	if err != nil {
		return err
	}
	return c.write(data)
}

func (c *Conn) write(data []byte) error {
	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.sock.WriteMessage(websocket.TextMessage, data)
}

// Close tears the socket down. Safe to call from any goroutine, any number
// of times.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		deadline := time.Now().Add(closeWait)
		_ = c.sock.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			deadline,
		)
		_ = c.sock.Close()
	})
	return nil
}

// ClosePolicyViolation closes the socket with a policy violation code.
// Used when the call cannot be serviced at all, e.g. a missing model
// credential.
func (c *Conn) ClosePolicyViolation(reason string) error {
	c.closeOnce.Do(func() {
		close(c.closed)
		deadline := time.Now().Add(closeWait)
		_ = c.sock.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
			deadline,
		)
		_ = c.sock.Close()
	})
	return nil
}
