package telephony

import (
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeSocket scripts inbound frames and records outbound writes.
type fakeSocket struct {
	mu       sync.Mutex
	inbound  chan []byte
	written  [][]byte
	closed   bool
	controls []int
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{inbound: make(chan []byte, 16)}
}

func (f *fakeSocket) ReadMessage() (int, []byte, error) {
	data, ok := <-f.inbound
	if !ok {
		return 0, nil, io.EOF
	}
	return websocket.TextMessage, data, nil
}

func (f *fakeSocket) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("socket closed")
	}
	f.written = append(f.written, data)
	return nil
}

func (f *fakeSocket) WriteControl(messageType int, data []byte, deadline time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.controls = append(f.controls, messageType)
	return nil
}

func (f *fakeSocket) SetReadDeadline(t time.Time) error { return nil }

func (f *fakeSocket) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.inbound)
	}
	return nil
}

func (f *fakeSocket) writtenFrames(t *testing.T) []map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	frames := make([]map[string]any, 0, len(f.written))
	for _, data := range f.written {
		var frame map[string]any
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Fatalf("unmarshal written frame: %v", err)
		}
		frames = append(frames, frame)
	}
	return frames
}

func TestConnEvents(t *testing.T) {
	sock := newFakeSocket()
	conn := NewConn(sock, nil)
	go conn.Run()
	defer conn.Close()

	sock.inbound <- []byte(`{"event": "connected"}`)
	sock.inbound <- []byte(`not json at all`)
	sock.inbound <- []byte(`{"event": "media", "streamSid": "MZ1", "media": {"timestamp": "100", "payload": "AA=="}}`)

	// The malformed frame is dropped; order of the rest is preserved.
	want := []string{EventConnected, EventMedia}
	for _, wantEvent := range want {
		select {
		case msg := <-conn.Events():
			if msg.Event != wantEvent {
				t.Errorf("event = %s, want %s", msg.Event, wantEvent)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", wantEvent)
		}
	}
}

func TestConnEventsChannelClosesOnEOF(t *testing.T) {
	sock := newFakeSocket()
	conn := NewConn(sock, nil)
	go conn.Run()

	sock.Close()

	select {
	case _, ok := <-conn.Events():
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("events channel did not close")
	}
}

func TestConnWrites(t *testing.T) {
	sock := newFakeSocket()
	conn := NewConn(sock, nil)

	if err := conn.SendMedia("MZ1", "bXVsYXc="); err != nil {
		t.Fatalf("SendMedia: %v", err)
	}
	if err := conn.SendMark("MZ1", "tok"); err != nil {
		t.Fatalf("SendMark: %v", err)
	}
	if err := conn.SendClear("MZ1"); err != nil {
		t.Fatalf("SendClear: %v", err)
	}

	frames := sock.writtenFrames(t)
	if len(frames) != 3 {
		t.Fatalf("wrote %d frames, want 3", len(frames))
	}
	if frames[0]["event"] != "media" || frames[1]["event"] != "mark" || frames[2]["event"] != "clear" {
		t.Errorf("frame order = %v, %v, %v", frames[0]["event"], frames[1]["event"], frames[2]["event"])
	}

	conn.Close()
	if err := conn.SendMedia("MZ1", "AA=="); !errors.Is(err, ErrConnClosed) {
		t.Errorf("expected ErrConnClosed after Close, got %v", err)
	}
}

func TestConnCloseIdempotent(t *testing.T) {
	sock := newFakeSocket()
	conn := NewConn(sock, nil)

	if err := conn.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	sock.mu.Lock()
	defer sock.mu.Unlock()
	if len(sock.controls) != 1 {
		t.Errorf("sent %d close frames, want 1", len(sock.controls))
	}
}

func TestConnClosePolicyViolation(t *testing.T) {
	sock := newFakeSocket()
	conn := NewConn(sock, nil)

	if err := conn.ClosePolicyViolation("missing credential"); err != nil {
		t.Fatalf("ClosePolicyViolation: %v", err)
	}
	// A later plain Close must not send a second close frame.
	conn.Close()

	sock.mu.Lock()
	defer sock.mu.Unlock()
	if len(sock.controls) != 1 {
		t.Errorf("sent %d close frames, want 1", len(sock.controls))
	}
}
