// Package realtime implements the model side of the voice bridge: a
// WebSocket client for the OpenAI Realtime API that negotiates the session,
// forwards caller audio, and surfaces response events to the bridge.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Client manages one WebSocket connection to the realtime API. One Client
// exists per phone call; it is never shared across calls.
type Client struct {
	config *Config
	logger *slog.Logger

	mu           sync.RWMutex
	conn         *websocket.Conn
	state        ConnectionState
	sessionReady bool
	configured   bool
	cancelCtx    context.CancelFunc

	// Callbacks
	onReady          func()
	onAudioDelta     func(itemID, deltaB64 string)
	onSpeechStarted  func()
	onSpeechStopped  func()
	onInputCommitted func()
	onFunctionCall   func(callID, name, argsJSON string)
	onResponseDone   func()
	onTranscript     func(role, text string, isFinal bool)
	onError          func(err error)
	onClose          func(err error)

	// Metrics
	messagesSent     atomic.Int64
	messagesReceived atomic.Int64
}

// NewClient creates a realtime client for one call.
func NewClient(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Client{
		config: cfg,
		logger: cfg.Logger.With("component", "realtime"),
		state:  StateDisconnected,
	}, nil
}

// Connect establishes the WebSocket connection to the realtime API.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.state = StateConnecting
	c.mu.Unlock()

	url := fmt.Sprintf("%s?model=%s", c.config.BaseURL, c.config.Model)

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+c.config.APIKey)
	headers.Set("OpenAI-Beta", "realtime=v1")

	dialer := websocket.Dialer{
		HandshakeTimeout: c.config.Timeout,
	}

	c.logger.Info("connecting to realtime API", "model", c.config.Model)

	conn, resp, err := dialer.DialContext(ctx, url, headers)
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		if resp != nil {
			return NewConnectionError(
				fmt.Sprintf("dial failed with status %d", resp.StatusCode), err)
		}
		return NewConnectionError("dial failed", err)
	}

	msgCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.conn = conn
	c.state = StateConnected
	c.cancelCtx = cancel
	c.mu.Unlock()

	go c.handleMessages(msgCtx)
	if c.config.PingInterval > 0 {
		go c.keepAlive(msgCtx)
	}

	c.logger.Info("connected to realtime API")
	return nil
}

// Close gracefully closes the connection. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateDisconnected {
		return nil
	}

	if c.cancelCtx != nil {
		c.cancelCtx()
	}

	if c.conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			deadline,
		)
		_ = c.conn.Close()
		c.conn = nil
	}

	c.state = StateDisconnected
	c.sessionReady = false
	c.logger.Info("disconnected from realtime API")
	return nil
}

// IsConnected returns true while the socket is up.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == StateConnected
}

// Ready reports whether session.updated has confirmed the configuration.
// No audio may be forwarded before this.
func (c *Client) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionReady
}

// ConfigureSession sends the session configuration exactly once, then
// clears the input audio buffer to discard any pre-session artifacts, then
// injects the welcome message if one is configured. A failed attempt does
// not consume the once: the caller may retry.
func (c *Client) ConfigureSession(opts SessionOptions) error {
	c.mu.Lock()
	if c.configured {
		c.mu.Unlock()
		return nil
	}
	c.configured = true
	c.mu.Unlock()

	if err := c.configureSession(opts); err != nil {
		c.mu.Lock()
		c.configured = false
		c.mu.Unlock()
		return err
	}
	return nil
}

func (c *Client) configureSession(opts SessionOptions) error {
	if err := c.sendJSON(buildSessionUpdate(opts)); err != nil {
		return NewConnectionError("configure session failed", err)
	}
	if err := c.ClearInputAudio(); err != nil {
		return err
	}
	if opts.WelcomeMessage != "" {
		if err := c.InjectAssistantMessage(opts.WelcomeMessage); err != nil {
			return err
		}
		if err := c.CreateResponse(); err != nil {
			return err
		}
	}
	return nil
}

// SendAudio forwards one base64 mu-law chunk to the model's input audio
// buffer. Refused until the session is ready.
func (c *Client) SendAudio(payloadB64 string) error {
	if !c.Ready() {
		return ErrSessionNotReady
	}
	err := c.sendJSON(map[string]any{
		"type":  "input_audio_buffer.append",
		"audio": payloadB64,
	})
	if err != nil {
		return NewConnectionError("send audio failed", err)
	}
	return nil
}

// ClearInputAudio discards whatever is sitting in the model's input buffer.
func (c *Client) ClearInputAudio() error {
	if err := c.sendJSON(map[string]string{"type": "input_audio_buffer.clear"}); err != nil {
		return NewConnectionError("clear input audio failed", err)
	}
	return nil
}

// InjectAssistantMessage creates an assistant conversation item carrying
// text, without requesting generation. Used for the welcome greeting and the
// spoken error fallback.
func (c *Client) InjectAssistantMessage(text string) error {
	msg := map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type": "message",
			"role": "assistant",
			"content": []map[string]any{
				{"type": "text", "text": text},
			},
		},
	}
	if err := c.sendJSON(msg); err != nil {
		return NewConnectionError("inject assistant message failed", err)
	}
	return nil
}

// CreateResponse asks the model to generate a response now.
func (c *Client) CreateResponse() error {
	if err := c.sendJSON(map[string]string{"type": "response.create"}); err != nil {
		return NewConnectionError("create response failed", err)
	}
	return nil
}

// TruncateItem tells the model how much of an assistant item the caller
// actually heard, so its transcript stays consistent after a barge-in.
func (c *Client) TruncateItem(itemID string, audioEndMS int64) error {
	msg := map[string]any{
		"type":          "conversation.item.truncate",
		"item_id":       itemID,
		"content_index": 0,
		"audio_end_ms":  audioEndMS,
	}
	if err := c.sendJSON(msg); err != nil {
		return NewConnectionError("truncate item failed", err)
	}
	return nil
}

// SubmitToolOutput answers a function call and requests continuation. Every
// function call must be answered or the model's turn stalls.
func (c *Client) SubmitToolOutput(callID, output string) error {
	msg := map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type":    "function_call_output",
			"call_id": callID,
			"output":  output,
		},
	}
	if err := c.sendJSON(msg); err != nil {
		return NewConnectionError("submit tool output failed", err)
	}
	if err := c.CreateResponse(); err != nil {
		return err
	}
	c.logger.Debug("submitted tool output", "call_id", callID, "output_len", len(output))
	return nil
}

// OnReady is called once session.updated confirms the configuration.
func (c *Client) OnReady(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReady = fn
}

// OnAudioDelta is called per response audio fragment. The payload stays
// base64 encoded; the bridge relays it untouched.
func (c *Client) OnAudioDelta(fn func(itemID, deltaB64 string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAudioDelta = fn
}

// OnSpeechStarted is called when the caller starts speaking.
func (c *Client) OnSpeechStarted(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSpeechStarted = fn
}

// OnSpeechStopped is called when the caller stops speaking.
func (c *Client) OnSpeechStopped(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSpeechStopped = fn
}

// OnInputCommitted is called when the input audio buffer is committed.
func (c *Client) OnInputCommitted(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onInputCommitted = fn
}

// OnFunctionCall is called when the model finishes emitting the arguments
// of a function call.
func (c *Client) OnFunctionCall(fn func(callID, name, argsJSON string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFunctionCall = fn
}

// OnResponseDone is called when a response completes.
func (c *Client) OnResponseDone(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onResponseDone = fn
}

// OnTranscript is called with caller and agent transcription text.
func (c *Client) OnTranscript(fn func(role, text string, isFinal bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTranscript = fn
}

// OnError is called when the API reports an error event.
func (c *Client) OnError(fn func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

// OnClose is called once when the read loop exits; err is nil for a normal
// close.
func (c *Client) OnClose(fn func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = fn
}

// MessagesSent returns the count of messages written to the API.
func (c *Client) MessagesSent() int64 {
	return c.messagesSent.Load()
}

// MessagesReceived returns the count of messages read from the API.
func (c *Client) MessagesReceived() int64 {
	return c.messagesReceived.Load()
}

// keepAlive sends periodic pings so quiet stretches of a call do not drop
// the model socket.
func (c *Client) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			conn := c.conn
			if conn != nil {
				deadline := time.Now().Add(c.config.WriteTimeout)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					c.mu.Unlock()
					return
				}
			}
			c.mu.Unlock()
		}
	}
}

// handleMessages processes incoming WebSocket messages until the socket
// closes.
func (c *Client) handleMessages(ctx context.Context) {
	var closeErr error
	defer func() {
		c.mu.Lock()
		if c.state == StateConnected {
			c.state = StateDisconnected
		}
		c.sessionReady = false
		fn := c.onClose
		c.mu.Unlock()
		if fn != nil {
			fn(closeErr)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		if conn == nil {
			return
		}

		if c.config.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info("realtime connection closed normally")
				return
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
			c.logger.Error("realtime read failed", "error", err)
			closeErr = NewConnectionError("read failed", err)
			return
		}

		c.messagesReceived.Add(1)

		var event map[string]any
		if err := json.Unmarshal(data, &event); err != nil {
			c.logger.Warn("dropping malformed realtime event", "error", err)
			continue
		}
		c.handleEvent(event)
	}
}

// handleEvent dispatches one decoded server event.
func (c *Client) handleEvent(event map[string]any) {
	eventType, _ := event["type"].(string)

	switch eventType {
	case "session.created":
		c.logger.Info("session created")

	case "session.updated":
		c.mu.Lock()
		first := !c.sessionReady
		c.sessionReady = true
		fn := c.onReady
		c.mu.Unlock()
		c.logger.Debug("session updated")
		if first && fn != nil {
			fn()
		}

	case "response.audio.delta":
		delta, ok := event["delta"].(string)
		if !ok {
			return
		}
		itemID, _ := event["item_id"].(string)
		c.mu.RLock()
		fn := c.onAudioDelta
		c.mu.RUnlock()
		if fn != nil {
			fn(itemID, delta)
		}

	case "input_audio_buffer.speech_started":
		c.logger.Debug("speech started")
		c.mu.RLock()
		fn := c.onSpeechStarted
		c.mu.RUnlock()
		if fn != nil {
			fn()
		}

	case "input_audio_buffer.speech_stopped":
		c.logger.Debug("speech stopped")
		c.mu.RLock()
		fn := c.onSpeechStopped
		c.mu.RUnlock()
		if fn != nil {
			fn()
		}

	case "input_audio_buffer.committed":
		c.mu.RLock()
		fn := c.onInputCommitted
		c.mu.RUnlock()
		if fn != nil {
			fn()
		}

	case "conversation.item.input_audio_transcription.completed":
		if transcript, ok := event["transcript"].(string); ok {
			c.emitTranscript("caller", transcript, true)
		}

	case "response.audio_transcript.delta":
		if delta, ok := event["delta"].(string); ok {
			c.emitTranscript("agent", delta, false)
		}

	case "response.function_call_arguments.done":
		name, _ := event["name"].(string)
		callID, _ := event["call_id"].(string)
		argsJSON, _ := event["arguments"].(string)
		c.logger.Info("function call received", "name", name, "call_id", callID)
		c.mu.RLock()
		fn := c.onFunctionCall
		c.mu.RUnlock()
		if fn != nil {
			fn(callID, name, argsJSON)
		}

	case "response.created", "response.output_item.added":
		c.logger.Debug("response event", "type", eventType)

	case "response.done":
		c.mu.RLock()
		fn := c.onResponseDone
		c.mu.RUnlock()
		if fn != nil {
			fn()
		}

	case "error":
		c.handleErrorEvent(event)

	default:
		// Ignore other event types.
	}
}

// handleErrorEvent surfaces an API error and, when a fallback message is
// configured, speaks it to the caller instead of leaving silence.
func (c *Client) handleErrorEvent(event map[string]any) {
	apiErr := &APIError{Message: "unknown error"}
	if errData, ok := event["error"].(map[string]any); ok {
		apiErr.Message, _ = errData["message"].(string)
		apiErr.Code, _ = errData["code"].(string)
		apiErr.Type, _ = errData["type"].(string)
		apiErr.EventID, _ = errData["event_id"].(string)
	}
	c.logger.Error("realtime API error", "code", apiErr.Code, "message", apiErr.Message)

	c.mu.RLock()
	fn := c.onError
	c.mu.RUnlock()
	if fn != nil {
		fn(apiErr)
	}

	if c.config.ErrorMessage != "" {
		if err := c.InjectAssistantMessage(c.config.ErrorMessage); err != nil {
			c.logger.Warn("failed to inject error fallback message", "error", err)
			return
		}
		if err := c.CreateResponse(); err != nil {
			c.logger.Warn("failed to request error fallback response", "error", err)
		}
	}
}

func (c *Client) emitTranscript(role, text string, isFinal bool) {
	c.mu.RLock()
	fn := c.onTranscript
	c.mu.RUnlock()
	if fn != nil {
		fn(role, text, isFinal)
	}
}

// sendJSON writes one message under the write lock.
func (c *Client) sendJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.state != StateConnected {
		return ErrNotConnected
	}
	if c.config.WriteTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	}
	if err := c.conn.WriteJSON(v); err != nil {
		return err
	}
	c.messagesSent.Add(1)
	return nil
}
