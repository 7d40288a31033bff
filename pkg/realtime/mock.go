package realtime

import (
	"context"
	"sync"
)

// Mock is a mock implementation of Model for testing.
type Mock struct {
	mu sync.RWMutex

	// State
	connected bool
	ready     bool

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

	// Configurable behavior
	ConnectFunc          func(ctx context.Context) error
	CloseFunc            func() error
	SendAudioFunc        func(payloadB64 string) error
	ConfigureSessionFunc func(opts SessionOptions) error
	TruncateItemFunc     func(itemID string, audioEndMS int64) error
	SubmitToolOutputFunc func(callID, output string) error

	// Captured calls for assertions
	AudioSent        []string
	SessionOptions   *SessionOptions
	ToolOutputs      map[string]string
	Injected         []string
	Truncations      []Truncation
	ClearInputCalls  int
	ResponsesCreated int
}

// Truncation records one TruncateItem call.
type Truncation struct {
	ItemID     string
	AudioEndMS int64
}

// NewMock creates a new Mock model.
func NewMock() *Mock {
	return &Mock{
		ToolOutputs: make(map[string]string),
	}
}

// Connect implements Model.
func (m *Mock) Connect(ctx context.Context) error {
	if m.ConnectFunc != nil {
		return m.ConnectFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	return nil
}

// Close implements Model.
func (m *Mock) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	m.ready = false
	return nil
}

// IsConnected implements Model.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Ready implements Model.
func (m *Mock) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ready
}

// ConfigureSession implements Model.
func (m *Mock) ConfigureSession(opts SessionOptions) error {
	if m.ConfigureSessionFunc != nil {
		return m.ConfigureSessionFunc(opts)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SessionOptions = &opts
	return nil
}

// SendAudio implements Model. It enforces the same readiness gate as the
// real client.
func (m *Mock) SendAudio(payloadB64 string) error {
	if m.SendAudioFunc != nil {
		return m.SendAudioFunc(payloadB64)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	if !m.ready {
		return ErrSessionNotReady
	}
	m.AudioSent = append(m.AudioSent, payloadB64)
	return nil
}

// ClearInputAudio implements Model.
func (m *Mock) ClearInputAudio() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	m.ClearInputCalls++
	return nil
}

// InjectAssistantMessage implements Model.
func (m *Mock) InjectAssistantMessage(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	m.Injected = append(m.Injected, text)
	return nil
}

// CreateResponse implements Model.
func (m *Mock) CreateResponse() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	m.ResponsesCreated++
	return nil
}

// TruncateItem implements Model.
func (m *Mock) TruncateItem(itemID string, audioEndMS int64) error {
	if m.TruncateItemFunc != nil {
		return m.TruncateItemFunc(itemID, audioEndMS)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	m.Truncations = append(m.Truncations, Truncation{ItemID: itemID, AudioEndMS: audioEndMS})
	return nil
}

// SubmitToolOutput implements Model.
func (m *Mock) SubmitToolOutput(callID, output string) error {
	if m.SubmitToolOutputFunc != nil {
		return m.SubmitToolOutputFunc(callID, output)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	m.ToolOutputs[callID] = output
	m.ResponsesCreated++
	return nil
}

// OnReady implements Model.
func (m *Mock) OnReady(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReady = fn
}

// OnAudioDelta implements Model.
func (m *Mock) OnAudioDelta(fn func(itemID, deltaB64 string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onAudioDelta = fn
}

// OnSpeechStarted implements Model.
func (m *Mock) OnSpeechStarted(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSpeechStarted = fn
}

// OnSpeechStopped implements Model.
func (m *Mock) OnSpeechStopped(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSpeechStopped = fn
}

// OnInputCommitted implements Model.
func (m *Mock) OnInputCommitted(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onInputCommitted = fn
}

// OnFunctionCall implements Model.
func (m *Mock) OnFunctionCall(fn func(callID, name, argsJSON string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFunctionCall = fn
}

// OnResponseDone implements Model.
func (m *Mock) OnResponseDone(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onResponseDone = fn
}

// OnTranscript implements Model.
func (m *Mock) OnTranscript(fn func(role, text string, isFinal bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTranscript = fn
}

// OnError implements Model.
func (m *Mock) OnError(fn func(err error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onError = fn
}

// OnClose implements Model.
func (m *Mock) OnClose(fn func(err error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onClose = fn
}

// Test helpers

// SimulateReady marks the session ready and triggers the OnReady callback.
func (m *Mock) SimulateReady() {
	m.mu.Lock()
	m.ready = true
	fn := m.onReady
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// SimulateAudioDelta triggers the OnAudioDelta callback.
func (m *Mock) SimulateAudioDelta(itemID, deltaB64 string) {
	m.mu.RLock()
	fn := m.onAudioDelta
	m.mu.RUnlock()
	if fn != nil {
		fn(itemID, deltaB64)
	}
}

// SimulateSpeechStarted triggers the OnSpeechStarted callback.
func (m *Mock) SimulateSpeechStarted() {
	m.mu.RLock()
	fn := m.onSpeechStarted
	m.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// SimulateSpeechStopped triggers the OnSpeechStopped callback.
func (m *Mock) SimulateSpeechStopped() {
	m.mu.RLock()
	fn := m.onSpeechStopped
	m.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// SimulateInputCommitted triggers the OnInputCommitted callback.
func (m *Mock) SimulateInputCommitted() {
	m.mu.RLock()
	fn := m.onInputCommitted
	m.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// SimulateFunctionCall triggers the OnFunctionCall callback.
func (m *Mock) SimulateFunctionCall(callID, name, argsJSON string) {
	m.mu.RLock()
	fn := m.onFunctionCall
	m.mu.RUnlock()
	if fn != nil {
		fn(callID, name, argsJSON)
	}
}

// SimulateResponseDone triggers the OnResponseDone callback.
func (m *Mock) SimulateResponseDone() {
	m.mu.RLock()
	fn := m.onResponseDone
	m.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// SimulateTranscript triggers the OnTranscript callback.
func (m *Mock) SimulateTranscript(role, text string, isFinal bool) {
	m.mu.RLock()
	fn := m.onTranscript
	m.mu.RUnlock()
	if fn != nil {
		fn(role, text, isFinal)
	}
}

// SimulateError triggers the OnError callback.
func (m *Mock) SimulateError(err error) {
	m.mu.RLock()
	fn := m.onError
	m.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

// SimulateClose triggers the OnClose callback.
func (m *Mock) SimulateClose(err error) {
	m.mu.Lock()
	m.connected = false
	m.ready = false
	fn := m.onClose
	m.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// SentAudio returns a copy of the audio payloads sent so far.
func (m *Mock) SentAudio() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string{}, m.AudioSent...)
}

// TruncateCalls returns a copy of the truncations recorded so far.
func (m *Mock) TruncateCalls() []Truncation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Truncation{}, m.Truncations...)
}

// ConfiguredSession returns the options from the last ConfigureSession
// call, or nil if the session was never configured.
func (m *Mock) ConfiguredSession() *SessionOptions {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.SessionOptions == nil {
		return nil
	}
	opts := *m.SessionOptions
	return &opts
}

// ToolOutput returns the recorded output for a call ID, if any.
func (m *Mock) ToolOutput(callID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out, ok := m.ToolOutputs[callID]
	return out, ok
}

// Reset clears all captured data.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AudioSent = nil
	m.SessionOptions = nil
	m.ToolOutputs = make(map[string]string)
	m.Injected = nil
	m.Truncations = nil
	m.ClearInputCalls = 0
	m.ResponsesCreated = 0
}

// Ensure Mock implements Model.
var _ Model = (*Mock)(nil)
