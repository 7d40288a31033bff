package realtime

import "context"

// Model is the surface the bridge drives a realtime model through. Client
// is the production implementation; Mock backs the tests.
type Model interface {
	// Lifecycle
	Connect(ctx context.Context) error
	Close() error
	IsConnected() bool
	Ready() bool

	// Session
	ConfigureSession(opts SessionOptions) error

	// Outbound
	SendAudio(payloadB64 string) error
	ClearInputAudio() error
	InjectAssistantMessage(text string) error
	CreateResponse() error
	TruncateItem(itemID string, audioEndMS int64) error
	SubmitToolOutput(callID, output string) error

	// Callbacks
	OnReady(fn func())
	OnAudioDelta(fn func(itemID, deltaB64 string))
	OnSpeechStarted(fn func())
	OnSpeechStopped(fn func())
	OnInputCommitted(fn func())
	OnFunctionCall(fn func(callID, name, argsJSON string))
	OnResponseDone(fn func())
	OnTranscript(fn func(role, text string, isFinal bool))
	OnError(fn func(err error))
	OnClose(fn func(err error))
}

// Ensure Client implements Model.
var _ Model = (*Client)(nil)
