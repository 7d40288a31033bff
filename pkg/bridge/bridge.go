// Package bridge wires one telephony media stream to one realtime model
// session and keeps the two half-duplex streams consistent: audio is held
// until both sides are ready, playback position is tracked with marks, and
// caller interruptions cut the model off mid-sentence.
package bridge

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxbridge/voxbridge/pkg/realtime"
	"github.com/voxbridge/voxbridge/pkg/telephony"
)

const defaultIdleTimeout = 90 * time.Second

// Config holds per-call bridge configuration.
type Config struct {
	// Session is the model session configuration for this call.
	Session realtime.SessionOptions

	// IdleTimeout ends the call after this long without caller media.
	// Zero uses the default.
	IdleTimeout time.Duration

	// Dispatcher answers the model's function calls. Nil means every call
	// is answered "not implemented".
	Dispatcher *Dispatcher

	// Registry, when set, tracks this bridge for the call's duration.
	Registry *Registry

	// OnTranscript, when set, receives caller and agent transcript text.
	OnTranscript func(role, text string, isFinal bool)

	// Logger is the structured logger.
	Logger *slog.Logger
}

// Option configures a Bridge.
type Option func(*Config)

// WithSession sets the model session configuration.
func WithSession(opts realtime.SessionOptions) Option {
	return func(c *Config) {
		c.Session = opts
	}
}

// WithIdleTimeout sets the no-media call timeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.IdleTimeout = d
	}
}

// WithDispatcher sets the tool dispatcher.
func WithDispatcher(d *Dispatcher) Option {
	return func(c *Config) {
		c.Dispatcher = d
	}
}

// WithRegistry tracks the bridge in a registry for its lifetime.
func WithRegistry(r *Registry) Option {
	return func(c *Config) {
		c.Registry = r
	}
}

// WithTranscripts sets the transcript callback.
func WithTranscripts(fn func(role, text string, isFinal bool)) Option {
	return func(c *Config) {
		c.OnTranscript = fn
	}
}

// WithBridgeLogger sets the structured logger.
func WithBridgeLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// Bridge relays one call between the telephony socket and the model
// session. All stream state lives in the Run loop; the model's callbacks
// are funneled into it as events, so no locking is needed around the
// synchronization and barge-in bookkeeping.
type Bridge struct {
	id      string
	tel     *telephony.Conn
	model   realtime.Model
	cfg     Config
	logger  *slog.Logger
	metrics *CallMetrics

	modelEvents  chan modelEvent
	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}
}

type modelEventKind int

const (
	evReady modelEventKind = iota
	evAudioDelta
	evSpeechStarted
	evSpeechStopped
	evInputCommitted
	evFunctionCall
	evResponseDone
	evError
	evClosed
)

type modelEvent struct {
	kind    modelEventKind
	itemID  string
	payload string
	callID  string
	name    string
	args    string
	err     error
}

// New creates a bridge for one accepted media stream.
func New(tel *telephony.Conn, model realtime.Model, opts ...Option) *Bridge {
	cfg := Config{
		IdleTimeout: defaultIdleTimeout,
		Logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}

	id := uuid.NewString()
	return &Bridge{
		id:          id,
		tel:         tel,
		model:       model,
		cfg:         cfg,
		logger:      cfg.Logger.With("component", "bridge", "bridge_id", id),
		metrics:     NewCallMetrics(),
		modelEvents: make(chan modelEvent, 256),
		shutdown:    make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// ID returns the bridge's unique identifier.
func (b *Bridge) ID() string {
	return b.id
}

// Metrics returns the call's counters.
func (b *Bridge) Metrics() *CallMetrics {
	return b.metrics
}

// Shutdown asks the Run loop to end the call. It does not wait. Safe to
// call from any goroutine, any number of times.
func (b *Bridge) Shutdown() {
	b.shutdownOnce.Do(func() {
		close(b.shutdown)
	})
}

// push funnels a model callback into the Run loop.
func (b *Bridge) push(ev modelEvent) {
	select {
	case b.modelEvents <- ev:
	case <-b.done:
	}
}

// Run drives the call until either side hangs up. It must be called once;
// it owns both connections and closes them before returning.
func (b *Bridge) Run(ctx context.Context) error {
	defer close(b.done)
	defer b.tel.Close()
	defer b.model.Close()

	if b.cfg.Registry != nil {
		b.cfg.Registry.Register(b)
		defer b.cfg.Registry.Unregister(b.id)
	}

	b.model.OnReady(func() { b.push(modelEvent{kind: evReady}) })
	b.model.OnAudioDelta(func(itemID, deltaB64 string) {
		b.push(modelEvent{kind: evAudioDelta, itemID: itemID, payload: deltaB64})
	})
	b.model.OnSpeechStarted(func() { b.push(modelEvent{kind: evSpeechStarted}) })
	b.model.OnSpeechStopped(func() { b.push(modelEvent{kind: evSpeechStopped}) })
	b.model.OnInputCommitted(func() { b.push(modelEvent{kind: evInputCommitted}) })
	b.model.OnFunctionCall(func(callID, name, argsJSON string) {
		b.push(modelEvent{kind: evFunctionCall, callID: callID, name: name, args: argsJSON})
	})
	b.model.OnResponseDone(func() { b.push(modelEvent{kind: evResponseDone}) })
	b.model.OnError(func(err error) { b.push(modelEvent{kind: evError, err: err}) })
	b.model.OnClose(func(err error) { b.push(modelEvent{kind: evClosed, err: err}) })
	if b.cfg.OnTranscript != nil {
		b.model.OnTranscript(b.cfg.OnTranscript)
	}

	if err := b.model.Connect(ctx); err != nil {
		b.logger.Error("model connect failed", "error", err)
		return err
	}
	if err := b.model.ConfigureSession(b.cfg.Session); err != nil {
		b.logger.Error("session configuration failed", "error", err)
		return err
	}

	go b.tel.Run()

	return b.loop(ctx)
}

// loop is the single-threaded heart of the bridge.
func (b *Bridge) loop(ctx context.Context) error {
	var (
		streamSID         string
		callSID           string
		modelReady        bool
		latestMediaTS     int64
		responseStartTS   int64 = -1
		lastAssistantItem string
		pendingCaller     []string
		pendingModel      []modelEvent
		markQueue         []string
	)

	// sendDelta transmits one model audio chunk to the caller and records
	// the playback anchor for the response on its first chunk.
	sendDelta := func(ev modelEvent) {
		if responseStartTS < 0 {
			responseStartTS = latestMediaTS
		}
		if ev.itemID != "" {
			lastAssistantItem = ev.itemID
		}
		if err := b.tel.SendMedia(streamSID, ev.payload); err != nil {
			b.logger.Debug("media send failed", "error", err)
			return
		}
		mark := uuid.NewString()
		markQueue = append(markQueue, mark)
		if err := b.tel.SendMark(streamSID, mark); err != nil {
			b.logger.Debug("mark send failed", "error", err)
		}
		b.metrics.framesOut.Add(1)
	}

	knowledgeSources := b.cfg.Session.KnowledgeSources()

	idle := time.NewTimer(b.cfg.IdleTimeout)
	defer idle.Stop()

	telEvents := b.tel.Events()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("call context canceled")
			return ctx.Err()

		case <-b.shutdown:
			b.logger.Info("call shut down")
			return nil

		case <-idle.C:
			b.logger.Warn("call idle timeout", "timeout", b.cfg.IdleTimeout)
			return nil

		case msg, ok := <-telEvents:
			if !ok {
				b.logger.Info("caller disconnected")
				return nil
			}

			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(b.cfg.IdleTimeout)

			switch msg.Event {
			case telephony.EventConnected:
				b.logger.Debug("media stream connected")

			case telephony.EventStart:
				streamSID = msg.Start.StreamSID
				callSID = msg.Start.CallSID
				b.logger.Info("call started",
					"stream_sid", streamSID, "call_sid", callSID)
				// Deltas that arrived before the stream identity are now
				// deliverable, in order.
				for _, ev := range pendingModel {
					sendDelta(ev)
				}
				pendingModel = nil

			case telephony.EventMedia:
				if msg.Media == nil {
					continue
				}
				latestMediaTS = int64(msg.Media.Timestamp)
				b.metrics.framesIn.Add(1)
				if !modelReady {
					pendingCaller = append(pendingCaller, msg.Media.Payload)
					b.metrics.framesQueued.Add(1)
					continue
				}
				if err := b.model.SendAudio(msg.Media.Payload); err != nil {
					b.logger.Debug("audio forward failed", "error", err)
				}

			case telephony.EventMark:
				if msg.Mark == nil {
					continue
				}
				for i, name := range markQueue {
					if name == msg.Mark.Name {
						markQueue = append(markQueue[:i], markQueue[i+1:]...)
						break
					}
				}

			case telephony.EventDTMF:
				if msg.DTMF == nil {
					continue
				}
				b.metrics.dtmfDigits.Add(1)
				b.logger.Info("dtmf digit", "digit", msg.DTMF.Digit)

			case telephony.EventStop:
				b.logger.Info("call stopped", "call_sid", callSID)
				return nil
			}

		case ev := <-b.modelEvents:
			switch ev.kind {
			case evReady:
				modelReady = true
				b.logger.Info("model session ready",
					"queued_frames", len(pendingCaller))
				// Held caller audio goes out first, in arrival order, before
				// any live frame can interleave.
				for _, payload := range pendingCaller {
					if err := b.model.SendAudio(payload); err != nil {
						b.logger.Debug("queued audio forward failed", "error", err)
						break
					}
				}
				pendingCaller = nil

			case evAudioDelta:
				if streamSID == "" {
					pendingModel = append(pendingModel, ev)
					continue
				}
				sendDelta(ev)

			case evSpeechStarted:
				// Barge-in. Only meaningful while a response is in flight.
				if responseStartTS < 0 && len(pendingModel) == 0 {
					if len(markQueue) > 0 {
						// The response already finished; only unacked marks
						// remain. Flush the queued playback but do not treat
						// this as a barge-in.
						b.logger.Debug("speech during residual playback",
							"pending_marks", len(markQueue))
						if streamSID != "" {
							if err := b.tel.SendClear(streamSID); err != nil {
								b.logger.Debug("clear failed", "error", err)
							}
						}
						markQueue = nil
						continue
					}
					b.logger.Debug("speech started with no response in flight")
					continue
				}
				elapsed := latestMediaTS - responseStartTS
				if responseStartTS < 0 || elapsed < 0 {
					elapsed = 0
				}
				b.logger.Info("caller barge-in",
					"elapsed_ms", elapsed, "item_id", lastAssistantItem)
				if lastAssistantItem != "" {
					if err := b.model.TruncateItem(lastAssistantItem, elapsed); err != nil {
						b.logger.Debug("truncate failed", "error", err)
					}
				}
				if streamSID != "" {
					if err := b.tel.SendClear(streamSID); err != nil {
						b.logger.Debug("clear failed", "error", err)
					}
				}
				markQueue = nil
				pendingModel = nil
				lastAssistantItem = ""
				responseStartTS = -1
				b.metrics.bargeIns.Add(1)

			case evSpeechStopped:
				b.logger.Debug("caller speech ended")

			case evInputCommitted:
				b.logger.Debug("caller turn committed")

			case evFunctionCall:
				b.metrics.toolCalls.Add(1)
				dispatcher := b.cfg.Dispatcher
				if dispatcher == nil {
					dispatcher = NewDispatcher(WithDispatcherLogger(b.cfg.Logger))
				}
				// Off the audio path: a slow tool must not stall the relay.
				go dispatcher.Dispatch(ctx, b.model.SubmitToolOutput, ev.callID, ev.name, ev.args, knowledgeSources)

			case evResponseDone:
				// The next response gets a fresh playback anchor.
				responseStartTS = -1
				lastAssistantItem = ""

			case evError:
				b.logger.Warn("model error", "error", ev.err)

			case evClosed:
				if ev.err != nil {
					b.logger.Warn("model connection lost", "error", ev.err)
					return ev.err
				}
				b.logger.Info("model connection closed")
				return nil
			}
		}
	}
}
