package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/voxbridge/voxbridge/pkg/knowledge"
	"github.com/voxbridge/voxbridge/pkg/realtime"
)

const defaultDispatchTimeout = 15 * time.Second

// ToolHandler executes one registered function tool. argsJSON is the raw
// argument string from the model.
type ToolHandler func(ctx context.Context, argsJSON string) (string, error)

// Dispatcher routes the model's function calls to their implementations and
// guarantees every call is answered exactly once, so the model's turn never
// stalls waiting for an output that will not come.
type Dispatcher struct {
	retriever knowledge.Retriever
	handlers  map[string]ToolHandler
	timeout   time.Duration
	logger    *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithRetriever wires the knowledge-search backend.
func WithRetriever(r knowledge.Retriever) DispatcherOption {
	return func(d *Dispatcher) {
		d.retriever = r
	}
}

// WithToolHandler registers a handler for a named function tool.
func WithToolHandler(name string, h ToolHandler) DispatcherOption {
	return func(d *Dispatcher) {
		d.handlers[name] = h
	}
}

// WithDispatchTimeout bounds how long one tool execution may take.
func WithDispatchTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.timeout = timeout
	}
}

// WithDispatcherLogger sets the structured logger.
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		handlers: make(map[string]ToolHandler),
		timeout:  defaultDispatchTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "dispatcher")
	return d
}

// submitFunc delivers one tool output back to the model.
type submitFunc func(callID, output string) error

// Dispatch executes one function call and submits its output. sourceIDs
// are the call's configured knowledge-source identifiers, forwarded to the
// retrieval collaborator with each search. It blocks for the duration of
// the tool, so the bridge runs it on its own goroutine, off the audio
// path. Failures of every kind become structured error payloads; the
// callID is always answered.
func (d *Dispatcher) Dispatch(ctx context.Context, submit submitFunc, callID, name, argsJSON string, sourceIDs []string) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	output := d.execute(ctx, name, argsJSON, sourceIDs)
	if err := submit(callID, output); err != nil {
		d.logger.Warn("failed to submit tool output",
			"tool", name, "call_id", callID, "error", err)
	}
}

func (d *Dispatcher) execute(ctx context.Context, name, argsJSON string, sourceIDs []string) string {
	start := time.Now()

	var result string
	var err error
	switch {
	case name == realtime.KnowledgeSearchToolName:
		result, err = d.knowledgeSearch(ctx, argsJSON, sourceIDs)
	default:
		handler, ok := d.handlers[name]
		if !ok {
			d.logger.Warn("unimplemented tool requested", "tool", name)
			return errorPayload(fmt.Sprintf("tool not implemented: %s", name))
		}
		result, err = handler(ctx, argsJSON)
	}

	if err != nil {
		d.logger.Warn("tool execution failed",
			"tool", name, "elapsed", time.Since(start), "error", err)
		return errorPayload(err.Error())
	}

	d.logger.Debug("tool executed", "tool", name, "elapsed", time.Since(start))
	return resultPayload(result)
}

type knowledgeSearchArgs struct {
	Query string `json:"query"`
}

func (d *Dispatcher) knowledgeSearch(ctx context.Context, argsJSON string, sourceIDs []string) (string, error) {
	if d.retriever == nil {
		return "", fmt.Errorf("no knowledge base is configured")
	}
	var args knowledgeSearchArgs
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return "", fmt.Errorf("malformed tool arguments: %v", err)
	}
	if args.Query == "" {
		return "", fmt.Errorf("missing required argument: query")
	}
	return d.retriever.Search(ctx, args.Query, sourceIDs)
}

func resultPayload(result string) string {
	data, err := json.Marshal(map[string]string{"result": result})
	if err != nil {
		return `{"error":"failed to encode tool result"}`
	}
	return string(data)
}

func errorPayload(message string) string {
	data, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return `{"error":"tool failed"}`
	}
	return string(data)
}
