package realtime

// ConnectionState represents the WebSocket connection state.
type ConnectionState int

const (
	// StateDisconnected indicates no active connection.
	StateDisconnected ConnectionState = iota
	// StateConnecting indicates connection is being established.
	StateConnecting
	// StateConnected indicates an active connection.
	StateConnected
)

// String returns a human-readable connection state.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Tool type identifiers accepted in agent configuration.
const (
	// ToolTypeFunction is a plain callable function tool, passed through to
	// the realtime session as-is.
	ToolTypeFunction = "function"

	// ToolTypeFileSearch is the richer retrieval-tool type used by the
	// assistants surface. The realtime protocol only supports invocable
	// functions, so the session builder translates it into the
	// knowledge-search function tool.
	ToolTypeFileSearch = "file_search"
)

// KnowledgeSearchToolName is the function name file_search tools are
// translated to, and the name the tool dispatcher answers.
const KnowledgeSearchToolName = "knowledge_search"

// Tool declares one tool offered to the model for the session.
type Tool struct {
	// Type is ToolTypeFunction or ToolTypeFileSearch.
	Type string

	// Name is the unique identifier for the tool.
	Name string

	// Description explains what the tool does (shown to the model).
	Description string

	// Parameters defines the JSON Schema for tool arguments.
	Parameters map[string]any

	// VectorStoreIDs scope a file_search tool to specific knowledge
	// sources. They are not sent to the model; the tool dispatcher passes
	// them to the retrieval collaborator with each query.
	VectorStoreIDs []string
}

// TurnDetection configures server-side voice activity detection.
type TurnDetection struct {
	// Type specifies the VAD mode, normally "server_vad".
	Type string

	// Threshold is the VAD sensitivity (0.0-1.0, higher = less sensitive).
	Threshold float64

	// PrefixPaddingMs is the audio to include before speech detection (ms).
	PrefixPaddingMs int

	// SilenceDurationMs is how long silence indicates end of turn (ms).
	SilenceDurationMs int
}

// SessionOptions is the per-call session configuration sent once, right
// after the model socket connects.
type SessionOptions struct {
	// Instructions is the agent prompt. The spoken-output directive is
	// appended automatically.
	Instructions string

	// Voice is the requested voice identifier. Unknown values fall back to
	// DefaultVoice rather than failing the call.
	Voice string

	// Temperature controls response randomness.
	Temperature float64

	// MaxResponseTokens limits response length. Zero means unlimited.
	MaxResponseTokens int

	// Tools declared for the session; file_search entries are translated.
	Tools []Tool

	// KnowledgeSourceIDs scope this call's knowledge searches to specific
	// vector stores, in addition to any IDs carried on file_search tools.
	KnowledgeSourceIDs []string

	// TurnDetection configures VAD. Nil uses the defaults.
	TurnDetection *TurnDetection

	// TranscriptionModel is the input transcription model. Empty uses
	// whisper-1.
	TranscriptionModel string

	// WelcomeMessage, when set, is injected as an assistant message after
	// configuration and a response is requested immediately, so the caller
	// hears a greeting without speaking first.
	WelcomeMessage string
}

// KnowledgeSources returns the call's knowledge-source identifiers: the
// session-level IDs followed by the vector-store IDs of any file_search
// tools, deduplicated in order.
func (o SessionOptions) KnowledgeSources() []string {
	var ids []string
	seen := make(map[string]struct{})
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for _, id := range o.KnowledgeSourceIDs {
		add(id)
	}
	for _, tool := range o.Tools {
		if tool.Type != ToolTypeFileSearch {
			continue
		}
		for _, id := range tool.VectorStoreIDs {
			add(id)
		}
	}
	return ids
}

// Voices supported by the realtime API.
const (
	VoiceAlloy   = "alloy"
	VoiceAsh     = "ash"
	VoiceBallad  = "ballad"
	VoiceCoral   = "coral"
	VoiceEcho    = "echo"
	VoiceSage    = "sage"
	VoiceShimmer = "shimmer"
	VoiceVerse   = "verse"
)

// DefaultVoice is used when the configured voice is not in the allow-list.
const DefaultVoice = VoiceAlloy

var allowedVoices = map[string]struct{}{
	VoiceAlloy:   {},
	VoiceAsh:     {},
	VoiceBallad:  {},
	VoiceCoral:   {},
	VoiceEcho:    {},
	VoiceSage:    {},
	VoiceShimmer: {},
	VoiceVerse:   {},
}

// NormalizeVoice validates a voice identifier against the allow-list and
// falls back to DefaultVoice for unknown values.
func NormalizeVoice(voice string) string {
	if _, ok := allowedVoices[voice]; ok {
		return voice
	}
	return DefaultVoice
}
