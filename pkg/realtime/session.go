package realtime

// AudioFormatG711ULaw is the only codec the bridge negotiates: 8kHz mu-law,
// matching the telephony media stream so audio passes through untranscoded.
const AudioFormatG711ULaw = "g711_ulaw"

// speechDirective is appended to the agent instructions so the model always
// answers with audio rather than a silent text turn.
const speechDirective = "Always respond with spoken audio. Keep replies conversational and concise, and expand numbers, symbols, and abbreviations for speech."

const defaultTranscriptionModel = "whisper-1"

// buildSessionUpdate builds the one session.update payload sent per call.
func buildSessionUpdate(opts SessionOptions) map[string]any {
	instructions := opts.Instructions
	if instructions != "" {
		instructions += "\n\n"
	}
	instructions += speechDirective

	turnDetection := map[string]any{
		"type":                "server_vad",
		"threshold":           0.5,
		"prefix_padding_ms":   300,
		"silence_duration_ms": 500,
	}
	if td := opts.TurnDetection; td != nil {
		if td.Type != "" {
			turnDetection["type"] = td.Type
		}
		if td.Threshold > 0 {
			turnDetection["threshold"] = td.Threshold
		}
		if td.PrefixPaddingMs > 0 {
			turnDetection["prefix_padding_ms"] = td.PrefixPaddingMs
		}
		if td.SilenceDurationMs > 0 {
			turnDetection["silence_duration_ms"] = td.SilenceDurationMs
		}
	}

	transcriptionModel := opts.TranscriptionModel
	if transcriptionModel == "" {
		transcriptionModel = defaultTranscriptionModel
	}

	temperature := opts.Temperature
	if temperature <= 0 {
		temperature = 0.8
	}

	session := map[string]any{
		"modalities":          []string{"text", "audio"},
		"instructions":        instructions,
		"voice":               NormalizeVoice(opts.Voice),
		"input_audio_format":  AudioFormatG711ULaw,
		"output_audio_format": AudioFormatG711ULaw,
		"input_audio_transcription": map[string]any{
			"model": transcriptionModel,
		},
		"turn_detection": turnDetection,
		"tools":          buildSessionTools(opts.Tools),
		"tool_choice":    "auto",
		"temperature":    temperature,
	}
	if opts.MaxResponseTokens > 0 {
		session["max_response_output_tokens"] = opts.MaxResponseTokens
	}

	return map[string]any{
		"type":    "session.update",
		"session": session,
	}
}

// buildSessionTools maps the declared tools onto the realtime tool surface.
// The realtime protocol only supports invocable functions, so file_search
// style retrieval tools become the knowledge-search function; the bridge's
// tool dispatcher answers it with the external retriever.
func buildSessionTools(tools []Tool) []map[string]any {
	apiTools := make([]map[string]any, 0, len(tools))
	haveKnowledge := false
	for _, tool := range tools {
		switch tool.Type {
		case ToolTypeFileSearch:
			if !haveKnowledge {
				apiTools = append(apiTools, knowledgeSearchTool())
				haveKnowledge = true
			}
		case ToolTypeFunction, "":
			if tool.Name == "" {
				continue
			}
			params := tool.Parameters
			if params == nil {
				params = map[string]any{
					"type":       "object",
					"properties": map[string]any{},
				}
			}
			apiTools = append(apiTools, map[string]any{
				"type":        "function",
				"name":        tool.Name,
				"description": tool.Description,
				"parameters":  params,
			})
		}
	}
	return apiTools
}

func knowledgeSearchTool() map[string]any {
	return map[string]any{
		"type":        "function",
		"name":        KnowledgeSearchToolName,
		"description": "Search the agent's knowledge base for information relevant to the caller's question.",
		"parameters": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The search query, phrased as the information need.",
				},
			},
			"required": []string{"query"},
		},
	}
}
