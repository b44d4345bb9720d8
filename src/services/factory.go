package services

// STT/LLM/TTS provider tags form a closed set: the concrete variant is
// chosen once from configuration at worker start, never swapped
// mid-call.
const (
	STTDeepgram   = "deepgram"
	LLMGemini     = "gemini"
	LLMOpenAI     = "openai"
	TTSCartesia   = "cartesia"
	TTSElevenLabs = "elevenlabs"
)

// STTModels lists the supported transcription models per provider
var STTModels = map[string]map[string]string{
	STTDeepgram: {
		"nova-3":           "Latest Deepgram model with best accuracy",
		"nova-2":           "General purpose transcription model",
		"nova-2-general":   "Enhanced general purpose model",
		"nova-2-telephony": "Optimized for telephony audio",
		"nova-2-meeting":   "Specialized for meeting transcription",
		"nova-2-phonecall": "Optimized for phone call audio",
	},
}

// LLMModels lists the supported dialogue models per provider
var LLMModels = map[string]map[string]string{
	LLMGemini: {
		"gemini-2.0-flash":      "Latest Gemini model - multimodal capabilities",
		"gemini-2.0-flash-lite": "Cost efficient and low latency model",
		"gemini-1.5-flash":      "Fastest Gemini 1.5 model",
		"gemini-1.5-pro":        "Balanced speed and quality model",
	},
	LLMOpenAI: {
		"gpt-4o":      "Flagship multimodal model",
		"gpt-4o-mini": "Fast and cost efficient model",
	},
}

// TTSModels lists the supported voices per provider
var TTSModels = map[string]map[string]string{
	TTSCartesia: {
		"71a7ad14-091c-4e8e-a314-022ece01c121": "British Reading Lady",
		"b98e4dfe-a8ab-4e14-8cb5-a9a0abe1fd2b": "Default Male Voice",
		"9e184750-08cd-427c-9d11-50cdf523848a": "Alternative Female Voice",
	},
	TTSElevenLabs: {
		"21m00Tcm4TlvDq8ikWAM": "Rachel - Female, expressive American",
		"pNInz6obpgDQGcFmaJgB": "Adam - Male, versatile",
		"EXAVITQu4vr4xnSDxMaL": "Bella - Female, soft and warm",
	},
}
