package frames

import "time"

// DataFrame is the base for ordered audio/text payload frames
type DataFrame struct {
	*BaseFrame
}

func (f *DataFrame) Category() FrameCategory {
	return DataCategory
}

// AudioFrame carries raw inbound audio from the transport
type AudioFrame struct {
	*DataFrame
	Data       []byte
	SampleRate int
	Channels   int
}

func NewAudioFrame(data []byte, sampleRate int) *AudioFrame {
	return &AudioFrame{
		DataFrame:  &DataFrame{BaseFrame: NewBaseFrame("AudioFrame")},
		Data:       data,
		SampleRate: sampleRate,
		Channels:   1,
	}
}

// TTSAudioFrame carries synthesized audio headed to the transport
type TTSAudioFrame struct {
	*DataFrame
	Data       []byte
	SampleRate int
}

func NewTTSAudioFrame(data []byte, sampleRate int) *TTSAudioFrame {
	return &TTSAudioFrame{
		DataFrame:  &DataFrame{BaseFrame: NewBaseFrame("TTSAudioFrame")},
		Data:       data,
		SampleRate: sampleRate,
	}
}

// TranscriptionFrame carries STT output. Interim results have IsFinal=false
// and are never aggregated, only fed to interruption strategies.
type TranscriptionFrame struct {
	*DataFrame
	Text      string
	IsFinal   bool
	Timestamp time.Time
}

func NewTranscriptionFrame(text string, isFinal bool) *TranscriptionFrame {
	return &TranscriptionFrame{
		DataFrame: &DataFrame{BaseFrame: NewBaseFrame("TranscriptionFrame")},
		Text:      text,
		IsFinal:   isFinal,
		Timestamp: time.Now(),
	}
}

// TextFrame carries one streamed LLM response token/chunk
type TextFrame struct {
	*DataFrame
	Text string
}

func NewTextFrame(text string) *TextFrame {
	return &TextFrame{
		DataFrame: &DataFrame{BaseFrame: NewBaseFrame("TextFrame")},
		Text:      text,
	}
}

// LLMTextFrame is the LLM output frame used by services that stream
// directly to TTS without an assistant aggregator in between
type LLMTextFrame struct {
	*DataFrame
	Text string
}

func NewLLMTextFrame(text string) *LLMTextFrame {
	return &LLMTextFrame{
		DataFrame: &DataFrame{BaseFrame: NewBaseFrame("LLMTextFrame")},
		Text:      text,
	}
}

// LLMContextFrame hands the accumulated conversation context to the LLM
// service. Context is *services.LLMContext; typed as interface{} to avoid
// an import cycle.
type LLMContextFrame struct {
	*DataFrame
	Context interface{}
}

func NewLLMContextFrame(context interface{}) *LLMContextFrame {
	return &LLMContextFrame{
		DataFrame: &DataFrame{BaseFrame: NewBaseFrame("LLMContextFrame")},
		Context:   context,
	}
}

// SearchResultFrame carries grounded-search metadata emitted by LLM
// services that run with search enabled
type SearchResultFrame struct {
	*DataFrame
	Query   string
	Sources []string
}

func NewSearchResultFrame(query string, sources []string) *SearchResultFrame {
	return &SearchResultFrame{
		DataFrame: &DataFrame{BaseFrame: NewBaseFrame("SearchResultFrame")},
		Query:     query,
		Sources:   sources,
	}
}
