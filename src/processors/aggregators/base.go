package aggregators

import (
	"strings"

	"github.com/voxline-ai/voxline/src/frames"
	"github.com/voxline-ai/voxline/src/processors"
	"github.com/voxline-ai/voxline/src/services"
)

// ContextAggregator is the shared base for the user and assistant
// aggregators. It owns a role-scoped view of the conversation context
// plus a buffer of streamed text fragments.
type ContextAggregator struct {
	*processors.BaseProcessor

	context     *services.LLMContext
	role        string
	aggregation []string
	addSpaces   bool
}

// NewContextAggregator creates a new base context aggregator
func NewContextAggregator(name string, context *services.LLMContext, role string, handler processors.ProcessHandler) *ContextAggregator {
	agg := &ContextAggregator{
		context:     context,
		role:        role,
		aggregation: make([]string, 0),
		addSpaces:   true,
	}
	agg.BaseProcessor = processors.NewBaseProcessor(name, handler)
	return agg
}

// Reset clears the aggregation buffer
func (a *ContextAggregator) Reset() error {
	a.aggregation = a.aggregation[:0]
	return nil
}

// AggregationString concatenates the accumulated fragments. Final STT
// results arrive as whole phrases and want a joining space; LLM tokens
// arrive with their own whitespace and do not.
func (a *ContextAggregator) AggregationString() string {
	if len(a.aggregation) == 0 {
		return ""
	}
	if a.addSpaces {
		return strings.Join(a.aggregation, " ")
	}
	return strings.Join(a.aggregation, "")
}

// AppendToAggregation adds a text fragment to the buffer
func (a *ContextAggregator) AppendToAggregation(text string) {
	a.aggregation = append(a.aggregation, text)
}

// PushContextFrame pushes the shared context in the given direction,
// normally downstream to trigger the LLM service.
func (a *ContextAggregator) PushContextFrame(direction frames.FrameDirection) error {
	return a.PushFrame(frames.NewLLMContextFrame(a.context), direction)
}

// Context returns the shared conversation context
func (a *ContextAggregator) Context() *services.LLMContext {
	return a.context
}

// Role returns the aggregator's role ("user" or "assistant")
func (a *ContextAggregator) Role() string {
	return a.role
}

// SetAddSpaces sets whether fragments are joined with spaces
func (a *ContextAggregator) SetAddSpaces(addSpaces bool) {
	a.addSpaces = addSpaces
}
