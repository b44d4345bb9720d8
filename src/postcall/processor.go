package postcall

import (
	"context"
	"fmt"
	"time"

	"github.com/voxline-ai/voxline/src/artifacts"
	"github.com/voxline-ai/voxline/src/logger"
	"github.com/voxline-ai/voxline/src/store"
	"github.com/voxline-ai/voxline/src/transcript"
)

// Processor runs the sequential post-call workflow after the
// call-worker has fully stopped: format the transcript, persist it,
// extract structured data, close the call, update the highlight and
// expert suggestion artifacts, and merge the client profile. An
// extraction failure aborts
// the remaining steps so the client record is never updated from
// partial or garbage output.
type Processor struct {
	db        *store.DualStore
	artifacts artifacts.Store
	extractor Extractor
	log       *logger.Logger

	now func() time.Time
}

func NewProcessor(db *store.DualStore, art artifacts.Store, extractor Extractor) *Processor {
	return &Processor{
		db:        db,
		artifacts: art,
		extractor: extractor,
		log:       logger.WithPrefix("PostCall"),
		now:       time.Now,
	}
}

// Process runs the workflow for one finished call. clientID may be
// empty for anonymous calls; the profile and highlight steps are then
// skipped.
func (p *Processor) Process(ctx context.Context, callID, clientID string) error {
	p.log.Info("processing call %s for client %s", callID, clientID)

	// Step 1: parse the raw transcript log
	raw, err := p.artifacts.ReadTranscript(ctx, callID)
	if err != nil {
		return fmt.Errorf("read transcript for call %s: %w", callID, err)
	}
	entries := transcript.Parse(raw)
	if len(entries) == 0 {
		return fmt.Errorf("no parseable transcript for call %s", callID)
	}
	formatted := transcript.Serialize(entries)

	// Step 2: persist the transcript on the call record, structured
	// turns to the document backend and raw text to the relational one
	structured, err := transcript.MarshalEntries(entries)
	if err != nil {
		structured = formatted
	}
	if err := p.db.AddCallTranscript(ctx, callID, structured, formatted); err != nil {
		p.log.Error("persist transcript for call %s: %v", callID, err)
	}

	// Step 3: structured extraction gates everything after it
	ext, err := p.extractor.Extract(ctx, formatted)
	if err != nil {
		return fmt.Errorf("extraction for call %s: %w", callID, err)
	}

	// Step 4: close the call with summary and tags
	summary := ext.CallSummary
	if summary == "" {
		summary = "Call completed"
	}
	if err := p.db.CloseCall(ctx, callID, summary, ext.Tags); err != nil {
		p.log.Error("close call %s: %v", callID, err)
	}

	if clientID == "" {
		p.log.Warn("call %s has no client, skipping profile and highlight", callID)
		return nil
	}

	// Step 5: supersede the highlight, keeping prior ones as history
	if err := p.updateHighlight(ctx, clientID, ext, entries); err != nil {
		p.log.Error("update highlight for client %s: %v", clientID, err)
	}

	// Step 6: regenerate the expert suggestion for the next call
	if adviser, ok := p.extractor.(Adviser); ok {
		if err := p.updateSuggestion(ctx, clientID, adviser, formatted); err != nil {
			p.log.Error("update suggestion for client %s: %v", clientID, err)
		}
	}

	// Step 7: merge recognized extraction fields into the profile
	if err := p.db.UpdateProfile(ctx, clientID, ext.Profile); err != nil {
		p.log.Error("update profile for client %s: %v", clientID, err)
		return err
	}

	p.log.Info("post-call processing completed for call %s", callID)
	return nil
}

func (p *Processor) updateHighlight(ctx context.Context, clientID string, ext *Extraction, entries []transcript.Entry) error {
	previous, err := p.artifacts.ReadArtifact(ctx, clientID, artifacts.KindHighlight)
	if err != nil {
		return err
	}
	doc := appendHighlight(composeHighlight(ext, entries), previous, p.now())
	return p.artifacts.WriteArtifact(ctx, clientID, artifacts.KindHighlight, doc)
}

func (p *Processor) updateSuggestion(ctx context.Context, clientID string, adviser Adviser, formatted string) error {
	suggestion, err := adviser.Advise(ctx, formatted)
	if err != nil {
		return err
	}
	return p.artifacts.WriteArtifact(ctx, clientID, artifacts.KindExpertSuggestion, suggestion)
}
