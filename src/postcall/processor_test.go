package postcall

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/voxline-ai/voxline/src/artifacts"
	"github.com/voxline-ai/voxline/src/store"
)

type fakeExtractor struct {
	ext   *Extraction
	err   error
	calls int
}

func (f *fakeExtractor) Extract(ctx context.Context, transcript string) (*Extraction, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.ext, nil
}

type fakeAdvisingExtractor struct {
	fakeExtractor
	advice      string
	adviseErr   error
	adviseCalls int
}

func (f *fakeAdvisingExtractor) Advise(ctx context.Context, transcript string) (string, error) {
	f.adviseCalls++
	if f.adviseErr != nil {
		return "", f.adviseErr
	}
	return f.advice, nil
}

type fixture struct {
	db        *store.DualStore
	primary   *store.MemoryBackend
	secondary *store.MemoryBackend
	art       *artifacts.MemoryStore
	extractor *fakeExtractor
	proc      *Processor
	callID    string
	clientID  string
}

func newFixture(t *testing.T, ext *Extraction, extErr error) *fixture {
	t.Helper()
	ctx := context.Background()

	primary := store.NewMemoryBackend("document")
	secondary := store.NewMemoryBackend("relational")
	db := store.NewDualStore(primary, secondary)

	clientID, err := db.Register(ctx, "Priya Sharma", "+15550001")
	if err != nil {
		t.Fatal(err)
	}
	callID, err := db.CreateCall(ctx, clientID)
	if err != nil {
		t.Fatal(err)
	}

	art := artifacts.NewMemoryStore()
	extractor := &fakeExtractor{ext: ext, err: extErr}
	proc := NewProcessor(db, art, extractor)
	proc.now = func() time.Time { return time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC) }

	return &fixture{
		db: db, primary: primary, secondary: secondary,
		art: art, extractor: extractor, proc: proc,
		callID: callID, clientID: clientID,
	}
}

func (f *fixture) seedTranscript(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	lines := []string{
		"[2025-03-14T10:00:00Z] assistant: Hello Priya! It's great to meet you.",
		"[2025-03-14T10:00:05Z] user: Hi, I wanted to know about the fund.",
		"[2025-03-14T10:00:20Z] assistant: Of course, let me walk you through it.",
	}
	for _, line := range lines {
		if err := f.art.AppendTranscript(ctx, f.callID, line); err != nil {
			t.Fatal(err)
		}
	}
}

func sampleExtraction() *Extraction {
	yes := true
	notes := "curious about lock-in period"
	lang := "english"
	return &Extraction{
		Profile: store.Profile{
			WantsZoomCall:      &yes,
			Notes:              &notes,
			LanguagePreference: &lang,
		},
		CallSummary: "Introductory call, client asked about the fund.",
		Tags:        []string{"intro", "interested"},
	}
}

func TestProcessHappyPath(t *testing.T) {
	f := newFixture(t, sampleExtraction(), nil)
	f.seedTranscript(t)
	ctx := context.Background()

	if err := f.proc.Process(ctx, f.callID, f.clientID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	// Call closed with summary and tags on the primary
	call, _ := f.primary.GetCall(ctx, f.callID)
	if call.Status != store.CallStatusCompleted {
		t.Errorf("status = %s", call.Status)
	}
	if call.Summary != "Introductory call, client asked about the fund." {
		t.Errorf("summary = %q", call.Summary)
	}
	if len(call.Tags) != 2 {
		t.Errorf("tags = %v", call.Tags)
	}

	// Structured turns to the document backend, raw text to the
	// relational one
	if !strings.HasPrefix(call.Transcript, "[{") || !strings.Contains(call.Transcript, `"speaker":"user"`) {
		t.Errorf("primary transcript = %q", call.Transcript)
	}
	if !strings.Contains(call.Transcript, `"content":"Hi, I wanted to know about the fund."`) {
		t.Errorf("primary transcript missing turn content: %q", call.Transcript)
	}
	secCall, _ := f.secondary.GetCall(ctx, f.callID)
	if !strings.Contains(secCall.Transcript, "user: Hi, I wanted to know about the fund.") {
		t.Errorf("secondary transcript = %q", secCall.Transcript)
	}

	// Highlight written for the client
	highlight, _ := f.art.ReadArtifact(ctx, f.clientID, artifacts.KindHighlight)
	if !strings.Contains(highlight, "Call summary: Introductory call") {
		t.Errorf("highlight = %q", highlight)
	}
	if !strings.Contains(highlight, "Transcript:") {
		t.Error("highlight missing transcript section")
	}

	// Profile merged on both backends
	client, _ := f.primary.GetClient(ctx, f.clientID)
	if client.Profile.WantsZoomCall == nil || !*client.Profile.WantsZoomCall {
		t.Error("profile not merged on primary")
	}
	secClient, _ := f.secondary.GetClient(ctx, f.clientID)
	if secClient.Profile.Notes == nil {
		t.Error("profile not merged on secondary")
	}
}

func TestProcessExtractionFailureLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, nil, errors.New("model blocked the request"))
	f.seedTranscript(t)
	ctx := context.Background()

	if err := f.proc.Process(ctx, f.callID, f.clientID); err == nil {
		t.Fatal("expected extraction error")
	}

	call, _ := f.primary.GetCall(ctx, f.callID)
	if call.Status != store.CallStatusActive {
		t.Errorf("call closed despite extraction failure: %s", call.Status)
	}
	if call.Summary != "" {
		t.Errorf("summary written despite extraction failure: %q", call.Summary)
	}

	highlight, _ := f.art.ReadArtifact(ctx, f.clientID, artifacts.KindHighlight)
	if highlight != "" {
		t.Error("highlight written despite extraction failure")
	}

	client, _ := f.primary.GetClient(ctx, f.clientID)
	if client.Profile.WantsZoomCall != nil || client.Profile.Notes != nil {
		t.Error("profile mutated despite extraction failure")
	}
}

func TestProcessEmptyTranscriptWritesNothing(t *testing.T) {
	f := newFixture(t, sampleExtraction(), nil)
	ctx := context.Background()

	// Only garbage in the log, nothing parseable
	f.art.AppendTranscript(ctx, f.callID, "not a transcript line")

	if err := f.proc.Process(ctx, f.callID, f.clientID); err == nil {
		t.Fatal("expected error for unparseable transcript")
	}
	if f.extractor.calls != 0 {
		t.Error("extractor called with no parseable turns")
	}
	call, _ := f.primary.GetCall(ctx, f.callID)
	if call.Transcript != "" {
		t.Errorf("transcript persisted: %q", call.Transcript)
	}
}

func TestProcessAnonymousCallSkipsProfileSteps(t *testing.T) {
	f := newFixture(t, sampleExtraction(), nil)
	f.seedTranscript(t)
	ctx := context.Background()

	if err := f.proc.Process(ctx, f.callID, ""); err != nil {
		t.Fatalf("Process: %v", err)
	}

	call, _ := f.primary.GetCall(ctx, f.callID)
	if call.Status != store.CallStatusCompleted {
		t.Error("call not closed for anonymous caller")
	}
	client, _ := f.primary.GetClient(ctx, f.clientID)
	if client.Profile.WantsZoomCall != nil {
		t.Error("profile mutated for anonymous call")
	}
}

func TestProcessWritesExpertSuggestion(t *testing.T) {
	f := newFixture(t, sampleExtraction(), nil)
	adv := &fakeAdvisingExtractor{
		fakeExtractor: fakeExtractor{ext: sampleExtraction()},
		advice:        "Lead with the lock-in answer next time.",
	}
	f.proc = NewProcessor(f.db, f.art, adv)
	f.seedTranscript(t)
	ctx := context.Background()

	if err := f.proc.Process(ctx, f.callID, f.clientID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if adv.adviseCalls != 1 {
		t.Errorf("adviser called %d times, want 1", adv.adviseCalls)
	}
	got, _ := f.art.ReadArtifact(ctx, f.clientID, artifacts.KindExpertSuggestion)
	if got != "Lead with the lock-in answer next time." {
		t.Errorf("suggestion = %q", got)
	}
}

func TestProcessExtractOnlyExtractorSkipsSuggestion(t *testing.T) {
	f := newFixture(t, sampleExtraction(), nil)
	f.seedTranscript(t)
	ctx := context.Background()

	if err := f.proc.Process(ctx, f.callID, f.clientID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	got, _ := f.art.ReadArtifact(ctx, f.clientID, artifacts.KindExpertSuggestion)
	if got != "" {
		t.Errorf("suggestion written without an adviser: %q", got)
	}
}

func TestProcessAdviseFailureStillMergesProfile(t *testing.T) {
	f := newFixture(t, sampleExtraction(), nil)
	adv := &fakeAdvisingExtractor{
		fakeExtractor: fakeExtractor{ext: sampleExtraction()},
		adviseErr:     errors.New("model unavailable"),
	}
	f.proc = NewProcessor(f.db, f.art, adv)
	f.seedTranscript(t)
	ctx := context.Background()

	if err := f.proc.Process(ctx, f.callID, f.clientID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	got, _ := f.art.ReadArtifact(ctx, f.clientID, artifacts.KindExpertSuggestion)
	if got != "" {
		t.Errorf("suggestion written despite advise failure: %q", got)
	}
	client, _ := f.primary.GetClient(ctx, f.clientID)
	if client.Profile.WantsZoomCall == nil {
		t.Error("profile not merged after advise failure")
	}
}

func TestHighlightHistoryAppendsAndPrunes(t *testing.T) {
	f := newFixture(t, sampleExtraction(), nil)
	ctx := context.Background()

	// Seed an existing highlight from a prior call
	f.art.WriteArtifact(ctx, f.clientID, artifacts.KindHighlight, "Call summary: the very first call.")

	f.seedTranscript(t)
	if err := f.proc.Process(ctx, f.callID, f.clientID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	highlight, _ := f.art.ReadArtifact(ctx, f.clientID, artifacts.KindHighlight)
	if !strings.HasPrefix(highlight, "Call summary: Introductory call") {
		t.Errorf("new highlight not on top: %q", highlight)
	}
	if !strings.Contains(highlight, "--- Previous highlight (2025-03-14T12:00:00Z) ---") {
		t.Error("history section header missing")
	}
	if !strings.Contains(highlight, "the very first call") {
		t.Error("previous highlight content lost")
	}
}

func TestAppendHighlightKeepsLastFiveSections(t *testing.T) {
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

	doc := "summary 0"
	for i := 1; i <= 8; i++ {
		doc = appendHighlight(fmt.Sprintf("summary %d", i), doc, now.Add(time.Duration(i)*time.Hour))
	}

	if !strings.HasPrefix(doc, "summary 8") {
		t.Errorf("newest summary not on top: %q", doc)
	}
	if got := strings.Count(doc, "--- Previous highlight"); got != maxHighlightHistory {
		t.Errorf("history sections = %d, want %d", got, maxHighlightHistory)
	}
	// The newest history entries survive, the oldest are gone
	if !strings.Contains(doc, "summary 7") {
		t.Error("most recent history section missing")
	}
	if strings.Contains(doc, "summary 0") || strings.Contains(doc, "summary 1") {
		t.Error("oldest sections not pruned")
	}
}
