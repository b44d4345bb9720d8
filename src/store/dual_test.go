package store

import (
	"context"
	"sync"
	"testing"
)

func newDual() (*DualStore, *MemoryBackend, *MemoryBackend) {
	primary := NewMemoryBackend("document")
	secondary := NewMemoryBackend("relational")
	return NewDualStore(primary, secondary), primary, secondary
}

func TestRegisterWritesBothBackends(t *testing.T) {
	d, primary, secondary := newDual()
	ctx := context.Background()

	id, err := d.Register(ctx, "Priya Sharma", "+15550001")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if id == "" {
		t.Fatal("empty client id")
	}

	for _, b := range []Backend{primary, secondary} {
		client, err := b.FindClientByPhone(ctx, "+15550001")
		if err != nil {
			t.Fatalf("%s: FindClientByPhone: %v", b.Name(), err)
		}
		if client == nil {
			t.Fatalf("%s: client missing", b.Name())
		}
		if client.ID != id {
			t.Errorf("%s: id = %s, want %s", b.Name(), client.ID, id)
		}
	}
}

func TestRegisterIsIdempotentByPhone(t *testing.T) {
	d, _, _ := newDual()
	ctx := context.Background()

	first, err := d.Register(ctx, "Priya", "+15550001")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	second, err := d.Register(ctx, "Priya S", "+15550001")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if first != second {
		t.Errorf("ids diverged: %s vs %s", first, second)
	}
}

func TestCreateClientWithIDIdempotent(t *testing.T) {
	b := NewMemoryBackend("document")
	ctx := context.Background()

	client := Client{ID: "id-1", Name: "Ravi", Phone: "+15550002"}
	first, err := b.CreateClientWithID(ctx, client)
	if err != nil {
		t.Fatalf("CreateClientWithID: %v", err)
	}
	second, err := b.CreateClientWithID(ctx, client)
	if err != nil {
		t.Fatalf("CreateClientWithID: %v", err)
	}
	if first != "id-1" || second != "id-1" {
		t.Errorf("ids = %s, %s, want id-1 both times", first, second)
	}
}

func TestCreateClientPhoneConflictReturnsExistingID(t *testing.T) {
	b := NewMemoryBackend("document")
	ctx := context.Background()

	if _, err := b.CreateClientWithID(ctx, Client{ID: "id-1", Phone: "+15550003"}); err != nil {
		t.Fatal(err)
	}
	got, err := b.CreateClientWithID(ctx, Client{ID: "id-2", Phone: "+15550003"})
	if err != nil {
		t.Fatalf("CreateClientWithID: %v", err)
	}
	if got != "id-1" {
		t.Errorf("conflicting create returned %s, want id-1", got)
	}
}

func TestLookupBackfillsMissingBackend(t *testing.T) {
	d, primary, secondary := newDual()
	ctx := context.Background()

	// Client exists only in the primary
	if _, err := primary.CreateClientWithID(ctx, Client{ID: "id-9", Name: "Neha", Phone: "+15550004"}); err != nil {
		t.Fatal(err)
	}

	client, err := d.LookupByPhone(ctx, "+15550004")
	if err != nil {
		t.Fatalf("LookupByPhone: %v", err)
	}
	if client == nil || client.ID != "id-9" {
		t.Fatalf("lookup = %+v, want id-9", client)
	}

	backfilled, err := secondary.FindClientByPhone(ctx, "+15550004")
	if err != nil {
		t.Fatal(err)
	}
	if backfilled == nil || backfilled.ID != "id-9" {
		t.Errorf("secondary not backfilled with id-9, got %+v", backfilled)
	}
}

func TestConflictPrefersPrimary(t *testing.T) {
	d, primary, secondary := newDual()
	ctx := context.Background()

	primary.CreateClientWithID(ctx, Client{ID: "doc-id", Phone: "+15550005"})
	secondary.CreateClientWithID(ctx, Client{ID: "rel-id", Phone: "+15550005"})

	client, err := d.LookupByPhone(ctx, "+15550005")
	if err != nil {
		t.Fatalf("LookupByPhone: %v", err)
	}
	if client.ID != "doc-id" {
		t.Errorf("conflict resolved to %s, want doc-id", client.ID)
	}
}

func TestRegisterSurvivesSecondaryOutage(t *testing.T) {
	d, primary, secondary := newDual()
	ctx := context.Background()
	secondary.FailCreates(true)

	id, err := d.Register(ctx, "Dev", "+15550006")
	if err != nil {
		t.Fatalf("Register with secondary down: %v", err)
	}

	client, err := primary.FindClientByPhone(ctx, "+15550006")
	if err != nil || client == nil {
		t.Fatalf("primary missing client: %v", err)
	}
	if client.ID != id {
		t.Errorf("primary id = %s, want %s", client.ID, id)
	}

	// Once the secondary recovers, lookup backfills it
	secondary.FailCreates(false)
	if _, err := d.LookupByPhone(ctx, "+15550006"); err != nil {
		t.Fatal(err)
	}
	backfilled, _ := secondary.FindClientByPhone(ctx, "+15550006")
	if backfilled == nil || backfilled.ID != id {
		t.Errorf("secondary not backfilled after recovery, got %+v", backfilled)
	}
}

func TestConcurrentRegisterConverges(t *testing.T) {
	d, _, _ := newDual()
	ctx := context.Background()

	const n = 16
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := d.Register(ctx, "Racer", "+15550007")
			if err != nil {
				t.Errorf("Register: %v", err)
				return
			}
			ids[i] = id
		}(i)
	}
	wg.Wait()

	// Whatever id won, both backends must end up agreeing on it
	final, err := d.LookupByPhone(ctx, "+15550007")
	if err != nil || final == nil {
		t.Fatalf("final lookup: %v, %+v", err, final)
	}
	for i, id := range ids {
		if id != final.ID {
			t.Errorf("register %d returned %s, final id %s", i, id, final.ID)
		}
	}
}

func TestCreateCallAndClose(t *testing.T) {
	d, primary, secondary := newDual()
	ctx := context.Background()

	clientID, err := d.Register(ctx, "Priya", "+15550008")
	if err != nil {
		t.Fatal(err)
	}
	callID, err := d.CreateCall(ctx, clientID)
	if err != nil {
		t.Fatalf("CreateCall: %v", err)
	}

	for _, b := range []Backend{primary, secondary} {
		call, err := b.GetCall(ctx, callID)
		if err != nil || call == nil {
			t.Fatalf("%s: call missing: %v", b.Name(), err)
		}
		if call.Status != CallStatusActive {
			t.Errorf("%s: status = %s", b.Name(), call.Status)
		}
	}

	if err := d.AddCallTranscript(ctx, callID, `[{"speaker":"user","content":"hi"}]`, "[ts] user: hi"); err != nil {
		t.Fatalf("AddCallTranscript: %v", err)
	}
	if err := d.CloseCall(ctx, callID, "short chat", []string{"intro"}); err != nil {
		t.Fatalf("CloseCall: %v", err)
	}

	// Structured turns land in the document backend, raw text in the
	// relational one
	docCall, _ := primary.GetCall(ctx, callID)
	if docCall.Transcript != `[{"speaker":"user","content":"hi"}]` {
		t.Errorf("primary transcript = %q", docCall.Transcript)
	}
	relCall, _ := secondary.GetCall(ctx, callID)
	if relCall.Transcript != "[ts] user: hi" {
		t.Errorf("secondary transcript = %q", relCall.Transcript)
	}

	call, _ := primary.GetCall(ctx, callID)
	if call.Status != CallStatusCompleted || call.Summary != "short chat" {
		t.Errorf("closed call = %+v", call)
	}
	if call.EndedAt == nil {
		t.Error("ended_at not set")
	}

	// Close touches the primary only
	secCall, _ := secondary.GetCall(ctx, callID)
	if secCall.Status != CallStatusActive {
		t.Errorf("secondary status = %s, want still active", secCall.Status)
	}
}

func TestProfileMergeKeepsUnmentionedFields(t *testing.T) {
	b := NewMemoryBackend("document")
	ctx := context.Background()

	b.CreateClientWithID(ctx, Client{ID: "id-1", Phone: "+15550009"})

	yes := true
	notes := "asked about fees"
	if err := b.UpdateProfile(ctx, "id-1", Profile{WantsZoomCall: &yes, Notes: &notes}); err != nil {
		t.Fatal(err)
	}
	lang := "hindi"
	if err := b.UpdateProfile(ctx, "id-1", Profile{LanguagePreference: &lang}); err != nil {
		t.Fatal(err)
	}

	client, _ := b.GetClient(ctx, "id-1")
	if client.Profile.WantsZoomCall == nil || !*client.Profile.WantsZoomCall {
		t.Error("WantsZoomCall lost by second merge")
	}
	if client.Profile.Notes == nil || *client.Profile.Notes != "asked about fees" {
		t.Error("Notes lost by second merge")
	}
	if client.Profile.LanguagePreference == nil || *client.Profile.LanguagePreference != "hindi" {
		t.Error("LanguagePreference not merged")
	}
}
