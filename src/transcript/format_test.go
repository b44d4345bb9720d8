package transcript

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/voxline-ai/voxline/src/turn"
)

func TestParseWellFormedLog(t *testing.T) {
	raw := "[2025-03-14T10:00:01Z] user: Hello there\n" +
		"[2025-03-14T10:00:04Z] assistant: Hi, how can I help you today?\n" +
		"[2025-03-14T10:00:09Z] user: Tell me about the fund"

	entries := Parse(raw)
	if len(entries) != 3 {
		t.Fatalf("parsed %d entries, want 3", len(entries))
	}
	if entries[0].Speaker != "user" || entries[0].Content != "Hello there" {
		t.Errorf("first entry = %+v", entries[0])
	}
	if entries[1].Speaker != "assistant" {
		t.Errorf("second speaker = %q", entries[1].Speaker)
	}
	if entries[2].Timestamp.IsZero() {
		t.Errorf("third timestamp did not parse")
	}
}

func TestParseSkipsMalformedLines(t *testing.T) {
	raw := "garbage before any entry\n" +
		"[2025-03-14T10:00:01Z] user: real entry\n" +
		"\n" +
		"[not-a-timestamp assistant no colon"

	entries := Parse(raw)
	if len(entries) != 1 {
		t.Fatalf("parsed %d entries, want 1", len(entries))
	}
	if entries[0].Content != "real entry\n[not-a-timestamp assistant no colon" {
		// The trailing malformed line attaches as a continuation of the
		// last real entry; leading garbage is dropped
		t.Errorf("content = %q", entries[0].Content)
	}
}

func TestParseEmptyLogYieldsNoEntries(t *testing.T) {
	if got := Parse(""); len(got) != 0 {
		t.Fatalf("parsed %d entries from empty log", len(got))
	}
	if got := Parse("no transcript markers here at all"); len(got) != 0 {
		t.Fatalf("parsed %d entries from marker-free text", len(got))
	}
}

func TestRoundTripPreservesRoleAndContent(t *testing.T) {
	raw := "[2025-03-14T10:00:01+05:30] user: First question\n" +
		"[2025-03-14T10:00:05+05:30] assistant: An answer with: punctuation [and] brackets\n" +
		"[2025-03-14T10:00:11+05:30] user: Follow-up"

	first := Parse(raw)
	second := Parse(Serialize(first))

	if len(first) != len(second) {
		t.Fatalf("round trip changed entry count: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Speaker != second[i].Speaker {
			t.Errorf("entry %d speaker %q != %q", i, first[i].Speaker, second[i].Speaker)
		}
		if first[i].Content != second[i].Content {
			t.Errorf("entry %d content %q != %q", i, first[i].Content, second[i].Content)
		}
		if first[i].Timestamp.IsZero() || !first[i].Timestamp.Equal(second[i].Timestamp) {
			t.Errorf("entry %d timestamp lost in round trip", i)
		}
	}
}

func TestFormatLineMatchesParser(t *testing.T) {
	ts := time.Date(2025, 3, 14, 10, 0, 1, 0, time.UTC)
	line := FormatLine(turn.Turn{
		Speaker:   turn.SpeakerAssistant,
		Content:   "Good morning",
		Timestamp: ts,
		Final:     true,
	})

	entries := Parse(line)
	if len(entries) != 1 {
		t.Fatalf("formatted line did not parse back: %q", line)
	}
	if entries[0].Speaker != "assistant" || entries[0].Content != "Good morning" {
		t.Errorf("entry = %+v", entries[0])
	}
	if !entries[0].Timestamp.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", entries[0].Timestamp, ts)
	}
}

func TestMarshalEntriesProducesStructuredTurns(t *testing.T) {
	entries := []Entry{
		{Speaker: "user", Content: "Hello", Timestamp: time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)},
		{Speaker: "assistant", Content: "Hi there", Timestamp: time.Date(2025, 3, 14, 10, 0, 5, 0, time.UTC)},
	}

	doc, err := MarshalEntries(entries)
	if err != nil {
		t.Fatalf("MarshalEntries: %v", err)
	}

	var decoded []Entry
	if err := json.Unmarshal([]byte(doc), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("decoded %d entries, want 2", len(decoded))
	}
	if decoded[0].Speaker != "user" || decoded[0].Content != "Hello" {
		t.Errorf("first entry = %+v", decoded[0])
	}
	if !decoded[1].Timestamp.Equal(entries[1].Timestamp) {
		t.Errorf("timestamp = %v", decoded[1].Timestamp)
	}
}

func TestDisplayTimestampUsesFixedZone(t *testing.T) {
	e := Entry{Timestamp: time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)}
	got := e.DisplayTimestamp()
	// 10:00 UTC is 15:30 IST
	if got != "March 14, 2025 at 03:30:00 PM UTC+5:30" {
		t.Errorf("display timestamp = %q", got)
	}
}
