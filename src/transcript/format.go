package transcript

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/voxline-ai/voxline/src/turn"
)

// LineTimeLayout is the timestamp layout used in transcript log lines:
// [2006-01-02T15:04:05Z07:00] role: content
const LineTimeLayout = time.RFC3339

// displayLocation is the fixed timezone used when rendering transcripts
// for human consumption downstream.
var displayLocation = loadDisplayLocation()

func loadDisplayLocation() *time.Location {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		return time.FixedZone("IST", 5*3600+1800)
	}
	return loc
}

// Entry is one structured transcript entry parsed from the append-only log
type Entry struct {
	Speaker      string    `json:"speaker"`
	Content      string    `json:"content"`
	Timestamp    time.Time `json:"timestamp"`
	RawTimestamp string    `json:"-"`
}

// MarshalEntries renders structured entries as the JSON document stored
// in the document backend.
func MarshalEntries(entries []Entry) (string, error) {
	data, err := json.Marshal(entries)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

var lineRe = regexp.MustCompile(`^\[([^\]]+)\] (user|assistant): (.*)$`)

// FormatLine renders a finalized turn as one log line
func FormatLine(t turn.Turn) string {
	return fmt.Sprintf("[%s] %s: %s", t.Timestamp.Format(LineTimeLayout), t.Speaker, t.Content)
}

// Line re-serializes an entry back to the log line format. Role and
// content survive a parse/serialize round trip unchanged; the timestamp
// is re-rendered in the canonical layout when it parsed successfully.
func (e Entry) Line() string {
	ts := e.RawTimestamp
	if !e.Timestamp.IsZero() {
		ts = e.Timestamp.Format(LineTimeLayout)
	}
	return fmt.Sprintf("[%s] %s: %s", ts, e.Speaker, e.Content)
}

// DisplayTimestamp renders an entry timestamp in the display timezone,
// falling back to the raw string when the timestamp never parsed.
func (e Entry) DisplayTimestamp() string {
	if e.Timestamp.IsZero() {
		return e.RawTimestamp
	}
	return e.Timestamp.In(displayLocation).Format("January 02, 2006 at 03:04:05 PM") + " UTC+5:30"
}

// Parse converts a raw transcript log into structured entries. Lines
// that do not start a well-formed entry are treated as continuations of
// the previous entry's content; leading garbage with no entry to attach
// to is skipped rather than fatal.
func Parse(raw string) []Entry {
	var entries []Entry

	for _, line := range strings.Split(raw, "\n") {
		m := lineRe.FindStringSubmatch(line)
		if m == nil {
			if line == "" || len(entries) == 0 {
				continue
			}
			last := &entries[len(entries)-1]
			last.Content += "\n" + line
			continue
		}

		entry := Entry{
			RawTimestamp: m[1],
			Speaker:      m[2],
			Content:      m[3],
		}
		if ts, err := time.Parse(LineTimeLayout, m[1]); err == nil {
			entry.Timestamp = ts
		}
		entries = append(entries, entry)
	}

	return entries
}

// Serialize renders structured entries back to raw log text
func Serialize(entries []Entry) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, e.Line())
	}
	return strings.Join(lines, "\n")
}
