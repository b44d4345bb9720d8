package postcall

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/voxline-ai/voxline/src/transcript"
)

// History sections older than this are dropped when a new highlight
// supersedes the current one
const maxHighlightHistory = 5

var highlightSectionRe = regexp.MustCompile(`^--- Previous highlight \(.+\) ---$`)

func highlightSectionHeader(ts time.Time) string {
	return fmt.Sprintf("--- Previous highlight (%s) ---", ts.UTC().Format(time.RFC3339))
}

// composeHighlight builds the highlight document for a finished call
// from the extraction fields plus the formatted transcript
func composeHighlight(ext *Extraction, entries []transcript.Entry) string {
	var b strings.Builder
	b.WriteString("Call summary: ")
	b.WriteString(ext.CallSummary)
	if len(ext.Tags) > 0 {
		fmt.Fprintf(&b, "\nTags: %s", strings.Join(ext.Tags, ", "))
	}
	if ext.Notes != nil && *ext.Notes != "" {
		fmt.Fprintf(&b, "\nNotes: %s", *ext.Notes)
	}
	b.WriteString("\n\nTranscript:\n")
	b.WriteString(transcript.Serialize(entries))
	return b.String()
}

// appendHighlight places the new highlight on top and tucks the
// previous document under a timestamped history section, keeping only
// the most recent history sections.
func appendHighlight(next, previous string, now time.Time) string {
	if strings.TrimSpace(previous) == "" {
		return next
	}

	head, history := splitHighlight(previous)
	sections := append([]string{highlightSectionHeader(now) + "\n\n" + head}, history...)
	if len(sections) > maxHighlightHistory {
		sections = sections[:maxHighlightHistory]
	}
	return next + "\n\n" + strings.Join(sections, "\n\n")
}

// splitHighlight separates a stored highlight document into its newest
// content and its existing history sections, newest first
func splitHighlight(doc string) (head string, history []string) {
	lines := strings.Split(doc, "\n")
	var current []string
	flush := func() {
		part := strings.TrimSpace(strings.Join(current, "\n"))
		if part == "" {
			current = nil
			return
		}
		if head == "" && len(history) == 0 && !highlightSectionRe.MatchString(strings.SplitN(part, "\n", 2)[0]) {
			head = part
		} else {
			history = append(history, part)
		}
		current = nil
	}
	for _, line := range lines {
		if highlightSectionRe.MatchString(line) {
			flush()
		}
		current = append(current, line)
	}
	flush()
	return head, history
}
