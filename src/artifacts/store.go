package artifacts

import (
	"context"
	"fmt"
)

// Artifact kinds derived for each client by the post-call pipeline
const (
	KindHighlight        = "highlight"
	KindExpertSuggestion = "expert_suggestion"
)

// Store holds per-client derived documents and per-call transcript logs.
// An artifact is a single UTF-8 text blob keyed by (client id, kind);
// a transcript is an append-only line log keyed by call id. A missing
// artifact or transcript reads back as the empty string, not an error.
type Store interface {
	ReadArtifact(ctx context.Context, clientID, kind string) (string, error)
	WriteArtifact(ctx context.Context, clientID, kind, content string) error

	AppendTranscript(ctx context.Context, callID, line string) error
	ReadTranscript(ctx context.Context, callID string) (string, error)
}

func validateKind(kind string) error {
	switch kind {
	case KindHighlight, KindExpertSuggestion:
		return nil
	}
	return fmt.Errorf("unknown artifact kind: %q", kind)
}
