package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore keeps artifacts and transcript logs as flat files under a
// data directory:
//
//	<root>/artifacts/<clientID>_<kind>.txt
//	<root>/transcripts/<callID>_transcript.txt
type FileStore struct {
	root string
}

func NewFileStore(root string) *FileStore {
	return &FileStore{root: root}
}

func (s *FileStore) artifactPath(clientID, kind string) string {
	return filepath.Join(s.root, "artifacts", fmt.Sprintf("%s_%s.txt", clientID, kind))
}

func (s *FileStore) transcriptPath(callID string) string {
	return filepath.Join(s.root, "transcripts", fmt.Sprintf("%s_transcript.txt", callID))
}

func (s *FileStore) ReadArtifact(ctx context.Context, clientID, kind string) (string, error) {
	if err := validateKind(kind); err != nil {
		return "", err
	}
	data, err := os.ReadFile(s.artifactPath(clientID, kind))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read artifact %s/%s: %w", clientID, kind, err)
	}
	return string(data), nil
}

func (s *FileStore) WriteArtifact(ctx context.Context, clientID, kind, content string) error {
	if err := validateKind(kind); err != nil {
		return err
	}
	path := s.artifactPath(clientID, kind)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("write artifact %s/%s: %w", clientID, kind, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write artifact %s/%s: %w", clientID, kind, err)
	}
	return nil
}

func (s *FileStore) AppendTranscript(ctx context.Context, callID, line string) error {
	path := s.transcriptPath(callID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("append transcript %s: %w", callID, err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("append transcript %s: %w", callID, err)
	}
	defer f.Close()
	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("append transcript %s: %w", callID, err)
	}
	return nil
}

func (s *FileStore) ReadTranscript(ctx context.Context, callID string) (string, error) {
	data, err := os.ReadFile(s.transcriptPath(callID))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read transcript %s: %w", callID, err)
	}
	return string(data), nil
}
