package artifacts

import (
	"context"
	"sync"
)

// MemoryStore is a process-local Store used by tests and demos
type MemoryStore struct {
	mu          sync.RWMutex
	artifacts   map[string]string
	transcripts map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		artifacts:   make(map[string]string),
		transcripts: make(map[string]string),
	}
}

func (s *MemoryStore) ReadArtifact(ctx context.Context, clientID, kind string) (string, error) {
	if err := validateKind(kind); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.artifacts[artifactKey(clientID, kind)], nil
}

func (s *MemoryStore) WriteArtifact(ctx context.Context, clientID, kind, content string) error {
	if err := validateKind(kind); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[artifactKey(clientID, kind)] = content
	return nil
}

func (s *MemoryStore) AppendTranscript(ctx context.Context, callID, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcripts[transcriptKey(callID)] += line + "\n"
	return nil
}

func (s *MemoryStore) ReadTranscript(ctx context.Context, callID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transcripts[transcriptKey(callID)], nil
}
