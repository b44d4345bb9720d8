package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryBackend is a process-local Backend used by tests. It follows
// the same idempotence rules as the real backends.
type MemoryBackend struct {
	name string

	mu      sync.Mutex
	clients map[string]*Client
	byPhone map[string]string
	calls   map[string]*Call

	failCreates bool
}

func NewMemoryBackend(name string) *MemoryBackend {
	return &MemoryBackend{
		name:    name,
		clients: make(map[string]*Client),
		byPhone: make(map[string]string),
		calls:   make(map[string]*Call),
	}
}

func (s *MemoryBackend) Name() string { return s.name }

// FailCreates makes every create return an error, for testing
// degraded-backend behavior
func (s *MemoryBackend) FailCreates(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCreates = fail
}

func (s *MemoryBackend) CreateClientWithID(ctx context.Context, client Client) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreates {
		return "", fmt.Errorf("%s: create client: backend unavailable", s.name)
	}
	if client.Phone != "" {
		if existing, ok := s.byPhone[client.Phone]; ok {
			return existing, nil
		}
	}
	if _, ok := s.clients[client.ID]; ok {
		return client.ID, nil
	}
	now := time.Now().UTC()
	if client.CreatedAt.IsZero() {
		client.CreatedAt = now
	}
	client.UpdatedAt = now
	c := client
	s.clients[client.ID] = &c
	if client.Phone != "" {
		s.byPhone[client.Phone] = client.ID
	}
	return client.ID, nil
}

func (s *MemoryBackend) GetClient(ctx context.Context, id string) (*Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryBackend) FindClientByPhone(ctx context.Context, phone string) (*Client, error) {
	s.mu.Lock()
	id, ok := s.byPhone[phone]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return s.GetClient(ctx, id)
}

func (s *MemoryBackend) UpdateProfile(ctx context.Context, clientID string, update Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[clientID]
	if !ok {
		return fmt.Errorf("%s: update profile %s: %w", s.name, clientID, ErrNotFound)
	}
	c.Profile.Merge(update)
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryBackend) CreateCallWithID(ctx context.Context, call Call) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreates {
		return "", fmt.Errorf("%s: create call: backend unavailable", s.name)
	}
	if _, ok := s.calls[call.ID]; ok {
		return call.ID, nil
	}
	if call.StartedAt.IsZero() {
		call.StartedAt = time.Now().UTC()
	}
	if call.Status == "" {
		call.Status = CallStatusActive
	}
	c := call
	s.calls[call.ID] = &c
	return call.ID, nil
}

func (s *MemoryBackend) GetCall(ctx context.Context, id string) (*Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryBackend) AddCallTranscript(ctx context.Context, callID, transcript string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[callID]
	if !ok {
		return fmt.Errorf("%s: add transcript %s: %w", s.name, callID, ErrNotFound)
	}
	c.Transcript = transcript
	return nil
}

func (s *MemoryBackend) CloseCall(ctx context.Context, callID, summary string, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[callID]
	if !ok {
		return fmt.Errorf("%s: close call %s: %w", s.name, callID, ErrNotFound)
	}
	now := time.Now().UTC()
	c.Status = CallStatusCompleted
	c.EndedAt = &now
	c.Summary = summary
	c.Tags = tags
	return nil
}
