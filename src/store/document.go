package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DocumentStore is the Redis-backed document backend. Records live as
// JSON documents keyed by id, with a phone index for client lookup:
//
//	client:<id>          client document
//	client:phone:<phone> client id
//	call:<id>            call document
type DocumentStore struct {
	rdb *redis.Client
}

func NewDocumentStore(rdb *redis.Client) *DocumentStore {
	return &DocumentStore{rdb: rdb}
}

func (s *DocumentStore) Name() string { return "document" }

func clientKey(id string) string        { return "client:" + id }
func phoneIndexKey(phone string) string { return "client:phone:" + phone }
func callKey(id string) string          { return "call:" + id }

func (s *DocumentStore) CreateClientWithID(ctx context.Context, client Client) (string, error) {
	now := time.Now().UTC()
	if client.CreatedAt.IsZero() {
		client.CreatedAt = now
	}
	client.UpdatedAt = now

	if client.Phone != "" {
		// The phone index is the idempotence gate: first writer wins,
		// later writers get the id the phone is already bound to
		ok, err := s.rdb.SetNX(ctx, phoneIndexKey(client.Phone), client.ID, 0).Result()
		if err != nil {
			return "", fmt.Errorf("document: index phone %s: %w", client.Phone, err)
		}
		if !ok {
			existing, err := s.rdb.Get(ctx, phoneIndexKey(client.Phone)).Result()
			if err != nil {
				return "", fmt.Errorf("document: read phone index %s: %w", client.Phone, err)
			}
			return existing, nil
		}
	}

	if err := s.putJSON(ctx, clientKey(client.ID), client); err != nil {
		return "", err
	}
	return client.ID, nil
}

func (s *DocumentStore) GetClient(ctx context.Context, id string) (*Client, error) {
	var client Client
	found, err := s.getJSON(ctx, clientKey(id), &client)
	if err != nil || !found {
		return nil, err
	}
	return &client, nil
}

func (s *DocumentStore) FindClientByPhone(ctx context.Context, phone string) (*Client, error) {
	id, err := s.rdb.Get(ctx, phoneIndexKey(phone)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("document: lookup phone %s: %w", phone, err)
	}
	return s.GetClient(ctx, id)
}

func (s *DocumentStore) UpdateProfile(ctx context.Context, clientID string, update Profile) error {
	client, err := s.GetClient(ctx, clientID)
	if err != nil {
		return err
	}
	if client == nil {
		return fmt.Errorf("document: update profile %s: %w", clientID, ErrNotFound)
	}
	client.Profile.Merge(update)
	client.UpdatedAt = time.Now().UTC()
	return s.putJSON(ctx, clientKey(clientID), client)
}

func (s *DocumentStore) CreateCallWithID(ctx context.Context, call Call) (string, error) {
	if call.StartedAt.IsZero() {
		call.StartedAt = time.Now().UTC()
	}
	if call.Status == "" {
		call.Status = CallStatusActive
	}

	data, err := json.Marshal(call)
	if err != nil {
		return "", fmt.Errorf("document: marshal call %s: %w", call.ID, err)
	}
	// SetNX makes the create a no-op when the call already exists
	if _, err := s.rdb.SetNX(ctx, callKey(call.ID), data, 0).Result(); err != nil {
		return "", fmt.Errorf("document: create call %s: %w", call.ID, err)
	}
	return call.ID, nil
}

func (s *DocumentStore) GetCall(ctx context.Context, id string) (*Call, error) {
	var call Call
	found, err := s.getJSON(ctx, callKey(id), &call)
	if err != nil || !found {
		return nil, err
	}
	return &call, nil
}

func (s *DocumentStore) AddCallTranscript(ctx context.Context, callID, transcript string) error {
	call, err := s.GetCall(ctx, callID)
	if err != nil {
		return err
	}
	if call == nil {
		return fmt.Errorf("document: add transcript %s: %w", callID, ErrNotFound)
	}
	call.Transcript = transcript
	return s.putJSON(ctx, callKey(callID), call)
}

func (s *DocumentStore) CloseCall(ctx context.Context, callID, summary string, tags []string) error {
	call, err := s.GetCall(ctx, callID)
	if err != nil {
		return err
	}
	if call == nil {
		return fmt.Errorf("document: close call %s: %w", callID, ErrNotFound)
	}
	now := time.Now().UTC()
	call.Status = CallStatusCompleted
	call.EndedAt = &now
	call.Summary = summary
	call.Tags = tags
	return s.putJSON(ctx, callKey(callID), call)
}

func (s *DocumentStore) putJSON(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("document: marshal %s: %w", key, err)
	}
	if err := s.rdb.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("document: write %s: %w", key, err)
	}
	return nil
}

func (s *DocumentStore) getJSON(ctx context.Context, key string, v interface{}) (bool, error) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("document: read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("document: decode %s: %w", key, err)
	}
	return true, nil
}
