package artifacts

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps artifacts and transcript logs as Redis strings:
//
//	artifact:<clientID>:<kind>
//	transcript:<callID>
//
// Transcript lines are appended with APPEND so concurrent writers
// never clobber each other.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func artifactKey(clientID, kind string) string {
	return fmt.Sprintf("artifact:%s:%s", clientID, kind)
}

func transcriptKey(callID string) string {
	return fmt.Sprintf("transcript:%s", callID)
}

func (s *RedisStore) ReadArtifact(ctx context.Context, clientID, kind string) (string, error) {
	if err := validateKind(kind); err != nil {
		return "", err
	}
	val, err := s.rdb.Get(ctx, artifactKey(clientID, kind)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read artifact %s/%s: %w", clientID, kind, err)
	}
	return val, nil
}

func (s *RedisStore) WriteArtifact(ctx context.Context, clientID, kind, content string) error {
	if err := validateKind(kind); err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, artifactKey(clientID, kind), content, 0).Err(); err != nil {
		return fmt.Errorf("write artifact %s/%s: %w", clientID, kind, err)
	}
	return nil
}

func (s *RedisStore) AppendTranscript(ctx context.Context, callID, line string) error {
	if err := s.rdb.Append(ctx, transcriptKey(callID), line+"\n").Err(); err != nil {
		return fmt.Errorf("append transcript %s: %w", callID, err)
	}
	return nil
}

func (s *RedisStore) ReadTranscript(ctx context.Context, callID string) (string, error) {
	val, err := s.rdb.Get(ctx, transcriptKey(callID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read transcript %s: %w", callID, err)
	}
	return val, nil
}
