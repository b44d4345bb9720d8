package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// RelationalStore is the embedded SQLite backend, accessed through GORM
// with the pure-Go driver so the binary stays cgo-free.
type RelationalStore struct {
	db *gorm.DB
}

// OpenRelationalStore opens (or creates) the database at path and
// migrates the schema. Use ":memory:" for an ephemeral database.
func OpenRelationalStore(path string) (*RelationalStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("relational: open %s: %w", path, err)
	}
	if err := db.AutoMigrate(&Client{}, &Call{}); err != nil {
		return nil, fmt.Errorf("relational: migrate: %w", err)
	}
	return &RelationalStore{db: db}, nil
}

func (s *RelationalStore) Name() string { return "relational" }

func (s *RelationalStore) CreateClientWithID(ctx context.Context, client Client) (string, error) {
	if client.Phone != "" {
		existing, err := s.FindClientByPhone(ctx, client.Phone)
		if err != nil {
			return "", err
		}
		if existing != nil {
			return existing.ID, nil
		}
	} else {
		existing, err := s.GetClient(ctx, client.ID)
		if err != nil {
			return "", err
		}
		if existing != nil {
			return existing.ID, nil
		}
	}

	if err := s.db.WithContext(ctx).Create(&client).Error; err != nil {
		// A concurrent create can win the race between lookup and
		// insert; resolve to whatever got stored
		if client.Phone != "" {
			if existing, lerr := s.FindClientByPhone(ctx, client.Phone); lerr == nil && existing != nil {
				return existing.ID, nil
			}
		}
		return "", fmt.Errorf("relational: create client %s: %w", client.ID, err)
	}
	return client.ID, nil
}

func (s *RelationalStore) GetClient(ctx context.Context, id string) (*Client, error) {
	var client Client
	err := s.db.WithContext(ctx).First(&client, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("relational: get client %s: %w", id, err)
	}
	return &client, nil
}

func (s *RelationalStore) FindClientByPhone(ctx context.Context, phone string) (*Client, error) {
	var client Client
	err := s.db.WithContext(ctx).First(&client, "phone = ?", phone).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("relational: lookup phone %s: %w", phone, err)
	}
	return &client, nil
}

func (s *RelationalStore) UpdateProfile(ctx context.Context, clientID string, update Profile) error {
	client, err := s.GetClient(ctx, clientID)
	if err != nil {
		return err
	}
	if client == nil {
		return fmt.Errorf("relational: update profile %s: %w", clientID, ErrNotFound)
	}
	client.Profile.Merge(update)
	client.UpdatedAt = time.Now().UTC()
	if err := s.db.WithContext(ctx).Save(client).Error; err != nil {
		return fmt.Errorf("relational: update profile %s: %w", clientID, err)
	}
	return nil
}

func (s *RelationalStore) CreateCallWithID(ctx context.Context, call Call) (string, error) {
	existing, err := s.GetCall(ctx, call.ID)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return existing.ID, nil
	}

	if call.StartedAt.IsZero() {
		call.StartedAt = time.Now().UTC()
	}
	if call.Status == "" {
		call.Status = CallStatusActive
	}
	if err := s.db.WithContext(ctx).Create(&call).Error; err != nil {
		return "", fmt.Errorf("relational: create call %s: %w", call.ID, err)
	}
	return call.ID, nil
}

func (s *RelationalStore) GetCall(ctx context.Context, id string) (*Call, error) {
	var call Call
	err := s.db.WithContext(ctx).First(&call, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("relational: get call %s: %w", id, err)
	}
	return &call, nil
}

func (s *RelationalStore) AddCallTranscript(ctx context.Context, callID, transcript string) error {
	res := s.db.WithContext(ctx).Model(&Call{}).Where("id = ?", callID).
		Update("transcript", transcript)
	if res.Error != nil {
		return fmt.Errorf("relational: add transcript %s: %w", callID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("relational: add transcript %s: %w", callID, ErrNotFound)
	}
	return nil
}

func (s *RelationalStore) CloseCall(ctx context.Context, callID, summary string, tags []string) error {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&Call{}).Where("id = ?", callID).
		Updates(map[string]interface{}{
			"status":   CallStatusCompleted,
			"ended_at": &now,
			"summary":  summary,
			"tags":     StringList(tags),
		})
	if res.Error != nil {
		return fmt.Errorf("relational: close call %s: %w", callID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("relational: close call %s: %w", callID, ErrNotFound)
	}
	return nil
}
