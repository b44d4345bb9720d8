package store

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// CallStatus represents the lifecycle state of a call
type CallStatus string

const (
	CallStatusActive    CallStatus = "active"
	CallStatusCompleted CallStatus = "completed"
)

// StringList is a type for storing a list of tags in the database
type StringList []string

// Value implements driver.Valuer for StringList
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner for StringList
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			bytes = []byte(s)
		} else {
			return errors.New("type assertion to []byte failed")
		}
	}
	return json.Unmarshal(bytes, l)
}

// Profile holds what the post-call analysis has learned about a client.
// Every field is a pointer so "unknown" survives round-trips and merges
// only overwrite what a call actually established.
type Profile struct {
	ClientType               *string `json:"clientType,omitempty"`
	UnderstandsCreditFunds   *bool   `json:"understandsCreditFunds,omitempty"`
	HasMinimumInvestment     *bool   `json:"hasMinimumInvestment,omitempty"`
	KnowsManeesh             *bool   `json:"knowsManeesh,omitempty"`
	InvestorSophistication   *string `json:"investorSophistication,omitempty"`
	AttitudeTowardsOffering  *string `json:"attitudeTowardsOffering,omitempty"`
	WantsZoomCall            *bool   `json:"wantsZoomCall,omitempty"`
	ShouldCallAgain          *bool   `json:"shouldCallAgain,omitempty"`
	InterestedInSalesContact *bool   `json:"interestedInSalesContact,omitempty"`
	LanguagePreference       *string `json:"languagePreference,omitempty"`
	Notes                    *string `json:"notes,omitempty"`
}

// Merge overlays the non-nil fields of update onto p
func (p *Profile) Merge(update Profile) {
	if update.ClientType != nil {
		p.ClientType = update.ClientType
	}
	if update.UnderstandsCreditFunds != nil {
		p.UnderstandsCreditFunds = update.UnderstandsCreditFunds
	}
	if update.HasMinimumInvestment != nil {
		p.HasMinimumInvestment = update.HasMinimumInvestment
	}
	if update.KnowsManeesh != nil {
		p.KnowsManeesh = update.KnowsManeesh
	}
	if update.InvestorSophistication != nil {
		p.InvestorSophistication = update.InvestorSophistication
	}
	if update.AttitudeTowardsOffering != nil {
		p.AttitudeTowardsOffering = update.AttitudeTowardsOffering
	}
	if update.WantsZoomCall != nil {
		p.WantsZoomCall = update.WantsZoomCall
	}
	if update.ShouldCallAgain != nil {
		p.ShouldCallAgain = update.ShouldCallAgain
	}
	if update.InterestedInSalesContact != nil {
		p.InterestedInSalesContact = update.InterestedInSalesContact
	}
	if update.LanguagePreference != nil {
		p.LanguagePreference = update.LanguagePreference
	}
	if update.Notes != nil {
		p.Notes = update.Notes
	}
}

// Client is one known caller, shared by both backends under one id
type Client struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	Name      string    `json:"name" gorm:"size:255"`
	Phone     string    `json:"phone" gorm:"uniqueIndex;size:32"`
	Profile   Profile   `json:"profile" gorm:"embedded;embeddedPrefix:profile_"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Call is one live or completed conversation session
type Call struct {
	ID         string     `json:"id" gorm:"primaryKey;size:36"`
	ClientID   string     `json:"clientId" gorm:"index;size:36"`
	StartedAt  time.Time  `json:"startedAt"`
	EndedAt    *time.Time `json:"endedAt,omitempty"`
	Status     CallStatus `json:"status" gorm:"size:20;default:'active'"`
	Transcript string     `json:"transcript,omitempty"`
	Summary    string     `json:"summary,omitempty"`
	Tags       StringList `json:"tags,omitempty" gorm:"type:text"`
}

// Backend is one persistence backend for client and call records. Both
// create operations are idempotent on id: a second call with an
// already-stored id is a no-op that returns the stored id, and a client
// create that collides on phone returns the id already bound to that
// phone. Lookups return (nil, nil) when the record does not exist.
type Backend interface {
	Name() string

	CreateClientWithID(ctx context.Context, client Client) (string, error)
	GetClient(ctx context.Context, id string) (*Client, error)
	FindClientByPhone(ctx context.Context, phone string) (*Client, error)
	UpdateProfile(ctx context.Context, clientID string, update Profile) error

	CreateCallWithID(ctx context.Context, call Call) (string, error)
	GetCall(ctx context.Context, id string) (*Call, error)
	AddCallTranscript(ctx context.Context, callID, transcript string) error
	CloseCall(ctx context.Context, callID, summary string, tags []string) error
}

// ErrNotFound is returned by mutations that target a missing record
var ErrNotFound = errors.New("store: record not found")
