package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/voxline-ai/voxline/src/logger"
)

// DualStore coordinates the two persistence backends so they agree on
// client and call ids. The primary (document) backend is the tie-break
// when the backends disagree; secondary failures are logged and never
// fail the operation, leaving the system single-backend-of-record until
// a later write backfills the gap.
type DualStore struct {
	primary   Backend
	secondary Backend
	log       *logger.Logger
}

func NewDualStore(primary, secondary Backend) *DualStore {
	return &DualStore{
		primary:   primary,
		secondary: secondary,
		log:       logger.WithPrefix("DualStore"),
	}
}

// Register resolves-or-creates the client for a phone number and
// returns the id both backends agree on. One id is generated up front;
// concurrent registers for the same phone converge on whichever id won
// the race because the create operations return the stored id.
func (d *DualStore) Register(ctx context.Context, name, phone string) (string, error) {
	client, err := d.LookupByPhone(ctx, phone)
	if err != nil {
		return "", err
	}
	if client != nil {
		return client.ID, nil
	}

	fresh := Client{ID: uuid.NewString(), Name: name, Phone: phone}

	id, perr := d.primary.CreateClientWithID(ctx, fresh)
	if perr != nil {
		d.log.Error("%s create client failed: %v", d.primary.Name(), perr)
		// Degrade to the secondary as single backend of record
		id, err = d.secondary.CreateClientWithID(ctx, fresh)
		if err != nil {
			return "", fmt.Errorf("register %s: both backends failed: %v; %w", phone, perr, err)
		}
		return id, nil
	}

	fresh.ID = id
	if _, err := d.secondary.CreateClientWithID(ctx, fresh); err != nil {
		d.log.Error("%s create client failed (non-fatal): %v", d.secondary.Name(), err)
	}
	return id, nil
}

// LookupByPhone queries both backends, detects id conflicts, and
// backfills whichever backend is missing the client. Returns (nil, nil)
// when neither backend knows the phone number.
func (d *DualStore) LookupByPhone(ctx context.Context, phone string) (*Client, error) {
	pc, perr := d.primary.FindClientByPhone(ctx, phone)
	if perr != nil {
		d.log.Error("%s lookup failed: %v", d.primary.Name(), perr)
	}
	sc, serr := d.secondary.FindClientByPhone(ctx, phone)
	if serr != nil {
		d.log.Error("%s lookup failed: %v", d.secondary.Name(), serr)
	}
	if perr != nil && serr != nil {
		return nil, fmt.Errorf("lookup %s: both backends failed: %v; %w", phone, perr, serr)
	}

	switch {
	case pc != nil && sc != nil:
		if pc.ID != sc.ID {
			d.log.Error("id conflict for phone %s: %s=%s %s=%s, preferring %s",
				phone, d.primary.Name(), pc.ID, d.secondary.Name(), sc.ID, d.primary.Name())
		}
		return pc, nil
	case pc != nil:
		if serr == nil {
			if _, err := d.secondary.CreateClientWithID(ctx, *pc); err != nil {
				d.log.Warn("backfill into %s failed: %v", d.secondary.Name(), err)
			}
		}
		return pc, nil
	case sc != nil:
		if perr == nil {
			if _, err := d.primary.CreateClientWithID(ctx, *sc); err != nil {
				d.log.Warn("backfill into %s failed: %v", d.primary.Name(), err)
			}
		}
		return sc, nil
	}
	return nil, nil
}

// GetClient reads from the primary, falling back to the secondary
func (d *DualStore) GetClient(ctx context.Context, id string) (*Client, error) {
	client, err := d.primary.GetClient(ctx, id)
	if err != nil {
		d.log.Error("%s get client failed: %v", d.primary.Name(), err)
	}
	if client != nil {
		return client, nil
	}
	return d.secondary.GetClient(ctx, id)
}

// CreateCall mints one call id and records the call on both backends
func (d *DualStore) CreateCall(ctx context.Context, clientID string) (string, error) {
	call := Call{ID: uuid.NewString(), ClientID: clientID, Status: CallStatusActive}

	id, perr := d.primary.CreateCallWithID(ctx, call)
	if perr != nil {
		d.log.Error("%s create call failed: %v", d.primary.Name(), perr)
		id, err := d.secondary.CreateCallWithID(ctx, call)
		if err != nil {
			return "", fmt.Errorf("create call: both backends failed: %v; %w", perr, err)
		}
		return id, nil
	}

	call.ID = id
	if _, err := d.secondary.CreateCallWithID(ctx, call); err != nil {
		d.log.Error("%s create call failed (non-fatal): %v", d.secondary.Name(), err)
	}
	return id, nil
}

// AddCallTranscript persists the transcript to both backends. The
// primary (document) backend receives the structured turn list, the
// secondary (relational) backend the raw formatted text.
func (d *DualStore) AddCallTranscript(ctx context.Context, callID, structured, formatted string) error {
	perr := d.primary.AddCallTranscript(ctx, callID, structured)
	if perr != nil {
		d.log.Error("%s add transcript failed: %v", d.primary.Name(), perr)
	}
	if err := d.secondary.AddCallTranscript(ctx, callID, formatted); err != nil {
		d.log.Error("%s add transcript failed (non-fatal): %v", d.secondary.Name(), err)
	}
	return perr
}

// CloseCall marks the call completed with its summary and tags on the
// primary backend only
func (d *DualStore) CloseCall(ctx context.Context, callID, summary string, tags []string) error {
	return d.primary.CloseCall(ctx, callID, summary, tags)
}

// UpdateProfile merges the extracted fields into both backends,
// secondary best-effort
func (d *DualStore) UpdateProfile(ctx context.Context, clientID string, update Profile) error {
	perr := d.primary.UpdateProfile(ctx, clientID, update)
	if perr != nil {
		d.log.Error("%s update profile failed: %v", d.primary.Name(), perr)
	}
	if err := d.secondary.UpdateProfile(ctx, clientID, update); err != nil {
		d.log.Error("%s update profile failed (non-fatal): %v", d.secondary.Name(), err)
	}
	return perr
}
