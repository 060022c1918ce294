package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/match-relay-go/internal/metrics"
	"github.com/openclaw/match-relay-go/internal/model"
	"github.com/openclaw/match-relay-go/internal/store"
)

var (
	ErrPairingNotFound = errors.New("pairing not found")
	ErrNotParticipant  = errors.New("not a participant of this pairing")
	ErrRoleMismatch    = errors.New("role not assigned to caller")
)

// Counterpart is the result of a fetch. Ready is false until the other side
// has published.
type Counterpart struct {
	Ready       bool   `json:"ready"`
	Description []byte `json:"-"`
}

// RelayService is a per-pairing mailbox of session descriptions, one slot per
// role. It never blocks; clients poll for the counterpart.
type RelayService struct {
	store     store.Store
	queue     *QueueService
	signalTTL time.Duration
}

func NewRelayService(kv store.Store, queue *QueueService, signalTTL time.Duration) *RelayService {
	return &RelayService{store: kv, queue: queue, signalTTL: signalTTL}
}

// Admit loads the pairing and checks that identity holds role in it.
func (s *RelayService) Admit(ctx context.Context, pairingID, identity string, role model.Role) (*model.Pairing, error) {
	p, err := s.queue.Pairing(ctx, pairingID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPairingNotFound
	}

	assigned, ok := p.RoleOf(identity)
	if !ok {
		return nil, ErrNotParticipant
	}
	if assigned != role {
		return nil, ErrRoleMismatch
	}
	return p, nil
}

// Publish stores the description in the role's slot. Later publishes
// replace earlier ones.
func (s *RelayService) Publish(ctx context.Context, pairingID string, role model.Role, description []byte) error {
	err := s.store.Set(ctx, store.DescriptionKey(pairingID, string(role)), string(description), s.signalTTL)
	observeSignal("publish", role, err)
	if err != nil {
		return fmt.Errorf("publish description: %w", err)
	}

	log.Debug().
		Str("pairingId", pairingID).
		Str("role", string(role)).
		Int("bytes", len(description)).
		Msg("description published")
	return nil
}

// FetchCounterpart returns the description published by the other role.
func (s *RelayService) FetchCounterpart(ctx context.Context, pairingID string, role model.Role) (Counterpart, error) {
	raw, ok, err := s.store.Get(ctx, store.DescriptionKey(pairingID, string(role.Other())))
	observeSignal("fetch", role, err)
	if err != nil {
		return Counterpart{}, fmt.Errorf("fetch description: %w", err)
	}
	if !ok {
		return Counterpart{Ready: false}, nil
	}
	return Counterpart{Ready: true, Description: []byte(raw)}, nil
}

// Retain extends the pairing record to the signaling lifetime once the
// participants started exchanging descriptions.
func (s *RelayService) Retain(ctx context.Context, p *model.Pairing) error {
	return s.queue.storePairing(ctx, p, s.signalTTL)
}

func observeSignal(operation string, role model.Role, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.SignalOperations.WithLabelValues(operation, string(role), status).Inc()
}
