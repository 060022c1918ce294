package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/openclaw/match-relay-go/internal/errors"
	"github.com/openclaw/match-relay-go/internal/metrics"
	"github.com/openclaw/match-relay-go/internal/model"
	"github.com/openclaw/match-relay-go/internal/store"
	"github.com/openclaw/match-relay-go/internal/util"
)

// PairingLedger keeps a durable history of formed pairings.
type PairingLedger interface {
	Record(ctx context.Context, p *model.Pairing) error
	CountTotal(ctx context.Context) (int64, error)
}

type QueueConfig struct {
	StaleAfter    time.Duration
	PairingTTL    time.Duration
	MaxSkips      int
	ScanDepth     int
	MutualFilters bool
}

// QueueService is the matchmaking queue. Waiting tickets live in two ordered
// sets scored by enqueue time: paid tickets in the priority lane, everyone
// else in the standard lane.
type QueueService struct {
	store  store.Store
	cfg    QueueConfig
	ledger PairingLedger

	// mu makes this instance the single writer of its lanes. Claims still go
	// through ZRem so concurrent instances cannot pair the same ticket twice.
	mu sync.Mutex

	now   func() time.Time
	newID func() string
}

func NewQueueService(kv store.Store, cfg QueueConfig, ledger PairingLedger) *QueueService {
	return &QueueService{
		store:  kv,
		cfg:    cfg,
		ledger: ledger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

func laneKey(lane model.Lane) string {
	if lane == model.LanePriority {
		return store.PriorityLaneKey
	}
	return store.StandardLaneKey
}

var lanes = []model.Lane{model.LanePriority, model.LaneStandard}

const rollbackTimeout = 5 * time.Second

// Enqueue adds the ticket to its lane. It returns false without changes when
// the identity is already waiting. Any previous assignment is dropped: a new
// search abandons the old pairing.
func (s *QueueService) Enqueue(ctx context.Context, t model.Ticket) (bool, error) {
	if t.Identity == "" {
		return false, apperrors.MissingRequired("identity")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	queued, err := s.enqueueLocked(ctx, t)
	metrics.ObserveQueueOp("enqueue", err)
	return queued, err
}

func (s *QueueService) enqueueLocked(ctx context.Context, t model.Ticket) (bool, error) {
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = s.now()
	}
	if t.Tier == "" {
		t.Tier = model.TierFree
	}

	if err := s.store.Del(ctx, store.AssignmentKey(t.Identity)); err != nil {
		return false, fmt.Errorf("clear assignment: %w", err)
	}

	lane, waiting, err := s.waitingLane(ctx, t.Identity)
	if err != nil {
		return false, err
	}
	if waiting {
		log.Debug().
			Str("identity", util.ShortHash(t.Identity)).
			Str("lane", string(lane)).
			Msg("already queued")
		return false, nil
	}

	body, err := json.Marshal(t)
	if err != nil {
		return false, fmt.Errorf("marshal ticket: %w", err)
	}
	if err := s.store.Set(ctx, store.TicketKey(t.Identity), string(body), 2*s.cfg.StaleAfter); err != nil {
		return false, fmt.Errorf("store ticket: %w", err)
	}

	score := float64(t.EnqueuedAt.UnixMilli())
	if err := s.store.ZAdd(ctx, laneKey(t.Tier.Lane()), score, t.Identity); err != nil {
		return false, fmt.Errorf("add to lane: %w", err)
	}

	log.Debug().
		Str("identity", util.ShortHash(t.Identity)).
		Str("lane", string(t.Tier.Lane())).
		Msg("ticket enqueued")
	return true, nil
}

func (s *QueueService) waitingLane(ctx context.Context, identity string) (model.Lane, bool, error) {
	for _, lane := range lanes {
		_, ok, err := s.store.ZScore(ctx, laneKey(lane), identity)
		if err != nil {
			return "", false, fmt.Errorf("check %s lane: %w", lane, err)
		}
		if ok {
			return lane, true, nil
		}
	}
	return "", false, nil
}

// Cancel removes the identity from both lanes. Unknown identities are a
// no-op.
func (s *QueueService) Cancel(ctx context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.cancelLocked(ctx, identity)
	metrics.ObserveQueueOp("cancel", err)
	return err
}

func (s *QueueService) cancelLocked(ctx context.Context, identity string) error {
	for _, lane := range lanes {
		if _, err := s.store.ZRem(ctx, laneKey(lane), identity); err != nil {
			return fmt.Errorf("remove from %s lane: %w", lane, err)
		}
	}
	if err := s.store.Del(ctx, store.TicketKey(identity)); err != nil {
		return fmt.Errorf("delete ticket: %w", err)
	}
	return nil
}

// Leave cancels any waiting ticket and drops the identity's assignment.
func (s *QueueService) Leave(ctx context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.cancelLocked(ctx, identity); err != nil {
		return err
	}
	if err := s.store.Del(ctx, store.AssignmentKey(identity)); err != nil {
		return fmt.Errorf("clear assignment: %w", err)
	}
	return nil
}

type candidate struct {
	ticket  model.Ticket
	lane    model.Lane
	score   float64
	claimed bool
}

// TryPair forms at most one pairing. Each anchor may skip up to MaxSkips
// incompatible partners before the scan moves on to the next anchor, so a
// ticket nobody can match never holds up the tickets behind it. It returns
// nil without error when no compatible pair exists.
func (s *QueueService) TryPair(ctx context.Context) (*model.Pairing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.tryPairLocked(ctx)
	metrics.ObserveQueueOp("try_pair", err)
	return p, err
}

func (s *QueueService) tryPairLocked(ctx context.Context) (*model.Pairing, error) {
	candidates, err := s.loadCandidates(ctx)
	if err != nil {
		return nil, err
	}

	for i := range candidates {
		anchor := &candidates[i]
		if anchor.claimed {
			continue
		}

		skips := 0
		for j := i + 1; j < len(candidates); j++ {
			partner := &candidates[j]
			if partner.claimed {
				continue
			}

			if !s.compatible(anchor.ticket, partner.ticket) {
				skips++
				metrics.MatchSkips.Inc()
				if skips > s.cfg.MaxSkips {
					log.Debug().
						Str("identity", util.ShortHash(anchor.ticket.Identity)).
						Int("skips", skips).
						Msg("skip budget exhausted for anchor")
					break
				}
				continue
			}

			anchorOK, partnerOK, err := s.claim(ctx, anchor, partner)
			if err != nil {
				return nil, err
			}
			if anchorOK && partnerOK {
				return s.createPairing(ctx, anchor, partner)
			}
			if !anchorOK {
				anchor.claimed = true
				break
			}
			partner.claimed = true
		}
	}
	return nil, nil
}

// loadCandidates reads the head of the priority lane followed by the head of
// the standard lane. Lane members whose ticket body is gone are dropped.
func (s *QueueService) loadCandidates(ctx context.Context) ([]candidate, error) {
	var out []candidate
	for _, lane := range lanes {
		key := laneKey(lane)
		members, err := s.store.ZRange(ctx, key, 0, int64(s.cfg.ScanDepth)-1)
		if err != nil {
			return nil, fmt.Errorf("read %s lane: %w", lane, err)
		}

		for _, m := range members {
			t, ok, err := s.loadTicket(ctx, m.Member)
			if err != nil {
				return nil, err
			}
			if !ok {
				if _, err := s.store.ZRem(ctx, key, m.Member); err != nil {
					return nil, fmt.Errorf("drop orphan ticket: %w", err)
				}
				continue
			}
			out = append(out, candidate{ticket: t, lane: lane, score: m.Score})
		}
	}
	return out, nil
}

func (s *QueueService) loadTicket(ctx context.Context, identity string) (model.Ticket, bool, error) {
	raw, ok, err := s.store.Get(ctx, store.TicketKey(identity))
	if err != nil {
		return model.Ticket{}, false, fmt.Errorf("load ticket: %w", err)
	}
	if !ok {
		return model.Ticket{}, false, nil
	}

	var t model.Ticket
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		log.Warn().Err(err).Str("identity", util.ShortHash(identity)).Msg("discarding malformed ticket")
		return model.Ticket{}, false, nil
	}
	return t, true, nil
}

func (s *QueueService) compatible(anchor, partner model.Ticket) bool {
	if anchor.Identity == partner.Identity {
		return false
	}
	if !anchor.Filters.Admits(partner.Profile) {
		return false
	}
	if s.cfg.MutualFilters && !partner.Filters.Admits(anchor.Profile) {
		return false
	}
	return true
}

// claim removes both members from their lanes. When one of them was already
// taken the other is put back with its original score.
func (s *QueueService) claim(ctx context.Context, anchor, partner *candidate) (anchorOK, partnerOK bool, err error) {
	n, err := s.store.ZRem(ctx, laneKey(anchor.lane), anchor.ticket.Identity)
	if err != nil {
		return false, false, fmt.Errorf("claim anchor: %w", err)
	}
	if n == 0 {
		return false, true, nil
	}

	n, err = s.store.ZRem(ctx, laneKey(partner.lane), partner.ticket.Identity)
	if err != nil {
		if restoreErr := s.store.ZAdd(ctx, laneKey(anchor.lane), anchor.score, anchor.ticket.Identity); restoreErr != nil {
			log.Error().Err(restoreErr).Str("identity", util.ShortHash(anchor.ticket.Identity)).Msg("failed to restore anchor")
		}
		return true, false, fmt.Errorf("claim partner: %w", err)
	}
	if n == 0 {
		if err := s.store.ZAdd(ctx, laneKey(anchor.lane), anchor.score, anchor.ticket.Identity); err != nil {
			return true, false, fmt.Errorf("restore anchor: %w", err)
		}
		return true, false, nil
	}
	return true, true, nil
}

// createPairing writes the pairing for two claimed candidates. Any store
// failure rolls back what was written and returns both tickets to their
// lanes with their original scores.
func (s *QueueService) createPairing(ctx context.Context, anchor, partner *candidate) (*model.Pairing, error) {
	a, b := anchor.ticket, partner.ticket
	now := s.now()
	p := &model.Pairing{
		ID:           s.newID(),
		ParticipantA: a.Identity,
		ParticipantB: b.Identity,
		CreatedAt:    now,
	}

	if err := s.writePairing(ctx, p); err != nil {
		s.rollbackPairing(ctx, p, anchor, partner)
		return nil, err
	}

	if s.ledger != nil {
		if err := s.ledger.Record(ctx, p); err != nil {
			log.Error().Err(err).Str("pairingId", p.ID).Msg("failed to record pairing")
		}
	}

	metrics.PairingsCreated.Inc()
	metrics.TicketWait.Observe(now.Sub(a.EnqueuedAt).Seconds())
	metrics.TicketWait.Observe(now.Sub(b.EnqueuedAt).Seconds())

	log.Info().
		Str("pairingId", p.ID).
		Str("initiator", util.ShortHash(p.ParticipantA)).
		Str("responder", util.ShortHash(p.ParticipantB)).
		Str("tierA", string(a.Tier)).
		Str("tierB", string(b.Tier)).
		Msg("pairing created")
	return p, nil
}

// writePairing stores the pairing, both assignments and the active-set
// entry. Ticket bodies are deleted last so a failed write leaves them intact.
func (s *QueueService) writePairing(ctx context.Context, p *model.Pairing) error {
	if err := s.storePairing(ctx, p, s.cfg.PairingTTL); err != nil {
		return err
	}

	for _, side := range []struct {
		identity string
		role     model.Role
	}{
		{p.ParticipantA, model.RoleInitiator},
		{p.ParticipantB, model.RoleResponder},
	} {
		asg := model.Assignment{PairingID: p.ID, Role: side.role, CreatedAt: p.CreatedAt}
		body, err := json.Marshal(asg)
		if err != nil {
			return fmt.Errorf("marshal assignment: %w", err)
		}
		if err := s.store.Set(ctx, store.AssignmentKey(side.identity), string(body), s.cfg.PairingTTL); err != nil {
			return fmt.Errorf("store assignment: %w", err)
		}
	}

	if err := s.store.ZAdd(ctx, store.ActivePairingsKey, float64(p.CreatedAt.UnixMilli()), p.ID); err != nil {
		return fmt.Errorf("track pairing: %w", err)
	}
	if err := s.store.Del(ctx, store.TicketKey(p.ParticipantA), store.TicketKey(p.ParticipantB)); err != nil {
		return fmt.Errorf("delete tickets: %w", err)
	}
	return nil
}

// rollbackPairing is best effort. It ignores ctx cancellation so an aborted
// request does not strand the claimed tickets.
func (s *QueueService) rollbackPairing(ctx context.Context, p *model.Pairing, anchor, partner *candidate) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	for _, c := range []*candidate{anchor, partner} {
		if err := s.store.ZAdd(ctx, laneKey(c.lane), c.score, c.ticket.Identity); err != nil {
			log.Error().Err(err).Str("identity", util.ShortHash(c.ticket.Identity)).Msg("failed to requeue ticket")
		}
	}
	if _, err := s.store.ZRem(ctx, store.ActivePairingsKey, p.ID); err != nil {
		log.Error().Err(err).Str("pairingId", p.ID).Msg("failed to untrack pairing")
	}
	if err := s.store.Del(ctx,
		store.PairingKey(p.ID),
		store.AssignmentKey(p.ParticipantA),
		store.AssignmentKey(p.ParticipantB),
	); err != nil {
		log.Error().Err(err).Str("pairingId", p.ID).Msg("failed to remove partial pairing")
	}
	log.Warn().Str("pairingId", p.ID).Msg("pairing rolled back")
}

func (s *QueueService) storePairing(ctx context.Context, p *model.Pairing, ttl time.Duration) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal pairing: %w", err)
	}
	if err := s.store.Set(ctx, store.PairingKey(p.ID), string(body), ttl); err != nil {
		return fmt.Errorf("store pairing: %w", err)
	}
	return nil
}

// Drain runs TryPair until no further pairing forms or limit is reached.
func (s *QueueService) Drain(ctx context.Context, limit int) (int, error) {
	formed := 0
	for formed < limit {
		if err := ctx.Err(); err != nil {
			return formed, err
		}
		p, err := s.TryPair(ctx)
		if err != nil {
			return formed, err
		}
		if p == nil {
			break
		}
		formed++
	}
	return formed, nil
}

// Assignment returns the identity's active assignment.
func (s *QueueService) Assignment(ctx context.Context, identity string) (*model.Assignment, error) {
	raw, ok, err := s.store.Get(ctx, store.AssignmentKey(identity))
	if err != nil {
		return nil, fmt.Errorf("load assignment: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var a model.Assignment
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		log.Warn().Err(err).Str("identity", util.ShortHash(identity)).Msg("discarding malformed assignment")
		return nil, nil
	}
	return &a, nil
}

// Poll reports the identity's queue state. A waiting caller gets one
// opportunistic match attempt before the answer.
func (s *QueueService) Poll(ctx context.Context, identity string) (model.QueueStatus, error) {
	status, done, err := s.assignedStatus(ctx, identity)
	if err != nil || done {
		return status, err
	}

	if _, err := s.TryPair(ctx); err != nil {
		return model.QueueStatus{}, err
	}

	status, done, err = s.assignedStatus(ctx, identity)
	if err != nil || done {
		return status, err
	}

	_, waiting, err := s.waitingLane(ctx, identity)
	if err != nil {
		return model.QueueStatus{}, err
	}
	if waiting {
		return model.QueueStatus{State: model.QueueStateWaiting}, nil
	}
	return model.QueueStatus{State: model.QueueStateIdle}, nil
}

func (s *QueueService) assignedStatus(ctx context.Context, identity string) (model.QueueStatus, bool, error) {
	a, err := s.Assignment(ctx, identity)
	if err != nil {
		return model.QueueStatus{}, false, err
	}
	if a == nil {
		return model.QueueStatus{}, false, nil
	}
	return model.QueueStatus{State: model.QueueStatePaired, PairingID: a.PairingID, Role: a.Role}, true, nil
}

// Pairing loads a pairing record. It returns nil when the pairing expired.
func (s *QueueService) Pairing(ctx context.Context, pairingID string) (*model.Pairing, error) {
	raw, ok, err := s.store.Get(ctx, store.PairingKey(pairingID))
	if err != nil {
		return nil, fmt.Errorf("load pairing: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var p model.Pairing
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("decode pairing: %w", err)
	}
	return &p, nil
}

// Sweep removes tickets enqueued more than staleAfter ago and forgets
// pairings older than the pairing TTL. It returns the number of tickets
// removed.
func (s *QueueService) Sweep(ctx context.Context, staleAfter time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cutoff := float64(now.Add(-staleAfter).UnixMilli())

	var removed int64
	for _, lane := range lanes {
		n, err := s.store.ZRemRangeByScore(ctx, laneKey(lane), store.NegInf, cutoff)
		if err != nil {
			return removed, fmt.Errorf("sweep %s lane: %w", lane, err)
		}
		removed += n
	}

	pairingCutoff := float64(now.Add(-s.cfg.PairingTTL).UnixMilli())
	if _, err := s.store.ZRemRangeByScore(ctx, store.ActivePairingsKey, store.NegInf, pairingCutoff); err != nil {
		return removed, fmt.Errorf("sweep pairings: %w", err)
	}

	if removed > 0 {
		log.Info().Int64("removed", removed).Msg("swept stale tickets")
	}
	return removed, nil
}

// Stats reads lane sizes and pairing counts concurrently.
func (s *QueueService) Stats(ctx context.Context) (model.QueueStats, error) {
	var stats model.QueueStats

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.store.ZCard(gctx, store.PriorityLaneKey)
		stats.WaitingPriority = n
		return err
	})
	g.Go(func() error {
		n, err := s.store.ZCard(gctx, store.StandardLaneKey)
		stats.WaitingStandard = n
		return err
	})
	g.Go(func() error {
		n, err := s.store.ZCard(gctx, store.ActivePairingsKey)
		stats.Paired = n
		return err
	})
	if s.ledger != nil {
		g.Go(func() error {
			total, err := s.ledger.CountTotal(gctx)
			if err != nil {
				log.Warn().Err(err).Msg("failed to count pairing ledger")
				return nil
			}
			stats.PairedTotal = &total
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return model.QueueStats{}, fmt.Errorf("queue stats: %w", err)
	}

	stats.Waiting = stats.WaitingPriority + stats.WaitingStandard
	metrics.QueueWaiting.WithLabelValues(string(model.LanePriority)).Set(float64(stats.WaitingPriority))
	metrics.QueueWaiting.WithLabelValues(string(model.LaneStandard)).Set(float64(stats.WaitingStandard))
	return stats, nil
}

// Reset empties both lanes and the active pairing index.
func (s *QueueService) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Del(ctx, store.PriorityLaneKey, store.StandardLaneKey, store.ActivePairingsKey); err != nil {
		return fmt.Errorf("reset queue: %w", err)
	}
	log.Warn().Msg("queue reset")
	return nil
}

// IsStoreError reports whether err came from the backing store.
func IsStoreError(err error) bool {
	return errors.Is(err, store.ErrUnavailable)
}
