package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/match-relay-go/internal/store"
	"github.com/openclaw/match-relay-go/internal/util"
)

const minGraceRecordTTL = time.Minute

// GraceService tracks when a participant last tore down a session so that a
// reconnect right after a media drop is not treated as abuse.
type GraceService struct {
	store  store.Store
	window time.Duration
	now    func() time.Time
}

func NewGraceService(kv store.Store, window time.Duration) *GraceService {
	return &GraceService{store: kv, window: window, now: time.Now}
}

func (s *GraceService) Window() time.Duration {
	return s.window
}

// MarkDisconnect records at as the identity's last teardown.
func (s *GraceService) MarkDisconnect(ctx context.Context, identity string, at time.Time) error {
	if at.IsZero() {
		at = s.now()
	}

	ttl := max(s.window*12, minGraceRecordTTL)
	if err := s.store.Set(ctx, store.GraceKey(identity), strconv.FormatInt(at.UnixMilli(), 10), ttl); err != nil {
		return fmt.Errorf("record disconnect: %w", err)
	}

	log.Debug().
		Str("identity", util.ShortHash(identity)).
		Time("at", at).
		Msg("disconnect recorded")
	return nil
}

// LastDisconnect returns the stored teardown time, or false when none is
// recorded or it already expired.
func (s *GraceService) LastDisconnect(ctx context.Context, identity string) (time.Time, bool, error) {
	raw, ok, err := s.store.Get(ctx, store.GraceKey(identity))
	if err != nil {
		return time.Time{}, false, fmt.Errorf("load disconnect: %w", err)
	}
	if !ok {
		return time.Time{}, false, nil
	}

	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Warn().Str("identity", util.ShortHash(identity)).Msg("discarding malformed disconnect record")
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

// IsInGrace reports whether now falls within the grace window after
// lastStop. A zero lastStop falls back to the stored record.
func (s *GraceService) IsInGrace(ctx context.Context, identity string, lastStop, now time.Time) (bool, error) {
	if lastStop.IsZero() {
		stored, ok, err := s.LastDisconnect(ctx, identity)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		lastStop = stored
	}
	return s.Within(lastStop, now), nil
}

// ClaimReconnect grants one reconnect per recorded teardown. It reports true
// only when the stored teardown is inside the window and has not been
// claimed yet.
func (s *GraceService) ClaimReconnect(ctx context.Context, identity string, now time.Time) (bool, error) {
	lastStop, ok, err := s.LastDisconnect(ctx, identity)
	if err != nil || !ok || !s.Within(lastStop, now) {
		return false, err
	}

	stamp := strconv.FormatInt(lastStop.UnixMilli(), 10)
	claimed, ok, err := s.store.Get(ctx, store.ReconnectClaimKey(identity))
	if err != nil {
		return false, fmt.Errorf("load reconnect claim: %w", err)
	}
	if ok && claimed == stamp {
		return false, nil
	}

	if err := s.store.Set(ctx, store.ReconnectClaimKey(identity), stamp, max(s.window*12, minGraceRecordTTL)); err != nil {
		return false, fmt.Errorf("record reconnect claim: %w", err)
	}
	return true, nil
}

// Within is the pure window check. Teardown times in the future never
// qualify.
func (s *GraceService) Within(lastStop, now time.Time) bool {
	elapsed := now.Sub(lastStop)
	return elapsed >= 0 && elapsed <= s.window
}
