package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/match-relay-go/internal/database"
	"github.com/openclaw/match-relay-go/internal/model"
	"github.com/openclaw/match-relay-go/internal/util"
)

// PairingRepository is the durable ledger of formed pairings. It backs the
// all-time counter in queue stats; live pairing state stays in the store.
// Participants are recorded as fingerprints, never as raw identities.
type PairingRepository interface {
	Record(ctx context.Context, p *model.Pairing) error
	FindByID(ctx context.Context, id string) (*model.Pairing, error)
	CountTotal(ctx context.Context) (int64, error)
	CountSince(ctx context.Context, since time.Time) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	WithTx(tx *sqlx.Tx) PairingRepository
}

type pairingRepo struct {
	db database.DBTX
}

func NewPairingRepository(db *sqlx.DB) PairingRepository {
	return &pairingRepo{db: db}
}

func (r *pairingRepo) WithTx(tx *sqlx.Tx) PairingRepository {
	return &pairingRepo{db: tx}
}

func (r *pairingRepo) Record(ctx context.Context, p *model.Pairing) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pairings (id, participant_a, participant_b, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, p.ID, util.ShortHash(p.ParticipantA), util.ShortHash(p.ParticipantB), p.CreatedAt)
	return err
}

func (r *pairingRepo) FindByID(ctx context.Context, id string) (*model.Pairing, error) {
	var p model.Pairing
	err := r.db.GetContext(ctx, &p, `
		SELECT id, participant_a, participant_b, created_at FROM pairings WHERE id = $1
	`, id)
	return HandleNotFound(&p, err)
}

func (r *pairingRepo) CountTotal(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM pairings`)
	return count, err
}

func (r *pairingRepo) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM pairings WHERE created_at >= $1
	`, since)
	return count, err
}

func (r *pairingRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM pairings WHERE created_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
