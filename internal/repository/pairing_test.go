package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/match-relay-go/internal/model"
	"github.com/openclaw/match-relay-go/internal/util"
)

func setupMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return sqlx.NewDb(sqlDB, "postgres"), mock
}

func TestPairingRepository_Record(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPairingRepository(db)
	createdAt := time.Unix(1_700_000_000, 0).UTC()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO pairings")).
		WithArgs("p-1", util.ShortHash("alice"), util.ShortHash("bob"), createdAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Record(context.Background(), &model.Pairing{
		ID:           "p-1",
		ParticipantA: "alice",
		ParticipantB: "bob",
		CreatedAt:    createdAt,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPairingRepository_FindByID(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the pairing", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewPairingRepository(db)
		createdAt := time.Unix(1_700_000_000, 0).UTC()

		rows := sqlmock.NewRows([]string{"id", "participant_a", "participant_b", "created_at"}).
			AddRow("p-1", "aaa", "bbb", createdAt)
		mock.ExpectQuery(regexp.QuoteMeta("FROM pairings WHERE id = $1")).
			WithArgs("p-1").
			WillReturnRows(rows)

		p, err := repo.FindByID(ctx, "p-1")
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, "aaa", p.ParticipantA)
		assert.Equal(t, createdAt, p.CreatedAt)
	})

	t.Run("missing pairing is nil without error", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewPairingRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta("FROM pairings WHERE id = $1")).
			WithArgs("nope").
			WillReturnRows(sqlmock.NewRows([]string{"id", "participant_a", "participant_b", "created_at"}))

		p, err := repo.FindByID(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, p)
	})
}

func TestPairingRepository_Counts(t *testing.T) {
	ctx := context.Background()
	db, mock := setupMockDB(t)
	repo := NewPairingRepository(db)
	since := time.Unix(1_700_000_000, 0).UTC()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM pairings")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE created_at >= $1")).
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	total, err := repo.CountTotal(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(12), total)

	recent, err := repo.CountSince(ctx, since)
	require.NoError(t, err)
	assert.Equal(t, int64(3), recent)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPairingRepository_DeleteOlderThan(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPairingRepository(db)
	cutoff := time.Unix(1_700_000_000, 0).UTC()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM pairings WHERE created_at < $1")).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := repo.DeleteOlderThan(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}

func TestPairingRepository_WithTx(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPairingRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM pairings")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.Beginx()
	require.NoError(t, err)

	n, err := repo.WithTx(tx).DeleteOlderThan(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}
