package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/jmerrifield20/tokenledger/internal/ledger"
)

// advisoryLockKey serialises concurrent checkpoint writers. The value is
// arbitrary but must be consistent across all ledgerd instances.
const advisoryLockKey = int64(2_084_113_907)

// PostgresStore keeps the latest checkpoint in the single-row
// ledger_snapshots table (see migrations/001_ledger_snapshots.up.sql).
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a PostgresStore backed by the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// Load implements Store.
func (s *PostgresStore) Load(ctx context.Context) (*ledger.Snapshot, error) {
	var payload []byte
	var checksum string
	err := s.pool.QueryRow(ctx,
		`SELECT payload, checksum FROM ledger_snapshots WHERE id = 1`,
	).Scan(&payload, &checksum)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return decode(payload, checksum)
}

// Save implements Store. A snapshot older than the stored one is ignored, so
// a lagging instance cannot roll the checkpoint back.
func (s *PostgresStore) Save(ctx context.Context, snap *ledger.Snapshot) error {
	enc, err := encode(snap)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Transaction-scoped; released on commit or rollback.
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`INSERT INTO ledger_snapshots (id, version, payload, checksum, saved_at)
		 VALUES (1, $1, $2, $3, NOW())
		 ON CONFLICT (id) DO UPDATE
		 SET version = EXCLUDED.version, payload = EXCLUDED.payload,
		     checksum = EXCLUDED.checksum, saved_at = EXCLUDED.saved_at
		 WHERE ledger_snapshots.version <= EXCLUDED.version`,
		int64(enc.version), enc.payload, enc.checksum,
	)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit snapshot tx: %w", err)
	}

	if tag.RowsAffected() == 0 {
		s.logger.Warn("stale snapshot not saved", zap.Uint64("version", enc.version))
		return nil
	}
	s.logger.Debug("snapshot saved",
		zap.Uint64("version", enc.version),
		zap.Int("bytes", len(enc.payload)),
	)
	return nil
}

// Close implements Store. The pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
