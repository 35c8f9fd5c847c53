package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/jmerrifield20/tokenledger/internal/ledger"
)

const (
	defaultSQLiteFile = "tokenledger.db"
	maxBusyTimeoutMs  = 5000
)

// SQLiteStore keeps the latest checkpoint in a local SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	file   string
	logger *zap.Logger
}

// NewSQLiteStore opens (creating if needed) the SQLite database at path.
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if path == "" {
		path = defaultSQLiteFile
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve db path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s", filepath.Clean(absPath)))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", maxBusyTimeoutMs)); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db, file: absPath, logger: logger}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) ensureSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS ledger_snapshots (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		version INTEGER NOT NULL,
		payload BLOB NOT NULL,
		checksum TEXT NOT NULL,
		saved_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create ledger_snapshots table: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context) (*ledger.Snapshot, error) {
	var payload []byte
	var checksum string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, checksum FROM ledger_snapshots WHERE id = 1`,
	).Scan(&payload, &checksum)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return decode(payload, checksum)
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, snap *ledger.Snapshot) error {
	enc, err := encode(snap)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO ledger_snapshots (id, version, payload, checksum, saved_at)
		 VALUES (1, ?, ?, ?, datetime('now'))
		 ON CONFLICT(id) DO UPDATE
		 SET version = excluded.version, payload = excluded.payload,
		     checksum = excluded.checksum, saved_at = excluded.saved_at
		 WHERE ledger_snapshots.version <= excluded.version`,
		int64(enc.version), enc.payload, enc.checksum,
	)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		s.logger.Warn("stale snapshot not saved", zap.Uint64("version", enc.version))
		return nil
	}
	s.logger.Debug("snapshot saved",
		zap.String("file", s.file),
		zap.Uint64("version", enc.version),
	)
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks that the database file is still usable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
