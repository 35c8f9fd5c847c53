// Package store persists ledger checkpoints.
//
// A checkpoint is a full ledger.Snapshot encoded as JSON together with the
// SHA-256 of that encoding. Load verifies the digest before returning, so a
// truncated or hand-edited row is reported instead of restored.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmerrifield20/tokenledger/internal/ledger"
)

var (
	// ErrNoSnapshot is returned by Load when nothing has been saved yet.
	ErrNoSnapshot = errors.New("no snapshot stored")

	// ErrChecksumMismatch is returned by Load when the stored digest does not
	// match the stored payload.
	ErrChecksumMismatch = errors.New("snapshot checksum mismatch")
)

// Store saves and loads the latest ledger checkpoint.
type Store interface {
	Load(ctx context.Context) (*ledger.Snapshot, error)
	Save(ctx context.Context, snap *ledger.Snapshot) error
	Close() error
}

// encoded is a snapshot ready to be written.
type encoded struct {
	payload  []byte
	checksum string
	version  uint64
}

func encode(snap *ledger.Snapshot) (encoded, error) {
	if snap == nil {
		return encoded{}, errors.New("nil snapshot")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return encoded{}, fmt.Errorf("marshal snapshot: %w", err)
	}
	return encoded{payload: data, checksum: digest(data), version: snap.Version}, nil
}

func decode(payload []byte, checksum string) (*ledger.Snapshot, error) {
	if got := digest(payload); got != checksum {
		return nil, fmt.Errorf("%w: got %s, stored %s", ErrChecksumMismatch, got, checksum)
	}
	var snap ledger.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
