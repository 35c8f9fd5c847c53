package store

import (
	"context"
	"errors"
	"testing"

	"github.com/jmerrifield20/tokenledger/internal/ledger"
)

func TestMemoryStore_DetectsTampering(t *testing.T) {
	m := NewMemoryStore()
	h := ledger.NewHost()
	if err := h.Initialize("owner-principal", ledger.InitArgs{Symbol: "TOK", TotalSupply: 10}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	snap, err := h.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if err := m.Save(context.Background(), snap); err != nil {
		t.Fatalf("Save: %v", err)
	}

	m.data.payload[len(m.data.payload)-2] ^= 0x01
	if _, err := m.Load(context.Background()); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("got %v, want ErrChecksumMismatch", err)
	}
}
