// Package events publishes ledger events to downstream consumers.
//
// A Publisher receives every committed transfer and mint as a
// TransactionCompleted event, plus lifecycle events such as initialization.
// Implementations:
//   - NoopPublisher: logs events, for development.
//   - KafkaPublisher: writes JSON events to a Kafka topic.
//   - Hub: fans events out to in-process subscribers (websocket streams).
//   - Dispatcher: decouples callers from a slow Publisher, preserving order.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/tokenledger/internal/ledger"
)

// Event types.
const (
	TypeTransactionCompleted = "transaction.completed"
	TypeLedgerInitialized    = "ledger.initialized"
	TypeMinterAdded          = "ledger.minter_added"
	TypeApproval             = "ledger.approval"
)

// Event is the envelope published for every ledger event.
type Event struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Symbol     string            `json:"symbol"`
	Entry      *ledger.Entry     `json:"entry,omitempty"`
	Data       map[string]string `json:"data,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// NewTransactionCompleted builds the event for a committed history entry.
func NewTransactionCompleted(symbol string, entry ledger.Entry) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       TypeTransactionCompleted,
		Symbol:     symbol,
		Entry:      &entry,
		OccurredAt: time.Now().UTC(),
	}
}

// NewEvent builds a non-transaction event.
func NewEvent(typ, symbol string, data map[string]string) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       typ,
		Symbol:     symbol,
		Data:       data,
		OccurredAt: time.Now().UTC(),
	}
}

// Multi publishes to every member and joins their errors.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
