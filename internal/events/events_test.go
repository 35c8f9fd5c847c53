package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/jmerrifield20/tokenledger/internal/events"
	"github.com/jmerrifield20/tokenledger/internal/ledger"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
	block  chan struct{}
}

func (r *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingPublisher) got() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func sampleEntry(i int) ledger.Entry {
	return ledger.Entry{
		Index: i,
		Record: ledger.Record{
			From:   "alice",
			To:     "bob",
			Amount: uint64(i + 1),
			Reason: ledger.ReasonTransferNoCycles,
		},
	}
}

func TestNewTransactionCompleted_Envelope(t *testing.T) {
	ev := events.NewTransactionCompleted("TOK", sampleEntry(3))
	if ev.ID == "" {
		t.Error("expected non-empty event ID")
	}
	if ev.Type != events.TypeTransactionCompleted {
		t.Errorf("type: got %q, want %q", ev.Type, events.TypeTransactionCompleted)
	}
	if ev.Entry == nil || ev.Entry.Index != 3 {
		t.Fatalf("entry: got %+v, want index 3", ev.Entry)
	}

	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	entry, ok := decoded["entry"].(map[string]any)
	if !ok {
		t.Fatalf("entry missing from JSON: %s", data)
	}
	if entry["index"] != float64(3) {
		t.Errorf("entry.index: got %v, want 3", entry["index"])
	}
	if entry["to"] != "bob" {
		t.Errorf("entry.to: got %v, want bob", entry["to"])
	}
}

func TestNewEvent_IDsAreUnique(t *testing.T) {
	a := events.NewEvent(events.TypeMinterAdded, "TOK", nil)
	b := events.NewEvent(events.TypeMinterAdded, "TOK", nil)
	if a.ID == b.ID {
		t.Errorf("expected distinct IDs, both %q", a.ID)
	}
}

func TestNoopPublisher(t *testing.T) {
	p := events.NewNoopPublisher(zap.NewNop())
	if err := p.Publish(context.Background(), events.NewEvent(events.TypeLedgerInitialized, "TOK", nil)); err != nil {
		t.Errorf("Publish: %v", err)
	}
}

func TestMulti_JoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	ok := &recordingPublisher{}
	bad := &recordingPublisher{err: boom}
	m := events.Multi{ok, bad}

	err := m.Publish(context.Background(), events.NewEvent(events.TypeApproval, "TOK", nil))
	if !errors.Is(err, boom) {
		t.Errorf("got %v, want wrapped boom", err)
	}
	if len(ok.got()) != 1 || len(bad.got()) != 1 {
		t.Errorf("every member should receive the event")
	}
}

func TestHub_DeliversToSubscribers(t *testing.T) {
	hub := events.NewHub(4, zap.NewNop())
	a := hub.Subscribe()
	b := hub.Subscribe()
	defer a.Close()
	defer b.Close()

	ev := events.NewTransactionCompleted("TOK", sampleEntry(0))
	if err := hub.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	for _, s := range []*events.Subscription{a, b} {
		select {
		case got := <-s.C:
			if got.ID != ev.ID {
				t.Errorf("got %q, want %q", got.ID, ev.ID)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestHub_DropsSlowSubscriber(t *testing.T) {
	hub := events.NewHub(1, zap.NewNop())
	s := hub.Subscribe()

	ctx := context.Background()
	_ = hub.Publish(ctx, events.NewTransactionCompleted("TOK", sampleEntry(0)))
	_ = hub.Publish(ctx, events.NewTransactionCompleted("TOK", sampleEntry(1)))

	if hub.Len() != 0 {
		t.Fatalf("Len: got %d, want 0 after drop", hub.Len())
	}
	if _, ok := <-s.C; !ok {
		t.Fatal("buffered event should still be readable")
	}
	if _, ok := <-s.C; ok {
		t.Error("channel should be closed after drop")
	}
	s.Close()
}

func TestHub_CloseIsIdempotent(t *testing.T) {
	hub := events.NewHub(1, zap.NewNop())
	s := hub.Subscribe()
	s.Close()
	s.Close()
	if hub.Len() != 0 {
		t.Errorf("Len: got %d, want 0", hub.Len())
	}
}

func TestDispatcher_PreservesOrder(t *testing.T) {
	next := &recordingPublisher{}
	d := events.NewDispatcher(next, 16, time.Second, zap.NewNop())
	d.Start()

	for i := 0; i < 10; i++ {
		if err := d.Publish(context.Background(), events.NewTransactionCompleted("TOK", sampleEntry(i))); err != nil {
			t.Fatalf("Publish %d: %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got := next.got()
	if len(got) != 10 {
		t.Fatalf("delivered: got %d, want 10", len(got))
	}
	for i, ev := range got {
		if ev.Entry.Index != i {
			t.Errorf("event %d: got index %d", i, ev.Entry.Index)
		}
	}
}

func TestDispatcher_QueueFull(t *testing.T) {
	next := &recordingPublisher{block: make(chan struct{})}
	d := events.NewDispatcher(next, 1, time.Second, zap.NewNop())
	// Not started: the queue only drains once Start is called.
	ctx := context.Background()
	if err := d.Publish(ctx, events.NewEvent(events.TypeApproval, "TOK", nil)); err != nil {
		t.Fatalf("first Publish: %v", err)
	}
	if err := d.Publish(ctx, events.NewEvent(events.TypeApproval, "TOK", nil)); !errors.Is(err, events.ErrQueueFull) {
		t.Errorf("got %v, want ErrQueueFull", err)
	}

	close(next.block)
	d.Start()
	closeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := d.Close(closeCtx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := d.Publish(ctx, events.NewEvent(events.TypeApproval, "TOK", nil)); err == nil {
		t.Error("expected error publishing after Close")
	}
}

func TestDispatcher_ResultFunc(t *testing.T) {
	boom := errors.New("broker down")
	next := &recordingPublisher{err: boom}
	d := events.NewDispatcher(next, 4, time.Second, zap.NewNop())

	var mu sync.Mutex
	var failures int
	d.SetResultFunc(func(_ events.Event, err error) {
		if err != nil {
			mu.Lock()
			failures++
			mu.Unlock()
		}
	})
	d.Start()
	_ = d.Publish(context.Background(), events.NewEvent(events.TypeApproval, "TOK", nil))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if failures != 1 {
		t.Errorf("failures: got %d, want 1", failures)
	}
}
