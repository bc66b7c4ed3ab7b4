package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"helpdesk/internal/domain"
)

func TestMemoryStoreGetUnknownSession(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestMemoryStoreCreateOrGetIsStable(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first, err := store.CreateOrGet(ctx, "s1")
	if err != nil {
		t.Fatalf("CreateOrGet failed: %v", err)
	}
	if first.Phase != domain.PhaseNoIntent || first.TurnCount != 0 {
		t.Fatalf("fresh state = phase %s turns %d", first.Phase, first.TurnCount)
	}

	first.Intent = "fee_payment"
	first.TurnCount = 3
	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	again, err := store.CreateOrGet(ctx, "s1")
	if err != nil {
		t.Fatalf("CreateOrGet failed: %v", err)
	}
	if again.Intent != "fee_payment" || again.TurnCount != 3 {
		t.Fatalf("CreateOrGet lost saved state: %+v", again)
	}
}

func TestMemoryStoreClonesRecords(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	state, _ := store.CreateOrGet(ctx, "s1")
	state.Slots["fee_type"] = domain.SlotValue{Kind: domain.SlotText, Text: "library"}
	if err := store.Save(ctx, state); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Mutating the returned copy must not leak into the store.
	loaded, _ := store.Get(ctx, "s1")
	loaded.Slots["fee_type"] = domain.SlotValue{Kind: domain.SlotText, Text: "tuition"}

	again, _ := store.Get(ctx, "s1")
	if again.Slots["fee_type"].Text != "library" {
		t.Fatalf("store record mutated through returned copy")
	}
}

func TestMemoryStoreReset(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, err := store.CreateOrGet(ctx, "s1"); err != nil {
		t.Fatalf("CreateOrGet failed: %v", err)
	}
	if err := store.Reset(ctx, "s1"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if _, err := store.Get(ctx, "s1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err after reset = %v, want ErrSessionNotFound", err)
	}
}

func TestMemoryStoreExpireIdle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }

	stale, _ := store.CreateOrGet(ctx, "stale")
	stale.LastActiveAt = base.Add(-2 * time.Hour)
	if err := store.Save(ctx, stale); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	fresh, _ := store.CreateOrGet(ctx, "fresh")
	fresh.LastActiveAt = base.Add(-time.Minute)
	if err := store.Save(ctx, fresh); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	count, err := store.ExpireIdle(ctx, time.Hour)
	if err != nil {
		t.Fatalf("ExpireIdle failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expired = %d, want 1", count)
	}
	if _, err := store.Get(ctx, "stale"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("stale session still present")
	}
	if _, err := store.Get(ctx, "fresh"); err != nil {
		t.Fatalf("fresh session expired: %v", err)
	}
}

func TestMemoryStoreSessionIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				state, err := store.CreateOrGet(ctx, id)
				if err != nil {
					t.Errorf("CreateOrGet(%s) failed: %v", id, err)
					return
				}
				state.Slots["owner"] = domain.SlotValue{Kind: domain.SlotText, Text: id}
				state.TurnCount++
				if err := store.Save(ctx, state); err != nil {
					t.Errorf("Save(%s) failed: %v", id, err)
					return
				}
			}
		}(id)
	}
	wg.Wait()

	for _, id := range []string{"a", "b"} {
		state, err := store.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get(%s) failed: %v", id, err)
		}
		if state.Slots["owner"].Text != id {
			t.Fatalf("session %s observed foreign slots: %v", id, state.Slots)
		}
	}
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()

	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("s1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	if counter != 20 {
		t.Fatalf("counter = %d, want 20", counter)
	}
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	km := NewKeyedMutex()

	unlockA := km.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := km.Lock("b")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("lock on independent key blocked")
	}
}
