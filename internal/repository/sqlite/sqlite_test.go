package sqlite

import (
	"context"
	"sync"
	"testing"
)

func TestMemoryDB_ConcurrentReadersShareOneDatabase(t *testing.T) {
	db := newTestDB(t)
	store := db.Profiles()
	p := createTestProfile(t, store, "300000000000000001")

	if got := db.conn.Stats().MaxOpenConnections; got != 1 {
		t.Fatalf("expected a single pooled connection, got %d", got)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.GetByID(context.Background(), p.ID); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent read failed: %v", err)
	}
}

func TestPingContext(t *testing.T) {
	db := newTestDB(t)
	if err := db.PingContext(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
