package cache

import (
	"errors"
	"testing"
)

func openTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := OpenBadger("") // in-memory
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBadgerSetGet(t *testing.T) {
	store := openTestStore(t)

	if err := store.Set("points/ledger", `{"total_points":10}`); err != nil {
		t.Fatalf("set: %v", err)
	}
	value, err := store.Get("points/ledger")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if value != `{"total_points":10}` {
		t.Fatalf("value = %q", value)
	}
}

func TestBadgerGetMissingKey(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBadgerRemove(t *testing.T) {
	store := openTestStore(t)
	if err := store.Set("k", "v"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Remove("k"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := store.Get("k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("removed key should be gone, got %v", err)
	}

	// Removing an absent key is not an error.
	if err := store.Remove("k"); err != nil {
		t.Fatalf("double remove: %v", err)
	}
}

func TestBadgerAdapterEndToEnd(t *testing.T) {
	store := openTestStore(t)
	adapter := NewAdapter(store, nil)

	if err := adapter.Save(10, nil); err != nil {
		t.Fatalf("save: %v", err)
	}
	total, _, ok := adapter.Load()
	if !ok || total != 10 {
		t.Fatalf("load = (%d, %v)", total, ok)
	}
	if err := adapter.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, _, ok := adapter.Load(); ok {
		t.Fatalf("slot should be empty after clear")
	}
}
