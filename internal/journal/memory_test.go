package journal

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestMemoryStoreAppendAndRecent(t *testing.T) {
	store := NewMemoryStore(10)
	for i := 0; i < 3; i++ {
		record := Record{
			ID:         fmt.Sprintf("r%d", i),
			AgentID:    1,
			Strategy:   "trading",
			Executed:   true,
			PnLWei:     "0",
			CapitalWei: "0",
			RecordedAt: time.Now(),
		}
		if err := store.Append(context.Background(), record); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	recent, err := store.Recent(context.Background(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recent))
	}
	if recent[0].ID != "r2" || recent[1].ID != "r1" {
		t.Fatalf("records must be newest first: %+v", recent)
	}
}

func TestMemoryStoreEvictsOldest(t *testing.T) {
	store := NewMemoryStore(5)
	for i := 0; i < 8; i++ {
		record := Record{ID: fmt.Sprintf("r%d", i)}
		if err := store.Append(context.Background(), record); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	recent, err := store.Recent(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recent) != 5 {
		t.Fatalf("ring must cap at 5, got %d", len(recent))
	}
	if recent[0].ID != "r7" || recent[4].ID != "r3" {
		t.Fatalf("unexpected retention window: %+v", recent)
	}
}
