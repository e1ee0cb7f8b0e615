package facesession

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryConsumeOnce(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	issued := time.Now()

	if err := store.Issue(ctx, "sess-1", issued); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	at, ok, err := store.Consume(ctx, "sess-1")
	if err != nil || !ok {
		t.Fatalf("first consume: ok=%v err=%v", ok, err)
	}
	if !at.Equal(issued) {
		t.Errorf("issuedAt = %v, want %v", at, issued)
	}

	_, ok, err = store.Consume(ctx, "sess-1")
	if err != nil {
		t.Fatalf("second consume: %v", err)
	}
	if ok {
		t.Error("assertion must be gone after one consume")
	}
}

func TestMemoryConsumeAbsent(t *testing.T) {
	store := NewMemory()
	_, ok, err := store.Consume(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if ok {
		t.Error("consume of an absent session must report ok=false")
	}
}

func TestMemoryReissueReplaces(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	first := time.Now().Add(-10 * time.Minute)
	second := time.Now()

	_ = store.Issue(ctx, "sess-1", first)
	_ = store.Issue(ctx, "sess-1", second)

	at, ok, _ := store.Consume(ctx, "sess-1")
	if !ok || !at.Equal(second) {
		t.Errorf("reissue should replace: got %v ok=%v, want %v", at, ok, second)
	}
}

func TestMemoryConcurrentConsumeSingleWinner(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	_ = store.Issue(ctx, "sess-1", time.Now())

	const n = 16
	var wg sync.WaitGroup
	wins := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, _ := store.Consume(ctx, "sess-1"); ok {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	if count != 1 {
		t.Errorf("%d consumers won, want exactly 1", count)
	}
}
