package session

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestGetOrCreateIsLazyAndUnique(t *testing.T) {
	s := NewStore(StoreConfig{}, nil)
	first, created := s.GetOrCreate("CA1")
	if !created {
		t.Fatalf("expected session to be created on first event")
	}
	again, created := s.GetOrCreate("CA1")
	if created {
		t.Fatalf("expected existing session on second event")
	}
	if first != again {
		t.Fatalf("expected exactly one session per call id")
	}
}

func TestUpdateCreatesWhenMissing(t *testing.T) {
	s := NewStore(StoreConfig{}, nil)
	s.Update("CA2", func(sess *CallSession) {
		sess.Config.Purpose = "support"
	})
	sess, ok := s.Get("CA2")
	if !ok || sess.Config.Purpose != "support" {
		t.Fatalf("expected update to create and mutate session")
	}
}

func TestSweepEvictsIdleSessions(t *testing.T) {
	s := NewStore(StoreConfig{TTL: time.Hour}, nil)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	s.GetOrCreate("CA-old")

	s.now = func() time.Time { return base.Add(30 * time.Minute) }
	s.GetOrCreate("CA-fresh")

	// The old session never produced a terminal event; the sweep must
	// still reclaim it once past the TTL.
	evicted := s.Sweep(base.Add(90 * time.Minute))
	if evicted != 1 {
		t.Fatalf("expected 1 eviction, got %d", evicted)
	}
	if _, ok := s.Get("CA-old"); ok {
		t.Fatalf("expected idle session evicted")
	}
	if _, ok := s.Get("CA-fresh"); !ok {
		t.Fatalf("expected fresh session kept")
	}
}

func TestStoreConcurrentAccess(t *testing.T) {
	s := NewStore(StoreConfig{}, nil)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("CA%d", i%4)
			for j := 0; j < 100; j++ {
				s.Update(id, func(sess *CallSession) {
					sess.MenuLevel++
				})
				s.GetOrCreate(id)
				if j%10 == 0 {
					s.Delete(id)
				}
			}
		}(i)
	}
	wg.Wait()
}

func TestAppendTurnRingBuffer(t *testing.T) {
	sess := &CallSession{}
	at := time.Now()
	for i := 0; i < ConversationCapacity+5; i++ {
		sess.AppendTurn("caller", fmt.Sprintf("turn %d", i), at)
	}
	if len(sess.ConversationHistory) != ConversationCapacity {
		t.Fatalf("expected history capped at %d, got %d", ConversationCapacity, len(sess.ConversationHistory))
	}
	if sess.ConversationHistory[0].Text != "turn 5" {
		t.Fatalf("expected oldest entries evicted, first is %q", sess.ConversationHistory[0].Text)
	}
}
