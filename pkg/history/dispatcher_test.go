package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/voxhop/ivrnav/pkg/menu"
)

type failingRecorder struct {
	MemoryRecorder
	fail bool
}

func (f *failingRecorder) AddConversation(ctx context.Context, callID, role, text string) error {
	if f.fail {
		return errors.New("backend down")
	}
	return f.MemoryRecorder.AddConversation(ctx, callID, role, text)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func TestDispatcherWritesReachRecorder(t *testing.T) {
	rec := NewMemoryRecorder()
	d := NewDispatcher(rec, 16, nil)
	defer d.Close()

	d.StartCall(CallRecord{CallID: "CA1", Purpose: "support"})
	d.AddIVRMenu("CA1", []menu.Option{{Digit: "1", Label: "sales"}})
	d.AddDTMF("CA1", "1", "purpose match")
	d.EndCall("CA1", "completed")

	waitFor(t, func() bool {
		got, err := rec.GetCall(context.Background(), "CA1")
		return err == nil && got.Status == "completed" && len(got.Events) == 2
	})
}

func TestDispatcherEnqueueNeverBlocks(t *testing.T) {
	rec := NewMemoryRecorder()
	d := NewDispatcher(rec, 1, nil)
	defer d.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			d.AddConversation("CA1", "caller", "hello")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("enqueue blocked the caller")
	}
}

func TestDispatcherToleratesFailures(t *testing.T) {
	rec := &failingRecorder{fail: true}
	rec.records = map[string]*CallRecord{}
	rec.now = time.Now
	d := NewDispatcher(rec, 16, nil)

	d.AddConversation("CA1", "caller", "hello")
	d.Close()
	// A failing backend must not panic or surface an error to the caller.
}

func TestMemoryRecorderRecentCalls(t *testing.T) {
	rec := NewMemoryRecorder()
	ctx := context.Background()
	for _, id := range []string{"CA1", "CA2", "CA3"} {
		if err := rec.StartCall(ctx, CallRecord{CallID: id}); err != nil {
			t.Fatalf("start call: %v", err)
		}
	}
	recent, err := rec.GetRecentCalls(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 || recent[0].CallID != "CA3" || recent[1].CallID != "CA2" {
		t.Fatalf("unexpected recent order: %+v", recent)
	}
}

func TestDispatcherCloseDuringWrites(t *testing.T) {
	rec := NewMemoryRecorder()
	if err := rec.StartCall(context.Background(), CallRecord{CallID: "CA1"}); err != nil {
		t.Fatalf("start call: %v", err)
	}
	d := NewDispatcher(rec, 4, nil)

	// Webhooks can still be enqueueing while the drainer runs; Close must
	// neither panic nor deliver writes that arrive after it.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					d.AddConversation("CA1", "callee", "hello")
				}
			}
		}()
	}

	time.Sleep(10 * time.Millisecond)
	d.Close()
	close(stop)
	wg.Wait()

	before, _ := rec.GetCall(context.Background(), "CA1")
	d.AddConversation("CA1", "callee", "late")
	after, _ := rec.GetCall(context.Background(), "CA1")
	if len(after.Events) != len(before.Events) {
		t.Fatal("write after close reached recorder")
	}
}
