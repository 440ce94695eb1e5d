package history

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/voxhop/ivrnav/pkg/menu"
)

func newTestRedisRecorder(t *testing.T) *RedisRecorder {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	return NewRedisRecorderWithClient(RedisConfig{RecentLimit: 3}, client)
}

func TestRedisRecorderRoundTrip(t *testing.T) {
	rec := newTestRedisRecorder(t)
	ctx := context.Background()

	if err := rec.StartCall(ctx, CallRecord{CallID: "CA1", To: "+100", Purpose: "support"}); err != nil {
		t.Fatalf("start call: %v", err)
	}
	if err := rec.AddIVRMenu(ctx, "CA1", []menu.Option{{Digit: "2", Label: "support"}}); err != nil {
		t.Fatalf("add menu: %v", err)
	}
	if err := rec.AddDTMF(ctx, "CA1", "2", "matched purpose"); err != nil {
		t.Fatalf("add dtmf: %v", err)
	}
	if err := rec.EndCall(ctx, "CA1", "completed"); err != nil {
		t.Fatalf("end call: %v", err)
	}

	got, err := rec.GetCall(ctx, "CA1")
	if err != nil {
		t.Fatalf("get call: %v", err)
	}
	if got.Status != "completed" || len(got.Events) != 2 {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.Events[0].Kind != EventIVRMenu || got.Events[1].Digits != "2" {
		t.Fatalf("unexpected events: %+v", got.Events)
	}
}

func TestRedisRecorderRecentCapped(t *testing.T) {
	rec := newTestRedisRecorder(t)
	ctx := context.Background()
	for _, id := range []string{"CA1", "CA2", "CA3", "CA4"} {
		if err := rec.StartCall(ctx, CallRecord{CallID: id}); err != nil {
			t.Fatalf("start call: %v", err)
		}
	}
	recent, err := rec.GetRecentCalls(ctx, 0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 3 || recent[0].CallID != "CA4" {
		t.Fatalf("unexpected recent list: %+v", recent)
	}
}

func TestRedisRecorderNotFound(t *testing.T) {
	rec := newTestRedisRecorder(t)
	if _, err := rec.GetCall(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := rec.AddConversation(context.Background(), "nope", "caller", "hi"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on append, got %v", err)
	}
}
