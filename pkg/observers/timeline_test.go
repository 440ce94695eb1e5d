package observers

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/voxhop/ivrnav/pkg/metrics"
)

func TestTimelineObserverWritesJSONL(t *testing.T) {
	dir := t.TempDir()
	obs := NewTimelineObserver(dir)

	ev := metrics.CallEvent("route_latency_ms", "CA123", 42)
	ev.Tags["event"] = "speech"
	obs.RecordEvent(ev)
	_ = obs.Close()

	path := filepath.Join(dir, "CA123.jsonl")
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if !strings.Contains(string(b), "route_latency_ms") {
		t.Fatalf("expected route_latency_ms event in file")
	}
}

func TestTimelineObserverDropsUntaggedEvents(t *testing.T) {
	dir := t.TempDir()
	obs := NewTimelineObserver(dir)

	obs.RecordEvent(metrics.MetricsEvent{Name: "session_sweep", Time: time.Now()})
	_ = obs.Close()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no files, got %d", len(entries))
	}
}

func TestUsageObserverSummarizesCall(t *testing.T) {
	dir := t.TempDir()
	obs := NewUsageObserver(dir)

	route := metrics.CallEvent("route_latency_ms", "CA777", 30)
	obs.RecordEvent(route)
	obs.RecordEvent(metrics.CallEvent("route_latency_ms", "CA777", 20))
	obs.RecordEvent(metrics.CallEvent("digit_pressed", "CA777", 1))
	obs.RecordEvent(metrics.CallEvent("reply_latency_ms", "CA777", 800))
	if err := obs.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "CA777.usage.json"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	var sum UsageSummary
	if err := json.Unmarshal(b, &sum); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if sum.EventsRouted != 2 || sum.RouteTimeMS != 50 {
		t.Fatalf("unexpected route totals: %+v", sum)
	}
	if sum.DigitsPressed != 1 || sum.AIReplies != 1 || sum.AIReplyTimeMS != 800 {
		t.Fatalf("unexpected usage totals: %+v", sum)
	}
}
