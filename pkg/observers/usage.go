package observers

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/voxhop/ivrnav/pkg/metrics"
)

// UsageSummary totals what a single call consumed.
type UsageSummary struct {
	CallSID       string  `json:"call_sid"`
	EventsRouted  int     `json:"events_routed"`
	RouteTimeMS   float64 `json:"route_time_ms"`
	DigitsPressed int     `json:"digits_pressed"`
	AIReplies     int     `json:"ai_replies"`
	AIReplyTimeMS float64 `json:"ai_reply_time_ms"`
	RecordedAtUTC string  `json:"recorded_at_utc"`
}

// UsageObserver accumulates per-call usage and writes one summary file per
// call on Close.
type UsageObserver struct {
	dir   string
	mu    sync.Mutex
	stats map[string]*UsageSummary
}

func NewUsageObserver(dir string) *UsageObserver {
	return &UsageObserver{dir: dir, stats: make(map[string]*UsageSummary)}
}

func (o *UsageObserver) RecordEvent(ev metrics.MetricsEvent) {
	if strings.TrimSpace(o.dir) == "" {
		return
	}
	callSID := ""
	if ev.Tags != nil {
		callSID = ev.Tags["call_sid"]
	}
	if callSID == "" {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	stat := o.stats[callSID]
	if stat == nil {
		stat = &UsageSummary{CallSID: callSID}
		o.stats[callSID] = stat
	}
	switch ev.Name {
	case "route_latency_ms":
		stat.EventsRouted++
		stat.RouteTimeMS += ev.Value
	case "digit_pressed":
		stat.DigitsPressed++
	case "reply_latency_ms":
		stat.AIReplies++
		stat.AIReplyTimeMS += ev.Value
	}
}

func (o *UsageObserver) Close() error {
	if strings.TrimSpace(o.dir) == "" {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return err
	}
	var errOut error
	for id, stat := range o.stats {
		stat.RecordedAtUTC = time.Now().UTC().Format(time.RFC3339)
		b, err := json.MarshalIndent(stat, "", "  ")
		if err != nil {
			errOut = errors.Join(errOut, err)
			continue
		}
		path := filepath.Join(o.dir, sanitizeID(id)+".usage.json")
		if err := os.WriteFile(path, b, 0o644); err != nil {
			errOut = errors.Join(errOut, err)
		}
	}
	return errOut
}

var _ metrics.Observer = (*UsageObserver)(nil)
