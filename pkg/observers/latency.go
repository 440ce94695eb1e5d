package observers

import (
	"log/slog"
	"sync"
	"time"

	"github.com/voxhop/ivrnav/pkg/metrics"
)

// RouteLatencyObserver watches per-call routing latency. Every webhook
// answer has a hard deadline on the provider side, so any route that
// takes longer than the budget is logged at warn with its breakdown.
type RouteLatencyObserver struct {
	mu     sync.Mutex
	budget time.Duration
	log    *slog.Logger
	worst  map[string]float64
}

func NewRouteLatencyObserver(budget time.Duration, log *slog.Logger) *RouteLatencyObserver {
	if budget <= 0 {
		budget = 12 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &RouteLatencyObserver{
		budget: budget,
		log:    log,
		worst:  make(map[string]float64),
	}
}

func (o *RouteLatencyObserver) RecordEvent(ev metrics.MetricsEvent) {
	if ev.Name != "route_latency_ms" {
		return
	}
	callID := ""
	if ev.Tags != nil {
		callID = ev.Tags["call_sid"]
	}
	o.mu.Lock()
	if ev.Value > o.worst[callID] {
		o.worst[callID] = ev.Value
	}
	o.mu.Unlock()
	if time.Duration(ev.Value)*time.Millisecond > o.budget {
		o.log.Warn("route_latency_over_budget",
			"call_sid", callID,
			"latency_ms", ev.Value,
			"budget_ms", o.budget.Milliseconds(),
		)
	}
}

// Worst returns the slowest observed route for a call, in milliseconds.
func (o *RouteLatencyObserver) Worst(callID string) float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.worst[callID]
}
