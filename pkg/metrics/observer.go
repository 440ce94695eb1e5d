package metrics

import "time"

// MetricsEvent is one observation emitted by the navigator or a transport.
type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

// CallEvent builds an event tagged with the call it belongs to.
func CallEvent(name, callID string, value float64) MetricsEvent {
	return MetricsEvent{
		Name:  name,
		Time:  time.Now(),
		Value: value,
		Tags:  map[string]string{"call_sid": callID},
	}
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type Flusher interface {
	Flush() error
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}
