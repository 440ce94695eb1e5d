package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxhop/ivrnav/pkg/menu"
)

// MemoryRecorder keeps call records in memory. It backs tests and local
// runs without a Redis instance.
type MemoryRecorder struct {
	mu      sync.Mutex
	records map[string]*CallRecord
	order   []string
	now     func() time.Time
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{
		records: make(map[string]*CallRecord),
		now:     time.Now,
	}
}

func (m *MemoryRecorder) StartCall(_ context.Context, rec CallRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.StartedAt.IsZero() {
		rec.StartedAt = m.now()
	}
	if rec.Status == "" {
		rec.Status = "in-progress"
	}
	if _, ok := m.records[rec.CallID]; !ok {
		m.order = append(m.order, rec.CallID)
	}
	m.records[rec.CallID] = &rec
	return nil
}

func (m *MemoryRecorder) AddConversation(_ context.Context, callID, role, text string) error {
	return m.appendEvent(callID, CallEvent{Kind: EventConversation, Role: role, Text: text})
}

func (m *MemoryRecorder) AddDTMF(_ context.Context, callID, digits, reason string) error {
	return m.appendEvent(callID, CallEvent{Kind: EventDTMF, Digits: digits, Reason: reason})
}

func (m *MemoryRecorder) AddIVRMenu(_ context.Context, callID string, options []menu.Option) error {
	return m.appendEvent(callID, CallEvent{Kind: EventIVRMenu, Options: options})
}

func (m *MemoryRecorder) AddTransfer(_ context.Context, callID, destination string) error {
	return m.appendEvent(callID, CallEvent{Kind: EventTransfer, Destination: destination})
}

func (m *MemoryRecorder) AddTermination(_ context.Context, callID, reason string) error {
	return m.appendEvent(callID, CallEvent{Kind: EventTermination, Reason: reason})
}

func (m *MemoryRecorder) EndCall(_ context.Context, callID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[callID]
	if !ok {
		return ErrNotFound
	}
	rec.Status = status
	rec.EndedAt = m.now()
	return nil
}

func (m *MemoryRecorder) GetCall(_ context.Context, callID string) (CallRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[callID]
	if !ok {
		return CallRecord{}, ErrNotFound
	}
	return *rec, nil
}

func (m *MemoryRecorder) GetRecentCalls(_ context.Context, limit int) ([]CallRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.order) {
		limit = len(m.order)
	}
	out := make([]CallRecord, 0, limit)
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		if rec, ok := m.records[m.order[i]]; ok {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (m *MemoryRecorder) appendEvent(callID string, ev CallEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[callID]
	if !ok {
		return ErrNotFound
	}
	ev.ID = uuid.NewString()
	ev.At = m.now()
	rec.Events = append(rec.Events, ev)
	return nil
}

var _ Recorder = (*MemoryRecorder)(nil)
