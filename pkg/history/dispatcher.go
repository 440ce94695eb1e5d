package history

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxhop/ivrnav/pkg/errorsx"
	"github.com/voxhop/ivrnav/pkg/menu"
)

// Dispatcher makes a Recorder fire-and-forget: every write is queued to a
// background worker, enqueue never blocks, and failures are logged with a
// reason code instead of propagating. Reads pass straight through.
type Dispatcher struct {
	inner   Recorder
	log     *slog.Logger
	ch      chan func(context.Context)
	timeout time.Duration
	dropped int64
	mu      sync.RWMutex
	closed  bool
	once    sync.Once
	done    chan struct{}
}

func NewDispatcher(inner Recorder, buffer int, log *slog.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	if log == nil {
		log = slog.Default()
	}
	d := &Dispatcher{
		inner:   inner,
		log:     log,
		ch:      make(chan func(context.Context), buffer),
		timeout: 5 * time.Second,
		done:    make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *Dispatcher) StartCall(rec CallRecord) {
	d.enqueue(func(ctx context.Context) {
		d.report(d.inner.StartCall(ctx, rec), rec.CallID, "start_call")
	})
}

func (d *Dispatcher) AddConversation(callID, role, text string) {
	d.enqueue(func(ctx context.Context) {
		d.report(d.inner.AddConversation(ctx, callID, role, text), callID, "add_conversation")
	})
}

func (d *Dispatcher) AddDTMF(callID, digits, reason string) {
	d.enqueue(func(ctx context.Context) {
		d.report(d.inner.AddDTMF(ctx, callID, digits, reason), callID, "add_dtmf")
	})
}

func (d *Dispatcher) AddIVRMenu(callID string, options []menu.Option) {
	d.enqueue(func(ctx context.Context) {
		d.report(d.inner.AddIVRMenu(ctx, callID, options), callID, "add_ivr_menu")
	})
}

func (d *Dispatcher) AddTransfer(callID, destination string) {
	d.enqueue(func(ctx context.Context) {
		d.report(d.inner.AddTransfer(ctx, callID, destination), callID, "add_transfer")
	})
}

func (d *Dispatcher) AddTermination(callID, reason string) {
	d.enqueue(func(ctx context.Context) {
		d.report(d.inner.AddTermination(ctx, callID, reason), callID, "add_termination")
	})
}

func (d *Dispatcher) EndCall(callID, status string) {
	d.enqueue(func(ctx context.Context) {
		d.report(d.inner.EndCall(ctx, callID, status), callID, "end_call")
	})
}

// GetCall reads synchronously; only writes are deferred.
func (d *Dispatcher) GetCall(ctx context.Context, callID string) (CallRecord, error) {
	return d.inner.GetCall(ctx, callID)
}

func (d *Dispatcher) GetRecentCalls(ctx context.Context, limit int) ([]CallRecord, error) {
	return d.inner.GetRecentCalls(ctx, limit)
}

// Dropped returns how many writes were discarded because the queue was full.
func (d *Dispatcher) Dropped() int64 {
	return atomic.LoadInt64(&d.dropped)
}

// Close stops accepting writes and waits for the queue to drain.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		// The write lock excludes in-flight enqueues, so the channel is
		// never closed under a pending send.
		d.mu.Lock()
		d.closed = true
		close(d.ch)
		d.mu.Unlock()
		<-d.done
	})
}

func (d *Dispatcher) enqueue(fn func(context.Context)) {
	if d == nil {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.ch <- fn:
	default:
		atomic.AddInt64(&d.dropped, 1)
	}
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for fn := range d.ch {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		fn(ctx)
		cancel()
	}
}

func (d *Dispatcher) report(err error, callID, op string) {
	if err == nil {
		return
	}
	err = errorsx.Wrap(err, errorsx.ReasonHistoryWrite)
	d.log.Warn("history_write_failed",
		"op", op,
		"call_sid", callID,
		"reason_code", string(errorsx.Reason(err)),
		"error", err.Error(),
	)
}
