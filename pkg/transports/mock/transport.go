// Package mock provides an in-memory transport for tests and local runs.
package mock

import (
	"context"
	"sync"

	"github.com/voxhop/ivrnav/pkg/directive"
	"github.com/voxhop/ivrnav/pkg/navigator"
	"github.com/voxhop/ivrnav/pkg/session"
	"github.com/voxhop/ivrnav/pkg/transports"
)

// Transport records what it is asked to do and lets tests feed events
// straight into the handler.
type Transport struct {
	mu      sync.Mutex
	handler transports.Handler
	started bool
	stopped bool

	DialedTo  []string
	DialedCfg []session.QueryConfig
	DTMFSent  []string
	DialSID   string
	DialErr   error
}

func New() *Transport { return &Transport{} }

func (t *Transport) Name() string { return "mock" }

func (t *Transport) SetHandler(h transports.Handler) {
	t.mu.Lock()
	t.handler = h
	t.mu.Unlock()
}

func (t *Transport) Start(context.Context) error {
	t.mu.Lock()
	t.started = true
	t.mu.Unlock()
	return nil
}

func (t *Transport) Stop() error {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
	return nil
}

func (t *Transport) Started() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started
}

func (t *Transport) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Deliver hands one event to the handler as a webhook would.
func (t *Transport) Deliver(ctx context.Context, ev navigator.Event) []directive.Directive {
	t.mu.Lock()
	h := t.handler
	t.mu.Unlock()
	if h == nil {
		return nil
	}
	return h(ctx, ev)
}

func (t *Transport) Dial(_ context.Context, to, _ string, cfg session.QueryConfig) (string, error) {
	t.mu.Lock()
	t.DialedTo = append(t.DialedTo, to)
	t.DialedCfg = append(t.DialedCfg, cfg)
	t.mu.Unlock()
	if t.DialErr != nil {
		return "", t.DialErr
	}
	if t.DialSID != "" {
		return t.DialSID, nil
	}
	return "CA-mock", nil
}

func (t *Transport) SendDTMF(_ context.Context, _, digits string) error {
	t.mu.Lock()
	t.DTMFSent = append(t.DTMFSent, digits)
	t.mu.Unlock()
	return nil
}

var (
	_ transports.Transport      = (*Transport)(nil)
	_ transports.OutboundDialer = (*Transport)(nil)
	_ transports.DTMFSender     = (*Transport)(nil)
)
