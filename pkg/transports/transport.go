// Package transports defines the vendor-agnostic telephony boundary. A
// transport turns provider webhooks into call events, hands them to the
// handler, and executes the returned directives on the wire.
package transports

import (
	"context"

	"github.com/voxhop/ivrnav/pkg/directive"
	"github.com/voxhop/ivrnav/pkg/navigator"
	"github.com/voxhop/ivrnav/pkg/session"
)

// Handler routes one call event and returns the directives to execute.
// Transports call it once per webhook; events for the same call arrive
// sequentially.
type Handler func(ctx context.Context, ev navigator.Event) []directive.Directive

// Transport is a telephony adapter. SetHandler must be called before
// Start; implementations own their network lifecycle.
type Transport interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	SetHandler(Handler)
}

// OutboundDialer places outbound calls. The per-call config travels with
// the dial so the answer webhook can recover it.
type OutboundDialer interface {
	Dial(ctx context.Context, to, from string, cfg session.QueryConfig) (callID string, err error)
}

// DTMFSender sends digits on an active call outside the webhook cycle.
type DTMFSender interface {
	SendDTMF(ctx context.Context, callID, digits string) error
}

// ReadyReporter allows transports to expose readiness metadata (e.g.,
// webhook URLs). Implementations are optional and used for informational
// logging only.
type ReadyReporter interface {
	ReadyFields() map[string]any
}
