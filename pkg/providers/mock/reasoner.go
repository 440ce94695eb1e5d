// Package mock provides scripted providers for tests and local runs.
package mock

import (
	"context"
	"sync"

	"github.com/voxhop/ivrnav/pkg/ai"
)

// Reasoner returns scripted answers and records every request it saw.
// The zero value declines digits, validates transfers, and stays silent.
type Reasoner struct {
	mu sync.Mutex

	Decision    ai.DigitDecision
	DecideErr   error
	Reply       string
	ReplyErr    error
	Validate    bool
	ValidateSet bool
	ValidateErr error

	DigitRequests    []ai.DigitRequest
	ReplyRequests    []ai.ReplyRequest
	ValidatedTexts   []string
	BlockUntilCancel bool
}

func (m *Reasoner) Name() string { return "mock" }

func (m *Reasoner) DecideDigit(ctx context.Context, req ai.DigitRequest) (ai.DigitDecision, error) {
	m.mu.Lock()
	m.DigitRequests = append(m.DigitRequests, req)
	m.mu.Unlock()
	if m.BlockUntilCancel {
		<-ctx.Done()
		return ai.DigitDecision{}, ctx.Err()
	}
	return m.Decision, m.DecideErr
}

func (m *Reasoner) GenerateReply(ctx context.Context, req ai.ReplyRequest) (string, error) {
	m.mu.Lock()
	m.ReplyRequests = append(m.ReplyRequests, req)
	m.mu.Unlock()
	if m.BlockUntilCancel {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return m.Reply, m.ReplyErr
}

func (m *Reasoner) ValidateTransfer(ctx context.Context, transcript string) (bool, error) {
	m.mu.Lock()
	m.ValidatedTexts = append(m.ValidatedTexts, transcript)
	m.mu.Unlock()
	if m.BlockUntilCancel {
		<-ctx.Done()
		return false, ctx.Err()
	}
	if m.ValidateErr != nil {
		return false, m.ValidateErr
	}
	if !m.ValidateSet {
		return true, nil
	}
	return m.Validate, nil
}

// DigitCalls returns how many digit decisions were requested.
func (m *Reasoner) DigitCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.DigitRequests)
}

var _ ai.Reasoner = (*Reasoner)(nil)
