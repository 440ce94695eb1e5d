// Package openai implements the ai.Reasoner contract on top of the
// OpenAI chat completions API.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/voxhop/ivrnav/pkg/ai"
	"github.com/voxhop/ivrnav/pkg/errorsx"
	"github.com/voxhop/ivrnav/pkg/resilience"
)

const digitSystemPrompt = "You navigate automated phone menus on behalf of a caller. " +
	"You answer strictly in the requested JSON shape and never invent digits " +
	"that were not offered."

const replySystemPrompt = "You speak on behalf of a caller trying to reach a human. " +
	"Keep replies to one short spoken sentence. Never mention being automated."

type Config struct {
	APIKey            string `mapstructure:"api_key"`
	Model             string `mapstructure:"model"`
	BaseURL           string `mapstructure:"base_url"`
	UseCircuitBreaker *bool  `mapstructure:"use_circuit_breaker"`
	CircuitThreshold  int    `mapstructure:"circuit_threshold"`
	CircuitCooldownMs int    `mapstructure:"circuit_cooldown_ms"`
	MaxRetries        int    `mapstructure:"max_retries"`
	RetryBackoffMs    int    `mapstructure:"retry_backoff_ms"`
}

type chatClient interface {
	CreateChatCompletion(ctx context.Context, req goopenai.ChatCompletionRequest) (goopenai.ChatCompletionResponse, error)
}

// Reasoner calls OpenAI chat completions with a retry policy and a rate
// limit circuit breaker. Every error reaching the caller carries an
// errorsx reason so the navigator can treat it as "no confident answer".
type Reasoner struct {
	client  chatClient
	model   string
	retry   resilience.RetryPolicy
	breaker *resilience.CircuitBreaker
	log     *slog.Logger
}

func NewReasoner(cfg Config, log *slog.Logger) *Reasoner {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Model == "" {
		cfg.Model = goopenai.GPT4oMini
	}
	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	r := &Reasoner{
		client: goopenai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		retry:  resilience.NewRetryPolicy(cfg.MaxRetries, time.Duration(cfg.RetryBackoffMs)*time.Millisecond),
		log:    log,
	}
	if cfg.UseCircuitBreaker == nil || *cfg.UseCircuitBreaker {
		r.breaker = resilience.NewCircuitBreaker(cfg.CircuitThreshold, time.Duration(cfg.CircuitCooldownMs)*time.Millisecond)
	}
	return r
}

func (r *Reasoner) Name() string { return "openai" }

func (r *Reasoner) DecideDigit(ctx context.Context, req ai.DigitRequest) (ai.DigitDecision, error) {
	raw, err := r.complete(ctx, digitSystemPrompt, ai.BuildDigitPrompt(req), true)
	if err != nil {
		return ai.DigitDecision{}, errorsx.Wrap(err, errorsx.ReasonAIDecide)
	}
	var decision ai.DigitDecision
	if err := json.Unmarshal([]byte(raw), &decision); err != nil {
		return ai.DigitDecision{}, errorsx.Wrap(err, errorsx.ReasonAIDecide)
	}
	if decision.ShouldPress && strings.TrimSpace(decision.Digit) == "" {
		decision.ShouldPress = false
	}
	return decision, nil
}

func (r *Reasoner) GenerateReply(ctx context.Context, req ai.ReplyRequest) (string, error) {
	raw, err := r.complete(ctx, replySystemPrompt, ai.BuildReplyPrompt(req), false)
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonAIReply)
	}
	return strings.TrimSpace(raw), nil
}

func (r *Reasoner) ValidateTransfer(ctx context.Context, transcript string) (bool, error) {
	raw, err := r.complete(ctx, digitSystemPrompt, ai.BuildTransferPrompt(transcript), false)
	if err != nil {
		return false, errorsx.Wrap(err, errorsx.ReasonAIValidate)
	}
	answer := strings.ToLower(strings.TrimSpace(raw))
	return strings.HasPrefix(answer, "yes"), nil
}

func (r *Reasoner) complete(ctx context.Context, system, user string, jsonMode bool) (string, error) {
	if r.breaker != nil && !r.breaker.Allow() {
		return "", errorsx.Wrap(resilience.ErrCircuitOpen, errorsx.ReasonAICircuitOpen)
	}
	req := goopenai.ChatCompletionRequest{
		Model: r.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: system},
			{Role: goopenai.ChatMessageRoleUser, Content: user},
		},
	}
	if jsonMode {
		req.ResponseFormat = &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	var content string
	err := r.retry.Do(ctx, func() error {
		resp, err := r.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return normalizeErr(err)
		}
		if len(resp.Choices) == 0 {
			return errors.New("no choices")
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if r.breaker != nil {
		if err != nil {
			r.breaker.OnError(err)
		} else {
			r.breaker.OnSuccess()
		}
	}
	if err != nil {
		return "", err
	}
	return content, nil
}

func normalizeErr(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return resilience.RateLimitError{Provider: "openai", Message: apiErr.Message}
	}
	return err
}
