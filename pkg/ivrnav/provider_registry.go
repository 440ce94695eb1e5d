package ivrnav

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/voxhop/ivrnav/pkg/ai"
	"github.com/voxhop/ivrnav/pkg/configutil"
	"github.com/voxhop/ivrnav/pkg/history"
	aimock "github.com/voxhop/ivrnav/pkg/providers/mock"
	"github.com/voxhop/ivrnav/pkg/providers/openai"
	"github.com/voxhop/ivrnav/pkg/transports"
	transportmock "github.com/voxhop/ivrnav/pkg/transports/mock"
	"github.com/voxhop/ivrnav/pkg/transports/twilio"
)

type ReasonerFactory func(cfg Config) (ai.Reasoner, error)
type TransportFactory func(cfg Config) (transports.Transport, error)
type RecorderFactory func(cfg Config) (history.Recorder, error)

type ProviderRegistry struct {
	reasoners  map[string]ReasonerFactory
	transports map[string]TransportFactory
	recorders  map[string]RecorderFactory
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		reasoners:  make(map[string]ReasonerFactory),
		transports: make(map[string]TransportFactory),
		recorders:  make(map[string]RecorderFactory),
	}
}

// DefaultRegistry returns a registry with the built-in providers.
func DefaultRegistry() *ProviderRegistry {
	r := NewProviderRegistry()

	r.RegisterReasoner("openai", func(cfg Config) (ai.Reasoner, error) {
		if err := configutil.ValidateSettings(cfg.Reasoner.Settings, configutil.Schema{
			Required: []string{"api_key"},
			Optional: []string{
				"model", "base_url", "use_circuit_breaker",
				"circuit_threshold", "circuit_cooldown_ms",
				"max_retries", "retry_backoff_ms",
			},
		}); err != nil {
			return nil, fmt.Errorf("reasoner.settings: %w", err)
		}
		var oc openai.Config
		if err := configutil.DecodeSettings(cfg.Reasoner.Settings, &oc); err != nil {
			return nil, fmt.Errorf("reasoner.settings: %w", err)
		}
		return openai.NewReasoner(oc, slog.Default()), nil
	})
	r.RegisterReasoner("mock", func(Config) (ai.Reasoner, error) {
		return &aimock.Reasoner{}, nil
	})

	r.RegisterTransport("twilio", func(cfg Config) (transports.Transport, error) {
		var tc twilio.Config
		if err := configutil.DecodeSettings(cfg.Transports.Settings, &tc); err != nil {
			return nil, fmt.Errorf("transports.settings: %w", err)
		}
		return twilio.New(tc), nil
	})
	r.RegisterTransport("mock", func(Config) (transports.Transport, error) {
		return transportmock.New(), nil
	})

	r.RegisterRecorder("memory", func(Config) (history.Recorder, error) {
		return history.NewMemoryRecorder(), nil
	})
	r.RegisterRecorder("redis", func(cfg Config) (history.Recorder, error) {
		var rc history.RedisConfig
		if err := configutil.DecodeSettings(cfg.History.Settings, &rc); err != nil {
			return nil, fmt.Errorf("history.settings: %w", err)
		}
		if err := configutil.RequireString(rc.Addr, "history.settings.addr"); err != nil {
			return nil, err
		}
		return history.NewRedisRecorder(rc), nil
	})

	return r
}

func (r *ProviderRegistry) RegisterReasoner(name string, factory ReasonerFactory) {
	r.reasoners[strings.ToLower(strings.TrimSpace(name))] = factory
}

func (r *ProviderRegistry) RegisterTransport(name string, factory TransportFactory) {
	r.transports[strings.ToLower(strings.TrimSpace(name))] = factory
}

func (r *ProviderRegistry) RegisterRecorder(name string, factory RecorderFactory) {
	r.recorders[strings.ToLower(strings.TrimSpace(name))] = factory
}

func (r *ProviderRegistry) BuildReasoner(provider string, cfg Config) (ai.Reasoner, error) {
	fn := r.reasoners[strings.ToLower(strings.TrimSpace(provider))]
	if fn == nil {
		return nil, fmt.Errorf("reasoner provider not registered: %s", provider)
	}
	return fn(cfg)
}

func (r *ProviderRegistry) BuildTransport(provider string, cfg Config) (transports.Transport, error) {
	fn := r.transports[strings.ToLower(strings.TrimSpace(provider))]
	if fn == nil {
		return nil, fmt.Errorf("transport provider not registered: %s", provider)
	}
	return fn(cfg)
}

func (r *ProviderRegistry) BuildRecorder(provider string, cfg Config) (history.Recorder, error) {
	fn := r.recorders[strings.ToLower(strings.TrimSpace(provider))]
	if fn == nil {
		return nil, fmt.Errorf("history provider not registered: %s", provider)
	}
	return fn(cfg)
}
