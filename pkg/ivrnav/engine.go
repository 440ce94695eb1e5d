package ivrnav

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voxhop/ivrnav/pkg/ai"
	"github.com/voxhop/ivrnav/pkg/history"
	"github.com/voxhop/ivrnav/pkg/logging"
	"github.com/voxhop/ivrnav/pkg/metrics"
	"github.com/voxhop/ivrnav/pkg/navigator"
	"github.com/voxhop/ivrnav/pkg/observers"
	"github.com/voxhop/ivrnav/pkg/redact"
	"github.com/voxhop/ivrnav/pkg/runner"
	"github.com/voxhop/ivrnav/pkg/session"
	"github.com/voxhop/ivrnav/pkg/transports"
)

// Engine owns the wired component graph for one running service.
type Engine struct {
	cfg        Config
	store      *session.Store
	router     *navigator.Router
	reasoner   ai.Reasoner
	dispatcher *history.Dispatcher
	transport  transports.Transport
	asyncObs   *metrics.AsyncObserver
	runner     *runner.LifecycleRunner
}

// EngineOptions configures NewEngine. Transport, Reasoner, and Recorder
// override the registry-built providers when set; tests use them to
// inject doubles.
type EngineOptions struct {
	Config    Config
	Providers *ProviderRegistry
	Transport transports.Transport
	Reasoner  ai.Reasoner
	Recorder  history.Recorder
}

func NewEngine(opts EngineOptions) (*Engine, error) {
	cfg := opts.Config
	logging.SetDefaultLogger(cfg.LogLevel, cfg.LogFormat)
	redact.SetEnabled(cfg.Privacy.RedactPII)

	slog.Info("ivrnav_init",
		"environment", cfg.Environment,
		"reasoner_provider", cfg.Reasoner.Provider,
		"transport", cfg.Transports.Provider,
		"history", cfg.History.Provider,
	)

	providers := opts.Providers
	if providers == nil {
		providers = DefaultRegistry()
	}

	reasoner := opts.Reasoner
	if reasoner == nil {
		var err error
		reasoner, err = providers.BuildReasoner(cfg.Reasoner.Provider, cfg)
		if err != nil {
			return nil, err
		}
	}

	recorder := opts.Recorder
	if recorder == nil {
		var err error
		recorder, err = providers.BuildRecorder(cfg.History.Provider, cfg)
		if err != nil {
			return nil, err
		}
	}

	transport := opts.Transport
	if transport == nil {
		var err error
		transport, err = providers.BuildTransport(cfg.Transports.Provider, cfg)
		if err != nil {
			return nil, err
		}
	}

	obsCfg := cfg.Observability
	budget := time.Duration(obsCfg.RouteBudgetMS) * time.Millisecond
	obsList := []metrics.Observer{
		metrics.NewSamplingObserver(observers.NewLoggerObserver(slog.Default()), obsCfg.LogSampleRate),
		observers.NewRouteLatencyObserver(budget, slog.Default()),
	}
	var metricsFile *os.File
	if obsCfg.MetricsFile != "" {
		f, err := os.OpenFile(obsCfg.MetricsFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open metrics file: %w", err)
		}
		metricsFile = f
		obsList = append(obsList, metrics.NewJSONLObserver(f))
	}
	var timelineObs *observers.TimelineObserver
	if obsCfg.TimelineDir != "" {
		timelineObs = observers.NewTimelineObserver(obsCfg.TimelineDir)
		obsList = append(obsList, timelineObs)
	}
	var usageObs *observers.UsageObserver
	if obsCfg.UsageDir != "" {
		usageObs = observers.NewUsageObserver(obsCfg.UsageDir)
		obsList = append(obsList, usageObs)
	}
	asyncObs := metrics.NewAsyncObserver(observers.NewMultiObserver(obsList...), 2048)

	if retention := time.Duration(obsCfg.RetentionHours) * time.Hour; retention > 0 {
		for _, dir := range []string{obsCfg.TimelineDir, obsCfg.UsageDir} {
			if dir == "" {
				continue
			}
			if removed, err := observers.PurgeArtifacts(dir, retention); err != nil && !os.IsNotExist(err) {
				slog.Warn("artifact_purge_failed", "dir", dir, "error", err.Error())
			} else if removed > 0 {
				slog.Info("artifact_purge", "dir", dir, "removed", removed)
			}
		}
	}

	store := session.NewStore(session.StoreConfig{
		TTL:           cfg.Session.TTL(),
		SweepInterval: cfg.Session.SweepInterval(),
	}, logging.NewComponentLogger(slog.Default(), "session"))

	dispatcher := history.NewDispatcher(recorder, 256, logging.NewComponentLogger(slog.Default(), "history"))

	nav := cfg.Navigator
	router := navigator.NewRouter(navigator.Config{
		AIDeadline:           time.Duration(nav.AIDeadlineMS) * time.Millisecond,
		GatherTimeoutSec:     nav.GatherTimeoutSec,
		DigitPauseSec:        nav.DigitPauseSec,
		DeadEndSilence:       time.Duration(nav.DeadEndSilenceMS) * time.Millisecond,
		MaxLoopHistory:       nav.MaxLoopHistory,
		ConfirmationQuestion: nav.ConfirmationQuestion,
		HandoffText:          nav.HandoffText,
		GoodbyeText:          nav.GoodbyeText,
		ApologyText:          nav.ApologyText,
		Voice:                nav.Voice,
		Locale:               nav.Language,
	}, store, reasoner, dispatcher, asyncObs, logging.NewComponentLogger(slog.Default(), "navigator"))

	transport.SetHandler(router.HandleEvent)

	e := &Engine{
		cfg:        cfg,
		store:      store,
		router:     router,
		reasoner:   reasoner,
		dispatcher: dispatcher,
		transport:  transport,
		asyncObs:   asyncObs,
	}

	hooks := runner.Hooks{
		OnStart: func() {
			fields := []any{"message", "IVR Navigator Ready", "reasoner", reasoner.Name()}
			if rr, ok := transport.(transports.ReadyReporter); ok {
				for k, v := range rr.ReadyFields() {
					fields = append(fields, k, v)
				}
			}
			slog.Info("engine_ready", fields...)
		},
		OnStop: func() {
			slog.Info("shutdown",
				"goroutines", runtime.NumGoroutine(),
				"active_calls", store.Len(),
				"dropped_history_writes", dispatcher.Dropped(),
			)
		},
	}
	drainer := runner.DrainerFunc(func() error {
		_ = transport.Stop()
		store.Stop()
		dispatcher.Close()
		asyncObs.Close()
		if timelineObs != nil {
			_ = timelineObs.Close()
		}
		if usageObs != nil {
			_ = usageObs.Close()
		}
		if metricsFile != nil {
			_ = metricsFile.Close()
		}
		return nil
	})
	e.runner = runner.NewLifecycleRunner(drainer, hooks, 30*time.Second)

	return e, nil
}

// Run starts the transport, the session sweep, and the lifecycle runner,
// then blocks until ctx is canceled or Stop is called.
func (e *Engine) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.store.Start(ctx)
	})
	g.Go(func() error {
		return e.transport.Start(ctx)
	})
	g.Go(func() error {
		return e.runner.Run(ctx)
	})
	return g.Wait()
}

func (e *Engine) Stop() error {
	return e.runner.Stop()
}

// PlaceCall starts an outbound call when the transport supports dialing.
func (e *Engine) PlaceCall(ctx context.Context, to, from string, qc session.QueryConfig) (string, error) {
	dialer, ok := e.transport.(transports.OutboundDialer)
	if !ok {
		return "", fmt.Errorf("transport %s cannot place outbound calls", e.transport.Name())
	}
	callID, err := dialer.Dial(ctx, to, from, qc)
	if err != nil {
		return "", err
	}
	slog.Info("call_placed", "call_sid", callID, "to", redact.Text(to))
	return callID, nil
}

// History exposes the call-history collaborator for read access.
func (e *Engine) History() *history.Dispatcher { return e.dispatcher }

func (e *Engine) Store() *session.Store { return e.store }

func (e *Engine) Transport() transports.Transport { return e.transport }

func (e *Engine) Config() Config { return e.cfg }
