// Package twilio adapts Twilio voice webhooks to call events and renders
// directive lists as TwiML responses.
package twilio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	api "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/voxhop/ivrnav/pkg/directive"
	"github.com/voxhop/ivrnav/pkg/errorsx"
	"github.com/voxhop/ivrnav/pkg/navigator"
	"github.com/voxhop/ivrnav/pkg/redact"
	"github.com/voxhop/ivrnav/pkg/session"
	"github.com/voxhop/ivrnav/pkg/transports"
)

type Config struct {
	ServerAddr         string   `mapstructure:"server_addr"`
	PublicURL          string   `mapstructure:"public_url"`
	AuthToken          string   `mapstructure:"auth_token"`
	AccountSID         string   `mapstructure:"account_sid"`
	FromNumber         string   `mapstructure:"from_number"`
	VoicePath          string   `mapstructure:"voice_path"`
	SpeechPath         string   `mapstructure:"speech_path"`
	DTMFStatusPath     string   `mapstructure:"dtmf_status_path"`
	StatusCallbackPath string   `mapstructure:"status_callback_path"`
	EventsPath         string   `mapstructure:"events_path"`
	AllowAnyOrigin     bool     `mapstructure:"allow_any_origin"`
	AllowedOrigins     []string `mapstructure:"allowed_origins"`
}

func (c Config) withDefaults() Config {
	if c.ServerAddr == "" {
		c.ServerAddr = ":8080"
	}
	if c.VoicePath == "" {
		c.VoicePath = "/voice"
	}
	if c.SpeechPath == "" {
		c.SpeechPath = "/speech"
	}
	if c.DTMFStatusPath == "" {
		c.DTMFStatusPath = "/dtmf-status"
	}
	if c.StatusCallbackPath == "" {
		c.StatusCallbackPath = "/status"
	}
	if c.EventsPath == "" {
		c.EventsPath = "/events"
	}
	if !c.AllowAnyOrigin && len(c.AllowedOrigins) == 0 {
		c.AllowAnyOrigin = true
	}
	return c
}

type Transport struct {
	cfg     Config
	server  *http.Server
	handler transports.Handler
	feed    *eventFeed

	// firstTurn marks calls whose next speech event is the callee's
	// opening line.
	mu        sync.Mutex
	firstTurn map[string]bool

	updateClient callUpdater
	draining     atomic.Bool
}

type callUpdater interface {
	UpdateCall(sid string, params *api.UpdateCallParams) (*api.ApiV2010Call, error)
}

func New(cfg Config) *Transport {
	cfg = cfg.withDefaults()
	t := &Transport{
		cfg:       cfg,
		firstTurn: make(map[string]bool),
	}
	t.feed = newEventFeed(t.checkOrigin)
	return t
}

func (t *Transport) Name() string { return "twilio" }

func (t *Transport) SetHandler(h transports.Handler) { t.handler = h }

func (t *Transport) ReadyFields() map[string]any {
	return map[string]any{
		"webhook_url":         t.voiceWebhookURL(),
		"status_callback_url": t.statusCallbackURL(),
	}
}

func (t *Transport) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	mux := http.NewServeMux()
	mux.HandleFunc(t.cfg.VoicePath, t.handleVoice)
	mux.HandleFunc(t.cfg.SpeechPath, t.handleSpeech)
	mux.HandleFunc(t.cfg.DTMFStatusPath, t.handleDTMFStatus)
	mux.HandleFunc(t.cfg.StatusCallbackPath, t.handleStatusCallback)
	mux.Handle(t.cfg.EventsPath, t.feed)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	t.server = &http.Server{
		Addr:              t.cfg.ServerAddr,
		ReadHeaderTimeout: 5 * time.Second,
		Handler:           mux,
	}
	go func() {
		<-ctx.Done()
		_ = t.server.Close()
	}()
	go func() {
		if err := t.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("twilio_transport_server_error", "error", err.Error())
		}
	}()
	return nil
}

func (t *Transport) Stop() error {
	t.draining.Store(true)
	if t.server != nil {
		_ = t.server.Close()
	}
	t.feed.closeAll()
	return nil
}

func (t *Transport) handleVoice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if t.cfg.AuthToken != "" && !t.validateTwilioRequest(r) {
		slog.Warn("twilio_invalid_signature", "reason_code", string(errorsx.ReasonTransportInvalidSignature))
		w.WriteHeader(http.StatusForbidden)
		return
	}
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	callSID := r.FormValue("CallSid")
	ev := navigator.Event{
		Type:   navigator.EventCallStarted,
		CallID: callSID,
		To:     r.FormValue("To"),
		From:   r.FormValue("From"),
		Config: queryConfigFromRequest(r),
	}
	t.markFirstTurn(callSID)
	t.respondTwiML(w, r, ev)
}

func (t *Transport) handleSpeech(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if t.cfg.AuthToken != "" && !t.validateTwilioRequest(r) {
		slog.Warn("twilio_invalid_signature", "reason_code", string(errorsx.ReasonTransportInvalidSignature))
		w.WriteHeader(http.StatusForbidden)
		return
	}
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	callSID := r.FormValue("CallSid")
	ev := navigator.Event{
		Type:       navigator.EventSpeech,
		CallID:     callSID,
		Transcript: r.FormValue("SpeechResult"),
		FirstTurn:  t.takeFirstTurn(callSID),
	}
	t.respondTwiML(w, r, ev)
}

func (t *Transport) handleDTMFStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if t.cfg.AuthToken != "" && !t.validateTwilioRequest(r) {
		slog.Warn("twilio_invalid_signature", "reason_code", string(errorsx.ReasonTransportInvalidSignature))
		w.WriteHeader(http.StatusForbidden)
		return
	}
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	ev := navigator.Event{
		Type:   navigator.EventDTMF,
		CallID: r.FormValue("CallSid"),
		Digits: r.URL.Query().Get("digits"),
	}
	t.respondTwiML(w, r, ev)
}

func (t *Transport) handleStatusCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if t.cfg.AuthToken != "" && !t.validateTwilioRequest(r) {
		slog.Warn("twilio_status_invalid_signature", "reason_code", string(errorsx.ReasonTransportInvalidSignature))
		w.WriteHeader(http.StatusForbidden)
		return
	}
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	callSID := r.FormValue("CallSid")
	status := normalizeCallStatus(r.FormValue("CallStatus"))
	if callSID == "" || status == "" {
		w.WriteHeader(http.StatusOK)
		return
	}
	ev := navigator.Event{
		Type:   navigator.EventStatus,
		CallID: callSID,
		Status: status,
	}
	t.dispatch(r.Context(), ev)
	if status != navigator.StatusInProgress {
		t.forgetCall(callSID)
	}
	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write([]byte(emptyResponse))
}

func (t *Transport) respondTwiML(w http.ResponseWriter, r *http.Request, ev navigator.Event) {
	dirs := t.dispatch(r.Context(), ev)
	twiml := renderTwiML(dirs, twimlPaths{
		speech: t.cfg.SpeechPath,
		dtmf:   t.cfg.DTMFStatusPath,
		status: t.cfg.StatusCallbackPath,
	})
	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write([]byte(twiml))
}

func (t *Transport) dispatch(ctx context.Context, ev navigator.Event) []directive.Directive {
	t.publishFeedEvent(ev)
	if t.handler == nil {
		return nil
	}
	return t.handler(ctx, ev)
}

func (t *Transport) publishFeedEvent(ev navigator.Event) {
	t.feed.publish(FeedEvent{
		Type:       ev.Type.String(),
		CallSID:    ev.CallID,
		Transcript: redact.Text(ev.Transcript),
		Digits:     ev.Digits,
		Status:     ev.Status,
		At:         time.Now().UTC(),
	})
}

func (t *Transport) markFirstTurn(callSID string) {
	if callSID == "" {
		return
	}
	t.mu.Lock()
	t.firstTurn[callSID] = true
	t.mu.Unlock()
}

func (t *Transport) takeFirstTurn(callSID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	first := t.firstTurn[callSID]
	delete(t.firstTurn, callSID)
	return first
}

func (t *Transport) forgetCall(callSID string) {
	t.mu.Lock()
	delete(t.firstTurn, callSID)
	t.mu.Unlock()
}

// SendDTMF plays digits on an active call via the Twilio REST API, then
// redirects the call back to the speech gather cycle.
func (t *Transport) SendDTMF(ctx context.Context, callSID, digits string) error {
	_ = ctx
	if strings.TrimSpace(callSID) == "" {
		return errors.New("call sid required")
	}
	if strings.TrimSpace(digits) == "" {
		return errors.New("digits required")
	}
	if t.cfg.AccountSID == "" || t.cfg.AuthToken == "" {
		return errors.New("missing twilio credentials")
	}
	updater := t.updateClient
	if updater == nil {
		rest := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: t.cfg.AccountSID,
			Password: t.cfg.AuthToken,
		})
		updater = rest.Api
	}
	params := &api.UpdateCallParams{}
	params.SetTwiml(renderTwiML(
		[]directive.Directive{directive.SendDigits{Digits: digits, PauseSec: 1}},
		twimlPaths{speech: t.cfg.SpeechPath, dtmf: t.cfg.DTMFStatusPath, status: t.cfg.StatusCallbackPath},
	))
	_, err := updater.UpdateCall(callSID, params)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonTransportSend)
	}
	return nil
}

// Dial places an outbound call using the Twilio REST API.
func (t *Transport) Dial(ctx context.Context, to, from string, cfg session.QueryConfig) (string, error) {
	dialer := NewDialer(t.cfg)
	return dialer.Dial(ctx, to, from, cfg)
}

func queryConfigFromRequest(r *http.Request) session.QueryConfig {
	q := r.URL.Query()
	return session.QueryConfig{
		Purpose:             q.Get("purpose"),
		CustomInstructions:  q.Get("instructions"),
		TransferDestination: q.Get("transfer_to"),
	}
}

// normalizeCallStatus maps provider statuses onto the router's set.
// Interim dialing states map to empty and are dropped.
func normalizeCallStatus(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "queued", "initiated", "ringing":
		return ""
	case "in-progress", "inprogress", "answered":
		return navigator.StatusInProgress
	case "completed":
		return navigator.StatusCompleted
	case "busy", "no-answer", "no_answer", "noanswer", "failed", "canceled", "cancelled":
		return navigator.StatusFailed
	default:
		return ""
	}
}

func (t *Transport) validateTwilioRequest(r *http.Request) bool {
	signature := r.Header.Get("X-Twilio-Signature")
	if signature == "" {
		return false
	}
	if t.cfg.AuthToken == "" {
		return false
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return false
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))

	validator := twilioclient.NewRequestValidator(t.cfg.AuthToken)
	return validator.ValidateBody(t.requestURL(r), body, signature)
}

func (t *Transport) requestURL(r *http.Request) string {
	if t.cfg.PublicURL != "" {
		base := strings.TrimRight(t.cfg.PublicURL, "/")
		return base + r.URL.RequestURI()
	}
	scheme := r.URL.Scheme
	if scheme == "" {
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		} else {
			scheme = "https"
		}
	}
	host := r.Host
	if host == "" {
		host = strings.TrimPrefix(t.cfg.ServerAddr, ":")
	}
	return scheme + "://" + host + r.URL.RequestURI()
}

func (t *Transport) checkOrigin(r *http.Request) bool {
	if t.cfg.AllowAnyOrigin {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	origin = strings.TrimRight(origin, "/")
	originHost := strings.TrimPrefix(origin, "https://")
	originHost = strings.TrimPrefix(originHost, "http://")
	for _, allowed := range t.cfg.AllowedOrigins {
		a := strings.TrimSpace(allowed)
		if a == "" {
			continue
		}
		a = strings.TrimRight(a, "/")
		if strings.HasPrefix(a, "http://") || strings.HasPrefix(a, "https://") {
			if strings.EqualFold(a, origin) {
				return true
			}
			continue
		}
		if strings.EqualFold(a, originHost) {
			return true
		}
	}
	return false
}

func (t *Transport) voiceWebhookURL() string {
	if t.cfg.PublicURL != "" {
		return "https://" + normalizePublicURL(t.cfg.PublicURL) + t.cfg.VoicePath
	}
	addr := t.cfg.ServerAddr
	if addr == "" {
		addr = ":8080"
	}
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + t.cfg.VoicePath
}

func (t *Transport) statusCallbackURL() string {
	if t.cfg.PublicURL != "" {
		return "https://" + normalizePublicURL(t.cfg.PublicURL) + t.cfg.StatusCallbackPath
	}
	addr := t.cfg.ServerAddr
	if addr == "" {
		addr = ":8080"
	}
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + t.cfg.StatusCallbackPath
}

func normalizePublicURL(v string) string {
	if v == "" {
		return ""
	}
	if len(v) >= 8 && v[:8] == "https://" {
		v = v[8:]
	} else if len(v) >= 7 && v[:7] == "http://" {
		v = v[7:]
	}
	for len(v) > 0 && v[len(v)-1] == '/' {
		v = v[:len(v)-1]
	}
	return v
}
