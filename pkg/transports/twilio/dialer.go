package twilio

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/voxhop/ivrnav/pkg/errorsx"
	"github.com/voxhop/ivrnav/pkg/session"
)

type callCreator interface {
	CreateCall(params *api.CreateCallParams) (*api.ApiV2010Call, error)
}

// Dialer places outbound calls via the Twilio REST API. The per-call
// config rides on the voice webhook URL as query parameters so the answer
// webhook can rebuild it.
type Dialer struct {
	cfg    Config
	client callCreator
}

func NewDialer(cfg Config) *Dialer {
	return &Dialer{cfg: cfg.withDefaults()}
}

func (d *Dialer) Dial(ctx context.Context, to, from string, qc session.QueryConfig) (string, error) {
	_ = ctx
	if to == "" {
		return "", errors.New("to required")
	}
	if from == "" {
		from = d.cfg.FromNumber
	}
	if from == "" {
		return "", errors.New("from required")
	}
	if d.cfg.AccountSID == "" || d.cfg.AuthToken == "" {
		return "", errors.New("missing twilio credentials")
	}
	client := d.client
	if client == nil {
		rest := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: d.cfg.AccountSID,
			Password: d.cfg.AuthToken,
		})
		client = rest.Api
	}
	params := &api.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(from)
	params.SetUrl(d.voiceURL(qc))
	params.SetStatusCallback(d.statusURL())
	params.SetStatusCallbackMethod("POST")
	resp, err := client.CreateCall(params)
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonTransportDial)
	}
	if resp == nil || resp.Sid == nil {
		return "", fmt.Errorf("missing call sid")
	}
	return *resp.Sid, nil
}

func (d *Dialer) voiceURL(qc session.QueryConfig) string {
	base := d.baseURL() + d.cfg.VoicePath
	q := url.Values{}
	if qc.Purpose != "" {
		q.Set("purpose", qc.Purpose)
	}
	if qc.CustomInstructions != "" {
		q.Set("instructions", qc.CustomInstructions)
	}
	if qc.TransferDestination != "" {
		q.Set("transfer_to", qc.TransferDestination)
	}
	if len(q) == 0 {
		return base
	}
	return base + "?" + q.Encode()
}

func (d *Dialer) statusURL() string {
	return d.baseURL() + d.cfg.StatusCallbackPath
}

func (d *Dialer) baseURL() string {
	if d.cfg.PublicURL != "" {
		return "https://" + normalizePublicURL(d.cfg.PublicURL)
	}
	addr := d.cfg.ServerAddr
	if addr == "" {
		addr = ":8080"
	}
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}
