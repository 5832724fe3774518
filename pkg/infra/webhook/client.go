// Package webhook posts event envelopes to plugin endpoints. Each body is
// signed with HMAC-SHA256 over the plugin's shared secret so receivers can
// authenticate the sender.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/soloforge/soloforge/pkg/domain/model"
	"github.com/soloforge/soloforge/pkg/domain/types"
	"github.com/soloforge/soloforge/pkg/utils/safe"
)

const (
	HeaderSignature = "X-Soloforge-Signature"
	HeaderEvent     = "X-Soloforge-Event"
	HeaderDelivery  = "X-Soloforge-Delivery"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type Client struct {
	httpClient HTTPClient
}

type Option func(*Client)

func WithHTTPClient(httpClient HTTPClient) Option {
	return func(x *Client) {
		x.httpClient = httpClient
	}
}

func New(options ...Option) *Client {
	client := &Client{
		httpClient: http.DefaultClient,
	}
	for _, opt := range options {
		opt(client)
	}
	return client
}

// envelope is the wire format every plugin receives.
type envelope struct {
	EventID    types.EventID   `json:"event_id"`
	Repository types.RepoName  `json:"repository"`
	Kind       types.EventKind `json:"kind"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

func (x *Client) Deliver(ctx context.Context, plugin *model.PluginRegistration, ev *model.Event) error {
	body, err := json.Marshal(envelope{
		EventID:    ev.ID,
		Repository: ev.Repo,
		Kind:       ev.Kind,
		OccurredAt: ev.OccurredAt,
		Payload:    ev.Payload,
	})
	if err != nil {
		return goerr.Wrap(err, "failed to marshal webhook envelope")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, plugin.Endpoint, bytes.NewReader(body))
	if err != nil {
		return goerr.Wrap(err, "failed to build webhook request",
			goerr.V("endpoint", plugin.Endpoint),
		)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, string(ev.Kind))
	req.Header.Set(HeaderDelivery, string(ev.Repo)+"/"+strconv.FormatInt(int64(ev.ID), 10))
	if plugin.Secret != "" {
		req.Header.Set(HeaderSignature, Sign(plugin.Secret, body))
	}

	resp, err := x.httpClient.Do(req)
	if err != nil {
		return goerr.Wrap(types.ErrTransportFailure, "webhook request failed",
			goerr.V("plugin", plugin.Name),
			goerr.V("cause", err.Error()),
		)
	}
	defer safe.Close(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return goerr.Wrap(types.ErrPluginUnreachable, "plugin rejected webhook",
			goerr.V("plugin", plugin.Name),
			goerr.V("status", resp.StatusCode),
		)
	}
	return nil
}

// Probe sends a HEAD request to check the endpoint is answering again.
// Any response, even an error status, counts as reachable.
func (x *Client) Probe(ctx context.Context, plugin *model.PluginRegistration) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, plugin.Endpoint, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to build probe request",
			goerr.V("endpoint", plugin.Endpoint),
		)
	}

	resp, err := x.httpClient.Do(req)
	if err != nil {
		return goerr.Wrap(types.ErrPluginUnreachable, "probe failed",
			goerr.V("plugin", plugin.Name),
			goerr.V("cause", err.Error()),
		)
	}
	safe.Close(resp.Body)
	return nil
}

// Sign computes the hex HMAC-SHA256 of the body, prefixed like GitHub's
// webhook signatures so existing receiver code ports over.
func Sign(secret types.WebhookSecret, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
