package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"marlin/internal/domain"
)

// HTTP talks to a relay over its JSON interface. All failures come back as
// domain.TransientError so the task layer knows they are retryable.
type HTTP struct {
	Base string
	HTTP *http.Client
}

// NewHTTP builds a client for the relay at base.
func NewHTTP(base string, client *http.Client) *HTTP {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTP{Base: base, HTTP: client}
}

var _ domain.RelayClient = (*HTTP)(nil)

// Publish submits one event to the relay.
func (c *HTTP) Publish(ctx context.Context, env domain.Envelope) error {
	return c.post(ctx, "/publish", env, nil)
}

// Fetch returns the events matching the filter known to the relay right now.
func (c *HTTP) Fetch(ctx context.Context, f domain.Filter) ([]domain.Envelope, error) {
	var envs []domain.Envelope
	if err := c.post(ctx, "/fetch", f, &envs); err != nil {
		return nil, err
	}
	return envs, nil
}

func (c *HTTP) post(ctx context.Context, path string, in, out any) error {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(in); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Base+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return domain.Transient("relay post "+path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return domain.Transient("relay post "+path, fmt.Errorf("%s", resp.Status))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return domain.Transient("relay decode "+path, err)
		}
	}
	return nil
}
