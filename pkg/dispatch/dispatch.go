// Package dispatch sends booking confirmations to the notification
// gateway over HTTP. The gateway fans the booking out to email and the
// calendar system; this client only owns the handoff.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	contractx "github.com/ringlet/callbook/agent/contract"
)

type Config struct {
	URL     string        `envconfig:"URL" required:"true"`
	Token   string        `envconfig:"TOKEN"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"10s"`
}

// Client implements contract.Notifier against the gateway's bookings
// endpoint. The call id travels as the idempotency key so gateway-side
// retries and ours collapse into one delivery.
type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Client) Dispatch(ctx context.Context, details contractx.BookingDetails) error {
	body, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("encode booking details: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build dispatch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", details.CallID)
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", contractx.ErrNotifierUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusBadRequest:
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%w: gateway rejected recipient: %s", contractx.ErrInvalidRecipient, payload)
	default:
		return fmt.Errorf("%w: gateway returned %d", contractx.ErrNotifierUnavailable, resp.StatusCode)
	}
}
