// Package emailgateway is the outbound HTTP client for spec.md §6's Email
// Gateway: POST to {base_url}/api/send/{inbox_id} with header
// Api-Token: <token> and a JSON body. Grounded in
// original_source/src/email_client.rs for the wire contract and in
// notify/discord.Notifier for the rate-limited *http.Client shape.
package emailgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Options configures the Client.
type Options struct {
	BaseURL     string
	Token       string
	InboxID     string
	Timeout     time.Duration // hard per-call timeout; 200ms in tests per spec.md §5
	RateLimit   rate.Limit
	Burst       int
}

type recipient struct {
	Email string `json:"email"`
}

type sendRequest struct {
	From    recipient   `json:"from"`
	To      []recipient `json:"to"`
	Subject string      `json:"subject"`
	HTML    string      `json:"html"`
	Text    string      `json:"text"`
}

// Client sends emails through the gateway. Any non-2xx response or
// timeout is a soft failure (spec.md §6) — Client never retries
// internally; all retry is the caller's (package worker's) responsibility.
type Client struct {
	opts    Options
	http    *http.Client
	limiter *rate.Limiter
}

func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 200 * time.Millisecond
	}
	if opts.RateLimit == 0 {
		opts.RateLimit = rate.Every(100 * time.Millisecond)
	}
	if opts.Burst <= 0 {
		opts.Burst = 10
	}
	return &Client{
		opts:    opts,
		http:    &http.Client{},
		limiter: rate.NewLimiter(opts.RateLimit, opts.Burst),
	}
}

// Send posts one email to the gateway. fromEmail is the configured sender
// address; toEmail is the subscriber's captured email.
func (c *Client) Send(ctx context.Context, fromEmail, toEmail, subject, html, text string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("emailgateway: rate limiter: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	body, err := json.Marshal(sendRequest{
		From:    recipient{Email: fromEmail},
		To:      []recipient{{Email: toEmail}},
		Subject: subject,
		HTML:    html,
		Text:    text,
	})
	if err != nil {
		return fmt.Errorf("emailgateway: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/send/%s", c.opts.BaseURL, c.opts.InboxID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("emailgateway: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Token", c.opts.Token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("emailgateway: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("emailgateway: non-2xx response: %d", resp.StatusCode)
	}
	return nil
}
