// Package discord posts dead-letter alerts to a Discord webhook. Adapted
// from caasmo/restinpieces/notify/discord: same rate-limited, non-blocking,
// goroutine-dispatched Send, generalized from notify.Notification content
// to notify.DeadLetter content.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/caasmo/newsletterd/notify"
)

// Options configures the Notifier.
type Options struct {
	WebhookURL   string
	APIRateLimit rate.Limit
	APIBurst     int
	SendTimeout  time.Duration
}

type payload struct {
	Content string `json:"content"`
}

const discordMaxMessageLength = 2000

// Notifier implements notify.Notifier over a Discord webhook. Safe for
// concurrent use; Send is non-blocking and dispatches from a goroutine.
type Notifier struct {
	opts           Options
	logger         *slog.Logger
	httpClient     *http.Client
	apiRateLimiter *rate.Limiter
}

func New(opts Options, logger *slog.Logger) (*Notifier, error) {
	if opts.WebhookURL == "" {
		return nil, fmt.Errorf("discord: WebhookURL is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("discord: logger is required")
	}
	if opts.APIRateLimit == 0 {
		opts.APIRateLimit = rate.Every(2 * time.Second)
	}
	if opts.APIBurst <= 0 {
		opts.APIBurst = 5
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 10 * time.Second
	}
	return &Notifier{
		opts:           opts,
		logger:         logger,
		apiRateLimiter: rate.NewLimiter(opts.APIRateLimit, opts.APIBurst),
		httpClient:     &http.Client{},
	}, nil
}

func formatMessage(dl notify.DeadLetter) string {
	msg := fmt.Sprintf("dead letter: issue=%s subscriber=%s attempts=%d error=%s",
		dl.NewsletterIssueID, dl.SubscriberEmail, dl.AttemptsMade, dl.LastError)
	if len(msg) > discordMaxMessageLength {
		return msg[:discordMaxMessageLength-3] + "..."
	}
	return msg
}

// Send acquires a rate-limit token and, if successful, dispatches the
// webhook POST from a goroutine so the caller never blocks on network I/O.
func (dn *Notifier) Send(_ context.Context, dl notify.DeadLetter) error {
	if !dn.apiRateLimiter.Allow() {
		dn.logger.Warn("discord: rate limit reached, dropping dead-letter notification",
			"issue", dl.NewsletterIssueID, "subscriber", dl.SubscriberEmail)
		return nil
	}

	go func(dl notify.DeadLetter) {
		sendCtx, cancel := context.WithTimeout(context.Background(), dn.opts.SendTimeout)
		defer cancel()

		body, err := json.Marshal(payload{Content: formatMessage(dl)})
		if err != nil {
			dn.logger.Error("discord: failed to marshal payload", "error", err)
			return
		}

		req, err := http.NewRequestWithContext(sendCtx, http.MethodPost, dn.opts.WebhookURL, bytes.NewBuffer(body))
		if err != nil {
			dn.logger.Error("discord: failed to create request", "error", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := dn.httpClient.Do(req)
		if err != nil {
			dn.logger.Error("discord: failed to send webhook", "error", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			dn.logger.Error("discord: non-2xx status from webhook", "status_code", resp.StatusCode)
			return
		}
		dn.logger.Debug("discord: sent dead-letter notification",
			"issue", dl.NewsletterIssueID, "subscriber", dl.SubscriberEmail)
	}(dl)

	return nil
}
