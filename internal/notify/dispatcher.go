package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/metalhouse/fleshrecord/internal/domain"
)

// payload is the chat-webhook message shape (msgtype/text).
type payload struct {
	MsgType string `json:"msgtype"`
	Text    struct {
		Content string `json:"content"`
	} `json:"text"`
}

// Dispatcher delivers plain-text messages to per-user chat webhooks.
// Delivery is synchronous with one bounded immediate retry; anything beyond
// that is the scheduler's business.
type Dispatcher struct {
	http *http.Client
	log  *zap.Logger
}

// New creates a dispatcher with the given delivery timeout.
func New(timeout time.Duration, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		http: &http.Client{Timeout: timeout},
		log:  log,
	}
}

// Send posts one text message to the webhook URL. Empty messages and missing
// URLs are delivery errors, not silent no-ops.
func (d *Dispatcher) Send(ctx context.Context, webhookURL, message string) error {
	if webhookURL == "" {
		return &domain.DeliveryError{Err: fmt.Errorf("webhook url not configured")}
	}
	if strings.TrimSpace(message) == "" {
		return &domain.DeliveryError{Err: fmt.Errorf("empty message")}
	}

	var p payload
	p.MsgType = "text"
	p.Text.Content = message
	body, err := json.Marshal(p)
	if err != nil {
		return &domain.DeliveryError{Err: err}
	}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "FleshRecord-Webhook/1.0")

		resp, err := d.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
			err := fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, 1), ctx)); err != nil {
		return &domain.DeliveryError{Err: err}
	}

	d.log.Debug("message delivered", zap.Int("bytes", len(message)))
	return nil
}
