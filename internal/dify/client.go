package dify

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

// Credentials identifies one user's workflow application.
type Credentials struct {
	APIKey     string
	WorkflowID string
}

// chatRequest is the blocking chat-messages call body.
type chatRequest struct {
	Inputs           map[string]string `json:"inputs"`
	Query            string            `json:"query"`
	ResponseMode     string            `json:"response_mode"`
	User             string            `json:"user"`
	ConversationID   string            `json:"conversation_id"`
	AutoGenerateName bool              `json:"auto_generate_name"`
}

type chatResponse struct {
	Answer    string `json:"answer"`
	MessageID string `json:"message_id"`
	ID        string `json:"id"`
}

// Client invokes the Dify chat-messages API in blocking mode.
type Client struct {
	apiURL string
	http   *http.Client
	log    *zap.Logger
}

// New creates a workflow client. The timeout should be generous; workflow
// runs routinely take tens of seconds.
func New(apiURL string, timeout time.Duration, log *zap.Logger) *Client {
	return &Client{
		apiURL: strings.TrimRight(apiURL, "/"),
		http:   &http.Client{Timeout: timeout},
		log:    log,
	}
}

// GenerateReport runs the user's workflow over a report prompt plus a
// pre-formatted financial summary and returns the generated text.
func (c *Client) GenerateReport(ctx context.Context, creds Credentials, kind domain.ReportKind, prompt, summary string) (string, error) {
	query := prompt
	if summary != "" {
		query = fmt.Sprintf("%s\n\n交易数据:\n%s\n\n请根据以上数据生成 %s 报告。", prompt, summary, kind)
	}
	inputs := map[string]string{
		"report_type":      string(kind),
		"report_query":     prompt,
		"transaction_data": summary,
		"query":            query,
	}
	answer, err := c.run(ctx, creds, inputs, query)
	if err != nil {
		return "", &domain.WorkflowError{Op: string(kind) + " report", Err: err}
	}
	return answer, nil
}

// run performs the blocking chat call with one bounded retry on transport
// or 5xx failures.
func (c *Client) run(ctx context.Context, creds Credentials, inputs map[string]string, query string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Inputs:       inputs,
		Query:        query,
		ResponseMode: "blocking",
		User:         "fleshrecord-system",
	})
	if err != nil {
		return "", err
	}

	var parsed chatResponse
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/chat-messages", bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+creds.APIKey)
		req.Header.Set("Content-Type", "application/json; charset=utf-8")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			err := fmt.Errorf("chat-messages: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
			if resp.StatusCode < 500 {
				return backoff.Permanent(err)
			}
			return err
		}
		return json.NewDecoder(resp.Body).Decode(&parsed)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, 1), ctx)); err != nil {
		return "", err
	}

	if strings.TrimSpace(parsed.Answer) == "" {
		return "", fmt.Errorf("empty answer (message_id %q)", parsed.MessageID)
	}
	c.log.Debug("workflow answered",
		zap.String("workflow_id", creds.WorkflowID),
		zap.String("message_id", parsed.MessageID))
	return parsed.Answer, nil
}
