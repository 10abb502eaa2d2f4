package domain

import (
	"errors"
	"fmt"
	"strings"
)

// DifyConfig holds a user's AI workflow credentials.
type DifyConfig struct {
	Enabled    bool   `json:"enabled"`
	APIKey     string `json:"api_key"`
	WorkflowID string `json:"workflow_id"`
}

// UserProfile is the per-user configuration document. One JSON file per user;
// the user id comes from the file name and is never stored inside the file.
type UserProfile struct {
	UserID              string `json:"-"`
	FireflyAccessToken  string `json:"firefly_access_token"`
	FireflyAPIURL       string `json:"firefly_api_url,omitempty"` // empty means global default
	APIToken            string `json:"api_token,omitempty"`
	WebhookURL          string `json:"webhook_url"`
	WebhookSecret       string `json:"webhook_secret"`
	WebhookSecretUpdate string `json:"webhook_secret_update,omitempty"`

	NotificationEnabled bool   `json:"notification_enabled"`
	Language            string `json:"language,omitempty"` // "zh" | "en", default "zh"

	Dify    DifyConfig     `json:"dify,omitempty"`
	Reports ReportSchedule `json:"reports,omitempty"`
}

// Validate checks the profile for structural problems. It normalizes the
// ledger token (strips a stray "Bearer " prefix) before checking.
func (u *UserProfile) Validate() error {
	if strings.TrimSpace(u.UserID) == "" {
		return errors.New("empty user id")
	}
	u.FireflyAccessToken = strings.TrimSpace(strings.TrimPrefix(u.FireflyAccessToken, "Bearer "))
	if u.FireflyAccessToken == "" {
		return errors.New("firefly_access_token must not be empty")
	}
	if u.Language == "" {
		u.Language = "zh"
	}
	if err := u.Reports.Validate(); err != nil {
		return fmt.Errorf("reports: %w", err)
	}
	return nil
}
