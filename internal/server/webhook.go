package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/metalhouse/fleshrecord/internal/domain"
	"github.com/metalhouse/fleshrecord/internal/logger"
)

const maxWebhookBody = 1 << 20

// looseString accepts both JSON strings and numbers. Ledger webhooks are
// inconsistent about whether amounts arrive quoted.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		*s = looseString(str)
		return nil
	}
	*s = looseString(bytes.TrimSpace(b))
	return nil
}

type webhookTransaction struct {
	Description string      `json:"description"`
	Amount      looseString `json:"amount"`
	Category    string      `json:"category_name"`
	Budget      string      `json:"budget_name"`
}

type webhookEvent struct {
	Trigger string `json:"trigger"`
	Content struct {
		Transactions []webhookTransaction `json:"transactions"`
	} `json:"content"`
}

// handleWebhook processes a signed ledger event: verifies the HMAC
// signature against the user's primary and rotation secrets, builds a
// transaction notification with the current-month budget digest, and posts
// it to the user's chat webhook.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	user, err := s.store.Get(userID)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "reading request body failed")
		return
	}

	sigHeader := r.Header.Get("Signature")
	if sigHeader == "" {
		s.log.Warn("webhook without signature header", zap.String("user", userID))
		s.respondError(w, http.StatusBadRequest, "Signature header is required")
		return
	}
	if !verifySignature(body, sigHeader, user.WebhookSecret, user.WebhookSecretUpdate) {
		s.log.Warn("webhook signature verification failed", zap.String("user", userID))
		s.respondDomainError(w, &domain.AuthError{Reason: "Invalid signature", Forbidden: true})
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if msg := validateWebhookEvent(&event); msg != "" {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}

	s.log.Info("webhook event accepted",
		zap.String("user", userID),
		zap.String("trigger", event.Trigger),
		zap.Any("payload", logger.RedactMap(map[string]any{
			"description": truncate(event.Content.Transactions[0].Description, 50),
			"category":    event.Content.Transactions[0].Category,
		})))

	message := buildEventMessage(&event)
	message += s.budgetDigest(r, user)

	if err := s.notifier.Send(r.Context(), user.WebhookURL, message); err != nil {
		s.log.Error("webhook notification delivery failed",
			zap.String("user", userID), zap.Error(err))
		s.respondDomainError(w, err)
		return
	}

	s.respond(w, http.StatusOK, "Webhook processed", map[string]string{"message": message})
}

// validateWebhookEvent returns a client-facing error message, or empty when
// the event is acceptable.
func validateWebhookEvent(event *webhookEvent) string {
	switch event.Trigger {
	case "STORE_TRANSACTION", "UPDATE_TRANSACTION":
	case "":
		return "Missing required field: trigger"
	default:
		return "Invalid trigger value. Must be one of: STORE_TRANSACTION, UPDATE_TRANSACTION"
	}
	txs := event.Content.Transactions
	if len(txs) == 0 {
		return "At least one transaction is required"
	}
	tx := txs[0]
	if tx.Amount != "" {
		if _, err := decimal.NewFromString(string(tx.Amount)); err != nil {
			return "Amount must be a number"
		}
	}
	if len(tx.Description) > 255 {
		return "Description too long (max 255 characters)"
	}
	return ""
}

func buildEventMessage(event *webhookEvent) string {
	tx := event.Content.Transactions[0]
	description := orDefault(tx.Description, "无描述")
	amount := orDefault(string(tx.Amount), "0")
	category := orDefault(tx.Category, "无分类")
	budget := orDefault(tx.Budget, "无预算")

	var action string
	switch event.Trigger {
	case "UPDATE_TRANSACTION":
		action = "您更新了一笔交易"
	default:
		action = "您新增了一笔交易"
	}
	return fmt.Sprintf("%s：%s, 费用：%s，分类：%s，预算：%s。",
		action, description, amount, category, budget)
}

// budgetDigest renders the current-month budget position. A ledger failure
// degrades to an empty digest rather than dropping the notification.
func (s *Server) budgetDigest(r *http.Request, user *domain.UserProfile) string {
	budgets, err := s.ledger.Budgets(r.Context(), creds(user), time.Now())
	if err != nil {
		s.log.Warn("fetching budgets for digest failed",
			zap.String("user", user.UserID), zap.Error(err))
		return ""
	}
	if len(budgets) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n交易处理完成，当前预算情况:")
	for _, budget := range budgets {
		fmt.Fprintf(&b, "\n当月预算: %s，支出：%s，剩余： %s 元",
			budget.Limit.String(), budget.Spent.String(), budget.Remaining.String())
	}
	return b.String()
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
