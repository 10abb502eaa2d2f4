package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/metalhouse/fleshrecord/internal/domain"
	"github.com/metalhouse/fleshrecord/internal/firefly"
)

// destinationAliases are the field names upstream tools have been observed
// using for the destination account. First present wins.
var destinationAliases = []string{
	"destination_account", "destination_name", "destination", "dest_account",
	"destination_bank", "dest_bank", "target_account", "to_account",
}

// handleAddTransaction ingests a transaction on behalf of the authenticated
// user, forwards it to the ledger, and sends a confirmation notification.
// The body is either a bare transaction object or the ledger's wrapped
// {"transactions": [ ... ]} shape.
func (s *Server) handleAddTransaction(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	traceID := uuid.NewString()[:8]
	log := s.log.With(zap.String("trace", traceID), zap.String("user", user.UserID))

	raw, err := decodeTransactionBody(r)
	if err != nil {
		log.Warn("invalid transaction body", zap.Error(err))
		s.respondError(w, http.StatusBadRequest, "无效的交易数据格式")
		return
	}

	tx, err := buildNewTransaction(raw)
	if err != nil {
		log.Warn("transaction validation failed", zap.Error(err))
		s.respondError(w, http.StatusBadRequest, "交易数据验证失败: "+err.Error())
		return
	}

	log.Info("transaction accepted",
		zap.String("amount", tx.Amount),
		zap.String("description", truncate(tx.Description, 50)),
		zap.String("category", tx.Category))

	txID, err := s.ledger.AddTransaction(r.Context(), creds(user), tx)
	if err != nil {
		log.Error("creating ledger transaction failed", zap.Error(err))
		s.respondDomainError(w, err)
		return
	}

	if user.NotificationEnabled && user.WebhookURL != "" {
		message := fmt.Sprintf("您新增了一笔交易：%s, 费用：%s，分类：%s，预算：%s。",
			orDefault(tx.Description, "无描述"), tx.Amount,
			orDefault(tx.Category, "无分类"), orDefault(tx.Budget, "无预算"))
		message += s.budgetDigest(r, user)
		if err := s.notifier.Send(r.Context(), user.WebhookURL, message); err != nil {
			// Confirmation is best-effort; the transaction is already booked.
			log.Warn("confirmation notification failed", zap.Error(err))
		}
	}

	s.respond(w, http.StatusCreated, "交易创建成功", map[string]string{"transaction_id": txID})
}

// decodeTransactionBody unwraps the optional {"transactions": [...]} layer
// and returns the first transaction object.
func decodeTransactionBody(r *http.Request) (map[string]any, error) {
	var body map[string]any
	dec := json.NewDecoder(io.LimitReader(r.Body, maxWebhookBody))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return nil, err
	}

	if wrapped, ok := body["transactions"].([]any); ok {
		if len(wrapped) == 0 {
			return nil, fmt.Errorf("transactions list is empty")
		}
		first, ok := wrapped[0].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("transactions[0] is not an object")
		}
		return first, nil
	}
	return body, nil
}

// buildNewTransaction normalizes field aliases and validates the result.
func buildNewTransaction(raw map[string]any) (firefly.NewTransaction, error) {
	var tx firefly.NewTransaction

	tx.Type = domain.TransactionType(str(raw["type"]))
	tx.Date = str(raw["date"])
	tx.Amount = str(raw["amount"])
	tx.Description = str(raw["description"])
	tx.Category = firstOf(raw, "category", "category_name")
	tx.Budget = firstOf(raw, "budget", "budget_name")
	tx.Source = firstOf(raw, "source_account", "source_name")
	tx.Destination = firstOf(raw, destinationAliases...)
	tx.Tags = tagList(raw["tags"])

	if tx.Amount == "" {
		return tx, fmt.Errorf("amount: field required")
	}
	amount, err := decimal.NewFromString(tx.Amount)
	if err != nil {
		return tx, fmt.Errorf("amount: must be a number")
	}
	if !amount.IsPositive() {
		return tx, fmt.Errorf("amount: must be greater than 0")
	}
	if tx.Description == "" {
		return tx, fmt.Errorf("description: field required")
	}
	if len(tx.Description) > 255 {
		return tx, fmt.Errorf("description: too long (max 255 characters)")
	}
	if tx.Date == "" {
		tx.Date = time.Now().Format("2006-01-02")
	}
	return tx, nil
}

func str(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func firstOf(raw map[string]any, keys ...string) string {
	for _, key := range keys {
		if v := str(raw[key]); v != "" {
			return v
		}
	}
	return ""
}

// tagList accepts both a JSON array and a comma-separated string.
func tagList(v any) []string {
	var parts []string
	switch t := v.(type) {
	case string:
		parts = strings.Split(t, ",")
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				parts = append(parts, s)
			}
		}
	default:
		return nil
	}
	var tags []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}

// handleBudgets returns the authenticated user's current-month budget digest.
func (s *Server) handleBudgets(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	budgets, err := s.ledger.Budgets(r.Context(), creds(user), time.Now())
	if err != nil {
		s.log.Error("fetching budgets failed", zap.String("user", user.UserID), zap.Error(err))
		s.respondDomainError(w, err)
		return
	}
	s.respond(w, http.StatusOK, fmt.Sprintf("成功获取 %d 个预算", len(budgets)), budgets)
}
