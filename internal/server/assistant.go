package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/metalhouse/fleshrecord/internal/domain"
	"github.com/metalhouse/fleshrecord/internal/firefly"
)

// assistantRequest is the AI-assistant query shape: which read-only ledger
// endpoint to hit and with what parameters. query_parameters arrives either
// as an object or as a "k=v&k=v" string, depending on the workflow node.
type assistantRequest struct {
	APIEndpoint     string          `json:"api_endpoint"`
	Method          string          `json:"method"`
	QueryParameters json.RawMessage `json:"query_parameters"`
}

type assistantTransaction struct {
	Amount      float64 `json:"amount"`
	Date        string  `json:"date"`
	Description string  `json:"description"`
}

// handleAssistant routes an assistant query to the transactions or budgets
// lookup. Only GET against those two endpoints is allowed; everything else
// is rejected before touching the ledger.
func (s *Server) handleAssistant(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	var req assistantRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxWebhookBody)).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request data")
		return
	}
	if req.Method != "" && !strings.EqualFold(req.Method, http.MethodGet) {
		s.respondError(w, http.StatusBadRequest, "仅支持GET方法")
		return
	}

	params := parseQueryParams(req.QueryParameters)
	endpoint := strings.ToLower(strings.TrimSpace(req.APIEndpoint))

	s.log.Info("assistant query",
		zap.String("user", user.UserID),
		zap.String("endpoint", endpoint),
		zap.Any("params", params))

	switch endpoint {
	case "/transactions":
		s.assistantTransactions(w, r, user, params)
	case "/budgets":
		s.assistantBudgets(w, r, user)
	default:
		s.respondError(w, http.StatusBadRequest, "不支持的API端点: "+req.APIEndpoint)
	}
}

func (s *Server) assistantTransactions(w http.ResponseWriter, r *http.Request, user *domain.UserProfile, params map[string]string) {
	q := firefly.TransactionQuery{
		Category: params["category"],
	}
	if v := params["tags"]; v != "" {
		q.Tags = splitTrim(v)
	}
	// Absent type means the default withdrawal+deposit filter; transfers
	// stay out unless asked for.
	if v := params["type"]; v != "" {
		for _, name := range splitTrim(v) {
			q.Types = append(q.Types, domain.TransactionType(name))
		}
	}
	var err error
	if q.Start, err = parseQueryDate(params["start"], 0); err != nil {
		s.respondError(w, http.StatusBadRequest, "无效的start日期格式")
		return
	}
	// The caller's end date is inclusive; the query window is half-open.
	if q.End, err = parseQueryDate(params["end"], 1); err != nil {
		s.respondError(w, http.StatusBadRequest, "无效的end日期格式")
		return
	}

	txs, err := s.ledger.Transactions(r.Context(), creds(user), q)
	if err != nil {
		s.log.Error("assistant transaction query failed",
			zap.String("user", user.UserID), zap.Error(err))
		s.respondDomainError(w, err)
		return
	}

	list := make([]assistantTransaction, 0, len(txs))
	for _, tx := range txs {
		list = append(list, assistantTransaction{
			Amount:      tx.Amount.InexactFloat64(),
			Date:        tx.Date.Format("2006-01-02"),
			Description: tx.Description,
		})
	}
	s.respond(w, http.StatusOK, "交易记录查询成功", map[string]any{
		"summary":      fmt.Sprintf("共找到 %d 条交易记录", len(list)),
		"transactions": list,
	})
}

func (s *Server) assistantBudgets(w http.ResponseWriter, r *http.Request, user *domain.UserProfile) {
	budgets, err := s.ledger.Budgets(r.Context(), creds(user), time.Now())
	if err != nil {
		s.log.Error("assistant budget query failed",
			zap.String("user", user.UserID), zap.Error(err))
		s.respondDomainError(w, err)
		return
	}
	s.respond(w, http.StatusOK, fmt.Sprintf("成功获取 %d 个预算", len(budgets)), budgets)
}

// parseQueryParams accepts a JSON object, a JSON-encoded string holding
// either an object or a query string, or nothing.
func parseQueryParams(raw json.RawMessage) map[string]string {
	params := map[string]string{}
	if len(raw) == 0 {
		return params
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		for k, v := range obj {
			params[k] = str(v)
		}
		return params
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return params
	}
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "{") {
		if err := json.Unmarshal([]byte(s), &obj); err == nil {
			for k, v := range obj {
				params[k] = str(v)
			}
		}
		return params
	}
	for _, pair := range strings.Split(s, "&") {
		if k, v, ok := strings.Cut(pair, "="); ok {
			params[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	return params
}

func parseQueryDate(s string, addDays int) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	return t.AddDate(0, 0, addDays), nil
}

func splitTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
