package report

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/metalhouse/fleshrecord/internal/dify"
	"github.com/metalhouse/fleshrecord/internal/domain"
	"github.com/metalhouse/fleshrecord/internal/firefly"
)

// Ledger is the slice of the ledger client the report service needs.
type Ledger interface {
	Transactions(ctx context.Context, creds firefly.Credentials, q firefly.TransactionQuery) ([]domain.Transaction, error)
}

// Workflow generates report text from a prompt and a financial summary.
type Workflow interface {
	GenerateReport(ctx context.Context, creds dify.Credentials, kind domain.ReportKind, prompt, summary string) (string, error)
}

// Notifier delivers a text message to a webhook endpoint.
type Notifier interface {
	Send(ctx context.Context, webhookURL, message string) error
}

// Service turns a due (user, kind) trigger into a delivered report.
type Service struct {
	ledger   Ledger
	workflow Workflow
	notifier Notifier
	log      *zap.Logger
}

// NewService wires the report pipeline.
func NewService(ledger Ledger, workflow Workflow, notifier Notifier, log *zap.Logger) *Service {
	return &Service{ledger: ledger, workflow: workflow, notifier: notifier, log: log}
}

// defaultPrompts is used when the user's schedule carries no prompt template.
var defaultPrompts = map[domain.ReportKind]string{
	domain.KindDaily:   "请生成今日财务报告",
	domain.KindWeekly:  "请生成本周财务报告",
	domain.KindMonthly: "请生成本月财务报告",
	domain.KindYearly:  "请生成本年度财务报告",
}

// Generate produces a report for the recurrence period containing now.
// Ledger failures surface as *domain.DataFetchError and workflow failures as
// *domain.WorkflowError; both are retryable at the scheduler level. A
// workflow answer that is not a plausible financial report is replaced by a
// locally formatted fallback rather than failing the fire.
func (s *Service) Generate(ctx context.Context, user *domain.UserProfile, kind domain.ReportKind, now time.Time) (*domain.ReportResult, error) {
	start, end := kind.Range(now)

	txs, err := s.ledger.Transactions(ctx, firefly.Credentials{
		APIURL:      user.FireflyAPIURL,
		AccessToken: user.FireflyAccessToken,
	}, firefly.TransactionQuery{Start: start, End: end})
	if err != nil {
		return nil, err
	}

	summary := Summarize(txs)
	summaryText := summary.Format(start, end)

	prompt := user.Reports.Kind(kind).Prompt
	if strings.TrimSpace(prompt) == "" {
		prompt = defaultPrompts[kind]
	}

	result := &domain.ReportResult{
		Kind:        kind,
		Period:      kind.PeriodKey(now),
		GeneratedAt: now,
	}

	if !user.Dify.Enabled {
		s.log.Info("workflow disabled, using fallback report",
			zap.String("user", user.UserID), zap.String("kind", string(kind)))
		result.Message = fallbackReport(kind, summary, start, end, user.Language)
		result.Fallback = true
		return result, nil
	}

	answer, err := s.workflow.GenerateReport(ctx, dify.Credentials{
		APIKey:     user.Dify.APIKey,
		WorkflowID: user.Dify.WorkflowID,
	}, kind, prompt, summaryText)
	if err != nil {
		return nil, err
	}

	answer = strings.ReplaceAll(answer, `\n`, "\n")
	if !plausibleReport(answer) {
		s.log.Warn("workflow answer rejected, using fallback report",
			zap.String("user", user.UserID), zap.String("kind", string(kind)))
		result.Message = fallbackReport(kind, summary, start, end, user.Language)
		result.Fallback = true
		return result, nil
	}

	result.Message = answer
	return result, nil
}

// Deliver formats the titled message and pushes it to the user's webhook.
// Users with notifications disabled are skipped without error.
func (s *Service) Deliver(ctx context.Context, user *domain.UserProfile, res *domain.ReportResult) error {
	if !user.NotificationEnabled {
		s.log.Info("notifications disabled, skipping delivery", zap.String("user", user.UserID))
		return nil
	}
	message := titleFor(res.Kind, user.Language) + "\n\n" + res.Message
	return s.notifier.Send(ctx, user.WebhookURL, message)
}

var titles = map[domain.ReportKind]map[string]string{
	domain.KindDaily:   {"zh": "📊 财务日报", "en": "📊 Daily Financial Report"},
	domain.KindWeekly:  {"zh": "📈 财务周报", "en": "📈 Weekly Financial Report"},
	domain.KindMonthly: {"zh": "📋 财务月报", "en": "📋 Monthly Financial Report"},
	domain.KindYearly:  {"zh": "📊 财务年报", "en": "📊 Yearly Financial Report"},
}

func titleFor(kind domain.ReportKind, lang string) string {
	if t, ok := titles[kind][lang]; ok {
		return t
	}
	return titles[kind]["zh"]
}

// reportKeywords gate workflow answers: text mentioning none of these is
// almost certainly an echo of the tool-call payload, not a report.
var reportKeywords = []string{
	"收入", "支出", "余额", "交易", "财务", "报告", "分析", "总计",
	"income", "expense", "balance", "transaction", "report",
}

func plausibleReport(content string) bool {
	trimmed := strings.TrimSpace(content)
	if len(trimmed) < 20 {
		return false
	}
	if strings.Contains(trimmed, "api_endpoint") || strings.Contains(trimmed, "query_parameters") {
		return false
	}
	lower := strings.ToLower(trimmed)
	for _, kw := range reportKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
