package report

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/metalhouse/fleshrecord/internal/dify"
	"github.com/metalhouse/fleshrecord/internal/domain"
	"github.com/metalhouse/fleshrecord/internal/firefly"
)

type stubLedger struct {
	txs   []domain.Transaction
	err   error
	gotQ  firefly.TransactionQuery
	calls int
}

func (l *stubLedger) Transactions(_ context.Context, _ firefly.Credentials, q firefly.TransactionQuery) ([]domain.Transaction, error) {
	l.calls++
	l.gotQ = q
	return l.txs, l.err
}

type stubWorkflow struct {
	answer    string
	err       error
	gotPrompt string
	calls     int
}

func (w *stubWorkflow) GenerateReport(_ context.Context, _ dify.Credentials, _ domain.ReportKind, prompt, _ string) (string, error) {
	w.calls++
	w.gotPrompt = prompt
	return w.answer, w.err
}

type stubNotifier struct {
	err    error
	gotURL string
	gotMsg string
	calls  int
}

func (n *stubNotifier) Send(_ context.Context, url, msg string) error {
	n.calls++
	n.gotURL = url
	n.gotMsg = msg
	return n.err
}

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func testUser() *domain.UserProfile {
	return &domain.UserProfile{
		UserID:              "dad",
		FireflyAccessToken:  "tok",
		WebhookURL:          "https://hooks.example.com/x",
		NotificationEnabled: true,
		Language:            "zh",
		Dify:                domain.DifyConfig{Enabled: true, APIKey: "k", WorkflowID: "w"},
		Reports: domain.ReportSchedule{
			Daily: domain.KindSchedule{Enabled: true, At: "23:00", Prompt: "自定义日报提示"},
		},
	}
}

func txAt(day int, typ domain.TransactionType, amount, category string) domain.Transaction {
	return domain.Transaction{
		Type:     typ,
		Date:     time.Date(2025, time.June, day, 12, 0, 0, 0, time.UTC),
		Amount:   dec(amount),
		Category: category,
	}
}

func TestGenerate_UsesWorkflowAnswer(t *testing.T) {
	ledger := &stubLedger{txs: []domain.Transaction{
		txAt(10, domain.TypeWithdrawal, "42.50", "餐饮"),
	}}
	wf := &stubWorkflow{answer: "今日财务分析：支出 42.50 元，注意餐饮开销。"}
	svc := NewService(ledger, wf, &stubNotifier{}, zap.NewNop())

	now := time.Date(2025, time.June, 10, 23, 0, 0, 0, time.UTC)
	res, err := svc.Generate(context.Background(), testUser(), domain.KindDaily, now)
	require.NoError(t, err)

	assert.Equal(t, domain.KindDaily, res.Kind)
	assert.Equal(t, "2025-06-10", res.Period)
	assert.False(t, res.Fallback)
	assert.Contains(t, res.Message, "42.50")
	assert.Equal(t, "自定义日报提示", wf.gotPrompt)

	// The ledger window is the full calendar day.
	assert.Equal(t, 10, ledger.gotQ.Start.Day())
	assert.Equal(t, 11, ledger.gotQ.End.Day())
}

func TestGenerate_DefaultPromptWhenUnset(t *testing.T) {
	user := testUser()
	user.Reports.Daily.Prompt = ""
	wf := &stubWorkflow{answer: "今日财务报告：无交易。"}
	svc := NewService(&stubLedger{}, wf, &stubNotifier{}, zap.NewNop())

	_, err := svc.Generate(context.Background(), user, domain.KindDaily, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "请生成今日财务报告", wf.gotPrompt)
}

func TestGenerate_LedgerFailurePropagates(t *testing.T) {
	ledger := &stubLedger{err: &domain.DataFetchError{Op: "transactions", Err: assert.AnError}}
	wf := &stubWorkflow{}
	svc := NewService(ledger, wf, &stubNotifier{}, zap.NewNop())

	_, err := svc.Generate(context.Background(), testUser(), domain.KindDaily, time.Now())
	var fetchErr *domain.DataFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Zero(t, wf.calls, "workflow must not run on fetch failure")
}

func TestGenerate_WorkflowFailurePropagates(t *testing.T) {
	wf := &stubWorkflow{err: &domain.WorkflowError{Op: "daily report", Err: assert.AnError}}
	svc := NewService(&stubLedger{}, wf, &stubNotifier{}, zap.NewNop())

	_, err := svc.Generate(context.Background(), testUser(), domain.KindDaily, time.Now())
	var wfErr *domain.WorkflowError
	require.ErrorAs(t, err, &wfErr)
}

func TestGenerate_ImplausibleAnswerFallsBack(t *testing.T) {
	wf := &stubWorkflow{answer: `{"api_endpoint":"/transactions","query_parameters":{}} 这里有收入支出交易财务数据`}
	ledger := &stubLedger{txs: []domain.Transaction{
		txAt(10, domain.TypeWithdrawal, "10.00", "餐饮"),
	}}
	svc := NewService(ledger, wf, &stubNotifier{}, zap.NewNop())

	now := time.Date(2025, time.June, 10, 23, 0, 0, 0, time.UTC)
	res, err := svc.Generate(context.Background(), testUser(), domain.KindDaily, now)
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Contains(t, res.Message, "每日财务报告")
	assert.Contains(t, res.Message, "¥10.00")
}

func TestGenerate_WorkflowDisabledUsesFallback(t *testing.T) {
	user := testUser()
	user.Dify.Enabled = false
	wf := &stubWorkflow{}
	svc := NewService(&stubLedger{}, wf, &stubNotifier{}, zap.NewNop())

	res, err := svc.Generate(context.Background(), user, domain.KindDaily, time.Now())
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Zero(t, wf.calls)
	assert.Contains(t, res.Message, "本期无交易记录")
}

func TestDeliver(t *testing.T) {
	n := &stubNotifier{}
	svc := NewService(&stubLedger{}, &stubWorkflow{}, n, zap.NewNop())

	res := &domain.ReportResult{Kind: domain.KindDaily, Message: "内容"}
	require.NoError(t, svc.Deliver(context.Background(), testUser(), res))
	assert.Equal(t, "https://hooks.example.com/x", n.gotURL)
	assert.Contains(t, n.gotMsg, "📊 财务日报")
	assert.Contains(t, n.gotMsg, "内容")
}

func TestDeliver_NotificationsDisabledSkips(t *testing.T) {
	n := &stubNotifier{}
	svc := NewService(&stubLedger{}, &stubWorkflow{}, n, zap.NewNop())

	user := testUser()
	user.NotificationEnabled = false
	res := &domain.ReportResult{Kind: domain.KindDaily, Message: "内容"}
	require.NoError(t, svc.Deliver(context.Background(), user, res))
	assert.Zero(t, n.calls)
}

func TestDeliver_FailurePropagates(t *testing.T) {
	n := &stubNotifier{err: &domain.DeliveryError{Err: assert.AnError}}
	svc := NewService(&stubLedger{}, &stubWorkflow{}, n, zap.NewNop())

	err := svc.Deliver(context.Background(), testUser(), &domain.ReportResult{Kind: domain.KindDaily, Message: "x"})
	var delErr *domain.DeliveryError
	require.ErrorAs(t, err, &delErr)
}

func TestSummarize(t *testing.T) {
	txs := []domain.Transaction{
		txAt(10, domain.TypeWithdrawal, "30.00", "餐饮"),
		txAt(11, domain.TypeWithdrawal, "20.00", "餐饮"),
		txAt(12, domain.TypeDeposit, "100.00", ""),
		txAt(13, domain.TypeWithdrawal, "5.50", ""),
	}
	s := Summarize(txs)

	assert.Equal(t, 4, s.Count)
	assert.Equal(t, "100", s.Income.String())
	assert.Equal(t, "55.5", s.Expense.String())
	assert.Equal(t, "44.5", s.Net.String())
	assert.Equal(t, "50", s.Categories["餐饮"].String())
	assert.Equal(t, "5.5", s.Categories["未分类"].String())
	// Recent entries are newest first.
	require.NotEmpty(t, s.Recent)
	assert.Equal(t, 13, s.Recent[0].Date.Day())
}

func TestSummaryFormat(t *testing.T) {
	s := Summarize([]domain.Transaction{txAt(10, domain.TypeWithdrawal, "30.00", "餐饮")})
	start := time.Date(2025, time.June, 10, 0, 0, 0, 0, time.UTC)
	text := s.Format(start, start.AddDate(0, 0, 1))

	assert.Contains(t, text, "=== 统计摘要 ===")
	assert.Contains(t, text, "交易总数: 1")
	assert.Contains(t, text, "总支出: 30.00")
	assert.Contains(t, text, "餐饮: 30.00")
	assert.Contains(t, text, "2025-06-10 至 2025-06-10")
}
