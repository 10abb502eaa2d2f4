package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/metalhouse/fleshrecord/internal/domain"
)

const recentLimit = 10

// Summary is the structured digest of a transaction window that gets
// embedded into the workflow prompt and the fallback report.
type Summary struct {
	Count      int
	Income     decimal.Decimal
	Expense    decimal.Decimal
	Net        decimal.Decimal
	Categories map[string]decimal.Decimal
	Recent     []domain.Transaction
}

// Summarize folds a transaction slice into totals, per-category spend, and
// the most recent entries.
func Summarize(txs []domain.Transaction) Summary {
	s := Summary{
		Income:     decimal.Zero,
		Expense:    decimal.Zero,
		Categories: make(map[string]decimal.Decimal),
	}
	for _, tx := range txs {
		s.Count++
		switch tx.Type {
		case domain.TypeDeposit:
			s.Income = s.Income.Add(tx.Amount)
		case domain.TypeWithdrawal:
			s.Expense = s.Expense.Add(tx.Amount)
			cat := tx.Category
			if cat == "" {
				cat = "未分类"
			}
			s.Categories[cat] = s.Categories[cat].Add(tx.Amount)
		}
	}
	s.Net = s.Income.Sub(s.Expense)

	sorted := make([]domain.Transaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.After(sorted[j].Date) })
	if len(sorted) > recentLimit {
		sorted = sorted[:recentLimit]
	}
	s.Recent = sorted
	return s
}

// Format renders the summary as the plain-text block the workflow consumes.
func (s Summary) Format(start, end time.Time) string {
	var b strings.Builder
	b.WriteString("=== 统计摘要 ===\n")
	fmt.Fprintf(&b, "统计区间: %s 至 %s\n", start.Format("2006-01-02"), end.AddDate(0, 0, -1).Format("2006-01-02"))
	fmt.Fprintf(&b, "交易总数: %d\n", s.Count)
	fmt.Fprintf(&b, "总收入: %s\n", s.Income.StringFixed(2))
	fmt.Fprintf(&b, "总支出: %s\n", s.Expense.StringFixed(2))
	fmt.Fprintf(&b, "净额: %s\n", s.Net.StringFixed(2))

	if len(s.Categories) > 0 {
		b.WriteString("\n=== 分类统计 ===\n")
		names := make([]string, 0, len(s.Categories))
		for name := range s.Categories {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&b, "%s: %s\n", name, s.Categories[name].StringFixed(2))
		}
	}

	if len(s.Recent) > 0 {
		fmt.Fprintf(&b, "\n=== 交易明细 (最近%d条) ===\n", len(s.Recent))
		for _, tx := range s.Recent {
			cat := tx.Category
			if cat == "" {
				cat = "未分类"
			}
			fmt.Fprintf(&b, "%s: %s - %s (%s)\n",
				tx.Date.Format("2006-01-02"), tx.Description, tx.Amount.StringFixed(2), cat)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
