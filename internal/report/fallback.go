package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/metalhouse/fleshrecord/internal/domain"
)

var fallbackTitles = map[domain.ReportKind]map[string]string{
	domain.KindDaily:   {"zh": "📊 每日财务报告", "en": "📊 Daily Financial Report"},
	domain.KindWeekly:  {"zh": "📈 每周财务报告", "en": "📈 Weekly Financial Report"},
	domain.KindMonthly: {"zh": "📋 每月财务报告", "en": "📋 Monthly Financial Report"},
	domain.KindYearly:  {"zh": "📊 年度财务报告", "en": "📊 Yearly Financial Report"},
}

// fallbackReport renders a report locally from the summary alone. Used when
// the workflow is disabled for the user or its answer fails the plausibility
// check; the fire still succeeds and the period is consumed.
func fallbackReport(kind domain.ReportKind, s Summary, start, end time.Time, lang string) string {
	if lang != "en" {
		lang = "zh"
	}
	title := fallbackTitles[kind][lang]
	sep := " 至 "
	if lang == "en" {
		sep = " to "
	}
	period := start.Format("2006-01-02") + sep + end.AddDate(0, 0, -1).Format("2006-01-02")

	var b strings.Builder
	if lang == "en" {
		b.WriteString(title + "\n")
		b.WriteString("━━━━━━━━━━━━━━━━━━━━\n")
		fmt.Fprintf(&b, "📅 Period: %s\n\n", period)
		b.WriteString("💰 Overview:\n")
		fmt.Fprintf(&b, "• Income: %s\n", s.Income.StringFixed(2))
		fmt.Fprintf(&b, "• Expense: %s\n", s.Expense.StringFixed(2))
		fmt.Fprintf(&b, "• Net: %s\n", s.Net.StringFixed(2))
		fmt.Fprintf(&b, "• Transactions: %d\n\n", s.Count)
		b.WriteString("📊 Analysis:\n")
		switch {
		case s.Count == 0:
			b.WriteString("• No transactions recorded this period")
		case s.Net.IsPositive():
			fmt.Fprintf(&b, "• Net income of %s this period", s.Net.StringFixed(2))
		case s.Net.IsNegative():
			fmt.Fprintf(&b, "• Net spend of %s this period", s.Net.Abs().StringFixed(2))
		default:
			b.WriteString("• Income and spending balanced out")
		}
		return b.String()
	}

	b.WriteString(title + "\n")
	b.WriteString("━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(&b, "📅 统计期间：%s\n\n", period)
	b.WriteString("💰 财务概况：\n")
	fmt.Fprintf(&b, "• 总收入：¥%s\n", s.Income.StringFixed(2))
	fmt.Fprintf(&b, "• 总支出：¥%s\n", s.Expense.StringFixed(2))
	fmt.Fprintf(&b, "• 净收入：¥%s\n", s.Net.StringFixed(2))
	fmt.Fprintf(&b, "• 交易笔数：%d\n\n", s.Count)
	b.WriteString("📊 财务分析：\n")
	switch {
	case s.Count == 0:
		b.WriteString("• 本期无交易记录\n• 建议关注日常消费记录")
	case s.Net.IsPositive():
		fmt.Fprintf(&b, "• 本期实现净收入 ¥%s\n• 财务状况良好，继续保持", s.Net.StringFixed(2))
	case s.Net.IsNegative():
		fmt.Fprintf(&b, "• 本期净支出 ¥%s\n• 建议控制支出，关注预算管理", s.Net.Abs().StringFixed(2))
	default:
		b.WriteString("• 本期收支平衡\n• 财务状况稳定")
	}
	b.WriteString("\n\n💡 温馨提示：定期记录和分析财务数据有助于更好地管理个人财务。")
	return b.String()
}
