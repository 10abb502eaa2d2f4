package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is a ledger transaction kind.
type TransactionType string

const (
	TypeWithdrawal TransactionType = "withdrawal"
	TypeDeposit    TransactionType = "deposit"
	TypeTransfer   TransactionType = "transfer"
)

// Transaction is one flattened ledger entry (a single split).
type Transaction struct {
	Type        TransactionType
	Date        time.Time
	Amount      decimal.Decimal
	Description string
	Category    string
	Budget      string
	Source      string
	Destination string
	Tags        []string
}

// HasTag reports whether the transaction carries the given tag.
func (t Transaction) HasTag(tag string) bool {
	for _, got := range t.Tags {
		if got == tag {
			return true
		}
	}
	return false
}

// BudgetStatus is the aggregated monthly position of one ledger budget.
type BudgetStatus struct {
	Name      string          `json:"name"`
	Limit     decimal.Decimal `json:"total_budget"`
	Spent     decimal.Decimal `json:"total_spent"`
	Remaining decimal.Decimal `json:"remaining"`
}
