package firefly

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/metalhouse/fleshrecord/internal/domain"
)

// Wire shapes for the Firefly III JSON:API responses. Only the fields this
// service reads are modeled.

type txPage struct {
	Data []struct {
		ID         string `json:"id"`
		Attributes struct {
			Transactions []txSplit `json:"transactions"`
		} `json:"attributes"`
	} `json:"data"`
	Meta struct {
		Pagination struct {
			Total       int `json:"total"`
			CurrentPage int `json:"current_page"`
			LastPage    int `json:"last_page"`
		} `json:"pagination"`
	} `json:"meta"`
}

type txSplit struct {
	Type        string   `json:"type"`
	Date        string   `json:"date"`
	Amount      string   `json:"amount"`
	Description string   `json:"description"`
	Category    string   `json:"category_name"`
	Budget      string   `json:"budget_name"`
	Source      string   `json:"source_name"`
	Destination string   `json:"destination_name"`
	Tags        []string `json:"tags"`
}

func (s txSplit) toDomain() (domain.Transaction, error) {
	amount, err := decimal.NewFromString(s.Amount)
	if err != nil {
		return domain.Transaction{}, err
	}
	date, err := time.Parse(time.RFC3339, s.Date)
	if err != nil {
		// Some installations return bare dates.
		date, err = time.Parse("2006-01-02", s.Date)
		if err != nil {
			return domain.Transaction{}, err
		}
	}
	return domain.Transaction{
		Type:        domain.TransactionType(s.Type),
		Date:        date,
		Amount:      amount,
		Description: s.Description,
		Category:    s.Category,
		Budget:      s.Budget,
		Source:      s.Source,
		Destination: s.Destination,
		Tags:        s.Tags,
	}, nil
}

type budgetList struct {
	Data []struct {
		ID         string `json:"id"`
		Attributes struct {
			Name string `json:"name"`
		} `json:"attributes"`
	} `json:"data"`
}

type limitList struct {
	Data []struct {
		Attributes struct {
			Amount string `json:"amount"`
			Spent  string `json:"spent"`
			Start  string `json:"start"`
		} `json:"attributes"`
	} `json:"data"`
}
