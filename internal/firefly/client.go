package firefly

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/metalhouse/fleshrecord/internal/domain"
)

const pageSize = 200

// Credentials identifies one user against the ledger API. APIURL may be
// empty, in which case the client's global default applies.
type Credentials struct {
	APIURL      string
	AccessToken string
}

// TransactionQuery selects a ledger data window. An empty Types slice means
// the default filter: withdrawal and deposit only, never transfer. Category
// and Tags are matched client-side; a transaction matches when its category
// equals Category and it carries every listed tag.
type TransactionQuery struct {
	Start    time.Time
	End      time.Time
	Types    []domain.TransactionType
	Category string
	Tags     []string
}

// NewTransaction is the payload for creating a ledger transaction.
type NewTransaction struct {
	Type        domain.TransactionType
	Date        string
	Amount      string
	Description string
	Source      string
	Destination string
	Category    string
	Budget      string
	Tags        []string
}

// Client is a thin HTTP wrapper over the Firefly III API with bearer auth
// and bounded exponential-backoff retry.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

// New creates a ledger client with the given global API base URL.
func New(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

func (c *Client) apiURL(creds Credentials) string {
	if creds.APIURL != "" {
		return strings.TrimRight(creds.APIURL, "/")
	}
	return c.baseURL
}

// defaultTypes is the type filter applied when the caller gives none.
var defaultTypes = []domain.TransactionType{domain.TypeWithdrawal, domain.TypeDeposit}

// Transactions fetches and flattens all transactions in the query window,
// following pagination until the last page.
func (c *Client) Transactions(ctx context.Context, creds Credentials, q TransactionQuery) ([]domain.Transaction, error) {
	types := q.Types
	if len(types) == 0 {
		types = defaultTypes
	}
	allowed := make(map[domain.TransactionType]struct{}, len(types))
	names := make([]string, 0, len(types))
	for _, t := range types {
		allowed[t] = struct{}{}
		names = append(names, string(t))
	}

	var out []domain.Transaction
	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("page", strconv.Itoa(page))
		params.Set("limit", strconv.Itoa(pageSize))
		params.Set("type", strings.Join(names, ","))
		if !q.Start.IsZero() {
			params.Set("start", q.Start.Format("2006-01-02"))
		}
		if !q.End.IsZero() {
			// Firefly's end parameter is inclusive; the query window is
			// half-open, so step back one day.
			params.Set("end", q.End.AddDate(0, 0, -1).Format("2006-01-02"))
		}

		var body txPage
		if err := c.getJSON(ctx, creds, "/transactions?"+params.Encode(), &body); err != nil {
			return nil, &domain.DataFetchError{Op: "transactions", Err: err}
		}

		for _, group := range body.Data {
			for _, split := range group.Attributes.Transactions {
				tx, err := split.toDomain()
				if err != nil {
					c.log.Warn("skipping unparsable transaction split",
						zap.String("description", split.Description), zap.Error(err))
					continue
				}
				if _, ok := allowed[tx.Type]; !ok {
					continue
				}
				if !matches(tx, q) {
					continue
				}
				out = append(out, tx)
			}
		}

		p := body.Meta.Pagination
		if p.CurrentPage >= p.LastPage || len(body.Data) == 0 {
			break
		}
	}
	return out, nil
}

// matches applies the client-side category and tag filters.
func matches(tx domain.Transaction, q TransactionQuery) bool {
	if q.Category != "" && tx.Category != q.Category {
		return false
	}
	for _, tag := range q.Tags {
		if !tx.HasTag(tag) {
			return false
		}
	}
	return true
}

// Budgets aggregates every budget's limit and spend for the calendar month
// containing ref.
func (c *Client) Budgets(ctx context.Context, creds Credentials, ref time.Time) ([]domain.BudgetStatus, error) {
	start := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, ref.Location())
	end := start.AddDate(0, 1, -1)

	var list budgetList
	if err := c.getJSON(ctx, creds, "/budgets", &list); err != nil {
		return nil, &domain.DataFetchError{Op: "budgets", Err: err}
	}

	var out []domain.BudgetStatus
	for _, b := range list.Data {
		path := fmt.Sprintf("/budgets/%s/limits?start=%s&end=%s",
			url.PathEscape(b.ID), start.Format("2006-01-02"), end.Format("2006-01-02"))
		var limits limitList
		if err := c.getJSON(ctx, creds, path, &limits); err != nil {
			return nil, &domain.DataFetchError{Op: "budget limits", Err: err}
		}

		total := decimal.Zero
		spent := decimal.Zero
		for _, l := range limits.Data {
			total = total.Add(parseAmount(l.Attributes.Amount))
			// Spent comes back negative; report it as a positive figure.
			spent = spent.Add(parseAmount(l.Attributes.Spent).Abs())
		}
		remaining := total.Sub(spent)
		if remaining.IsNegative() {
			remaining = decimal.Zero
		}
		out = append(out, domain.BudgetStatus{
			Name:      b.Attributes.Name,
			Limit:     total,
			Spent:     spent,
			Remaining: remaining,
		})
	}
	return out, nil
}

// AddTransaction creates one transaction and returns the ledger's id for it.
func (c *Client) AddTransaction(ctx context.Context, creds Credentials, tx NewTransaction) (string, error) {
	if tx.Type == "" {
		tx.Type = domain.TypeWithdrawal
	}
	payload := map[string]any{
		"transactions": []map[string]any{buildTransactionBody(tx)},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	var created struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.do(ctx, creds, http.MethodPost, "/transactions", raw, &created); err != nil {
		return "", &domain.DataFetchError{Op: "add transaction", Err: err}
	}
	return created.Data.ID, nil
}

func buildTransactionBody(tx NewTransaction) map[string]any {
	body := map[string]any{
		"type":        string(tx.Type),
		"date":        tx.Date,
		"amount":      tx.Amount,
		"description": tx.Description,
	}
	set := func(key, val string) {
		if val != "" {
			body[key] = val
		}
	}
	set("source_name", tx.Source)
	set("destination_name", tx.Destination)
	set("category_name", tx.Category)
	set("budget_name", tx.Budget)
	if len(tx.Tags) > 0 {
		body["tags"] = tx.Tags
	}
	return body
}

func (c *Client) getJSON(ctx context.Context, creds Credentials, path string, out any) error {
	return c.do(ctx, creds, http.MethodGet, path, nil, out)
}

// do performs one authenticated request with retry. 4xx responses are
// permanent; network errors and 5xx are retried up to two more times.
func (c *Client) do(ctx context.Context, creds Credentials, method, path string, body []byte, out any) error {
	op := func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.apiURL(creds)+path, reader)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			err := fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(msg))
			if resp.StatusCode < 500 {
				return backoff.Permanent(err)
			}
			return err
		}
		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, 2), ctx))
}

func parseAmount(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
