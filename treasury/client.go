// Package treasury is the HTTP client of the external balance service that
// holds appreciation tokens and executes settlement transfers
package treasury

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/screwyprof/luvsettle/claim"
	"github.com/screwyprof/luvsettle/ledger"
	"github.com/screwyprof/luvsettle/settlement"
)

// Sentinel errors for client operations
var (
	ErrRequestFailed    = errors.New("treasury request failed")
	ErrUnexpectedStatus = errors.New("unexpected treasury status")
	ErrDecodeFailed     = errors.New("treasury response decoding failed")
)

// IdempotencyKeyHeader carries the debit token or batch key
const IdempotencyKeyHeader = "Idempotency-Key"

// Client talks to the treasury API
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
}

// Option configures the Client
type Option func(*Client)

// WithRateLimit caps the request rate sent to the treasury
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(limit, burst) }
}

// NewClient creates a treasury client with a custom HTTP client and base URL
func NewClient(httpClient *http.Client, baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		limiter:    rate.NewLimiter(rate.Inf, 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewDefaultClient creates a client with a 30s timeout
func NewDefaultClient(baseURL string) *Client {
	return NewClient(&http.Client{Timeout: 30 * time.Second}, baseURL)
}

// BalanceResponse is the body of GET /v1/accounts/{account}/balance
type BalanceResponse struct {
	Account string `json:"account"`
	Balance int64  `json:"balance"`
}

// DebitRequest is the body of POST /v1/debits
type DebitRequest struct {
	Account string `json:"account"`
	Amount  int64  `json:"amount"`
}

// BatchRequest is the body of POST /v1/batches. Escrow names the debit
// token that funds the batch.
type BatchRequest struct {
	Escrow    string                `json:"escrow,omitempty"`
	Transfers []settlement.Transfer `json:"transfers"`
}

// Balance returns the current balance of account
func (c *Client) Balance(ctx context.Context, account string) (int64, error) {
	path := fmt.Sprintf("/v1/accounts/%s/balance", url.PathEscape(account))

	var body BalanceResponse
	if err := c.do(ctx, http.MethodGet, path, "", nil, &body); err != nil {
		return 0, err
	}
	return body.Balance, nil
}

// HasBalance reports whether account holds at least amount
func (c *Client) HasBalance(ctx context.Context, account string, amount int64) (bool, error) {
	balance, err := c.Balance(ctx, account)
	if err != nil {
		return false, err
	}
	return balance >= amount, nil
}

// Debit withdraws amount from account. The token is sent as the idempotency
// key. A token that was already reversed is answered with 410 Gone, withdraws
// nothing and fails with ledger.ErrDebitVoided.
func (c *Client) Debit(ctx context.Context, account string, amount int64, token string) error {
	return c.do(ctx, http.MethodPost, "/v1/debits", token, DebitRequest{Account: account, Amount: amount}, nil)
}

// ReverseDebit undoes the debit made under token, or voids the token if no
// such debit arrived yet
func (c *Client) ReverseDebit(ctx context.Context, token string) error {
	path := fmt.Sprintf("/v1/debits/%s/reversal", url.PathEscape(token))
	return c.do(ctx, http.MethodPost, path, token, nil, nil)
}

// Commit executes the batch atomically under its key
func (c *Client) Commit(ctx context.Context, batch settlement.Batch) error {
	return c.do(ctx, http.MethodPost, "/v1/batches", batch.Key, BatchRequest{Escrow: batch.Escrow, Transfers: batch.Transfers}, nil)
}

func (c *Client) do(ctx context.Context, method, path, key string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%w: encoding request: %w", ErrRequestFailed, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%w: creating request: %w", ErrRequestFailed, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: making request: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusPaymentRequired:
		return fmt.Errorf("%w: %s %s", claim.ErrInsufficientBalance, method, path)
	case resp.StatusCode == http.StatusGone:
		return fmt.Errorf("%w: %s %s", ledger.ErrDebitVoided, method, path)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%w: %d from %s %s", ErrUnexpectedStatus, resp.StatusCode, method, path)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}
	return nil
}
