// Package payments is the REST client for the external transfer executor,
// which moves funds and asset ownership after a sale commits. Transfers are
// asynchronous from the marketplace's perspective: a commit is never rolled
// back on executor failure, the sale's transfer state records the outcome.
package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/blockmart/marketd/internal/domain"
)

// Client is the REST client for the transfer executor API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new payments client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  strings.TrimSpace(apiKey),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// transferRequest is the executor's wire format. Amounts are micro-units.
type transferRequest struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type transferResponse struct {
	Signature string `json:"signature"`
	Error     string `json:"error"`
}

// TransferFunds asks the executor to move amount from one wallet to another.
// The returned receipt carries the executor's transaction signature.
func (c *Client) TransferFunds(ctx context.Context, from, to string, amount int64, currency domain.Currency) (domain.TransferReceipt, error) {
	payload, err := json.Marshal(transferRequest{
		From:     from,
		To:       to,
		Amount:   amount,
		Currency: string(currency),
	})
	if err != nil {
		return domain.TransferReceipt{}, fmt.Errorf("payments: encode transfer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transfers", bytes.NewReader(payload))
	if err != nil {
		return domain.TransferReceipt{}, fmt.Errorf("payments: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.TransferReceipt{}, fmt.Errorf("payments: executing transfer: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.TransferReceipt{}, fmt.Errorf("payments: reading response: %w", err)
	}

	var out transferResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return domain.TransferReceipt{}, fmt.Errorf("payments: decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return domain.TransferReceipt{}, fmt.Errorf("payments: transfer rejected (status %d): %s", resp.StatusCode, out.Error)
	}
	if out.Signature == "" {
		return domain.TransferReceipt{}, fmt.Errorf("payments: transfer accepted without signature")
	}

	return domain.TransferReceipt{Signature: out.Signature}, nil
}

var _ domain.PaymentExecutor = (*Client)(nil)
