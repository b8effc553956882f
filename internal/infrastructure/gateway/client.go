// Package gateway talks to the card payment provider: refund submission and
// verification of its signed completion callbacks.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"hivepos/internal/domain/refund"
)

const defaultTimeout = 15 * time.Second

// Config configures the refund client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client implements refund.Gateway over the provider's REST API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

var _ refund.Gateway = (*Client)(nil)

// NewClient creates a refund client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
	}
}

type refundRequest struct {
	PaymentReference string `json:"paymentReference"`
	Amount           string `json:"amount"`
	ClientReference  string `json:"clientReference"`
}

type refundResponse struct {
	Reference string `json:"reference"`
	Message   string `json:"message,omitempty"`
}

// Refund submits the refund. The refund number is sent as the client
// reference and as the Idempotency-Key so a retried call is not paid twice.
func (c *Client) Refund(ctx context.Context, req refund.GatewayRequest) (string, error) {
	body, err := json.Marshal(refundRequest{
		PaymentReference: req.PaymentReference,
		Amount:           req.Amount.StringFixed(2),
		ClientReference:  req.RefundNumber,
	})
	if err != nil {
		return "", fmt.Errorf("marshal refund request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/refunds", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build refund request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Idempotency-Key", req.RefundNumber)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("call gateway: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read gateway response: %w", err)
	}

	var out refundResponse
	_ = json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := out.Message
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return "", fmt.Errorf("gateway returned %d: %s", resp.StatusCode, msg)
	}
	if out.Reference == "" {
		return "", fmt.Errorf("gateway response has no reference")
	}
	return out.Reference, nil
}
