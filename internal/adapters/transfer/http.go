package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/okian/homework/internal/domain/model"
	"github.com/okian/homework/pkg/metrics"
)

const (
	defaultTimeout  = 60 * time.Second
	statusConfirmed = "confirmed"
	maxErrorBody    = 512
)

type transferRequest struct {
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

type transferResponse struct {
	Status string `json:"status"`
	TxHash string `json:"txHash"`
	Error  string `json:"error,omitempty"`
}

// HTTPClient calls a signer service that owns the treasury key.
//
// The signer answers 200 with {"status":"confirmed","txHash":...} once the
// transfer is final. Any other answer is an error; a timeout or a broken
// response is reported as unconfirmed because the tokens may have moved.
type HTTPClient struct {
	endpoint  string
	authToken string
	timeout   time.Duration
	client    *http.Client
	newKey    func() string
}

// NewHTTPClient creates a client for the signer at endpoint.
func NewHTTPClient(endpoint string, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		endpoint: endpoint,
		timeout:  defaultTimeout,
		client:   &http.Client{},
		newKey:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transfer posts one transfer and waits for the signer's confirmation.
func (c *HTTPClient) Transfer(ctx context.Context, to string, amount int64) (string, error) {
	if err := validate(to, amount); err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(transferRequest{To: to, Amount: amount})
	if err != nil {
		return "", fmt.Errorf("encode transfer: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrTransferFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", c.newKey())
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		metrics.RecordTransferFailure(ModeHTTP)
		return "", unconfirmed(err)
	}
	defer resp.Body.Close()
	metrics.RecordTransferLatency(ModeHTTP, float64(time.Since(start).Milliseconds()))

	if resp.StatusCode != http.StatusOK {
		metrics.RecordTransferFailure(ModeHTTP)
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("%w: signer returned %d: %s", model.ErrTransferFailed, resp.StatusCode, bytes.TrimSpace(msg))
	}
	var out transferResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		metrics.RecordTransferFailure(ModeHTTP)
		return "", unconfirmed(fmt.Errorf("decode signer response: %w", err))
	}
	if out.Status != statusConfirmed || out.TxHash == "" {
		metrics.RecordTransferFailure(ModeHTTP)
		return "", unconfirmed(fmt.Errorf("signer status %q", out.Status))
	}
	return out.TxHash, nil
}
