package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/okian/homework/internal/domain/webhook"
)

const maxErrorBody = 4 << 10

type linkRequest struct {
	ParticipantAddress string `json:"participantAddress"`
	Username           string `json:"username"`
}

// Client talks to a running homework service.
type Client struct {
	baseURL  string
	secret   string
	adminKey string
	client   *http.Client
}

// NewClient creates a client for cfg.BaseURL.
func NewClient(cfg *Config) *Client {
	return &Client{
		baseURL:  cfg.BaseURL,
		secret:   cfg.Secret,
		adminKey: cfg.AdminKey,
		client:   &http.Client{Timeout: cfg.Timeout},
	}
}

// WithHTTPClient replaces the underlying http.Client, e.g. for an httptest server.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.client = hc
	}
	return c
}

// Health checks /healthz.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/healthz", nil, nil)
	if err != nil {
		return err
	}
	return drain(resp, http.StatusOK)
}

// Link creates the identity link of p through the admin route.
func (c *Client) Link(ctx context.Context, p Participant) error {
	body, err := json.Marshal(linkRequest{ParticipantAddress: p.Address, Username: p.Username})
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, http.MethodPost, "/admin/links", bytes.NewReader(body), map[string]string{
		"Content-Type": "application/json",
		"X-API-Key":    c.adminKey,
	})
	if err != nil {
		return err
	}
	return drain(resp, http.StatusCreated)
}

// Deliver sends a signed push delivery under deliveryID.
func (c *Client) Deliver(ctx context.Context, deliveryID string, body []byte) (DeliveryResult, error) {
	resp, err := c.do(ctx, http.MethodPost, "/webhooks/github", bytes.NewReader(body), map[string]string{
		"Content-Type":          "application/json",
		webhook.DeliveryHeader:  deliveryID,
		webhook.EventHeader:     webhook.PushEventName,
		webhook.SignatureHeader: webhook.Sign(c.secret, body),
	})
	if err != nil {
		return DeliveryResult{}, err
	}
	var out DeliveryResult
	err = decode(resp, &out)
	return out, err
}

// Progress fetches the progress of participant.
func (c *Client) Progress(ctx context.Context, participant string) (Progress, error) {
	resp, err := c.do(ctx, http.MethodGet, "/homework/progress?participant="+url.QueryEscape(participant), nil, nil)
	if err != nil {
		return Progress{}, err
	}
	var out Progress
	err = decode(resp, &out)
	return out, err
}

// Leaderboard fetches the top n entries.
func (c *Client) Leaderboard(ctx context.Context, n int) ([]ScoreEntry, error) {
	resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/leaderboard?limit=%d", n), nil, nil)
	if err != nil {
		return nil, err
	}
	var out []ScoreEntry
	err = decode(resp, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

func decode(resp *http.Response, out any) error {
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func drain(resp *http.Response, want int) error {
	defer resp.Body.Close()
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode != want {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}
