package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/okian/homework/pkg/metrics"
)

// TokenGetter supplies installation tokens. *TokenCache implements it.
type TokenGetter interface {
	Get(ctx context.Context) (string, error)
	Invalidate()
}

// PushResult describes the committed file.
type PushResult struct {
	CommitSHA string `json:"commitRef"`
	BlobSHA   string `json:"sha"`
	URL       string `json:"url"`
}

// Client writes files into one repository through the contents API.
type Client struct {
	apiURL string
	owner  string
	repo   string
	tokens TokenGetter
	client *http.Client
}

// NewClient creates a contents client for owner/repo.
func NewClient(owner, repo string, tokens TokenGetter, opts ...ClientOption) *Client {
	c := &Client{
		apiURL: DefaultAPIURL,
		owner:  owner,
		repo:   repo,
		tokens: tokens,
		client: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type contentResponse struct {
	SHA string `json:"sha"`
}

type putRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
}

type putResponse struct {
	Content struct {
		SHA     string `json:"sha"`
		HTMLURL string `json:"html_url"`
	} `json:"content"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

// PushFile creates path, or updates it when it already exists.
func (c *Client) PushFile(ctx context.Context, path string, content []byte, message string) (PushResult, error) {
	if c.tokens == nil || c.owner == "" || c.repo == "" {
		return PushResult{}, ErrNotConfigured
	}
	res, err := c.push(ctx, path, content, message)
	if err != nil {
		metrics.RecordDeliverablePushed("failed")
		return PushResult{}, err
	}
	metrics.RecordDeliverablePushed("ok")
	return res, nil
}

func (c *Client) push(ctx context.Context, path string, content []byte, message string) (PushResult, error) {
	token, err := c.tokens.Get(ctx)
	if err != nil {
		return PushResult{}, err
	}
	endpoint := c.contentsURL(path)

	sha, err := c.existingSHA(ctx, endpoint, token)
	if err != nil {
		return PushResult{}, err
	}
	body, err := json.Marshal(putRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(content),
		SHA:     sha,
	})
	if err != nil {
		return PushResult{}, fmt.Errorf("%w: %w", ErrPushFailed, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return PushResult{}, fmt.Errorf("%w: %w", ErrPushFailed, err)
	}
	setHeaders(req, token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return PushResult{}, fmt.Errorf("%w: %w", ErrPushFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		c.tokens.Invalidate()
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return PushResult{}, fmt.Errorf("%w: status %d: %s", ErrPushFailed, resp.StatusCode, readMessage(resp.Body))
	}
	var out putResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return PushResult{}, fmt.Errorf("%w: decode: %w", ErrPushFailed, err)
	}
	return PushResult{CommitSHA: out.Commit.SHA, BlobSHA: out.Content.SHA, URL: out.Content.HTMLURL}, nil
}

// existingSHA returns the blob sha of the current file, or "" when absent.
func (c *Client) existingSHA(ctx context.Context, endpoint, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPushFailed, err)
	}
	setHeaders(req, token)
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPushFailed, err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		var cur contentResponse
		if err := json.NewDecoder(resp.Body).Decode(&cur); err != nil {
			return "", fmt.Errorf("%w: decode: %w", ErrPushFailed, err)
		}
		return cur.SHA, nil
	case http.StatusNotFound:
		return "", nil
	case http.StatusUnauthorized:
		c.tokens.Invalidate()
	}
	return "", fmt.Errorf("%w: status %d: %s", ErrPushFailed, resp.StatusCode, readMessage(resp.Body))
}

func (c *Client) contentsURL(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		c.apiURL, url.PathEscape(c.owner), url.PathEscape(c.repo), strings.Join(segments, "/"))
}
