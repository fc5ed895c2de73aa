package github

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultAPIURL is the public GitHub REST endpoint.
	DefaultAPIURL = "https://api.github.com"

	acceptHeader = "application/vnd.github+json"
	apiVersion   = "2022-11-28"
	jwtBackdate  = 60 * time.Second
	jwtLifetime  = 10 * time.Minute
	maxErrorBody = 1024
)

// AppTokenSource exchanges a signed App JWT for an installation token.
type AppTokenSource struct {
	apiURL         string
	appID          string
	installationID string
	key            *rsa.PrivateKey
	client         *http.Client
	now            func() time.Time
}

// NewAppTokenSource parses the App's PEM private key. Escaped "\n" sequences,
// as found in single-line environment values, are turned into newlines.
func NewAppTokenSource(appID, installationID string, privateKeyPEM []byte, opts ...SourceOption) (*AppTokenSource, error) {
	if appID == "" || installationID == "" || len(privateKeyPEM) == 0 {
		return nil, ErrNotConfigured
	}
	pemBytes := []byte(strings.ReplaceAll(string(privateKeyPEM), `\n`, "\n"))
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("parse app private key: %w", err)
	}
	s := &AppTokenSource{
		apiURL:         DefaultAPIURL,
		appID:          appID,
		installationID: installationID,
		key:            key,
		client:         &http.Client{Timeout: 15 * time.Second},
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AppJWT returns a short-lived RS256 token identifying the App.
func (s *AppTokenSource) AppJWT() (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now.Add(-jwtBackdate)),
		ExpiresAt: jwt.NewNumericDate(now.Add(jwtLifetime)),
		Issuer:    s.appID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign app jwt: %w", err)
	}
	return signed, nil
}

// Token requests a new installation access token.
func (s *AppTokenSource) Token(ctx context.Context) (Token, error) {
	appJWT, err := s.AppJWT()
	if err != nil {
		return Token{}, err
	}
	url := fmt.Sprintf("%s/app/installations/%s/access_tokens", s.apiURL, s.installationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, http.NoBody)
	if err != nil {
		return Token{}, fmt.Errorf("%w: %w", ErrTokenRequest, err)
	}
	setHeaders(req, appJWT)

	resp, err := s.client.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("%w: %w", ErrTokenRequest, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return Token{}, fmt.Errorf("%w: status %d: %s", ErrTokenRequest, resp.StatusCode, readMessage(resp.Body))
	}
	var tok Token
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return Token{}, fmt.Errorf("%w: decode: %w", ErrTokenRequest, err)
	}
	if tok.Value == "" {
		return Token{}, fmt.Errorf("%w: empty token", ErrTokenRequest)
	}
	return tok, nil
}

func setHeaders(req *http.Request, bearer string) {
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
}

// readMessage extracts GitHub's {"message": ...} error text, falling back to the raw body.
func readMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Message != "" {
		return body.Message
	}
	return strings.TrimSpace(string(raw))
}
