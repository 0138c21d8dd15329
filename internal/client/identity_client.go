package client

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/haulways/be-driver-payroll/internal/errors"
)

// Identity is the authenticated account behind a session token.
type Identity struct {
	AccountID string
	Email     string
}

// IdentityClientInterface defines the interface for the identity provider
// client.
type IdentityClientInterface interface {
	Whoami(ctx context.Context, sessionToken string) (*Identity, error)
}

// IdentityClient resolves session tokens against the hosted identity
// provider's public session API.
type IdentityClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewIdentityClient validates the provider base URL and returns a client.
func NewIdentityClient(baseURL string) (*IdentityClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, stderrors.New("identity: missing base url")
	}
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, stderrors.New("identity: invalid base url")
	}
	return &IdentityClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}, nil
}

// sessionResponse is the provider's whoami payload. Only the fields the
// access gate needs are decoded.
type sessionResponse struct {
	ID       string `json:"id"`
	Active   bool   `json:"active"`
	Identity struct {
		ID     string `json:"id"`
		Traits struct {
			Email string `json:"email"`
		} `json:"traits"`
	} `json:"identity"`
}

// Whoami resolves a session token to the identity that owns it. An invalid
// or expired token yields UNAUTHORIZED; provider outages yield UNAVAILABLE.
func (c *IdentityClient) Whoami(ctx context.Context, sessionToken string) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/sessions/whoami", nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "identity request failed")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Session-Token", sessionToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnavailable, "identity provider unreachable")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, errors.New(errors.ErrCodeUnauthorized, "invalid session")
	case resp.StatusCode/100 != 2:
		return nil, errors.Newf(errors.ErrCodeUnavailable, "identity provider returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnavailable, "failed to read identity response")
	}

	var session sessionResponse
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnavailable, "malformed identity response")
	}
	if !session.Active || session.Identity.ID == "" {
		return nil, errors.New(errors.ErrCodeUnauthorized, "session is not active")
	}

	return &Identity{
		AccountID: session.Identity.ID,
		Email:     strings.ToLower(strings.TrimSpace(session.Identity.Traits.Email)),
	}, nil
}
