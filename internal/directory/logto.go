// Package directory resolves users and organizations against the Logto
// management API using a machine-to-machine credential.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/lingzc/dormlife/internal/models"
)

// Directory is the identity lookup surface the service layer depends on.
type Directory interface {
	// ResolveUser returns nil without error when the user does not exist.
	ResolveUser(ctx context.Context, uid string) (*models.User, error)
	// SearchUsers matches usernames by prefix.
	SearchUsers(ctx context.Context, prefix string) ([]models.User, error)
	// OrganizationsOf returns nil without error when the user has none.
	OrganizationsOf(ctx context.Context, uid string) ([]models.Organization, error)
	// OrganizationMembers returns nil without error when the organization
	// does not exist.
	OrganizationMembers(ctx context.Context, oid string) ([]models.User, error)
}

// Client talks to a Logto management API.
type Client struct {
	apiBase      string
	tokenURL     string
	clientID     string
	clientSecret string
	resource     string
	httpc        *http.Client

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// Options configures a Client.
type Options struct {
	// APIBase is the management API root, e.g. https://auth.example.com/api.
	APIBase string
	// TokenURL is the OIDC token endpoint.
	TokenURL string
	ClientID string
	Secret   string
	// Resource is the API resource indicator for the client_credentials
	// grant. Defaults to the Logto management API resource.
	Resource string
	// HTTPClient defaults to a client with a 10s timeout.
	HTTPClient *http.Client
}

// NewClient builds a management API client.
func NewClient(opts Options) *Client {
	c := &Client{
		apiBase:      strings.TrimRight(opts.APIBase, "/"),
		tokenURL:     opts.TokenURL,
		clientID:     opts.ClientID,
		clientSecret: opts.Secret,
		resource:     opts.Resource,
		httpc:        opts.HTTPClient,
	}
	if c.resource == "" {
		c.resource = "https://default.logto.app/api"
	}
	if c.httpc == nil {
		c.httpc = &http.Client{Timeout: 10 * time.Second}
	}
	return c
}

var _ Directory = (*Client)(nil)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// accessToken returns a cached M2M token, refreshing it shortly before
// expiry.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.expiry) {
		return c.token, nil
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"resource":      {c.resource},
		"scope":         {"all"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch m2m token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("fetch m2m token: status %d: %s", resp.StatusCode, body)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decode m2m token: %w", err)
	}
	if tok.ExpiresIn <= 0 {
		tok.ExpiresIn = 3600
	}
	c.token = tok.AccessToken
	// Refresh a minute early so in-flight requests don't race expiry.
	c.expiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	return c.token, nil
}

// get performs an authenticated GET. A 404 yields (false, nil) so callers can
// map missing resources to their own semantics.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) (bool, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return false, err
	}

	u := c.apiBase + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return false, fmt.Errorf("logto GET %s: status %d: %s", path, resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("logto GET %s: decode: %w", path, err)
	}
	return true, nil
}

type logtoUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type logtoOrganization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (c *Client) ResolveUser(ctx context.Context, uid string) (*models.User, error) {
	var u logtoUser
	ok, err := c.get(ctx, "/users/"+url.PathEscape(uid), nil, &u)
	if err != nil || !ok {
		return nil, err
	}
	return &models.User{ID: u.ID, Username: u.Username}, nil
}

func (c *Client) SearchUsers(ctx context.Context, prefix string) ([]models.User, error) {
	q := url.Values{
		"search.username": {prefix + "%"},
		"page":            {"1"},
		"page_size":       {"10"},
	}
	var raw []logtoUser
	if _, err := c.get(ctx, "/users", q, &raw); err != nil {
		return nil, err
	}
	users := make([]models.User, 0, len(raw))
	for _, u := range raw {
		users = append(users, models.User{ID: u.ID, Username: u.Username})
	}
	return users, nil
}

func (c *Client) OrganizationsOf(ctx context.Context, uid string) ([]models.Organization, error) {
	var raw []logtoOrganization
	ok, err := c.get(ctx, "/users/"+url.PathEscape(uid)+"/organizations", nil, &raw)
	if err != nil || !ok {
		return nil, err
	}
	orgs := make([]models.Organization, 0, len(raw))
	for _, o := range raw {
		orgs = append(orgs, models.Organization{ID: o.ID, Name: o.Name})
	}
	return orgs, nil
}

func (c *Client) OrganizationMembers(ctx context.Context, oid string) ([]models.User, error) {
	var raw []logtoUser
	ok, err := c.get(ctx, "/organizations/"+url.PathEscape(oid)+"/users", nil, &raw)
	if err != nil || !ok {
		return nil, err
	}
	users := make([]models.User, 0, len(raw))
	for _, u := range raw {
		users = append(users, models.User{ID: u.ID, Username: u.Username})
	}
	return users, nil
}
