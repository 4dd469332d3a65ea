// Package elec talks to the campus electricity portal and records surplus
// readings for bound dormitories.
package elec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lingzc/dormlife/internal/models"
)

// ErrBadCredentials reports a portal login rejection.
var ErrBadCredentials = errors.New("elec: portal rejected credentials")

// Credential is one portal account.
type Credential struct {
	Username string
	Password string
}

// Reading is a single surplus sample as reported by the portal. Surplus
// already includes the free allowance remainder.
type Reading struct {
	Surplus    decimal.Decimal
	SearchTime time.Time
}

// Portal fetches surplus readings. Implemented by Client and faked in tests.
type Portal interface {
	// Verify checks a credential by performing a login and discarding the
	// session.
	Verify(ctx context.Context, cred Credential) error
	// Surplus logs in with cred and reads the current surplus for the
	// building.
	Surplus(ctx context.Context, cred Credential, building models.ElecBuilding) (Reading, error)
}

// Client is an HTTP client for the portal.
type Client struct {
	loginURL  string
	searchURL string
	timeout   time.Duration
}

// NewClient builds a portal client. loginURL takes the account form POST,
// searchURL the dormitory query POST.
func NewClient(loginURL, searchURL string) *Client {
	return &Client{
		loginURL:  loginURL,
		searchURL: searchURL,
		timeout:   90 * time.Second,
	}
}

var _ Portal = (*Client)(nil)

// login authenticates and returns a client carrying the session cookie.
func (c *Client) login(ctx context.Context, cred Credential) (*http.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	httpc := &http.Client{Jar: jar, Timeout: c.timeout}

	form := url.Values{
		"username": {cred.Username},
		"password": {cred.Password},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("portal login: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return httpc, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, ErrBadCredentials
	default:
		return nil, fmt.Errorf("portal login: status %d", resp.StatusCode)
	}
}

func (c *Client) Verify(ctx context.Context, cred Credential) error {
	_, err := c.login(ctx, cred)
	return err
}

// portalNumber accepts both bare and quoted numbers; the portal is not
// consistent about which it sends.
type portalNumber string

func (n *portalNumber) UnmarshalJSON(b []byte) error {
	*n = portalNumber(strings.Trim(string(b), `"`))
	if *n == "null" {
		*n = ""
	}
	return nil
}

// searchResponse is the portal's search envelope. e is nonzero on portal-side
// errors with m carrying the message.
type searchResponse struct {
	E int    `json:"e"`
	M string `json:"m"`
	D struct {
		Data struct {
			Surplus portalNumber `json:"surplus"`
			FreeEnd portalNumber `json:"freeEnd"`
			Time    string       `json:"time"`
		} `json:"data"`
	} `json:"d"`
}

func (c *Client) Surplus(ctx context.Context, cred Credential, building models.ElecBuilding) (Reading, error) {
	httpc, err := c.login(ctx, cred)
	if err != nil {
		return Reading{}, err
	}

	form := url.Values{
		"partmentId": {building.ApartmentID},
		"floorId":    {building.FloorID},
		"dromNumber": {building.DormitoryID},
		"areaid":     {building.AreaID},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.searchURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Reading{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := httpc.Do(req)
	if err != nil {
		return Reading{}, fmt.Errorf("portal search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Reading{}, fmt.Errorf("portal search: status %d", resp.StatusCode)
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return Reading{}, fmt.Errorf("portal search: decode: %w", err)
	}
	if sr.E != 0 {
		return Reading{}, fmt.Errorf("portal search: %s", sr.M)
	}
	return parseReading(sr)
}

func parseReading(sr searchResponse) (Reading, error) {
	data := sr.D.Data
	if data.Surplus == "" || data.Time == "" {
		return Reading{}, errors.New("portal search: empty surplus or time")
	}
	surplus, err := decimal.NewFromString(string(data.Surplus))
	if err != nil {
		return Reading{}, fmt.Errorf("portal search: surplus %q: %w", data.Surplus, err)
	}
	if data.FreeEnd != "" {
		free, err := decimal.NewFromString(string(data.FreeEnd))
		if err != nil {
			return Reading{}, fmt.Errorf("portal search: freeEnd %q: %w", data.FreeEnd, err)
		}
		surplus = surplus.Add(free)
	}
	// The portal reports wall-clock time without an offset.
	searchTime, err := time.ParseInLocation("2006-01-02 15:04:05", data.Time, time.Local)
	if err != nil {
		return Reading{}, fmt.Errorf("portal search: time %q: %w", data.Time, err)
	}
	return Reading{Surplus: surplus, SearchTime: searchTime}, nil
}
