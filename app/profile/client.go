package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// PayoutProfile is the read-only payout view of a marketplace profile.
// An empty AccountID means the payee never completed rail onboarding.
type PayoutProfile struct {
	ProfileID      string `json:"profile_id"`
	AccountID      string `json:"account_id"`
	PayoutsEnabled bool   `json:"payouts_enabled"`
	Contact        string `json:"contact"`
}

type Config struct {
	BaseURL     string
	APIKey      string
	HTTPTimeout time.Duration
}

type Client struct {
	cfg    Config
	client *http.Client
}

func NewClient(cfg Config) *Client {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")

	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (c *Client) GetPayoutProfile(ctx context.Context, profileID string) (*PayoutProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/profiles/"+url.PathEscape(profileID)+"/payout-account", nil)
	if err != nil {
		return nil, err
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		// Below-threshold profiles simply have no payout account yet.
		return &PayoutProfile{ProfileID: profileID}, nil
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("profile service failed: profile=%s status=%d body=%s", profileID, resp.StatusCode, string(body))
	}

	item := &PayoutProfile{}
	if err := json.Unmarshal(body, item); err != nil {
		return nil, err
	}
	if item.ProfileID == "" {
		item.ProfileID = profileID
	}

	return item, nil
}
