package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	TypeError         = "error"
	TypeMissingStripe = "missing_stripe"
)

// Notification is one queued message for the notification service. The
// orchestrator collects these during a release and emits them only after the
// idempotency closure.
type Notification struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Recipients []string          `json:"recipients"`
	Context    map[string]string `json:"context"`
}

func New(notificationType string, recipients []string, context map[string]string) Notification {
	return Notification{
		ID:         uuid.NewString(),
		Type:       notificationType,
		Recipients: recipients,
		Context:    context,
	}
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

// Send is fire-and-forget from the caller's point of view: the error is
// returned for logging only and must never fail the surrounding operation.
func (c *Client) Send(ctx context.Context, notification Notification) error {
	if c.cfg.BaseURL == "" {
		return fmt.Errorf("notification service base url is not configured")
	}

	body, err := json.Marshal(&notification)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/notifications", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification service returned status=%d", resp.StatusCode)
	}

	return nil
}
