package rail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultStripeBaseURL = "https://api.stripe.com"

type StripeConfig struct {
	SecretKey   string
	BaseURL     string
	HTTPTimeout time.Duration
}

type StripeRail struct {
	cfg    StripeConfig
	client *http.Client
}

func NewStripeRail(cfg StripeConfig) *StripeRail {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultStripeBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &StripeRail{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (r *StripeRail) Code() int32 {
	return CodeStripe
}

func (r *StripeRail) CreateTransfer(ctx context.Context, input *TransferInput) (string, error) {
	if strings.TrimSpace(r.cfg.SecretKey) == "" {
		return "", errors.New("stripe secret key is not configured")
	}

	values := url.Values{}
	values.Set("amount", strconv.FormatInt(input.AmountCents, 10))
	values.Set("currency", strings.ToLower(input.Currency))
	values.Set("destination", input.DestinationAccount)
	values.Set("source_transaction", input.SourceChargeRef)
	if input.TransferGroup != "" {
		values.Set("transfer_group", input.TransferGroup)
	}
	for k, v := range input.Metadata {
		values.Set("metadata["+k+"]", v)
	}

	body, err := r.postForm(ctx, "/v1/transfers", values)
	if err != nil {
		return "", err
	}

	var payload struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", err
	}
	transferID := strings.TrimSpace(payload.ID)
	if transferID == "" {
		return "", errors.New("stripe transfer id missing")
	}

	return transferID, nil
}

func (r *StripeRail) RetrieveChargeRef(ctx context.Context, intentRef string) (string, error) {
	intentRef = strings.TrimSpace(intentRef)
	if intentRef == "" {
		return "", nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.BaseURL+"/v1/payment_intents/"+url.PathEscape(intentRef), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+r.cfg.SecretKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("stripe get payment intent failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var payload struct {
		LatestCharge interface{} `json:"latest_charge"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", err
	}

	return parseStringish(payload.LatestCharge), nil
}

func (r *StripeRail) postForm(ctx context.Context, path string, values url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.BaseURL+path, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+r.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("stripe request failed: path=%s status=%d body=%s", path, resp.StatusCode, string(body))
	}

	return body, nil
}

// parseStringish accepts Stripe fields that are either an id string or an
// expanded object carrying an id.
func parseStringish(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]interface{}:
		if raw, ok := t["id"]; ok {
			if s, ok := raw.(string); ok {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}
