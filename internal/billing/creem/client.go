package creem

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// ErrProviderError covers any failure talking to the payment provider:
// transport errors, non-2xx statuses, or a response without a checkout URL.
var ErrProviderError = errors.New("creem: payment provider error")

// Client creates checkout sessions against the Creem API. Test API keys
// (creem_test_ prefix) are routed to the sandbox host.
type Client struct {
	apiKey     string
	productID  string
	httpClient *http.Client
}

func NewClient(apiKey, productID string) *Client {
	return &Client{
		apiKey:    strings.TrimSpace(apiKey),
		productID: strings.TrimSpace(productID),
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
			},
		},
	}
}

// Configured reports whether both the API key and product id are set.
func (c *Client) Configured() bool {
	return c.apiKey != "" && c.productID != ""
}

func (c *Client) ProductID() string { return c.productID }

func (c *Client) baseURL() string {
	if strings.HasPrefix(c.apiKey, "creem_test_") {
		return "https://test-api.creem.io"
	}
	return "https://api.creem.io"
}

// CheckoutParams describes one checkout session to create.
type CheckoutParams struct {
	RequestID     string
	Units         int64
	SuccessURL    string
	CustomerEmail string
	OrgID         uint64
	UserID        uint64
}

// CreateCheckout creates a checkout session and returns its hosted URL.
func (c *Client) CreateCheckout(ctx context.Context, params CheckoutParams) (string, error) {
	body := map[string]any{
		"product_id":  c.productID,
		"units":       params.Units,
		"request_id":  params.RequestID,
		"success_url": params.SuccessURL,
		"customer":    map[string]any{"email": params.CustomerEmail},
		"metadata": map[string]any{
			"purpose": PurposeTopUp,
			"userId":  strconv.FormatUint(params.UserID, 10),
			"orgId":   strconv.FormatUint(params.OrgID, 10),
			"units":   params.Units,
		},
	}
	payload, errMarshal := json.Marshal(body)
	if errMarshal != nil {
		return "", fmt.Errorf("creem: marshal checkout: %w", errMarshal)
	}

	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+"/v1/checkouts", bytes.NewReader(payload))
	if errReq != nil {
		return "", fmt.Errorf("creem: build checkout request: %w", errReq)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, errDo := c.httpClient.Do(req)
	if errDo != nil {
		log.WithError(errDo).Warn("creem: checkout create failed")
		return "", ErrProviderError
	}
	defer func() { _ = resp.Body.Close() }()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 400 {
		log.Warnf("creem: checkout create error status=%d body=%s", resp.StatusCode, truncate(string(raw), 500))
		return "", ErrProviderError
	}

	checkoutURL := strings.TrimSpace(gjson.GetBytes(raw, "checkout_url").String())
	if checkoutURL == "" {
		log.Warn("creem: checkout response missing checkout_url")
		return "", ErrProviderError
	}
	return checkoutURL, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
