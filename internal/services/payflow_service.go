package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// PayflowConfig holds credentials for the Payflow redirect gateway.
type PayflowConfig struct {
	BaseURL    string
	MerchantID string
	SecretKey  string
	ReturnURL  string
	Timeout    time.Duration
	Enabled    bool
}

// PayflowClient talks to the Payflow payment processor. A session token is
// cached and refreshed under a mutex so the client is safe for concurrent
// use. Every call carries the configured timeout; a timed-out call never
// reports success.
type PayflowClient struct {
	cfg  PayflowConfig
	http *http.Client

	tokenMu     sync.RWMutex
	token       string
	tokenExpiry time.Time
}

// NewPayflowClient constructs PayflowClient.
func NewPayflowClient(cfg PayflowConfig) *PayflowClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &PayflowClient{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
	}
}

// PayflowState is the processor-side state of a payment session.
type PayflowState string

const (
	PayflowStateCreated  PayflowState = "created"
	PayflowStatePending  PayflowState = "pending"
	PayflowStatePaid     PayflowState = "paid"
	PayflowStateFailed   PayflowState = "failed"
	PayflowStateRefunded PayflowState = "refunded"
)

// PayflowSession is the result of initiating a payment.
type PayflowSession struct {
	Reference   string `json:"reference"`
	RedirectURL string `json:"redirect_url"`
}

type payflowAuthResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

func (c *PayflowClient) getToken(ctx context.Context, force bool) (string, error) {
	if !c.cfg.Enabled {
		return "", errors.New("payflow integration is disabled")
	}

	if !force {
		c.tokenMu.RLock()
		if c.token != "" && time.Now().Before(c.tokenExpiry) {
			t := c.token
			c.tokenMu.RUnlock()
			return t, nil
		}
		c.tokenMu.RUnlock()
	}

	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	// Double-check after acquiring write lock.
	if !force && c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	payload, _ := json.Marshal(map[string]string{
		"merchant_id": c.cfg.MerchantID,
		"secret_key":  c.cfg.SecretKey,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/auth/token", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("payflow auth request build: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("payflow auth request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("payflow auth failed: status %d, body: %s", resp.StatusCode, string(body))
	}

	var authResp payflowAuthResponse
	if err := json.Unmarshal(body, &authResp); err != nil {
		return "", fmt.Errorf("payflow auth unmarshal: %w", err)
	}
	if authResp.Token == "" {
		return "", errors.New("payflow auth: empty token")
	}

	c.token = authResp.Token
	if authResp.ExpiresIn > 0 {
		c.tokenExpiry = time.Now().Add(time.Duration(authResp.ExpiresIn)*time.Second - 30*time.Second)
	} else {
		c.tokenExpiry = time.Now().Add(55 * time.Minute)
	}
	return c.token, nil
}

func (c *PayflowClient) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	token, err := c.getToken(ctx, false)
	if err != nil {
		return 0, nil, err
	}

	url := c.cfg.BaseURL + "/" + strings.TrimLeft(path, "/")

	build := func(tok string) (*http.Request, error) {
		var reader io.Reader
		if body != nil {
			data, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("payflow request marshal: %w", err)
			}
			reader = bytes.NewReader(data)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, fmt.Errorf("payflow request build: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+tok)
		return req, nil
	}

	req, err := build(token)
	if err != nil {
		return 0, nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("payflow request: %w", err)
	}
	respBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	// Retry once on 401 with a fresh token.
	if resp.StatusCode == http.StatusUnauthorized {
		token, err = c.getToken(ctx, true)
		if err != nil {
			return 0, nil, err
		}
		req, err = build(token)
		if err != nil {
			return 0, nil, err
		}
		resp, err = c.http.Do(req)
		if err != nil {
			return 0, nil, fmt.Errorf("payflow request: %w", err)
		}
		respBody, _ = io.ReadAll(resp.Body)
		resp.Body.Close()
	}

	return resp.StatusCode, respBody, nil
}

// Initiate opens a payment session for the given amount and returns the
// redirect URL the buyer must complete the payment at, together with a
// provisional reference.
func (c *PayflowClient) Initiate(ctx context.Context, amount float64, currency, orderRef string) (*PayflowSession, error) {
	status, body, err := c.do(ctx, http.MethodPost, "payments", map[string]any{
		"amount":     amount,
		"currency":   currency,
		"order_ref":  orderRef,
		"return_url": c.cfg.ReturnURL,
	})
	if err != nil {
		return nil, fmt.Errorf("payflow initiate: %w", err)
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("payflow initiate: status %d, body: %s", status, string(body))
	}

	var session PayflowSession
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("payflow initiate unmarshal: %w", err)
	}
	if session.Reference == "" {
		return nil, errors.New("payflow initiate: empty reference")
	}
	return &session, nil
}

// Verify resolves the current state of a payment session. Transport errors
// and timeouts surface as errors; callers must treat them as pending,
// never as success.
func (c *PayflowClient) Verify(ctx context.Context, reference string) (PayflowState, error) {
	status, body, err := c.do(ctx, http.MethodGet, "payments/"+reference, nil)
	if err != nil {
		return "", fmt.Errorf("payflow verify: %w", err)
	}
	if status == http.StatusNotFound {
		return "", fmt.Errorf("payflow verify: unknown reference %s", reference)
	}
	if status < 200 || status >= 300 {
		return "", fmt.Errorf("payflow verify: status %d, body: %s", status, string(body))
	}

	var result struct {
		State PayflowState `json:"state"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("payflow verify unmarshal: %w", err)
	}
	return result.State, nil
}

// Refund asks the processor to reverse a settled payment.
func (c *PayflowClient) Refund(ctx context.Context, reference string, amount float64) error {
	status, body, err := c.do(ctx, http.MethodPost, "payments/"+reference+"/refund", map[string]any{
		"amount": amount,
	})
	if err != nil {
		return fmt.Errorf("payflow refund: %w", err)
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("payflow refund: status %d, body: %s", status, string(body))
	}
	return nil
}
