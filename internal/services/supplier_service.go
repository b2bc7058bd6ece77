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

	"github.com/example/procura/internal/models"
)

// SupplierConfig holds credentials for the supplier fulfillment API that
// confirmed orders are dispatched to.
type SupplierConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Enabled bool
}

// SupplierService submits confirmed orders to the supplier API. Like the
// payment client it caches its access token behind a mutex.
type SupplierService struct {
	cfg  SupplierConfig
	http *http.Client

	tokenMu     sync.RWMutex
	token       string
	tokenExpiry time.Time
}

// NewSupplierService constructs SupplierService, or returns nil when the
// integration is disabled.
func NewSupplierService(cfg SupplierConfig) *SupplierService {
	if !cfg.Enabled {
		return nil
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &SupplierService{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
	}
}

type supplierAuthResponse struct {
	Data struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	} `json:"data"`
}

func (s *SupplierService) getToken(ctx context.Context) (string, error) {
	s.tokenMu.RLock()
	if s.token != "" && time.Now().Before(s.tokenExpiry) {
		t := s.token
		s.tokenMu.RUnlock()
		return t, nil
	}
	s.tokenMu.RUnlock()

	s.tokenMu.Lock()
	defer s.tokenMu.Unlock()

	if s.token != "" && time.Now().Before(s.tokenExpiry) {
		return s.token, nil
	}

	payload, _ := json.Marshal(map[string]string{"api_key": s.cfg.APIKey})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/auth/login", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("supplier auth request build: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("supplier auth request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("supplier auth failed: status %d, body: %s", resp.StatusCode, string(body))
	}

	var authResp supplierAuthResponse
	if err := json.Unmarshal(body, &authResp); err != nil {
		return "", fmt.Errorf("supplier auth unmarshal: %w", err)
	}
	if authResp.Data.AccessToken == "" {
		return "", errors.New("supplier auth: empty token")
	}

	s.token = authResp.Data.AccessToken
	if authResp.Data.ExpiresIn > 0 {
		s.tokenExpiry = time.Now().Add(time.Duration(authResp.Data.ExpiresIn)*time.Second - 30*time.Second)
	} else {
		s.tokenExpiry = time.Now().Add(55 * time.Minute)
	}
	return s.token, nil
}

type supplierOrderLine struct {
	SKU      string  `json:"sku"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

type supplierOrderPayload struct {
	OrderNumber string              `json:"order_number"`
	Lines       []supplierOrderLine `json:"lines"`
	TotalAmount float64             `json:"total_amount"`
	Currency    string              `json:"currency"`
	Address     string              `json:"address"`
	Comment     string              `json:"comment"`
}

// SupplierOrderResult is the supplier's acknowledgement of a dispatched
// order.
type SupplierOrderResult struct {
	Reference string `json:"reference"`
}

// SubmitOrder dispatches a confirmed order to the supplier for
// fulfillment.
func (s *SupplierService) SubmitOrder(ctx context.Context, order *models.Order) (*SupplierOrderResult, error) {
	token, err := s.getToken(ctx)
	if err != nil {
		return nil, err
	}

	payload := supplierOrderPayload{
		OrderNumber: order.OrderNumber,
		TotalAmount: order.TotalAmount,
		Currency:    order.Currency,
		Address:     order.DeliveryAddressLine,
		Comment:     order.Notes,
	}
	for _, item := range order.Items {
		payload.Lines = append(payload.Lines, supplierOrderLine{
			SKU:      item.SKU,
			Quantity: item.Quantity,
			Price:    item.UnitPrice,
		})
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("supplier order marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/orders", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("supplier order request build: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("supplier order request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("supplier order failed: status %d, body: %s", resp.StatusCode, string(body))
	}

	var result SupplierOrderResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("supplier order unmarshal: %w", err)
	}
	if result.Reference == "" {
		return nil, errors.New("supplier order: empty reference")
	}
	return &result, nil
}
