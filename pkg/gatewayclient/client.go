/**
 * @description
 * This package provides a client for the payment gateway's REST API. It opens
 * checkouts by creating a customer and an order, authenticating every request
 * with the server-side key id and secret over HTTP basic auth.
 *
 * Calls are bounded by the HTTP client timeout and are never retried here:
 * a retried create would leave duplicate customers or orders at the gateway.
 */
package gatewayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultTimeout bounds every gateway request when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// Client is a client for the payment gateway API.
type Client struct {
	BaseURL    string
	KeyID      string
	KeySecret  string
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// NewClient creates a new gateway API client.
func NewClient(baseURL, keyID, keySecret string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		BaseURL:   strings.TrimSuffix(baseURL, "/"),
		KeyID:     keyID,
		KeySecret: keySecret,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		Logger: zerolog.Nop(),
	}
}

// CustomerRequest is the payload for creating a gateway customer.
type CustomerRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	FailExisting string `json:"fail_existing"`
}

// CustomerResponse is the gateway's customer resource.
type CustomerResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// OrderRequest is the payload for creating a checkout order against a plan.
type OrderRequest struct {
	PlanID     string            `json:"plan_id"`
	CustomerID string            `json:"customer_id"`
	Receipt    string            `json:"receipt"`
	Notes      map[string]string `json:"notes,omitempty"`
}

// OrderResponse is the gateway's order resource.
type OrderResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Receipt string `json:"receipt"`
}

// ErrorResponse represents an error body returned by the gateway.
type ErrorResponse struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
		Field       string `json:"field,omitempty"`
	} `json:"error"`
}

// APIError is returned for any non-2xx gateway response.
type APIError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway api error (status %d): %s - %s", e.StatusCode, e.Code, e.Description)
	}
	return fmt.Sprintf("gateway api error (status %d)", e.StatusCode)
}

// HTTPStatus returns the HTTP status the gateway answered with.
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

// CreateCustomer creates a gateway customer and returns its id. Every call
// creates a new resource.
func (c *Client) CreateCustomer(ctx context.Context, name, email string) (string, error) {
	var resp CustomerResponse
	req := CustomerRequest{Name: name, Email: email, FailExisting: "0"}
	if err := c.post(ctx, "create_customer", "/v1/customers", req, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", errors.New("gateway returned a customer without an id")
	}
	return resp.ID, nil
}

// CreateOrder opens a checkout order for planID on behalf of customerID and
// returns the order id the callback will be signed with.
func (c *Client) CreateOrder(ctx context.Context, planID, customerID string) (string, error) {
	var resp OrderResponse
	req := OrderRequest{
		PlanID:     planID,
		CustomerID: customerID,
		Receipt:    "rcpt_" + uuid.NewString(),
	}
	if err := c.post(ctx, "create_order", "/v1/orders", req, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", errors.New("gateway returned an order without an id")
	}
	return resp.ID, nil
}

func (c *Client) post(ctx context.Context, op, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.KeyID, c.KeySecret)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute %s request: %w", op, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errResp ErrorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err == nil {
			apiErr.Code = errResp.Error.Code
			apiErr.Description = errResp.Error.Description
		}
		c.Logger.Warn().
			Str("component", "gateway_client").
			Str("op", op).
			Int("status", resp.StatusCode).
			Str("code", apiErr.Code).
			Str("description", apiErr.Description).
			Msg("non-2xx response from gateway")
		return apiErr
	}

	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}
