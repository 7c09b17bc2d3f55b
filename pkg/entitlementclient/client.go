/**
 * @description
 * This file provides a client for the entitlement service. Callers present the
 * user's session token; the service derives everything else from it.
 */
package entitlementclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds every call to the entitlement service.
const DefaultTimeout = 10 * time.Second

// Snapshot mirrors the service's GET /subscription/status response.
type Snapshot struct {
	Plan            string     `json:"plan,omitempty"`
	State           string     `json:"state"`
	HasSubscription bool       `json:"has_subscription"`
	IsActive        bool       `json:"is_active"`
	ValidTill       *time.Time `json:"valid_till,omitempty"`
	UsedMealPlanner bool       `json:"used_meal_planner"`
	UsedAnalyzeFood bool       `json:"used_analyze_food"`
	UsedGetRecipe   bool       `json:"used_get_recipe"`
	FetchedAt       time.Time  `json:"fetched_at"`
}

// Order is the checkout handle returned when a Pro order is opened.
type Order struct {
	OrderID    string `json:"order_id"`
	GatewayKey string `json:"gateway_key"`
	PlanName   string `json:"plan_name"`
}

// Callback is the signed payload the gateway checkout hands back.
type Callback struct {
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	Signature string `json:"signature"`
}

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
	// Refetch is set when the service could not persist a change and the
	// caller's view must be reloaded.
	Refetch bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("entitlement service returned status %d: %s", e.StatusCode, e.Message)
}

// Client provides methods to interact with the entitlement service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new entitlement service client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// Status fetches the caller's current entitlement snapshot.
func (c *Client) Status(ctx context.Context, authToken string) (*Snapshot, error) {
	var snapshot Snapshot
	if err := c.do(ctx, http.MethodGet, "/subscription/status", authToken, nil, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// CreateOrder opens a checkout for the Pro plan.
func (c *Client) CreateOrder(ctx context.Context, authToken string) (*Order, error) {
	var order Order
	if err := c.do(ctx, http.MethodPost, "/subscription/order", authToken, map[string]string{"plan_name": "Pro"}, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// ActivateFree selects the Free plan.
func (c *Client) ActivateFree(ctx context.Context, authToken string) error {
	return c.do(ctx, http.MethodPost, "/subscription/free", authToken, nil, nil)
}

// Verify submits a gateway callback for verification.
func (c *Client) Verify(ctx context.Context, authToken string, cb Callback) error {
	return c.do(ctx, http.MethodPost, "/subscription/verify", authToken, cb, nil)
}

func (c *Client) do(ctx context.Context, method, path, authToken string, payload, out interface{}) error {
	if authToken == "" {
		return fmt.Errorf("authorization token is required")
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+authToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call entitlement service: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var envelope struct {
			Error   string `json:"error"`
			Refetch bool   `json:"refetch"`
		}
		if json.Unmarshal(respBody, &envelope) == nil {
			if envelope.Error != "" {
				apiErr.Message = envelope.Error
			}
			apiErr.Refetch = envelope.Refetch
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
