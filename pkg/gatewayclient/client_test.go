package gatewayclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCustomerAndOrder(t *testing.T) {
	var orderReq OrderRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "key_id", user)
		assert.Equal(t, "key_secret", pass)
		assert.Equal(t, http.MethodPost, r.Method)

		switch r.URL.Path {
		case "/v1/customers":
			var req CustomerRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "Asha", req.Name)
			assert.Equal(t, "asha@example.com", req.Email)
			_ = json.NewEncoder(w).Encode(CustomerResponse{ID: "cust_123"})
		case "/v1/orders":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&orderReq))
			_ = json.NewEncoder(w).Encode(OrderResponse{ID: "order_456", Status: "created"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", "key_id", "key_secret", time.Second)

	customerID, err := client.CreateCustomer(context.Background(), "Asha", "asha@example.com")
	require.NoError(t, err)
	assert.Equal(t, "cust_123", customerID)

	orderID, err := client.CreateOrder(context.Background(), "plan_pro", customerID)
	require.NoError(t, err)
	assert.Equal(t, "order_456", orderID)
	assert.Equal(t, "plan_pro", orderReq.PlanID)
	assert.Equal(t, "cust_123", orderReq.CustomerID)
	assert.True(t, strings.HasPrefix(orderReq.Receipt, "rcpt_"))
}

func TestCreateOrder_NonSuccessIsAPIError(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"plan_id is invalid"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "key_id", "key_secret", time.Second)
	_, err := client.CreateOrder(context.Background(), "bogus", "cust_1")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.HTTPStatus())
	assert.Equal(t, "BAD_REQUEST_ERROR", apiErr.Code)
	assert.Equal(t, 1, calls, "failed calls are not retried")
}

func TestCreateCustomer_UnparsableErrorBodyKeepsStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "key_id", "key_secret", time.Second)
	_, err := client.CreateCustomer(context.Background(), "Asha", "asha@example.com")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
}

func TestClient_TimeoutIsBounded(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(server.URL, "key_id", "key_secret", 50*time.Millisecond)
	start := time.Now()
	_, err := client.CreateCustomer(context.Background(), "Asha", "asha@example.com")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestNewClient_DefaultsTimeout(t *testing.T) {
	client := NewClient("https://api.example.com", "id", "secret", 0)
	assert.Equal(t, DefaultTimeout, client.HTTPClient.Timeout)
}
