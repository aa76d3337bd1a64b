// Package square provides a client for the Square Payments API and the HMAC
// verification used on its webhook deliveries.
package square

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/myhorsefarm/farmops/internal/circuitbreaker"
	"github.com/myhorsefarm/farmops/internal/config"
)

const (
	// DefaultBaseURL is the Square production API endpoint.
	DefaultBaseURL = "https://connect.squareup.com"

	// DefaultTimeout is the default HTTP client timeout.
	DefaultTimeout = 30 * time.Second

	// apiVersion pins the Square API version for all requests.
	apiVersion = "2024-08-21"
)

// Client is the Square API client.
type Client struct {
	accessToken    string
	baseURL        string
	signatureKey   string
	webhookURL     string
	httpClient     *http.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	logger         *zap.Logger
}

// New creates a new Square client from configuration.
func New(cfg *config.SquareConfig, logger *zap.Logger) *Client {
	baseURL := cfg.APIURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	cbConfig := &circuitbreaker.Config{
		FailureThreshold:    5,
		SuccessThreshold:    3,
		OpenTimeout:         30 * time.Second,
		HalfOpenMaxRequests: 3,
	}

	return &Client{
		accessToken:  cfg.AccessToken,
		baseURL:      baseURL,
		signatureKey: cfg.WebhookSignatureKey,
		webhookURL:   cfg.WebhookURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		circuitBreaker: circuitbreaker.New("square-api", cbConfig, logger),
		logger:         logger,
	}
}

// VerifyWebhookSignature checks the x-square-hmacsha256-signature header
// value against an HMAC-SHA256 of the notification URL concatenated with the
// raw request body, base64 encoded. Comparison is constant time.
func (c *Client) VerifyWebhookSignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(c.signatureKey))
	mac.Write([]byte(c.webhookURL))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// APIError represents an error response from the Square API.
type APIError struct {
	StatusCode int `json:"-"`
	Errors     []struct {
		Category string `json:"category"`
		Code     string `json:"code"`
		Detail   string `json:"detail"`
	} `json:"errors"`
}

func (e *APIError) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("square API error (status %d): %s: %s",
			e.StatusCode, e.Errors[0].Code, e.Errors[0].Detail)
	}
	return fmt.Sprintf("square API error (status %d)", e.StatusCode)
}

// request performs an HTTP request with circuit breaker protection.
func (c *Client) request(ctx context.Context, method, path string, body any, result any) error {
	return c.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
		return c.doRequest(ctx, method, path, body, result)
	})
}

// doRequest performs the actual HTTP request.
func (c *Client) doRequest(ctx context.Context, method, path string, body any, result any) error {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Square-Version", apiVersion)

	c.logger.Debug("square API request",
		zap.String("method", method),
		zap.String("path", path),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(respBody, apiErr)
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}

	return nil
}

// money is the Square monetary amount shape. Amounts are integer cents.
type money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// Payment is a completed or in-flight Square payment.
type Payment struct {
	ID          string
	Status      string
	AmountCents int64
	Currency    string
	CustomerID  string
	OrderID     string
	ReceiptURL  string
	Note        string
	CreatedAt   string
}

type paymentResponse struct {
	Payment struct {
		ID         string `json:"id"`
		Status     string `json:"status"`
		TotalMoney money  `json:"total_money"`
		CustomerID string `json:"customer_id"`
		OrderID    string `json:"order_id"`
		ReceiptURL string `json:"receipt_url"`
		Note       string `json:"note"`
		CreatedAt  string `json:"created_at"`
	} `json:"payment"`
}

// GetPayment retrieves a payment by id.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	var resp paymentResponse
	if err := c.request(ctx, http.MethodGet, "/v2/payments/"+paymentID, nil, &resp); err != nil {
		return nil, err
	}
	p := resp.Payment
	if p.ID == "" {
		return nil, fmt.Errorf("payment %s not found", paymentID)
	}

	currency := p.TotalMoney.Currency
	if currency == "" {
		currency = "USD"
	}

	return &Payment{
		ID:          p.ID,
		Status:      p.Status,
		AmountCents: p.TotalMoney.Amount,
		Currency:    currency,
		CustomerID:  p.CustomerID,
		OrderID:     p.OrderID,
		ReceiptURL:  p.ReceiptURL,
		Note:        p.Note,
		CreatedAt:   p.CreatedAt,
	}, nil
}

// Customer is a Square customer profile.
type Customer struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	Phone     string
}

type customerResponse struct {
	Customer struct {
		ID           string `json:"id"`
		EmailAddress string `json:"email_address"`
		GivenName    string `json:"given_name"`
		FamilyName   string `json:"family_name"`
		PhoneNumber  string `json:"phone_number"`
	} `json:"customer"`
}

// GetCustomer retrieves a customer profile by id.
func (c *Client) GetCustomer(ctx context.Context, customerID string) (*Customer, error) {
	var resp customerResponse
	if err := c.request(ctx, http.MethodGet, "/v2/customers/"+customerID, nil, &resp); err != nil {
		return nil, err
	}
	cu := resp.Customer
	if cu.ID == "" {
		return nil, fmt.Errorf("customer %s not found", customerID)
	}

	return &Customer{
		ID:        cu.ID,
		Email:     cu.EmailAddress,
		FirstName: cu.GivenName,
		LastName:  cu.FamilyName,
		Phone:     cu.PhoneNumber,
	}, nil
}

// LineItem is one order line with its name and totals.
type LineItem struct {
	Name        string
	Quantity    string
	AmountCents int64
}

// Order holds the line items of a Square order.
type Order struct {
	ID        string
	LineItems []LineItem
}

type orderResponse struct {
	Order struct {
		ID        string `json:"id"`
		LineItems []struct {
			Name       string `json:"name"`
			Quantity   string `json:"quantity"`
			TotalMoney money  `json:"total_money"`
		} `json:"line_items"`
	} `json:"order"`
}

// GetOrder retrieves an order and its line items by id.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var resp orderResponse
	if err := c.request(ctx, http.MethodGet, "/v2/orders/"+orderID, nil, &resp); err != nil {
		return nil, err
	}
	o := resp.Order
	if o.ID == "" {
		return nil, fmt.Errorf("order %s not found", orderID)
	}

	items := make([]LineItem, 0, len(o.LineItems))
	for _, item := range o.LineItems {
		name := item.Name
		if name == "" {
			name = "Service"
		}
		qty := item.Quantity
		if qty == "" {
			qty = "1"
		}
		items = append(items, LineItem{
			Name:        name,
			Quantity:    qty,
			AmountCents: item.TotalMoney.Amount,
		})
	}

	return &Order{ID: o.ID, LineItems: items}, nil
}

// Refund is a Square payment refund.
type Refund struct {
	ID          string
	Status      string
	PaymentID   string
	AmountCents int64
	Reason      string
	CreatedAt   string
}

type refundResponse struct {
	Refund struct {
		ID          string `json:"id"`
		Status      string `json:"status"`
		PaymentID   string `json:"payment_id"`
		AmountMoney money  `json:"amount_money"`
		Reason      string `json:"reason"`
		CreatedAt   string `json:"created_at"`
	} `json:"refund"`
}

// GetRefund retrieves a refund by id.
func (c *Client) GetRefund(ctx context.Context, refundID string) (*Refund, error) {
	var resp refundResponse
	if err := c.request(ctx, http.MethodGet, "/v2/refunds/"+refundID, nil, &resp); err != nil {
		return nil, err
	}
	r := resp.Refund
	if r.ID == "" {
		return nil, fmt.Errorf("refund %s not found", refundID)
	}

	return &Refund{
		ID:          r.ID,
		Status:      r.Status,
		PaymentID:   r.PaymentID,
		AmountCents: r.AmountMoney.Amount,
		Reason:      r.Reason,
		CreatedAt:   r.CreatedAt,
	}, nil
}

// CircuitBreakerStats returns the current circuit breaker statistics.
func (c *Client) CircuitBreakerStats() circuitbreaker.Stats {
	return c.circuitBreaker.Stats()
}

// IsCircuitOpen returns true if the circuit breaker is open.
func (c *Client) IsCircuitOpen() bool {
	return c.circuitBreaker.IsOpen()
}
