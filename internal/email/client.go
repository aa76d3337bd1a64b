// Package email sends transactional and lifecycle mail through the Resend
// API and builds the HTML templates used across the quote, booking, payment,
// and campaign flows. Every outbound marketing email carries a signed
// unsubscribe link.
package email

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/myhorsefarm/farmops/internal/circuitbreaker"
	"github.com/myhorsefarm/farmops/internal/config"
)

const (
	// DefaultBaseURL is the Resend API endpoint.
	DefaultBaseURL = "https://api.resend.com"

	// DefaultTimeout is the default HTTP client timeout.
	DefaultTimeout = 15 * time.Second
)

// Client sends email through the Resend API.
type Client struct {
	apiKey            string
	baseURL           string
	fromAddress       string
	salesAddress      string
	unsubscribeSecret string
	publicURL         string
	httpClient        *http.Client
	circuitBreaker    *circuitbreaker.CircuitBreaker
	logger            *zap.Logger
}

// New creates a new email client from configuration. publicURL is the site
// base used to build unsubscribe and quote links.
func New(cfg *config.EmailConfig, publicURL string, logger *zap.Logger) *Client {
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
		apiKey:            cfg.APIKey,
		baseURL:           baseURL,
		fromAddress:       cfg.FromAddress,
		salesAddress:      cfg.SalesAddress,
		unsubscribeSecret: cfg.UnsubscribeSecret,
		publicURL:         publicURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		circuitBreaker: circuitbreaker.New("email-api", cbConfig, logger),
		logger:         logger,
	}
}

// SalesAddress is the internal notification recipient.
func (c *Client) SalesAddress() string {
	return c.salesAddress
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type sendResponse struct {
	ID string `json:"id"`
}

// Send delivers one HTML email.
func (c *Client) Send(ctx context.Context, to, subject, html string) error {
	return c.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
		return c.doSend(ctx, to, subject, html)
	})
}

func (c *Client) doSend(ctx context.Context, to, subject, html string) error {
	body, err := json.Marshal(sendRequest{
		From:    c.fromAddress,
		To:      []string{to},
		Subject: subject,
		HTML:    html,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

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
		return fmt.Errorf("email API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result sendResponse
	_ = json.Unmarshal(respBody, &result)

	c.logger.Info("email sent",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.String("message_id", result.ID),
	)
	return nil
}

// unsubscribeSignature is an HMAC-SHA256 of the email address, hex encoded.
func (c *Client) unsubscribeSignature(email string) string {
	mac := hmac.New(sha256.New, []byte(c.unsubscribeSecret))
	mac.Write([]byte(email))
	return hex.EncodeToString(mac.Sum(nil))
}

// UnsubscribeURL builds the signed one-click unsubscribe link embedded in
// every marketing email.
func (c *Client) UnsubscribeURL(email string) string {
	return fmt.Sprintf("%s/api/unsubscribe?email=%s&sig=%s",
		c.publicURL, url.QueryEscape(email), c.unsubscribeSignature(email))
}

// VerifyUnsubscribeSignature checks a signature from an unsubscribe link.
// Comparison is constant time.
func (c *Client) VerifyUnsubscribeSignature(email, sig string) bool {
	expected := c.unsubscribeSignature(email)
	return hmac.Equal([]byte(expected), []byte(sig))
}

// QuoteURL is the public link where a customer can view and accept a quote.
func (c *Client) QuoteURL(quoteID string) string {
	return c.publicURL + "/quote/" + quoteID
}

// CircuitBreakerStats returns the current circuit breaker statistics.
func (c *Client) CircuitBreakerStats() circuitbreaker.Stats {
	return c.circuitBreaker.Stats()
}

// IsCircuitOpen returns true if the circuit breaker is open.
func (c *Client) IsCircuitOpen() bool {
	return c.circuitBreaker.IsOpen()
}
