package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// FacilitatorClient is the boundary to the external payment facilitator,
// which owns cryptographic verification and on-chain settlement.
type FacilitatorClient interface {
	Verify(ctx context.Context, req VerifyRequest) (*VerifyResponse, error)
	Settle(ctx context.Context, req SettleRequest) (*SettleResponse, error)
	GetSupported(ctx context.Context) (*SupportedResponse, error)
}

// FacilitatorConfig configures an HTTP facilitator client.
type FacilitatorConfig struct {
	URL     string
	Timeout time.Duration
	// MaxCallsPerSecond throttles outbound verify/settle traffic.
	// Zero means no throttle.
	MaxCallsPerSecond float64
	HTTPClient        *http.Client
}

// HTTPFacilitatorClient talks JSON to a facilitator over HTTP:
// POST /verify, POST /settle, GET /supported.
type HTTPFacilitatorClient struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPFacilitatorClient creates a facilitator client.
func NewHTTPFacilitatorClient(cfg FacilitatorConfig) *HTTPFacilitatorClient {
	c := &HTTPFacilitatorClient{
		baseURL: cfg.URL,
		timeout: cfg.Timeout,
		client:  cfg.HTTPClient,
	}
	if c.timeout <= 0 {
		c.timeout = 5 * time.Second
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: c.timeout}
	}
	if cfg.MaxCallsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.MaxCallsPerSecond), int(cfg.MaxCallsPerSecond)+1)
	}
	return c
}

// Verify asks the facilitator to verify a payment against requirements.
func (c *HTTPFacilitatorClient) Verify(ctx context.Context, req VerifyRequest) (*VerifyResponse, error) {
	var resp VerifyResponse
	if err := c.post(ctx, "/verify", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Settle asks the facilitator to settle a verified payment.
func (c *HTTPFacilitatorClient) Settle(ctx context.Context, req SettleRequest) (*SettleResponse, error) {
	var resp SettleResponse
	if err := c.post(ctx, "/settle", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetSupported returns the payment kinds the facilitator supports.
// Also serves as the readiness probe for the payment dependency.
func (c *HTTPFacilitatorClient) GetSupported(ctx context.Context) (*SupportedResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/supported", nil)
	if err != nil {
		return nil, err
	}

	var resp SupportedResponse
	if err := c.do(httpReq, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPFacilitatorClient) post(ctx context.Context, path string, body, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	return c.do(httpReq, out)
}

func (c *HTTPFacilitatorClient) do(req *http.Request, out interface{}) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("facilitator request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return NewError(ErrCodeFacilitatorError,
			fmt.Sprintf("facilitator returned %d", resp.StatusCode),
			map[string]interface{}{"body": string(snippet)})
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("facilitator response decode failed: %w", err)
	}
	return nil
}
