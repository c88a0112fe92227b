package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/Yab112/art-store-backend-sub000/internal/logging"
	"github.com/Yab112/art-store-backend-sub000/internal/models"
)

// PaymentProvider is the uniform capability over external payment gateways.
// Verify reports VerificationSuccess only for a fully captured, settled payment.
type PaymentProvider interface {
	Name() string
	// MaxReferenceLength is the longest reference the provider accepts; 0 means unlimited.
	MaxReferenceLength() int
	Initialize(ctx context.Context, req *models.InitializeRequest) (*models.InitializeResult, error)
	Verify(ctx context.Context, providerReference string) (*models.VerificationResult, error)
}

// Registry resolves providers by name.
type Registry struct {
	providers map[string]PaymentProvider
	fallback  string
}

// NewRegistry registers providers; the first one is the default.
func NewRegistry(providers ...PaymentProvider) *Registry {
	r := &Registry{providers: make(map[string]PaymentProvider)}
	for _, p := range providers {
		if r.fallback == "" {
			r.fallback = p.Name()
		}
		r.providers[p.Name()] = p
	}
	return r
}

func (r *Registry) Get(name string) (PaymentProvider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown payment provider %q", name)
	}
	return p, nil
}

// Default returns the provider used when an order names none.
func (r *Registry) Default() string { return r.fallback }

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StatusError is returned when a provider answers with an unexpected HTTP status.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// httpCaller issues JSON requests with retry on transport errors and 5xx responses.
type httpCaller struct {
	provider   string
	httpClient *http.Client
	logger     *logging.LoggerV2
	backoff    time.Duration
}

func newHTTPCaller(provider string, timeout time.Duration, logger *logging.LoggerV2) httpCaller {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return httpCaller{
		provider:   provider,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		backoff:    100 * time.Millisecond,
	}
}

// do sends the request up to attempts times. newReq is called per attempt so the body is fresh.
// Non-2xx responses other than 5xx are returned immediately as *StatusError.
func (c httpCaller) do(ctx context.Context, attempts int, newReq func() (*http.Request, error), out interface{}) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			c.logger.Warn("Retrying provider request", logging.Fields{
				"provider": c.provider,
				"attempt":  attempt + 1,
				"error":    lastErr.Error(),
			})
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * c.backoff):
			}
		}

		req, err := newReq()
		if err != nil {
			return err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = &StatusError{Provider: c.provider, StatusCode: resp.StatusCode, Body: string(body)}
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &StatusError{Provider: c.provider, StatusCode: resp.StatusCode, Body: string(body)}
		}

		if out == nil || len(body) == 0 {
			return nil
		}
		return json.Unmarshal(body, out)
	}

	return fmt.Errorf("%s request failed after %d attempts: %w", c.provider, attempts, lastErr)
}

func jsonRequest(ctx context.Context, method, url string, payload interface{}) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}
