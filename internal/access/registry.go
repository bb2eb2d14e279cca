package access

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sentraproxy/sentra/internal/observability"
)

// ClientRecord is the wire form of a client entry returned by the remote
// registry.
type ClientRecord struct {
	ClientID string   `json:"clientId"`
	Active   bool     `json:"active"`
	Rules    []string `json:"rules"`
}

// RegistryClient fetches access-control client records from the remote
// registry over HTTP.
type RegistryClient struct {
	url        string
	httpClient *http.Client
	logger     observability.Logger
}

// RegistryOption is a functional option for the registry client.
type RegistryOption func(*RegistryClient)

// WithRegistryHTTPClient sets a custom HTTP client.
func WithRegistryHTTPClient(c *http.Client) RegistryOption {
	return func(r *RegistryClient) {
		if c != nil {
			r.httpClient = c
		}
	}
}

// WithRegistryLogger sets the logger.
func WithRegistryLogger(logger observability.Logger) RegistryOption {
	return func(r *RegistryClient) {
		r.logger = logger
	}
}

// NewRegistryClient creates a registry client for the given URL.
func NewRegistryClient(url string, opts ...RegistryOption) *RegistryClient {
	r := &RegistryClient{
		url: url,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FetchClients performs the registry GET and decodes the client list.
func (r *RegistryClient) FetchClients(ctx context.Context) ([]ClientRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: registry returned status %d", ErrRegistryUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}

	var records []ClientRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("%w: invalid registry payload: %v", ErrRegistryUnavailable, err)
	}

	r.logger.Debug("registry fetch complete", observability.Int("clients", len(records)))
	return records, nil
}
