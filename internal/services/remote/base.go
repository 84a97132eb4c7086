// Package remote holds the HTTP clients of the execution and market data
// collaborators.
package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	svcmetrics "StagAlgo/internal/service/metrics"
	xhttp "StagAlgo/pkg/http"
)

// ErrNotConfigured is returned when a collaborator has no base URL.
var ErrNotConfigured = errors.New("remote service not configured")

// defaultTimeout applies when the configured timeout is zero.
const defaultTimeout = 6 * time.Second

// HTTPServiceBase centralizes client construction and JSON requests for the
// collaborator clients.
type HTTPServiceBase struct {
	name    string
	baseURL string
	client  *xhttp.Client
}

// NewHTTPServiceBase builds a client for baseURL with the given timeout.
func NewHTTPServiceBase(name, baseURL string, timeout time.Duration, opts ...xhttp.ClientOption) *HTTPServiceBase {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPServiceBase{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  xhttp.NewClient(append([]xhttp.ClientOption{xhttp.WithTimeout(timeout)}, opts...)...),
	}
}

// PostJSON posts payload to path under baseURL and decodes JSON into dest.
func (b *HTTPServiceBase) PostJSON(ctx context.Context, path string, payload, dest interface{}) error {
	return b.do(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodPost,
		URL:     b.baseURL + path,
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    payload,
	}, dest)
}

// GetJSON issues a GET with query parameters and decodes JSON into dest.
func (b *HTTPServiceBase) GetJSON(ctx context.Context, path string, query map[string][]string, dest interface{}) error {
	return b.do(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         b.baseURL + path,
		QueryParams: query,
	}, dest)
}

func (b *HTTPServiceBase) do(ctx context.Context, opts *xhttp.RequestOptions, dest interface{}) error {
	if b.baseURL == "" {
		return fmt.Errorf("%s: %w", b.name, ErrNotConfigured)
	}
	start := time.Now()
	err := b.client.SendAndParse(ctx, opts, dest)
	svcmetrics.Observe(b.name, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("%s %s: %w", strings.ToLower(opts.Method), opts.URL, err)
	}
	return nil
}
