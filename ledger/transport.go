package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Transport delivers one already-signed request to one node and returns the
// node's decoded reply. Implementations report transport-level trouble as a
// plain error; interpreting status codes is the client's job.
type Transport interface {
	SubmitTransaction(ctx context.Context, node Node, tx *SignedTransaction) (*TransactionResponse, error)
	SubmitQuery(ctx context.Context, node Node, q *SignedQuery) (*QueryResponse, error)
}

const defaultAttemptTimeout = 10 * time.Second

// HTTPTransport speaks JSON over HTTP to each node's base URL.
type HTTPTransport struct {
	httpClient *http.Client
	timeout    time.Duration
}

// HTTPTransportOption mutates the transport during construction.
type HTTPTransportOption func(*HTTPTransport)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(client *http.Client) HTTPTransportOption {
	return func(t *HTTPTransport) {
		if client != nil {
			t.httpClient = client
		}
	}
}

// WithAttemptTimeout bounds a single request/response exchange. A timed-out
// attempt surfaces as a transport failure and triggers node failover.
func WithAttemptTimeout(timeout time.Duration) HTTPTransportOption {
	return func(t *HTTPTransport) {
		if timeout > 0 {
			t.timeout = timeout
		}
	}
}

// NewHTTPTransport constructs the default node transport. The underlying
// HTTP client is instrumented with otelhttp so node exchanges show up in
// traces.
func NewHTTPTransport(opts ...HTTPTransportOption) *HTTPTransport {
	t := &HTTPTransport{
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		timeout:    defaultAttemptTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SubmitTransaction posts the signed transaction to the node.
func (t *HTTPTransport) SubmitTransaction(ctx context.Context, node Node, tx *SignedTransaction) (*TransactionResponse, error) {
	var resp TransactionResponse
	if err := t.post(ctx, node, "/v1/transactions", tx, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitQuery posts the signed query to the node.
func (t *HTTPTransport) SubmitQuery(ctx context.Context, node Node, q *SignedQuery) (*QueryResponse, error) {
	var resp QueryResponse
	if err := t.post(ctx, node, "/v1/queries", q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (t *HTTPTransport) post(ctx context.Context, node Node, path string, payload, out any) error {
	base := strings.TrimSpace(node.BaseURL)
	if base == "" {
		return fmt.Errorf("node %s has no url", node.AccountID)
	}
	endpoint, err := url.JoinPath(base, path)
	if err != nil {
		return fmt.Errorf("node url: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := t.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected http status %d", httpResp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
