package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"ledgergate/observability"
)

// Client executes the submission protocols against a set of candidate nodes.
// It keeps no state between calls; the candidate list is supplied per call
// and treated as read-only.
//
// Failover policy: only a transport failure (no well-formed response)
// advances to the next candidate. A non-OK status code is terminal for the
// operation and is never retried against another node.
type Client struct {
	transport Transport
	logger    *slog.Logger
	metrics   *observability.GatewayMetrics
}

// ClientOption customises the client instance.
type ClientOption func(*Client)

// WithLogger supplies a structured logger for per-attempt diagnostics.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics overrides the default metrics registry.
func WithMetrics(m *observability.GatewayMetrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// NewClient constructs a request client over the given transport.
func NewClient(transport Transport, opts ...ClientOption) *Client {
	c := &Client{
		transport: transport,
		logger:    slog.Default(),
		metrics:   observability.Gateway(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SubmitTransaction sends an already-signed transaction, failing over across
// candidate nodes on transport errors, and returns the receipt on an OK
// precheck.
func (c *Client) SubmitTransaction(ctx context.Context, tx *SignedTransaction, nodes []Node) (*TransactionReceipt, error) {
	if c == nil || c.transport == nil {
		return nil, fmt.Errorf("ledger: client not configured")
	}
	if tx == nil {
		return nil, fmt.Errorf("ledger: nil signed transaction")
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("ledger: no candidate nodes")
	}

	var lastErr error
	for i, node := range nodes {
		resp, err := c.transport.SubmitTransaction(ctx, node, tx)
		if err != nil {
			lastErr = &TransportError{Node: node.BaseURL, Err: err}
			c.logger.Warn("transaction transport failure",
				"node", node.BaseURL, "attempt", i+1, "err", err)
			if i < len(nodes)-1 {
				c.metrics.RecordFailover()
			}
			continue
		}
		if resp.Code != CodeOK {
			c.metrics.RecordSubmission("transaction", "rejected")
			c.metrics.RecordRejection(int32(resp.Code))
			return nil, &RejectionError{Code: resp.Code}
		}
		c.metrics.RecordSubmission("transaction", "accepted")
		receipt := resp.Receipt
		if receipt == nil {
			receipt = &TransactionReceipt{Status: resp.Code}
		}
		return receipt, nil
	}
	c.metrics.RecordSubmission("transaction", "transport_failed")
	return nil, lastErr
}

// SubmitQuery runs the two-phase cost-then-answer exchange. The body is
// first signed and sent with COST_ANSWER; on success the fee is set to the
// returned cost, the response type flipped to ANSWER_ONLY, the body
// re-signed (the fee is part of the canonical bytes), and the query resent
// to the same node. Transport failures in either phase advance to the next
// candidate node and repeat that phase.
func (c *Client) SubmitQuery(ctx context.Context, body *QueryBody, signer *Signer, nodes []Node) (*QueryResponse, error) {
	if c == nil || c.transport == nil {
		return nil, fmt.Errorf("ledger: client not configured")
	}
	if body == nil {
		return nil, fmt.Errorf("ledger: nil query body")
	}
	if signer == nil {
		return nil, fmt.Errorf("ledger: signer required for queries")
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("ledger: no candidate nodes")
	}

	body.ResponseType = CostAnswer
	costQuery, err := signer.SignQuery(body)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for i, node := range nodes {
		resp, err := c.transport.SubmitQuery(ctx, node, costQuery)
		if err != nil {
			lastErr = &TransportError{Node: node.BaseURL, Err: err}
			c.logger.Warn("query cost-phase transport failure",
				"node", node.BaseURL, "attempt", i+1, "err", err)
			if i < len(nodes)-1 {
				c.metrics.RecordFailover()
			}
			continue
		}
		if resp.Code != CodeOK {
			c.metrics.RecordSubmission("query", "rejected")
			c.metrics.RecordRejection(int32(resp.Code))
			return nil, &RejectionError{Code: resp.Code}
		}
		c.metrics.ObserveQueryCost(resp.Cost)

		body.Fee = resp.Cost
		body.ResponseType = AnswerOnly
		answerQuery, err := signer.SignQuery(body)
		if err != nil {
			return nil, err
		}
		return c.answerPhase(ctx, answerQuery, nodes[i:])
	}
	c.metrics.RecordSubmission("query", "transport_failed")
	return nil, lastErr
}

// answerPhase sends the ANSWER_ONLY query, starting at the node that served
// the cost phase and failing over through the remaining candidates.
func (c *Client) answerPhase(ctx context.Context, q *SignedQuery, nodes []Node) (*QueryResponse, error) {
	var lastErr error
	for i, node := range nodes {
		resp, err := c.transport.SubmitQuery(ctx, node, q)
		if err != nil {
			lastErr = &TransportError{Node: node.BaseURL, Err: err}
			c.logger.Warn("query answer-phase transport failure",
				"node", node.BaseURL, "attempt", i+1, "err", err)
			if i < len(nodes)-1 {
				c.metrics.RecordFailover()
			}
			continue
		}
		if resp.Code != CodeOK {
			c.metrics.RecordSubmission("query", "rejected")
			c.metrics.RecordRejection(int32(resp.Code))
			return nil, &RejectionError{Code: resp.Code}
		}
		c.metrics.RecordSubmission("query", "answered")
		return resp, nil
	}
	c.metrics.RecordSubmission("query", "transport_failed")
	return nil, lastErr
}
