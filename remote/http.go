/*
http.go - HTTP/JSON implementation of the Store contract

PURPOSE:
  Drives the reference persistence service over plain HTTP. Every call
  carries a bounded timeout; a timeout is indistinguishable from any
  other transient failure, which is exactly how the coordinator treats
  it. Status codes decode into the error taxonomy:

    404 -> Gone
    409 -> Conflict
    anything else non-2xx, or a transport error -> Transient

  When the response body carries a structured error, its kind and
  message win over the status-code mapping.

USAGE:
  client := remote.NewClient("http://localhost:8080", 10*time.Second)
  agg, err := client.GetAggregate(ctx, "li-1")

SEE ALSO:
  - api: The service on the other end of these calls
*/
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gracepoint/budget-engine/ledger"
)

// Client implements Store over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the service at baseURL. timeout bounds
// every individual request.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return Transient(op, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return Transient(op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Transient(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return Transient(op, fmt.Errorf("decoding response: %w", err))
		}
		return nil
	}

	// Prefer the structured body; fall back on the status code.
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var ew ErrorWire
	if json.Unmarshal(raw, &ew) == nil && ew.Message != "" {
		switch Kind(ew.Kind) {
		case KindConflict:
			return Conflict(op, ew.Message)
		case KindGone:
			return Gone(op, ew.Message)
		default:
			return &Error{Kind: KindTransient, Op: op, Message: ew.Message}
		}
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return Gone(op, "entity not found")
	case http.StatusConflict:
		return Conflict(op, "entity was modified or is referenced by other records")
	default:
		return &Error{Kind: KindTransient, Op: op, Message: fmt.Sprintf("server returned %s", resp.Status)}
	}
}

// =============================================================================
// AGGREGATE READS
// =============================================================================

func (c *Client) GetAggregate(ctx context.Context, id ledger.LineItemID) (*ledger.Aggregate, error) {
	var w AggregateWire
	if err := c.do(ctx, "get aggregate", http.MethodGet, "/api/line-items/"+string(id)+"/aggregate", nil, &w); err != nil {
		return nil, err
	}
	return AggregateFromWire(w), nil
}

func (c *Client) ListLineItems(ctx context.Context) ([]ledger.LineItem, error) {
	var ws []LineItemWire
	if err := c.do(ctx, "list line items", http.MethodGet, "/api/line-items", nil, &ws); err != nil {
		return nil, err
	}
	items := make([]ledger.LineItem, len(ws))
	for i, w := range ws {
		items[i] = LineItemFromWire(w)
	}
	return items, nil
}

// =============================================================================
// LINE ITEMS
// =============================================================================

func (c *Client) CreateLineItem(ctx context.Context, item ledger.LineItem) (*ledger.LineItem, error) {
	var w LineItemWire
	if err := c.do(ctx, "create line item", http.MethodPost, "/api/line-items", LineItemToWire(item), &w); err != nil {
		return nil, err
	}
	li := LineItemFromWire(w)
	return &li, nil
}

func (c *Client) UpdateLineItem(ctx context.Context, item ledger.LineItem) (*ledger.LineItem, error) {
	var w LineItemWire
	if err := c.do(ctx, "update line item", http.MethodPut, "/api/line-items/"+string(item.ID), LineItemToWire(item), &w); err != nil {
		return nil, err
	}
	li := LineItemFromWire(w)
	return &li, nil
}

func (c *Client) DeleteLineItem(ctx context.Context, id ledger.LineItemID) error {
	return c.do(ctx, "delete line item", http.MethodDelete, "/api/line-items/"+string(id), nil, nil)
}

// =============================================================================
// PURCHASE REQUESTS
// =============================================================================

func (c *Client) CreatePurchaseRequest(ctx context.Context, pr ledger.PurchaseRequest) (*ledger.PurchaseRequest, error) {
	var w PurchaseRequestWire
	if err := c.do(ctx, "create purchase request", http.MethodPost, "/api/purchase-requests", PurchaseRequestToWire(pr), &w); err != nil {
		return nil, err
	}
	out := PurchaseRequestFromWire(w)
	return &out, nil
}

func (c *Client) UpdatePurchaseRequest(ctx context.Context, pr ledger.PurchaseRequest) (*ledger.PurchaseRequest, error) {
	var w PurchaseRequestWire
	if err := c.do(ctx, "update purchase request", http.MethodPut, "/api/purchase-requests/"+string(pr.ID), PurchaseRequestToWire(pr), &w); err != nil {
		return nil, err
	}
	out := PurchaseRequestFromWire(w)
	return &out, nil
}

func (c *Client) DeletePurchaseRequest(ctx context.Context, id ledger.PurchaseRequestID) error {
	return c.do(ctx, "delete purchase request", http.MethodDelete, "/api/purchase-requests/"+string(id), nil, nil)
}

func (c *Client) TransitionPurchaseRequest(ctx context.Context, id ledger.PurchaseRequestID, in TransitionInput) (*ledger.PurchaseRequest, error) {
	body := TransitionWire{To: string(in.To), Actor: in.Actor, Reason: in.Reason}
	var w PurchaseRequestWire
	if err := c.do(ctx, "transition purchase request", http.MethodPost, "/api/purchase-requests/"+string(id)+"/transition", body, &w); err != nil {
		return nil, err
	}
	out := PurchaseRequestFromWire(w)
	return &out, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (c *Client) CreateTransaction(ctx context.Context, tx ledger.Transaction) (*ledger.Transaction, error) {
	var w TransactionWire
	if err := c.do(ctx, "create transaction", http.MethodPost, "/api/transactions", TransactionToWire(tx), &w); err != nil {
		return nil, err
	}
	out := TransactionFromWire(w)
	return &out, nil
}

func (c *Client) UpdateTransaction(ctx context.Context, tx ledger.Transaction) (*ledger.Transaction, error) {
	var w TransactionWire
	if err := c.do(ctx, "update transaction", http.MethodPut, "/api/transactions/"+string(tx.ID), TransactionToWire(tx), &w); err != nil {
		return nil, err
	}
	out := TransactionFromWire(w)
	return &out, nil
}

func (c *Client) DeleteTransaction(ctx context.Context, id ledger.TransactionID) error {
	return c.do(ctx, "delete transaction", http.MethodDelete, "/api/transactions/"+string(id), nil, nil)
}
