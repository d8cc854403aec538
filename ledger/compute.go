/*
compute.go - Derived totals over a snapshot of entities

PURPOSE:
  Pure, stateless computation of the derived numeric facts the UI shows:
  actual, variance, request totals, remaining ceilings. Nothing here does
  I/O and nothing here mutates its inputs.

ROLL-UP CONSISTENCY:
  LineItemActual must produce the same number whether it sums raw
  transactions or sums each child request's already-computed total.
  Both paths exist below and the tests hold them equal.

REACHABILITY RULE:
  expense line item -> transactions of its APPROVED purchase requests
  revenue line item -> its direct transactions

  A request that has left Approved keeps its transactions (the history
  survives a status regression) - those still count toward actual. Only
  the creation of NEW transactions is gated on the current status, and
  that gate lives in the approval package, not here.

ORDERING:
  Lists shown to a user sort by date descending, ties broken by id
  ascending, unless the caller asks for amount ordering. Deterministic
  iteration order is required for reproducible tests.

SEE ALSO:
  - entities.go: The entities being summed
  - approval: Status gates on new transaction creation
*/
package ledger

import "sort"

// =============================================================================
// DERIVED TOTALS
// =============================================================================

// LineItemActual sums every transaction reachable from the line item:
// through its purchase requests for expense items, directly for revenue.
func LineItemActual(item LineItem, requests []PurchaseRequest, txs []Transaction) Amount {
	actual := Zero
	switch item.Category {
	case CategoryRevenue:
		for _, tx := range txs {
			if tx.IsRevenue() && tx.LineItemID == item.ID {
				actual = actual.Add(tx.Amount)
			}
		}
	default:
		owned := make(map[PurchaseRequestID]bool, len(requests))
		for _, pr := range requests {
			if pr.LineItemID == item.ID {
				owned[pr.ID] = true
			}
		}
		for _, tx := range txs {
			if !tx.IsRevenue() && owned[tx.PurchaseRequestID] {
				actual = actual.Add(tx.Amount)
			}
		}
	}
	return actual
}

// LineItemActualViaRequests computes the same total by rolling up each
// request's transaction total. For revenue items it falls back to the
// direct sum (there is no request indirection to roll up).
func LineItemActualViaRequests(item LineItem, requests []PurchaseRequest, txs []Transaction) Amount {
	if item.Category == CategoryRevenue {
		return LineItemActual(item, requests, txs)
	}
	actual := Zero
	for _, pr := range requests {
		if pr.LineItemID == item.ID {
			actual = actual.Add(RequestTotal(pr, txs))
		}
	}
	return actual
}

// Variance is actual - estimated. Positive means over budget for an
// expense item; callers render the sign, nothing clamps to zero.
func Variance(estimated, actual Amount) Amount {
	return actual.Sub(estimated)
}

// RequestTotal sums the transactions attached to one purchase request.
func RequestTotal(pr PurchaseRequest, txs []Transaction) Amount {
	total := Zero
	for _, tx := range txs {
		if tx.PurchaseRequestID == pr.ID {
			total = total.Add(tx.Amount)
		}
	}
	return total
}

// Remaining is the request ceiling minus its transaction total. May be
// negative (over the ceiling).
func Remaining(pr PurchaseRequest, txs []Transaction) Amount {
	return pr.Amount.Sub(RequestTotal(pr, txs))
}

// =============================================================================
// AGGREGATE TOTALS - Everything the UI shows for one line item
// =============================================================================

// Totals is the full set of derived numbers for an aggregate.
type Totals struct {
	Actual   Amount
	Variance Amount
	// Per-request totals keyed by request id.
	RequestTotals map[PurchaseRequestID]Amount
	Remaining     map[PurchaseRequestID]Amount
}

// ComputeTotals derives every number for the aggregate in one pass set.
// This is the only way derived values come into existence; they are
// never stored and patched incrementally.
func ComputeTotals(a *Aggregate) Totals {
	t := Totals{
		RequestTotals: make(map[PurchaseRequestID]Amount, len(a.Requests)),
		Remaining:     make(map[PurchaseRequestID]Amount, len(a.Requests)),
	}
	t.Actual = LineItemActual(a.LineItem, a.Requests, a.Transactions)
	t.Variance = Variance(a.LineItem.Estimated, t.Actual)
	for _, pr := range a.Requests {
		t.RequestTotals[pr.ID] = RequestTotal(pr, a.Transactions)
		t.Remaining[pr.ID] = Remaining(pr, a.Transactions)
	}
	return t
}

// =============================================================================
// ORDERING
// =============================================================================

// SortOrder selects how presentation lists are ordered.
type SortOrder string

const (
	// OrderByDate is the default: newest first, ties by id ascending.
	OrderByDate SortOrder = "date"
	// OrderByAmount is opt-in: largest first, ties by id ascending.
	OrderByAmount SortOrder = "amount"
)

// SortRequests orders purchase requests for presentation, in place.
func SortRequests(prs []PurchaseRequest, order SortOrder) {
	sort.SliceStable(prs, func(i, j int) bool {
		a, b := prs[i], prs[j]
		switch order {
		case OrderByAmount:
			if !a.Amount.Equal(b.Amount) {
				return b.Amount.LessThan(a.Amount)
			}
		default:
			if !a.RequestedDate.Equal(b.RequestedDate) {
				return a.RequestedDate.After(b.RequestedDate)
			}
		}
		return a.ID < b.ID
	})
}

// SortTransactions orders transactions for presentation, in place.
func SortTransactions(txs []Transaction, order SortOrder) {
	sort.SliceStable(txs, func(i, j int) bool {
		a, b := txs[i], txs[j]
		switch order {
		case OrderByAmount:
			if !a.Amount.Equal(b.Amount) {
				return b.Amount.LessThan(a.Amount)
			}
		default:
			if !a.Date.Equal(b.Date) {
				return a.Date.After(b.Date)
			}
		}
		return a.ID < b.ID
	})
}
