/*
handlers.go - HTTP API handlers for the budget persistence service

PURPOSE:
  Exposes the budget store via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic. The wire types are
  shared with the remote client so the two ends cannot drift.

ENDPOINTS:
  Line items:
    GET    /api/line-items                List all line items
    POST   /api/line-items                Create line item
    GET    /api/line-items/{id}           Get one line item
    PUT    /api/line-items/{id}           Update line item
    DELETE /api/line-items/{id}           Delete (blocked with dependents)
    GET    /api/line-items/{id}/aggregate Full aggregate read

  Purchase requests:
    POST   /api/purchase-requests                 Create (forced Pending)
    PUT    /api/purchase-requests/{id}            Update descriptive fields
    DELETE /api/purchase-requests/{id}            Delete (blocked with transactions)
    POST   /api/purchase-requests/{id}/transition Approval transition

  Transactions:
    POST   /api/transactions       Create (approval gate re-checked)
    PUT    /api/transactions/{id}  Update
    DELETE /api/transactions/{id}  Delete

ERROR HANDLING:
  Errors are returned as a structured body with a machine-readable kind:
  - 400 conflict:  Validation errors, invalid input
  - 404 gone:      Entity not found
  - 409 conflict:  Guard violations (dependents, approval gate, illegal transition)
  - 500 transient: Internal errors

SEE ALSO:
  - remote: Wire types and the client-side view of this contract
  - store/sqlite: Persistence behind these handlers
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/gracepoint/budget-engine/approval"
	"github.com/gracepoint/budget-engine/ledger"
	"github.com/gracepoint/budget-engine/remote"
	"github.com/gracepoint/budget-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   *sqlite.Store
	Machine approval.Machine
	Clock   remote.Clock
	Log     *logrus.Logger
}

// NewHandler creates a new handler over the given store.
func NewHandler(store *sqlite.Store, log *logrus.Logger) *Handler {
	return &Handler{
		Store: store,
		Clock: remote.SystemClock{},
		Log:   log,
	}
}

// =============================================================================
// LINE ITEM HANDLERS
// =============================================================================

// ListLineItems returns all line items.
// GET /api/line-items
func (h *Handler) ListLineItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.Store.ListLineItems(r.Context())
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	wires := make([]remote.LineItemWire, len(items))
	for i, li := range items {
		wires[i] = remote.LineItemToWire(li)
	}
	writeJSON(w, http.StatusOK, wires)
}

// CreateLineItem creates a line item with a server-assigned id.
// POST /api/line-items
func (h *Handler) CreateLineItem(w http.ResponseWriter, r *http.Request) {
	var body remote.LineItemWire
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, remote.KindConflict, "invalid JSON body")
		return
	}

	created, err := h.Store.CreateLineItem(r.Context(), remote.LineItemFromWire(body))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, remote.LineItemToWire(*created))
}

// GetLineItem returns one line item.
// GET /api/line-items/{id}
func (h *Handler) GetLineItem(w http.ResponseWriter, r *http.Request) {
	id := ledger.LineItemID(chi.URLParam(r, "id"))
	li, err := h.Store.GetLineItem(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, remote.LineItemToWire(*li))
}

// UpdateLineItem overwrites the mutable fields of a line item.
// PUT /api/line-items/{id}
func (h *Handler) UpdateLineItem(w http.ResponseWriter, r *http.Request) {
	var body remote.LineItemWire
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, remote.KindConflict, "invalid JSON body")
		return
	}
	li := remote.LineItemFromWire(body)
	li.ID = ledger.LineItemID(chi.URLParam(r, "id"))

	updated, err := h.Store.UpdateLineItem(r.Context(), li)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, remote.LineItemToWire(*updated))
}

// DeleteLineItem deletes a line item without dependents.
// DELETE /api/line-items/{id}
func (h *Handler) DeleteLineItem(w http.ResponseWriter, r *http.Request) {
	id := ledger.LineItemID(chi.URLParam(r, "id"))
	if err := h.Store.DeleteLineItem(r.Context(), id); err != nil {
		h.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetAggregate returns the full aggregate for one line item.
// GET /api/line-items/{id}/aggregate
func (h *Handler) GetAggregate(w http.ResponseWriter, r *http.Request) {
	id := ledger.LineItemID(chi.URLParam(r, "id"))
	agg, err := h.Store.GetAggregate(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, remote.AggregateToWire(agg))
}

// =============================================================================
// PURCHASE REQUEST HANDLERS
// =============================================================================

// CreatePurchaseRequest creates a request in Pending status.
// POST /api/purchase-requests
func (h *Handler) CreatePurchaseRequest(w http.ResponseWriter, r *http.Request) {
	var body remote.PurchaseRequestWire
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, remote.KindConflict, "invalid JSON body")
		return
	}

	created, err := h.Store.CreatePurchaseRequest(r.Context(), remote.PurchaseRequestFromWire(body))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, remote.PurchaseRequestToWire(*created))
}

// GetPurchaseRequest returns one purchase request.
// GET /api/purchase-requests/{id}
func (h *Handler) GetPurchaseRequest(w http.ResponseWriter, r *http.Request) {
	id := ledger.PurchaseRequestID(chi.URLParam(r, "id"))
	pr, err := h.Store.GetPurchaseRequest(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, remote.PurchaseRequestToWire(*pr))
}

// UpdatePurchaseRequest overwrites the descriptive fields and ceiling.
// Status never changes through this endpoint.
// PUT /api/purchase-requests/{id}
func (h *Handler) UpdatePurchaseRequest(w http.ResponseWriter, r *http.Request) {
	var body remote.PurchaseRequestWire
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, remote.KindConflict, "invalid JSON body")
		return
	}
	pr := remote.PurchaseRequestFromWire(body)
	pr.ID = ledger.PurchaseRequestID(chi.URLParam(r, "id"))

	updated, err := h.Store.UpdatePurchaseRequest(r.Context(), pr)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, remote.PurchaseRequestToWire(*updated))
}

// DeletePurchaseRequest deletes a request without transactions.
// DELETE /api/purchase-requests/{id}
func (h *Handler) DeletePurchaseRequest(w http.ResponseWriter, r *http.Request) {
	id := ledger.PurchaseRequestID(chi.URLParam(r, "id"))
	if err := h.Store.DeletePurchaseRequest(r.Context(), id); err != nil {
		h.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TransitionPurchaseRequest runs the approval state machine against the
// stored request and persists the outcome.
// POST /api/purchase-requests/{id}/transition
func (h *Handler) TransitionPurchaseRequest(w http.ResponseWriter, r *http.Request) {
	var body remote.TransitionWire
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, remote.KindConflict, "invalid JSON body")
		return
	}

	id := ledger.PurchaseRequestID(chi.URLParam(r, "id"))
	pr, err := h.Store.GetPurchaseRequest(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	decision := approval.Decision{
		To:     ledger.ApprovalStatus(body.To),
		Actor:  body.Actor,
		Reason: body.Reason,
		Now:    h.Clock.Now(),
	}
	if err := h.Machine.Transition(pr, decision); err != nil {
		if ledger.IsValidation(err) {
			writeError(w, http.StatusConflict, remote.KindConflict, err.Error())
		} else {
			writeError(w, http.StatusInternalServerError, remote.KindTransient, err.Error())
		}
		return
	}

	saved, err := h.Store.SaveDecision(r.Context(), *pr)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, remote.PurchaseRequestToWire(*saved))
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

// CreateTransaction records a transaction. The approval gate is
// re-checked inside the store; an unapproved owner yields 409.
// POST /api/transactions
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var body remote.TransactionWire
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, remote.KindConflict, "invalid JSON body")
		return
	}

	created, err := h.Store.CreateTransaction(r.Context(), remote.TransactionFromWire(body))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, remote.TransactionToWire(*created))
}

// GetTransaction returns one transaction.
// GET /api/transactions/{id}
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id := ledger.TransactionID(chi.URLParam(r, "id"))
	tx, err := h.Store.GetTransaction(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, remote.TransactionToWire(*tx))
}

// UpdateTransaction overwrites amount, date, method, and description.
// PUT /api/transactions/{id}
func (h *Handler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var body remote.TransactionWire
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, remote.KindConflict, "invalid JSON body")
		return
	}
	tx := remote.TransactionFromWire(body)
	tx.ID = ledger.TransactionID(chi.URLParam(r, "id"))

	updated, err := h.Store.UpdateTransaction(r.Context(), tx)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, remote.TransactionToWire(*updated))
}

// DeleteTransaction deletes a transaction.
// DELETE /api/transactions/{id}
func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := ledger.TransactionID(chi.URLParam(r, "id"))
	if err := h.Store.DeleteTransaction(r.Context(), id); err != nil {
		h.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, kind remote.Kind, message string) {
	writeJSON(w, status, remote.ErrorWire{Kind: string(kind), Message: message})
}

// writeStoreError maps store errors onto status codes and wire kinds.
func (h *Handler) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sqlite.ErrNotFound):
		writeError(w, http.StatusNotFound, remote.KindGone, err.Error())
	case errors.Is(err, sqlite.ErrHasDependents), errors.Is(err, sqlite.ErrNotApproved):
		writeError(w, http.StatusConflict, remote.KindConflict, err.Error())
	case errors.Is(err, sqlite.ErrInvalid):
		writeError(w, http.StatusBadRequest, remote.KindConflict, err.Error())
	default:
		if h.Log != nil {
			h.Log.WithError(err).Error("internal storage error")
		}
		writeError(w, http.StatusInternalServerError, remote.KindTransient, "internal error")
	}
}
