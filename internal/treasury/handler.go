package treasury

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"strategyvault/internal/httputil"
	"strategyvault/internal/types"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type initRequest struct {
	ExternalAccountRef string `json:"external_account_ref"`
}

type depositRequest struct {
	Amount             string `json:"amount"`
	CorrelationRef     string `json:"correlation_ref"`
	ExternalAccountRef string `json:"external_account_ref"`
}

type withdrawRequest struct {
	Amount         string `json:"amount"`
	CorrelationRef string `json:"correlation_ref"`
}

type settleRequest struct {
	CorrelationRef string `json:"correlation_ref"`
	Reason         string `json:"reason"`
}

type adjustRequest struct {
	StrategyID     string            `json:"strategy_id"`
	OwnerID        string            `json:"owner_id"`
	Amount         string            `json:"amount"`
	Kind           string            `json:"kind"`
	Description    string            `json:"description"`
	RelatedTradeID string            `json:"related_trade_id"`
	CorrelationRef string            `json:"correlation_ref"`
	Metadata       map[string]string `json:"metadata"`
}

type operationResponse struct {
	Balance     *Balance     `json:"balance"`
	Transaction *Transaction `json:"transaction,omitempty"`
}

func (h *Handler) Initialize(w http.ResponseWriter, r *http.Request, ownerID string) {
	var req initRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	bal, err := h.svc.Initialize(r.Context(), chi.URLParam(r, "strategyID"), ownerID, req.ExternalAccountRef)
	if err != nil {
		writeErr(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, operationResponse{Balance: bal})
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request, ownerID string) {
	var req depositRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid amount"})
		return
	}
	bal, rec, err := h.svc.Deposit(r.Context(), chi.URLParam(r, "strategyID"), ownerID, amount, req.CorrelationRef, req.ExternalAccountRef)
	if err != nil {
		writeErr(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, operationResponse{Balance: bal, Transaction: rec})
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request, ownerID string) {
	var req withdrawRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid amount"})
		return
	}
	bal, rec, err := h.svc.Withdraw(r.Context(), chi.URLParam(r, "strategyID"), ownerID, amount, req.CorrelationRef)
	if err != nil {
		writeErr(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, operationResponse{Balance: bal, Transaction: rec})
}

func (h *Handler) ConfirmWithdraw(w http.ResponseWriter, r *http.Request, ownerID string) {
	var req settleRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if strings.TrimSpace(req.CorrelationRef) == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "correlation_ref is required"})
		return
	}
	bal, rec, err := h.svc.ConfirmWithdraw(r.Context(), chi.URLParam(r, "strategyID"), ownerID,
		chi.URLParam(r, "transactionID"), req.CorrelationRef)
	if err != nil {
		writeErr(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, operationResponse{Balance: bal, Transaction: rec})
}

func (h *Handler) CancelWithdraw(w http.ResponseWriter, r *http.Request, ownerID string) {
	var req settleRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	bal, rec, err := h.svc.CancelWithdraw(r.Context(), chi.URLParam(r, "strategyID"), ownerID,
		chi.URLParam(r, "transactionID"), req.Reason)
	if err != nil {
		writeErr(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, operationResponse{Balance: bal, Transaction: rec})
}

// Adjust is the trading pipeline's entry point, exposed on the internal
// surface only. The owner id comes from the request body because the
// pipeline acts on behalf of strategy owners.
func (h *Handler) Adjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid amount"})
		return
	}
	kind := types.TransactionKind(strings.ToUpper(strings.TrimSpace(req.Kind)))
	if !kind.AdjustmentKind() {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "unsupported adjustment kind"})
		return
	}
	bal, rec, err := h.svc.Adjust(r.Context(), req.StrategyID, req.OwnerID, AdjustmentRequest{
		Amount:         amount,
		Kind:           kind,
		Description:    req.Description,
		RelatedTradeID: req.RelatedTradeID,
		CorrelationRef: req.CorrelationRef,
		Metadata:       req.Metadata,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, operationResponse{Balance: bal, Transaction: rec})
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request, ownerID string) {
	bal, err := h.svc.GetBalance(r.Context(), chi.URLParam(r, "strategyID"), ownerID)
	if err != nil {
		writeErr(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, bal)
}

func (h *Handler) OwnerTreasuries(w http.ResponseWriter, r *http.Request, ownerID string) {
	balances, err := h.svc.OwnerTreasuries(r.Context(), ownerID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if balances == nil {
		balances = []Balance{}
	}
	httputil.WriteJSON(w, http.StatusOK, balances)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request, ownerID string) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	page, err := h.svc.TransactionHistory(r.Context(), TransactionFilter{
		StrategyID: chi.URLParam(r, "strategyID"),
		OwnerID:    ownerID,
		Kind:       types.TransactionKind(strings.ToUpper(q.Get("kind"))),
		Status:     types.TransactionStatus(strings.ToUpper(q.Get("status"))),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request, ownerID string) {
	sum, err := h.svc.TransactionSummary(r.Context(), chi.URLParam(r, "strategyID"), ownerID)
	if err != nil {
		writeErr(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sum)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request, ownerID string) {
	if _, err := h.svc.GetBalance(r.Context(), chi.URLParam(r, "strategyID"), ownerID); err != nil {
		writeErr(w, err)
		return
	}
	health, err := h.svc.TreasuryHealth(r.Context(), chi.URLParam(r, "strategyID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, health)
}

func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Reconcile(r.Context(), chi.URLParam(r, "strategyID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

// writeErr maps the ledger error taxonomy to stable response classes so
// clients branch on status, not error text.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "treasury not found"})
	case errors.Is(err, ErrOwnershipMismatch):
		httputil.WriteJSON(w, http.StatusForbidden, httputil.ErrorResponse{Error: "strategy does not belong to owner"})
	case errors.Is(err, ErrInvalidAmount):
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrInsufficientFunds):
		httputil.WriteJSON(w, http.StatusConflict, httputil.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrNegativeBalance):
		httputil.WriteJSON(w, http.StatusConflict, httputil.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrDuplicateReference):
		httputil.WriteJSON(w, http.StatusConflict, httputil.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrTransient):
		httputil.WriteJSON(w, http.StatusServiceUnavailable, httputil.ErrorResponse{Error: "temporary failure, retry"})
	default:
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
	}
}
