package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ariefcatur/go-bom-consumption/internal/bom"
	"github.com/ariefcatur/go-bom-consumption/internal/orders"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Engine interface {
	ConsumeOrderComponents(ctx context.Context, accountID string, o orders.Order) (bom.ConsumptionResult, error)
	ReverseOrderConsumption(ctx context.Context, accountID string, o orders.Order) (bom.ReversalResult, error)
}

type Planner interface {
	Plan(ctx context.Context, accountID string, li orders.LineItem) ([]bom.Deduction, error)
	Cost(ctx context.Context, accountID string, productID, variationID int64) (*bom.CostBreakdown, error)
}

type LedgerReader interface {
	FindByOrder(ctx context.Context, accountID string, orderID int64, statuses ...bom.LedgerStatus) ([]bom.LedgerEntry, error)
}

type Sweeper interface {
	Sweep(ctx context.Context) (bom.RecoveryReport, error)
}

// BOMHandler is the operator surface over the consumption engine.
type BOMHandler struct {
	Engine   Engine
	Planner  Planner
	Ledger   LedgerReader
	Recovery Sweeper
	Log      *zap.Logger
}

func (h *BOMHandler) Register(r chi.Router) {
	r.Route("/accounts/{account}", func(r chi.Router) {
		r.Post("/orders/{order}/consume", h.consume)
		r.Post("/orders/{order}/reverse", h.reverse)
		r.Get("/orders/{order}/ledger", h.ledger)
		r.Post("/plan", h.plan)
		r.Get("/boms/{product}/cost", h.cost)
	})
	r.Post("/recovery/sweep", h.sweep)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// orderFromRequest reads an optional order body; the path id always wins.
func orderFromRequest(w http.ResponseWriter, r *http.Request, def orders.Status) (string, orders.Order, bool) {
	account := chi.URLParam(r, "account")
	id, err := strconv.ParseInt(chi.URLParam(r, "order"), 10, 64)
	if err != nil || id <= 0 || account == "" {
		writeError(w, http.StatusBadRequest, "invalid account or order id")
		return "", orders.Order{}, false
	}
	var o orders.Order
	if err := json.NewDecoder(r.Body).Decode(&o); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid json")
		return "", orders.Order{}, false
	}
	o.ID = id
	if o.Status == "" {
		o.Status = def
	}
	return account, o, true
}

func (h *BOMHandler) consume(w http.ResponseWriter, r *http.Request) {
	account, o, ok := orderFromRequest(w, r, orders.StatusProcessing)
	if !ok {
		return
	}
	if len(o.LineItems) == 0 {
		writeError(w, http.StatusBadRequest, "missing line_items")
		return
	}
	res, err := h.Engine.ConsumeOrderComponents(r.Context(), account, o)
	if err != nil {
		h.Log.Error("manual consumption failed", zap.String("account_id", account), zap.Int64("order_id", o.ID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error(), "result": res})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *BOMHandler) reverse(w http.ResponseWriter, r *http.Request) {
	account, o, ok := orderFromRequest(w, r, orders.StatusCancelled)
	if !ok {
		return
	}
	res, err := h.Engine.ReverseOrderConsumption(r.Context(), account, o)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	code := http.StatusOK
	if res.Skipped {
		code = http.StatusConflict
	}
	writeJSON(w, code, res)
}

type ledgerEntryResp struct {
	ID            string           `json:"id"`
	Component     bom.ComponentRef `json:"component"`
	ComponentName string           `json:"component_name"`
	Quantity      int              `json:"quantity"`
	PreviousStock int              `json:"previous_stock"`
	NewStock      int              `json:"new_stock"`
	Status        bom.LedgerStatus `json:"status"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

func (h *BOMHandler) ledger(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	id, err := strconv.ParseInt(chi.URLParam(r, "order"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	var statuses []bom.LedgerStatus
	if s := r.URL.Query().Get("status"); s != "" {
		statuses = append(statuses, bom.LedgerStatus(s))
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	entries, err := h.Ledger.FindByOrder(ctx, account, id, statuses...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]ledgerEntryResp, 0, len(entries))
	for _, e := range entries {
		out = append(out, ledgerEntryResp{
			ID: e.ID.String(), Component: e.Component, ComponentName: e.ComponentName,
			Quantity: e.Quantity, PreviousStock: e.PreviousStock, NewStock: e.NewStock,
			Status: e.Status, CreatedAt: e.CreatedAt, UpdatedAt: e.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *BOMHandler) plan(w http.ResponseWriter, r *http.Request) {
	var li orders.LineItem
	if err := json.NewDecoder(r.Body).Decode(&li); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if li.ProductID == 0 || li.Quantity <= 0 {
		writeError(w, http.StatusBadRequest, "product_id and quantity required")
		return
	}
	plan, err := h.Planner.Plan(r.Context(), chi.URLParam(r, "account"), li)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if plan == nil {
		plan = []bom.Deduction{}
	}
	writeJSON(w, http.StatusOK, plan)
}

func (h *BOMHandler) cost(w http.ResponseWriter, r *http.Request) {
	product, err := strconv.ParseInt(chi.URLParam(r, "product"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	var variation int64
	if v := r.URL.Query().Get("variation"); v != "" {
		if variation, err = strconv.ParseInt(v, 10, 64); err != nil {
			writeError(w, http.StatusBadRequest, "invalid variation id")
			return
		}
	}
	c, err := h.Planner.Cost(r.Context(), chi.URLParam(r, "account"), product, variation)
	switch {
	case errors.Is(err, bom.ErrNotFound):
		writeError(w, http.StatusNotFound, "bom not found")
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, c)
	}
}

func (h *BOMHandler) sweep(w http.ResponseWriter, r *http.Request) {
	rep, err := h.Recovery.Sweep(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error(), "report": rep})
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
