package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"commerce-engine/internal/app"
	"commerce-engine/internal/core"
)

// Handler exposes the application service over HTTP.
type Handler struct {
	svc app.ApplicationService
}

// NewRouter wires all API routes onto a gorilla/mux router.
func NewRouter(svc app.ApplicationService) *mux.Router {
	h := &Handler{svc: svc}

	r := mux.NewRouter()
	r.Use(RequestID)
	r.Use(Logger)
	r.Use(Recoverer)

	r.HandleFunc("/api/health", h.health).Methods(http.MethodGet)

	// ── Pricing ───────────────────────────────────────────────────────────────
	r.HandleFunc("/api/quotes", h.quote).Methods(http.MethodPost)

	// ── Orders ────────────────────────────────────────────────────────────────
	r.HandleFunc("/api/orders", h.placeOrder).Methods(http.MethodPost)
	r.HandleFunc("/api/orders/{id}", h.getOrder).Methods(http.MethodGet)
	r.HandleFunc("/api/orders/{id}/payment", h.paymentCallback).Methods(http.MethodPost)
	r.HandleFunc("/api/orders/{id}/cancel", h.cancelOrder).Methods(http.MethodPost)

	// ── Catalog ───────────────────────────────────────────────────────────────
	r.HandleFunc("/api/products", h.createProduct).Methods(http.MethodPost)
	r.HandleFunc("/api/products/{id}", h.getProduct).Methods(http.MethodGet)
	r.HandleFunc("/api/products/{id}", h.updateProduct).Methods(http.MethodPut)
	r.HandleFunc("/api/products/{id}", h.deactivateProduct).Methods(http.MethodDelete)
	r.HandleFunc("/api/categories", h.upsertCategory).Methods(http.MethodPut)
	r.HandleFunc("/api/overrides", h.setOverride).Methods(http.MethodPut)
	r.HandleFunc("/api/overrides/{storeID}/{productID}", h.clearOverride).Methods(http.MethodDelete)

	// ── Stock ─────────────────────────────────────────────────────────────────
	r.HandleFunc("/api/products/{id}/availability", h.availability).Methods(http.MethodGet)
	r.HandleFunc("/api/products/{id}/badge", h.badge).Methods(http.MethodGet)
	r.HandleFunc("/api/products/{id}/movements", h.movements).Methods(http.MethodGet)
	r.HandleFunc("/api/products/{id}/replay", h.replay).Methods(http.MethodGet)
	r.HandleFunc("/api/stock/receipts", h.receiveStock).Methods(http.MethodPost)
	r.HandleFunc("/api/stock/adjustments", h.adjustStock).Methods(http.MethodPost)

	// ── Reporting ─────────────────────────────────────────────────────────────
	r.HandleFunc("/api/reports/tax-filing", h.taxFiling).Methods(http.MethodGet)

	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) quote(w http.ResponseWriter, r *http.Request) {
	var req app.QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, "invalid request body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	res, err := h.svc.Quote(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req app.PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, "invalid request body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	res, err := h.svc.PlaceOrder(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.GetOrder(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) paymentCallback(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, "invalid request body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	res, err := h.svc.ConfirmPayment(r.Context(), mux.Vars(r)["id"], body.Success)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RequestedBy string `json:"requested_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, "invalid request body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	res, err := h.svc.CancelOrder(r.Context(), mux.Vars(r)["id"], body.RequestedBy)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var in core.ProductInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, r, "invalid request body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	res, err := h.svc.CreateProduct(r.Context(), in)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.GetProduct(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var in core.ProductInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, r, "invalid request body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	res, err := h.svc.UpdateProduct(r.Context(), mux.Vars(r)["id"], in)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) deactivateProduct(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.DeactivateProduct(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) upsertCategory(w http.ResponseWriter, r *http.Request) {
	var cat core.GSTCategory
	if err := json.NewDecoder(r.Body).Decode(&cat); err != nil {
		writeError(w, r, "invalid request body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	res, err := h.svc.UpsertCategory(r.Context(), cat)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) setOverride(w http.ResponseWriter, r *http.Request) {
	var ov core.RateOverride
	if err := json.NewDecoder(r.Body).Decode(&ov); err != nil {
		writeError(w, r, "invalid request body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	if err := h.svc.SetRateOverride(r.Context(), ov); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

func (h *Handler) clearOverride(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.svc.ClearRateOverride(r.Context(), vars["storeID"], vars["productID"]); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (h *Handler) availability(w http.ResponseWriter, r *http.Request) {
	qty, err := strconv.Atoi(r.URL.Query().Get("qty"))
	if err != nil || qty <= 0 {
		writeError(w, r, "qty must be a positive integer", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	res, err := h.svc.GetAvailability(r.Context(), mux.Vars(r)["id"], qty)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) badge(w http.ResponseWriter, r *http.Request) {
	badge, err := h.svc.GetBadge(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]core.StockBadge{"badge": badge})
}

func (h *Handler) movements(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.GetMovements(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) replay(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ReplayStock(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) receiveStock(w http.ResponseWriter, r *http.Request) {
	var req app.ReceiveStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, "invalid request body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	res, err := h.svc.ReceiveStock(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	var req app.AdjustStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, "invalid request body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	res, err := h.svc.AdjustStock(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) taxFiling(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := time.Parse(time.RFC3339, q.Get("from"))
	if err != nil {
		writeError(w, r, "from must be RFC3339", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	to, err := time.Parse(time.RFC3339, q.Get("to"))
	if err != nil {
		writeError(w, r, "to must be RFC3339", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	res, err := h.svc.TaxReport(r.Context(), q.Get("store_id"), from, to)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
