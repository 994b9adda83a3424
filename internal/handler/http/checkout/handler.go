package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"checkout/internal/app/checkout"
	"checkout/internal/domain"
)

type CheckoutService interface {
	CreateSession(ctx context.Context, buyerID string) (*checkout.SessionView, error)
	GetSession(ctx context.Context, buyerID, sessionID string) (*checkout.SessionView, error)
	AddItem(ctx context.Context, buyerID, sessionID, itemID string, quantity int) (*checkout.SessionView, error)
	RemoveItem(ctx context.Context, buyerID, sessionID, itemID string) (*checkout.SessionView, error)
	ClearCart(ctx context.Context, buyerID, sessionID string) (*checkout.SessionView, error)
	BeginCheckout(ctx context.Context, buyerID, sessionID string) (*checkout.SessionView, error)
	SubmitPhone(ctx context.Context, buyerID, sessionID, raw, network string) (*checkout.SessionView, error)
	Confirm(ctx context.Context, buyerID, sessionID string) (*checkout.SessionView, error)
	Retry(ctx context.Context, buyerID, sessionID string) (*checkout.SessionView, error)
	Reset(ctx context.Context, buyerID, sessionID string) (*checkout.SessionView, error)
	EndSession(ctx context.Context, buyerID, sessionID string) error
	GetOrder(ctx context.Context, buyerID, orderID string) (*checkout.OrderView, error)
	ListOrders(ctx context.Context, buyerID string) ([]*domain.Order, error)
}

type ListingCatalog interface {
	List(ctx context.Context) ([]domain.ListingWithVendor, error)
}

type addItemRequest struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

type submitPhoneRequest struct {
	Phone   string `json:"phone"`
	Network string `json:"network"`
}

type errorResponse struct {
	Error   checkout.ErrorView    `json:"error"`
	Session *checkout.SessionView `json:"session,omitempty"`
}

type CheckoutHandler struct {
	service CheckoutService
	catalog ListingCatalog
	logger  *zap.Logger
}

func NewCheckoutHandler(s CheckoutService, c ListingCatalog, l *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{service: s, catalog: c, logger: l}
}

type buyerKey struct{}

// requireBuyer rejects requests without an X-Buyer-ID header set by the auth layer.
func requireBuyer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buyerID := r.Header.Get("X-Buyer-ID")
		if buyerID == "" {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "Please sign in to continue.", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), buyerKey{}, buyerID)))
	})
}

func buyerFrom(r *http.Request) string {
	id, _ := r.Context().Value(buyerKey{}).(string)
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, message string, session *checkout.SessionView) {
	writeJSON(w, status, errorResponse{
		Error:   checkout.ErrorView{Kind: kind, Message: message},
		Session: session,
	})
}

func statusFor(err error) int {
	var validationErr *domain.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrListingNotFound),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrItemNotInCart):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrCartLocked),
		errors.Is(err, domain.ErrEmptyCart),
		errors.Is(err, domain.ErrListingUnavailable),
		errors.Is(err, domain.ErrVendorNotVerified),
		errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *CheckoutHandler) respondError(w http.ResponseWriter, r *http.Request, err error, session *checkout.SessionView) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, status, domain.KindInternal, domain.UserMessage(err), nil)
		return
	}

	kind := domain.ErrorKind(err)
	message := domain.UserMessage(err)
	if kind == domain.KindInternal {
		// Expected domain conditions carry their own text.
		message = err.Error()
	}
	h.logger.Info("Request rejected", zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	writeError(w, status, kind, message, session)
}

// respond writes view on success. On failure the view, if any, travels with the error.
func (h *CheckoutHandler) respond(w http.ResponseWriter, r *http.Request, status int, view *checkout.SessionView, err error) {
	if err != nil {
		h.respondError(w, r, err, view)
		return
	}
	writeJSON(w, status, view)
}

func (h *CheckoutHandler) ListListings(w http.ResponseWriter, r *http.Request) {
	listings, err := h.catalog.List(r.Context())
	if err != nil {
		h.respondError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, listings)
}

func (h *CheckoutHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.CreateSession(r.Context(), buyerFrom(r))
	h.respond(w, r, http.StatusCreated, view, err)
}

func (h *CheckoutHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.GetSession(r.Context(), buyerFrom(r), chi.URLParam(r, "sessionID"))
	h.respond(w, r, http.StatusOK, view, err)
}

func (h *CheckoutHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	if err := h.service.EndSession(r.Context(), buyerFrom(r), chi.URLParam(r, "sessionID")); err != nil {
		h.respondError(w, r, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CheckoutHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Invalid request body for AddItem", zap.Error(err))
		writeError(w, http.StatusBadRequest, domain.KindValidation, "Invalid request body", nil)
		return
	}
	if req.ItemID == "" {
		writeError(w, http.StatusUnprocessableEntity, domain.KindValidation, "Choose an item to add.", nil)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	view, err := h.service.AddItem(r.Context(), buyerFrom(r), chi.URLParam(r, "sessionID"), req.ItemID, req.Quantity)
	h.respond(w, r, http.StatusOK, view, err)
}

func (h *CheckoutHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.RemoveItem(r.Context(), buyerFrom(r), chi.URLParam(r, "sessionID"), chi.URLParam(r, "itemID"))
	h.respond(w, r, http.StatusOK, view, err)
}

func (h *CheckoutHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.ClearCart(r.Context(), buyerFrom(r), chi.URLParam(r, "sessionID"))
	h.respond(w, r, http.StatusOK, view, err)
}

func (h *CheckoutHandler) BeginCheckout(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.BeginCheckout(r.Context(), buyerFrom(r), chi.URLParam(r, "sessionID"))
	h.respond(w, r, http.StatusOK, view, err)
}

func (h *CheckoutHandler) SubmitPhone(w http.ResponseWriter, r *http.Request) {
	var req submitPhoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Invalid request body for SubmitPhone", zap.Error(err))
		writeError(w, http.StatusBadRequest, domain.KindValidation, "Invalid request body", nil)
		return
	}
	view, err := h.service.SubmitPhone(r.Context(), buyerFrom(r), chi.URLParam(r, "sessionID"), req.Phone, req.Network)
	h.respond(w, r, http.StatusOK, view, err)
}

func (h *CheckoutHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Confirm(r.Context(), buyerFrom(r), chi.URLParam(r, "sessionID"))
	h.respond(w, r, http.StatusAccepted, view, err)
}

func (h *CheckoutHandler) Retry(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Retry(r.Context(), buyerFrom(r), chi.URLParam(r, "sessionID"))
	h.respond(w, r, http.StatusOK, view, err)
}

func (h *CheckoutHandler) Reset(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Reset(r.Context(), buyerFrom(r), chi.URLParam(r, "sessionID"))
	h.respond(w, r, http.StatusOK, view, err)
}

func (h *CheckoutHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	order, err := h.service.GetOrder(r.Context(), buyerFrom(r), orderID)
	if err != nil {
		h.respondError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *CheckoutHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListOrders(r.Context(), buyerFrom(r))
	if err != nil {
		h.respondError(w, r, err, nil)
		return
	}
	if orders == nil {
		orders = []*domain.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
