package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/marketledger/internal/ledger"
	"github.com/odyssey-erp/marketledger/internal/payments"
	"github.com/odyssey-erp/marketledger/internal/platform/httpx"
	"github.com/odyssey-erp/marketledger/internal/shared"
)

const (
	purchaseRateLimit  = 30
	purchaseRateWindow = time.Minute
)

type ledgerService interface {
	List(ctx context.Context, caller ledger.Identity, input ledger.ListInput) (uint64, error)
	Buy(ctx context.Context, caller ledger.Identity, productID, amountPaid uint64) (ledger.Receipt, error)
	Update(ctx context.Context, caller ledger.Identity, productID uint64, input ledger.UpdateInput) error
	Remove(ctx context.Context, caller ledger.Identity, productID uint64) error
	Product(ctx context.Context, id uint64) (ledger.Product, error)
	SellerListings(ctx context.Context, caller ledger.Identity) []uint64
	BuyerPurchases(ctx context.Context, caller ledger.Identity) []uint64
}

type walletService interface {
	Deposit(ctx context.Context, who ledger.Identity, amount uint64) (uint64, error)
	Balance(ctx context.Context, who ledger.Identity) uint64
}

var errorMappings = []httpx.StatusMapping{
	{Err: ledger.ErrInvalidArgument, Status: http.StatusBadRequest, Title: "Invalid Argument"},
	{Err: ledger.ErrNotFound, Status: http.StatusNotFound, Title: "Not Found"},
	{Err: ledger.ErrForbidden, Status: http.StatusForbidden, Title: "Forbidden"},
	{Err: ledger.ErrUnavailable, Status: http.StatusConflict, Title: "Unavailable"},
	{Err: ledger.ErrConflict, Status: http.StatusConflict, Title: "Conflict"},
	{Err: ledger.ErrInsufficientPayment, Status: http.StatusPaymentRequired, Title: "Insufficient Payment"},
	{Err: ledger.ErrSettlementFailed, Status: http.StatusPaymentRequired, Title: "Settlement Failed"},
	{Err: payments.ErrInvalidAmount, Status: http.StatusBadRequest, Title: "Invalid Amount"},
	{Err: payments.ErrBalanceOverflow, Status: http.StatusUnprocessableEntity, Title: "Balance Overflow"},
}

// Handler exposes the marketplace ledger over JSON HTTP.
type Handler struct {
	logger    *slog.Logger
	ledger    ledgerService
	wallets   walletService
	validator *validator.Validate
}

// NewHandler constructs the ledger handler.
func NewHandler(logger *slog.Logger, ledger ledgerService, wallets walletService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, ledger: ledger, wallets: wallets, validator: validator.New()}
}

// MountRoutes registers ledger routes. Every route requires a caller identity.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(purchaseRateLimit, purchaseRateWindow,
		httprate.WithKeyFuncs(callerRateKey),
	)
	r.Group(func(r chi.Router) {
		r.Use(shared.RequireCaller(h.logger))
		r.Post("/products", h.handleList)
		r.Get("/products/{id}", h.handleGetProduct)
		r.Put("/products/{id}", h.handleUpdate)
		r.Delete("/products/{id}", h.handleRemove)
		r.With(limiter).Post("/products/{id}/purchase", h.handleBuy)
		r.Get("/me/listings", h.handleSellerListings)
		r.Get("/me/purchases", h.handleBuyerPurchases)
		r.Get("/wallet", h.handleBalance)
		r.Post("/wallet/deposit", h.handleDeposit)
	})
}

type listRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description" validate:"required"`
	Price       uint64 `json:"price" validate:"gt=0"`
}

// Name and description may be empty on update.
type updateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       uint64 `json:"price" validate:"gt=0"`
}

type buyRequest struct {
	AmountPaid uint64 `json:"amount_paid"`
}

type depositRequest struct {
	Amount uint64 `json:"amount" validate:"gt=0"`
}

type listResponse struct {
	ID uint64 `json:"id"`
}

type idsResponse struct {
	ProductIDs []uint64 `json:"product_ids"`
}

type balanceResponse struct {
	Identity ledger.Identity `json:"identity"`
	Balance  uint64          `json:"balance"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	caller, _ := shared.CallerFromContext(r.Context())
	var req listRequest
	if err := h.decode(r, &req); err != nil {
		h.respondError(w, err)
		return
	}
	id, err := h.ledger.List(r.Context(), caller, ledger.ListInput{Name: req.Name, Description: req.Description, Price: req.Price})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, listResponse{ID: id})
}

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productID(w, r)
	if !ok {
		return
	}
	product, err := h.ledger.Product(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	caller, _ := shared.CallerFromContext(r.Context())
	id, ok := h.productID(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.respondError(w, err)
		return
	}
	// Price is validated by the ledger so that existence and ownership are
	// reported before a bad price.
	if err := h.ledger.Update(r.Context(), caller, id, ledger.UpdateInput{Name: req.Name, Description: req.Description, Price: req.Price}); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRemove(w http.ResponseWriter, r *http.Request) {
	caller, _ := shared.CallerFromContext(r.Context())
	id, ok := h.productID(w, r)
	if !ok {
		return
	}
	if err := h.ledger.Remove(r.Context(), caller, id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleBuy(w http.ResponseWriter, r *http.Request) {
	caller, _ := shared.CallerFromContext(r.Context())
	id, ok := h.productID(w, r)
	if !ok {
		return
	}
	var req buyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.respondError(w, err)
		return
	}
	receipt, err := h.ledger.Buy(r.Context(), caller, id, req.AmountPaid)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, receipt)
}

func (h *Handler) handleSellerListings(w http.ResponseWriter, r *http.Request) {
	caller, _ := shared.CallerFromContext(r.Context())
	httpx.JSON(w, http.StatusOK, idsResponse{ProductIDs: h.ledger.SellerListings(r.Context(), caller)})
}

func (h *Handler) handleBuyerPurchases(w http.ResponseWriter, r *http.Request) {
	caller, _ := shared.CallerFromContext(r.Context())
	httpx.JSON(w, http.StatusOK, idsResponse{ProductIDs: h.ledger.BuyerPurchases(r.Context(), caller)})
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	caller, _ := shared.CallerFromContext(r.Context())
	httpx.JSON(w, http.StatusOK, balanceResponse{Identity: caller, Balance: h.wallets.Balance(r.Context(), caller)})
}

func (h *Handler) handleDeposit(w http.ResponseWriter, r *http.Request) {
	caller, _ := shared.CallerFromContext(r.Context())
	var req depositRequest
	if err := h.decode(r, &req); err != nil {
		h.respondError(w, err)
		return
	}
	balance, err := h.wallets.Deposit(r.Context(), caller, req.Amount)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, balanceResponse{Identity: caller, Balance: balance})
}

func (h *Handler) decode(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return err
	}
	if err := h.validator.Struct(target); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return &validationError{field: fieldErrs[0].Field(), tag: fieldErrs[0].Tag()}
		}
		return errors.Join(httpx.ErrValidation, err)
	}
	return nil
}

func (h *Handler) productID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", "product id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	if !isDomainError(err) {
		h.logger.Error("ledger request failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err, errorMappings...)
}

func isDomainError(err error) bool {
	if errors.Is(err, httpx.ErrValidation) {
		return true
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.Err) {
			return true
		}
	}
	return false
}

// validationError reports the first failing field of a request body. It
// unwraps to ledger.ErrInvalidArgument so it renders like a ledger rejection.
type validationError struct {
	field string
	tag   string
}

func (e *validationError) Error() string {
	return "ledger: invalid argument: " + e.field + " failed " + e.tag
}

func (e *validationError) Unwrap() error {
	return ledger.ErrInvalidArgument
}

func callerRateKey(r *http.Request) (string, error) {
	if caller, ok := shared.CallerFromContext(r.Context()); ok {
		return "caller:" + string(caller), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
