package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/marketledger/internal/ledger/store"
	"github.com/odyssey-erp/marketledger/internal/platform/httpx"
)

type stateSource func(at time.Time) store.Document

// AdminHandler serves whole-ledger views. It carries every caller's history
// and balance, so it is only mounted on the operator listener.
type AdminHandler struct {
	logger *slog.Logger
	state  stateSource
	now    func() time.Time
}

// NewAdminHandler constructs the operator handler. capture is usually a
// closure over store.Capture for the live ledger and wallets.
func NewAdminHandler(logger *slog.Logger, capture func(at time.Time) store.Document) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{
		logger: logger,
		state:  capture,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// MountRoutes registers operator routes.
func (h *AdminHandler) MountRoutes(r chi.Router) {
	r.Get("/state", h.handleState)
}

func (h *AdminHandler) handleState(w http.ResponseWriter, r *http.Request) {
	doc := h.state(h.now())
	h.logger.Info("state exported",
		slog.Uint64("next_id", doc.Ledger.NextID),
		slog.String("remote_addr", r.RemoteAddr),
	)
	httpx.JSON(w, http.StatusOK, doc)
}
