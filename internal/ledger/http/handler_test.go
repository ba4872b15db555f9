package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/marketledger/internal/ledger"
	"github.com/odyssey-erp/marketledger/internal/ledger/store"
	"github.com/odyssey-erp/marketledger/internal/payments"
	"github.com/odyssey-erp/marketledger/internal/platform/httpx"
	"github.com/odyssey-erp/marketledger/internal/shared"
)

type testServer struct {
	router  http.Handler
	ledger  *ledger.Ledger
	wallets *payments.Wallets
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	wallets := payments.NewWallets()
	l := ledger.New(wallets, ledger.Config{})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewHandler(logger, l, wallets)
	r := chi.NewRouter()
	r.Route("/api", handler.MountRoutes)
	return &testServer{router: r, ledger: l, wallets: wallets}
}

func (s *testServer) do(t *testing.T, method, path, caller, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if caller != "" {
		req.Header.Set(shared.CallerHeader, caller)
	}
	req.RemoteAddr = "10.0.0.1:1234"
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func decodeProblem(t *testing.T, rr *httptest.ResponseRecorder) httpx.ProblemDetail {
	t.Helper()
	var problem httpx.ProblemDetail
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&problem))
	return problem
}

func TestListAndGetProduct(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, "/api/products", "s1", `{"name":"Chair","description":"Wooden chair","price":100}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	var created listResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&created))
	require.Equal(t, uint64(1), created.ID)

	rr = s.do(t, http.MethodGet, "/api/products/1", "anyone", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var product ledger.Product
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&product))
	require.Equal(t, ledger.Product{ID: 1, Name: "Chair", Description: "Wooden chair", Price: 100, Seller: "s1", IsAvailable: true}, product)

	rr = s.do(t, http.MethodGet, "/api/products/2", "anyone", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
	rr = s.do(t, http.MethodGet, "/api/products/abc", "anyone", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListValidation(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, "/api/products", "s1", `{"name":"Chair","description":"Wooden chair","price":0}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "Invalid Argument", decodeProblem(t, rr).Title)

	rr = s.do(t, http.MethodPost, "/api/products", "s1", `{"name":"","description":"Wooden chair","price":5}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, http.MethodPost, "/api/products", "s1", `{"name":"Chair",`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "Validation Failed", decodeProblem(t, rr).Title)

	rr = s.do(t, http.MethodPost, "/api/products", "s1", `{"name":"Chair","description":"Wooden chair","price":5}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	var created listResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&created))
	require.Equal(t, uint64(1), created.ID)
}

func TestMissingCallerRejected(t *testing.T) {
	s := newTestServer(t)
	rr := s.do(t, http.MethodPost, "/api/products", "", `{"name":"Chair","description":"Wooden chair","price":5}`)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Empty(t, s.ledger.SellerListings(context.Background(), ""))
}

func TestPurchaseFlow(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, "/api/products", "s1", `{"name":"Chair","description":"Wooden chair","price":100}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = s.do(t, http.MethodPost, "/api/products/1/purchase", "b1", `{"amount_paid":100}`)
	require.Equal(t, http.StatusPaymentRequired, rr.Code)
	require.Equal(t, "Settlement Failed", decodeProblem(t, rr).Title)

	rr = s.do(t, http.MethodPost, "/api/wallet/deposit", "b1", `{"amount":150}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var bal balanceResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&bal))
	require.Equal(t, uint64(150), bal.Balance)

	rr = s.do(t, http.MethodPost, "/api/products/1/purchase", "b1", `{"amount_paid":99}`)
	require.Equal(t, http.StatusPaymentRequired, rr.Code)
	require.Equal(t, "Insufficient Payment", decodeProblem(t, rr).Title)

	rr = s.do(t, http.MethodPost, "/api/products/1/purchase", "s1", `{"amount_paid":100}`)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = s.do(t, http.MethodPost, "/api/products/1/purchase", "b1", `{"amount_paid":100}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var receipt ledger.Receipt
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&receipt))
	require.Equal(t, ledger.Receipt{ProductID: 1, Buyer: "b1", Seller: "s1", Price: 100}, receipt)

	rr = s.do(t, http.MethodPost, "/api/products/1/purchase", "b2", `{"amount_paid":100}`)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "Unavailable", decodeProblem(t, rr).Title)

	rr = s.do(t, http.MethodGet, "/api/wallet", "s1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&bal))
	require.Equal(t, uint64(100), bal.Balance)

	rr = s.do(t, http.MethodGet, "/api/me/purchases", "b1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var ids idsResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&ids))
	require.Equal(t, []uint64{1}, ids.ProductIDs)

	rr = s.do(t, http.MethodGet, "/api/me/listings", "s1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&ids))
	require.Equal(t, []uint64{1}, ids.ProductIDs)

	rr = s.do(t, http.MethodGet, "/api/me/listings", "nobody", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"product_ids":[]}`, rr.Body.String())
}

func TestUpdateAndRemove(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, "/api/products", "s1", `{"name":"Lamp","description":"Desk lamp","price":50}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = s.do(t, http.MethodPut, "/api/products/1", "s1", `{"name":"Lamp","description":"Desk lamp","price":60}`)
	require.Equal(t, http.StatusNoContent, rr.Code)
	p, err := s.ledger.Product(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, uint64(60), p.Price)

	rr = s.do(t, http.MethodPut, "/api/products/1", "s2", `{"name":"Lamp","description":"Desk lamp","price":60}`)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = s.do(t, http.MethodPut, "/api/products/1", "s1", `{"price":0}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, http.MethodPut, "/api/products/9", "s1", `{"price":0}`)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = s.do(t, http.MethodDelete, "/api/products/1", "s2", "")
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = s.do(t, http.MethodDelete, "/api/products/1", "s1", "")
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = s.do(t, http.MethodDelete, "/api/products/1", "s1", "")
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "Conflict", decodeProblem(t, rr).Title)

	rr = s.do(t, http.MethodPut, "/api/products/1", "s1", `{"price":10}`)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "Unavailable", decodeProblem(t, rr).Title)
}

func TestDepositValidation(t *testing.T) {
	s := newTestServer(t)
	rr := s.do(t, http.MethodPost, "/api/wallet/deposit", "b1", `{"amount":0}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Zero(t, s.wallets.Balance(context.Background(), "b1"))
}

func TestCallersCannotReadOtherPurchases(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	_, err := s.wallets.Deposit(ctx, "alice", 100)
	require.NoError(t, err)

	rr := s.do(t, http.MethodPost, "/api/products", "s1", `{"name":"Chair","description":"Wooden chair","price":100}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	rr = s.do(t, http.MethodPost, "/api/products/1/purchase", "alice", `{"amount_paid":100}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = s.do(t, http.MethodGet, "/api/snapshot", "mallory", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.NotContains(t, rr.Body.String(), "alice")

	rr = s.do(t, http.MethodGet, "/api/me/purchases", "mallory", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"product_ids":[]}`, rr.Body.String())
}

func TestAdminStateIncludesWallets(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	_, err := s.wallets.Deposit(ctx, "b1", 80)
	require.NoError(t, err)
	id, err := s.ledger.List(ctx, "s1", ledger.ListInput{Name: "Lamp", Description: "Desk lamp", Price: 50})
	require.NoError(t, err)
	_, err = s.ledger.Buy(ctx, "b1", id, 50)
	require.NoError(t, err)

	admin := NewAdminHandler(nil, func(at time.Time) store.Document {
		return store.Capture(s.ledger, s.wallets, at)
	})
	r := chi.NewRouter()
	r.Route("/admin", admin.MountRoutes)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/state", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var doc store.Document
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&doc))
	require.Equal(t, uint64(1), doc.Ledger.NextID)
	require.Equal(t, []uint64{1}, doc.Ledger.BuyerIndex["b1"])
	require.Equal(t, map[ledger.Identity]uint64{"b1": 30, "s1": 50}, doc.Wallets)
}
