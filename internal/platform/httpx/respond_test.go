package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRespondErrorPrefersDomainMapping(t *testing.T) {
	errSoldOut := errors.New("sold out")
	rr := httptest.NewRecorder()
	RespondError(rr, fmt.Errorf("wrap: %w", errSoldOut), StatusMapping{Err: errSoldOut, Status: http.StatusConflict, Title: "Sold Out"})

	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	var body ProblemDetail
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	require.Equal(t, "Sold Out", body.Title)
	require.Equal(t, "wrap: sold out", body.Detail)
}

func TestRespondErrorFallbacks(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{ErrValidation, http.StatusBadRequest},
		{ErrNotFound, http.StatusNotFound},
		{ErrForbidden, http.StatusForbidden},
		{ErrUnauthorized, http.StatusUnauthorized},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		require.Equal(t, tc.status, rr.Code, tc.err.Error())
	}

	rr := httptest.NewRecorder()
	RespondError(rr, errors.New("secret detail"))
	require.NotContains(t, rr.Body.String(), "secret detail")
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var target struct {
		Price uint64 `json:"price"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"price":1,"fee":2}`))
	require.ErrorIs(t, DecodeJSON(req, &target), ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"price":5}`))
	require.NoError(t, DecodeJSON(req, &target))
	require.Equal(t, uint64(5), target.Price)
}
