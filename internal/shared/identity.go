package shared

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-erp/marketledger/internal/ledger"
	"github.com/odyssey-erp/marketledger/internal/platform/httpx"
)

// CallerHeader carries the identity verified by the fronting environment.
const CallerHeader = "X-Caller-Identity"

// RequireCaller rejects requests without a caller identity and stores the
// identity in the request context.
func RequireCaller(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := strings.TrimSpace(r.Header.Get(CallerHeader))
			if caller == "" {
				if logger != nil {
					logger.Warn("missing caller identity", slog.String("path", r.URL.Path))
				}
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			ctx := ContextWithCaller(r.Context(), ledger.Identity(caller))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
