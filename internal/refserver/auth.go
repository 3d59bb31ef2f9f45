package refserver

import (
	"net/http"

	"github.com/nimbuscorp/syncengine/internal/authctx"
)

// authMiddleware validates the bearer token and attaches the resulting
// Identity to the request context. An X-Tenant-Id header that differs
// from the token's tenant is refused with 403; a request without the
// header is let through and served under the token's tenant.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := authctx.BearerFromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "missing_token", err.Error())
			return
		}
		id, err := s.JWTCfg.Validate(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token", err.Error())
			return
		}
		if headerTenant := r.Header.Get("X-Tenant-Id"); headerTenant != "" && headerTenant != id.TenantID {
			writeError(w, http.StatusForbidden, "tenant_mismatch", "X-Tenant-Id does not match token tenant")
			return
		}
		ctx := authctx.WithIdentity(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
