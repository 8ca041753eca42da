package gmhttp

import (
	"net/http"
	"strings"

	"slgserver/pkg/apperror"
	"slgserver/pkg/passhash"
)

// RequireRole returns a Server.WithAuth function that validates a bearer
// JWT issued by mgr and requires the claimed role be one of allowedRoles
// (no restriction if allowedRoles is empty). It adapts passhash's
// general-purpose JWTManager into the gmhttp admin-token check the GM
// surface needs.
func RequireRole(mgr *passhash.JWTManager, allowedRoles ...string) func(*http.Request) error {
	allowed := make(map[string]bool, len(allowedRoles))
	for _, r := range allowedRoles {
		allowed[r] = true
	}

	return func(req *http.Request) error {
		header := req.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			return apperror.New(apperror.CodePermissionDenied, "missing bearer token")
		}

		claims, err := mgr.ValidateToken(strings.TrimPrefix(header, prefix))
		if err != nil {
			return apperror.Wrap(err, apperror.CodePermissionDenied, "invalid admin token")
		}

		if len(allowed) > 0 && !allowed[claims.Role] {
			return apperror.New(apperror.CodePermissionDenied, "role not permitted").WithField(claims.Role)
		}
		return nil
	}
}
