package handlers

import (
	"net/http"

	httpmiddleware "github.com/wolfman30/salesfusion/internal/http/middleware"
)

func adminSubject(r *http.Request) (string, bool) {
	claims, ok := httpmiddleware.AdminClaimsFromContext(r.Context())
	if !ok || claims.Subject == "" {
		return "", false
	}
	return claims.Subject, true
}
