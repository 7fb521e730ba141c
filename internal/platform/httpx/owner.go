package httpx

import "net/http"

// OwnerID extracts the owner scope set by the upstream caller. Authentication
// itself happens outside this service; the gateway injects the header.
func OwnerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		Problem(w, http.StatusBadRequest, "Missing Owner", "X-User-ID header is required")
		return "", false
	}
	return userID, true
}
