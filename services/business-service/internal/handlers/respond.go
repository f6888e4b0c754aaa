package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/barberflow/barberflow/libs/blob"
	"github.com/barberflow/barberflow/libs/db"
	"github.com/barberflow/barberflow/libs/entitlements"
	"github.com/google/uuid"
)

type Handler struct {
	store  Store
	blobs  blob.Store
	logger *slog.Logger
	now    func() time.Time
}

// New wires the admin console handlers. A nil blobs disables logo upload.
func New(store Store, blobs blob.Store, logger *slog.Logger) *Handler {
	if blobs == nil {
		blobs = blob.Disabled{}
	}
	return &Handler{store: store, blobs: blobs, logger: logger, now: time.Now}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) bool {
	return json.NewDecoder(r.Body).Decode(v) == nil
}

// tenantFromHeader reads the tenant id the gateway copied from the token.
func tenantFromHeader(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenantID := strings.TrimSpace(r.Header.Get("X-Tenant-Id"))
	if tenantID == "" {
		http.Error(w, "missing X-Tenant-Id", http.StatusBadRequest)
		return "", false
	}
	if _, err := uuid.Parse(tenantID); err != nil {
		http.Error(w, "invalid X-Tenant-Id", http.StatusBadRequest)
		return "", false
	}
	return tenantID, true
}

func idParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if _, err := uuid.Parse(id); err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return "", false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error, action string) {
	switch {
	case db.IsNotFound(err):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, entitlements.ErrLimitReached):
		http.Error(w, "plan limit reached", http.StatusPaymentRequired)
	case db.IsForeignKeyViolation(err):
		http.Error(w, "in use by appointments; deactivate instead", http.StatusConflict)
	default:
		h.logger.Error(action+" failed", "err", err)
		http.Error(w, "failed to "+action, http.StatusInternalServerError)
	}
}
