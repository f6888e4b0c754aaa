package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/barberflow/barberflow/libs/audit"
	"github.com/barberflow/barberflow/libs/blob"
	"github.com/barberflow/barberflow/libs/entitlements"
	"github.com/barberflow/barberflow/libs/pix"
	"github.com/barberflow/barberflow/services/business-service/internal/storage"
)

const (
	maxLogoBytes = 2 << 20
	logoURLTTL   = time.Hour
)

var logoExtensions = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/webp": "webp",
}

type settingsResponse struct {
	storage.Settings
	LogoURL string              `json:"logo_url,omitempty"`
	Limits  entitlements.Limits `json:"limits"`
}

// settingsRequest fields are optional; nil keeps the stored value.
type settingsRequest struct {
	Name            *string `json:"name"`
	Phone           *string `json:"phone"`
	Address         *string `json:"address"`
	Timezone        *string `json:"timezone"`
	PixKey          *string `json:"pix_key"`
	PixKeyType      *string `json:"pix_key_type"`
	PixMerchantName *string `json:"pix_merchant_name"`
	PixMerchantCity *string `json:"pix_merchant_city"`
	PixCopyPaste    *string `json:"pix_copy_paste"`
}

func apply(dst *string, src *string, field string, changed *[]string) {
	if src == nil {
		return
	}
	v := strings.TrimSpace(*src)
	if v != *dst {
		*dst = v
		*changed = append(*changed, field)
	}
}

// merge applies req onto s and validates the result.
func (req settingsRequest) merge(s storage.Settings) (storage.Settings, []string, error) {
	changed := []string{}
	apply(&s.Name, req.Name, "name", &changed)
	apply(&s.Phone, req.Phone, "phone", &changed)
	apply(&s.Address, req.Address, "address", &changed)
	apply(&s.Timezone, req.Timezone, "timezone", &changed)
	apply(&s.PixKey, req.PixKey, "pix_key", &changed)
	apply(&s.PixKeyType, req.PixKeyType, "pix_key_type", &changed)
	apply(&s.PixMerchantName, req.PixMerchantName, "pix_merchant_name", &changed)
	apply(&s.PixMerchantCity, req.PixMerchantCity, "pix_merchant_city", &changed)
	apply(&s.PixCopyPaste, req.PixCopyPaste, "pix_copy_paste", &changed)

	if s.Name == "" {
		return s, nil, errors.New("name is required")
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil || s.Timezone == "" {
		return s, nil, errors.New("invalid timezone")
	}
	if s.PixKey != "" || s.PixKeyType != "" {
		key, err := pix.NormalizeKey(pix.KeyType(s.PixKeyType), s.PixKey)
		if err != nil {
			return s, nil, err
		}
		s.PixKey = key
	}
	if s.PixCopyPaste != "" {
		if err := pix.Validate(s.PixCopyPaste); err != nil {
			return s, nil, errors.New("pix_copy_paste is not a valid BR Code")
		}
	}
	return s, changed, nil
}

// Settings serves GET and PUT /api/v1/admin/settings.
func (h *Handler) Settings(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromHeader(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	current, err := h.store.GetSettings(ctx, tenantID)
	if err != nil {
		h.writeError(w, err, "load settings")
		return
	}

	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		var req settingsRequest
		if !decodeJSON(r, &req) {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		next, changed, err := req.merge(current)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if len(changed) > 0 {
			evt := audit.FromRequest(r, "tenant.settings_updated", tenantID, map[string]any{"fields": changed})
			current, err = h.store.UpdateSettings(ctx, next, evt)
			if err != nil {
				h.writeError(w, err, "update settings")
				return
			}
		}
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limits, err := h.store.Limits(ctx, tenantID)
	if err != nil {
		h.writeError(w, err, "load limits")
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse{
		Settings: current,
		LogoURL:  h.logoURL(r, current.LogoKey),
		Limits:   limits,
	})
}

func (h *Handler) logoURL(r *http.Request, key string) string {
	if key == "" {
		return ""
	}
	url, err := h.blobs.PresignGet(r.Context(), key, logoURLTTL)
	if err != nil {
		if !errors.Is(err, blob.ErrNotConfigured) {
			h.logger.Warn("logo presign failed", "err", err)
		}
		return ""
	}
	return url
}

// Logo serves PUT /api/v1/admin/settings/logo with the raw image as body.
func (h *Handler) Logo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tenantID, ok := tenantFromHeader(w, r)
	if !ok {
		return
	}
	if _, disabled := h.blobs.(blob.Disabled); disabled {
		http.Error(w, "logo storage not configured", http.StatusNotImplemented)
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxLogoBytes+1))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if len(data) == 0 {
		http.Error(w, "empty body", http.StatusBadRequest)
		return
	}
	if len(data) > maxLogoBytes {
		http.Error(w, "logo exceeds 2 MiB", http.StatusRequestEntityTooLarge)
		return
	}
	contentType := http.DetectContentType(data)
	ext, ok := logoExtensions[contentType]
	if !ok {
		http.Error(w, "logo must be png, jpeg or webp", http.StatusUnsupportedMediaType)
		return
	}

	current, err := h.store.GetSettings(r.Context(), tenantID)
	if err != nil {
		h.writeError(w, err, "load settings")
		return
	}

	key := "tenants/" + tenantID + "/logo." + ext
	if err := h.blobs.Put(r.Context(), key, contentType, data); err != nil {
		if errors.Is(err, blob.ErrNotConfigured) {
			http.Error(w, "logo storage not configured", http.StatusNotImplemented)
			return
		}
		h.writeError(w, err, "store logo")
		return
	}
	if err := h.store.SetLogo(r.Context(), tenantID, key); err != nil {
		h.writeError(w, err, "save logo")
		return
	}
	if current.LogoKey != "" && current.LogoKey != key {
		if err := h.blobs.Delete(r.Context(), current.LogoKey); err != nil {
			h.logger.Warn("previous logo not deleted", "err", err, "key", current.LogoKey)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"logo_key": key,
		"logo_url": h.logoURL(r, key),
	})
}
