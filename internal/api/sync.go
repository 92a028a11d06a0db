package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-sync-core/internal/record"
	"github.com/nerrad567/gray-sync-core/internal/store"
)

// handleSyncStatus returns the gateway's current synchronization status.
func (s *Server) handleSyncStatus(w http.ResponseWriter, _ *http.Request) {
	if s.sync == nil {
		writeServiceUnavailable(w, "synchronization engine is not running")
		return
	}
	writeJSON(w, http.StatusOK, s.sync.Status())
}

// handleSubscribeDevice adds a device to the live delta stream.
// The device's slots only appear in the store after the next prime or
// after its first delta frame arrives.
func (s *Server) handleSubscribeDevice(w http.ResponseWriter, r *http.Request) {
	if s.sync == nil {
		writeServiceUnavailable(w, "synchronization engine is not running")
		return
	}

	device := chi.URLParam(r, "device")
	if device == "" {
		writeBadRequest(w, "device is required")
		return
	}

	if err := s.sync.EnsureSubscribed(r.Context(), []string{device}); err != nil {
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device":     device,
		"subscribed": true,
	})
}

// handleDeviceValues returns every materialized slot value for a device.
func (s *Server) handleDeviceValues(w http.ResponseWriter, r *http.Request) {
	device := chi.URLParam(r, "device")

	values := s.store.DeviceValues(device)
	writeJSON(w, http.StatusOK, map[string]any{
		"device": device,
		"count":  len(values),
		"values": values,
	})
}

// handleDeviceValue returns a single slot value enriched with catalog
// descriptors. The key path segment uses the canonical "P4.v1" form.
func (s *Server) handleDeviceValue(w http.ResponseWriter, r *http.Request) {
	device := chi.URLParam(r, "device")

	key, err := record.ParseKey(chi.URLParam(r, "key"))
	if err != nil {
		writeBadRequest(w, "invalid slot key: "+err.Error())
		return
	}

	lang := r.URL.Query().Get("lang")
	if lang == "" {
		lang = s.catCfg.DefaultLang
	}

	d := s.store.Describe(r.Context(), device, key, lang)
	if !d.Known {
		writeNotFound(w, "no value for slot "+key.String())
		return
	}

	writeJSON(w, http.StatusOK, d)
}

// handleDeviceMenu returns the catalogued slots the caller is allowed to
// see, paired with the device's current values. An empty list means
// either no catalog is configured or nothing matches the caller's
// permission mask.
func (s *Server) handleDeviceMenu(w http.ResponseWriter, r *http.Request) {
	device := chi.URLParam(r, "device")

	id, _ := identityFromContext(r.Context())
	entries := s.store.Menu(r.Context(), device, id.permissions)
	if entries == nil {
		entries = []store.Description{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device":  device,
		"entries": entries,
	})
}
