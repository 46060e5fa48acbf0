package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/crm/internal/model"
	"github.com/sells-group/crm/internal/store"
)

// handleUpdateEngagement applies a partial update. Only the nine allow-listed
// fields are accepted; everything else in the body is dropped. Enum fields
// are validated here so the store only ever sees canonical values.
func (s *Server) handleUpdateEngagement(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		s.jsonError(w, "missing engagement id", http.StatusBadRequest)
		return
	}

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	patch := store.EngagementPatch{}
	for key, val := range body {
		if !store.PatchableField(key) {
			continue
		}
		coerced, errMsg := coercePatchValue(key, val)
		if errMsg != "" {
			s.jsonError(w, errMsg, http.StatusBadRequest)
			return
		}
		patch[key] = coerced
	}

	if len(patch) == 0 {
		s.jsonError(w, "no valid fields to update", http.StatusBadRequest, store.PatchableFields())
		return
	}

	detail, err := s.store.UpdateEngagement(r.Context(), id, patch)
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			s.jsonError(w, "engagement not found", http.StatusNotFound, id)
			return
		}
		s.jsonError(w, "update failed", http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"engagement": detail})
}

// coercePatchValue validates and converts one allow-listed field. It returns
// the store-ready value, or a non-empty message for a 400 response.
func coercePatchValue(key string, val any) (any, string) {
	switch key {
	case "lastTouchAt":
		if val == nil {
			return (*time.Time)(nil), ""
		}
		raw, ok := val.(string)
		if !ok {
			return nil, "invalid lastTouchAt"
		}
		t, err := parseTouchTime(raw)
		if err != nil {
			return nil, "invalid lastTouchAt"
		}
		return &t, ""
	case "bucket":
		raw, ok := val.(string)
		if !ok || !model.Bucket(raw).Valid() {
			return nil, "invalid bucket"
		}
		return model.Bucket(raw), ""
	case "dealStage":
		if val == nil {
			return nil, ""
		}
		raw, ok := val.(string)
		if !ok || !model.DealStage(raw).Valid() {
			return nil, "invalid dealStage"
		}
		return model.DealStage(raw), ""
	case "accountStatus":
		if val == nil {
			return nil, ""
		}
		raw, ok := val.(string)
		if !ok || !model.AccountStatus(raw).Valid() {
			return nil, "invalid accountStatus"
		}
		return model.AccountStatus(raw), ""
	case "followUpRequired":
		b, ok := val.(bool)
		if !ok {
			return nil, "invalid followUpRequired"
		}
		return b, ""
	default:
		// Free-text fields: source, product, nextStep, notes.
		if val == nil {
			return nil, ""
		}
		raw, ok := val.(string)
		if !ok {
			return nil, "invalid " + key
		}
		return raw, ""
	}
}

// parseTouchTime accepts RFC 3339 timestamps and bare dates.
func parseTouchTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
