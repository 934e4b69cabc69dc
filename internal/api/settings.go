package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hackgods/clinic-queue-backend/internal/settings"
)

func getSettingsHandler(svc *settings.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := svc.Get(r.Context())
		if err != nil {
			writeInternalError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toSettingsPayload(s))
	}
}

func replaceSettingsHandler(svc *settings.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SettingsPayload
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		s, err := svc.Replace(r.Context(), req.toSettings())
		if err != nil {
			if errors.Is(err, settings.ErrInvalidSettings) {
				writeError(w, http.StatusBadRequest, "invalid_settings", err.Error())
				return
			}
			writeInternalError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toSettingsPayload(s))
	}
}
