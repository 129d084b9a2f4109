package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-core/internal/apperr"
	"github.com/hackgods/clinic-core/internal/document"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

var kindStatus = map[apperr.Kind]int{
	apperr.KindValidation:  http.StatusBadRequest,
	apperr.KindConflict:    http.StatusConflict,
	apperr.KindNotFound:    http.StatusNotFound,
	apperr.KindForbidden:   http.StatusForbidden,
	apperr.KindOverpayment: http.StatusUnprocessableEntity,
	apperr.KindState:       http.StatusConflict,
	apperr.KindDelivery:    http.StatusBadGateway,
}

// handleServiceError maps domain errors to their status. Anything else is
// logged and reported as a bare 500.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	if kind == apperr.KindDelivery {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("collaborator failed")
	}
	writeError(w, status, string(kind), err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func writeFile(w http.ResponseWriter, f *document.File) {
	w.Header().Set("Content-Type", f.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", f.Name))
	w.Header().Set("Content-Length", strconv.Itoa(len(f.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(f.Data)
}
