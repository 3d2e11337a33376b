package calib_api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/BearBump/CalibBox/internal/api/authn"
	"github.com/BearBump/CalibBox/internal/calerr"
	"github.com/BearBump/CalibBox/internal/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

const dateLayout = "2006-01-02"

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(k calerr.Kind) int {
	switch k {
	case calerr.KindValidation:
		return http.StatusBadRequest
	case calerr.KindAuthorization:
		return http.StatusForbidden
	case calerr.KindInvalidTransition, calerr.KindConflict:
		return http.StatusConflict
	case calerr.KindTraceability:
		return http.StatusUnprocessableEntity
	case calerr.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := calerr.KindOf(err)
	status := statusFor(kind)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		a.log.Error("request failed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: msg, Kind: string(kind)})
}

func readBodyJSON(r *http.Request, out any) error {
	return decodeBody(r, out, true)
}

func readOptionalBodyJSON(r *http.Request, out any) error {
	return decodeBody(r, out, false)
}

func decodeBody(r *http.Request, out any, required bool) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return calerr.Validation("read body: %v", err)
	}
	if len(body) == 0 {
		if required {
			return calerr.Validation("request body is required")
		}
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return calerr.Validation("malformed json: %v", err)
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, calerr.Validation("%s must be a positive integer", name)
	}
	return id, nil
}

func queryInt(r *http.Request, name string, def int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func queryID(r *http.Request, name string) (*int64, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return nil, calerr.Validation("%s must be a positive integer", name)
	}
	return &id, nil
}

func parseDate(s, field string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		if t, err = time.Parse(time.RFC3339, s); err != nil {
			return nil, calerr.Validation("%s must be a date (YYYY-MM-DD)", field)
		}
	}
	t = t.UTC()
	return &t, nil
}

var errNoActor = errors.New("no actor in context")

func actorOf(r *http.Request) (models.Actor, error) {
	actor, ok := authn.ActorFrom(r.Context())
	if !ok {
		return models.Actor{}, calerr.Authorization("%v", errNoActor)
	}
	return actor, nil
}
