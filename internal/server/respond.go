package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/ldi/metis/internal/errors"
)

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch errors.KindOf(err) {
	case errors.ErrNotFound:
		return http.StatusNotFound
	case errors.ErrInvalidArgument, errors.ErrSelfDependency:
		return http.StatusBadRequest
	case errors.ErrCyclicDependency, errors.ErrDuplicateDependency:
		return http.StatusConflict
	case errors.ErrUpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeAPIJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeAPIJSON(w, status, ErrorResponse{Success: false, Message: err.Error(), StatusCode: status})
}

// decodeBody reads a JSON body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(v); err != nil && err != io.EOF {
		return errors.InvalidArgumentf("malformed request body: %v", err)
	}
	return nil
}

// queryInt parses an optional integer query parameter; absent means 0.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.InvalidArgumentf("%s must be an integer, got %q", name, raw)
	}
	return n, nil
}
