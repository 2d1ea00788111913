package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/kelwitness/internal/kel"
	"github.com/roach88/kelwitness/internal/registry"
	"github.com/roach88/kelwitness/internal/resolve"
)

func (s *Server) getKeyState(w http.ResponseWriter, r *http.Request) {
	st, err := s.backend.KeyState(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) putKeyState(w http.ResponseWriter, r *http.Request) {
	var st kel.KeyState
	if err := readJSON(r, &st); err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.backend.PutUnverifiedKeyState(r.Context(), chi.URLParam(r, "id"), st)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if st.Identifier == "" {
		st.Identifier = kel.Identifier(chi.URLParam(r, "id"))
	}
	writeJSON(w, statusFor(out), st)
}

func (s *Server) getKeyLog(w http.ResponseWriter, r *http.Request) {
	events, err := s.backend.KeyLog(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	data, err := kel.EncodeStream(events)
	if err != nil {
		s.fail(w, r, fmt.Errorf("encode key log: %w", err))
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) postMessages(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if _, err := s.backend.Submit(r.Context(), chi.URLParam(r, "id"), body); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) getWitnessAddress(w http.ResponseWriter, r *http.Request) {
	rec, err := s.backend.WitnessAddress(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) putWitnessAddress(w http.ResponseWriter, r *http.Request) {
	var rec registry.Record
	if err := readJSON(r, &rec); err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.backend.PutWitnessAddress(r.Context(), chi.URLParam(r, "id"), rec)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, statusFor(out), rec)
}

func statusFor(out resolve.Outcome) int {
	if out == resolve.Created {
		return http.StatusCreated
	}
	return http.StatusOK
}

// readJSON decodes exactly one JSON value from the body.
func readJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", resolve.ErrMalformed, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON body", resolve.ErrMalformed)
	}
	return nil
}

// fail maps err to a status and error code. Storage failures are logged
// with the request id and reported without detail.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if pe, ok := kel.AsProcessingError(err); ok {
		writeError(w, http.StatusBadRequest, string(pe.Code), pe.Error())
		return
	}
	switch {
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, codeTooLarge,
			fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
	case errors.Is(err, resolve.ErrMalformed):
		writeError(w, http.StatusBadRequest, string(kel.ErrCodeMalformed), err.Error())
	case errors.Is(err, resolve.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, "not found")
	case errors.Is(err, resolve.ErrDisabled):
		writeError(w, http.StatusNotFound, codeDisabled, "unverified key states are not accepted")
	default:
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", RequestID(r.Context()),
			"error", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
	}
}
