package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
)

// GetAdversarialConfigHandler returns the active config, falling back to the
// built-in default when none is saved.
func (s *Server) GetAdversarialConfigHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg, err := s.advConfig(r).Get(r.Context())
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	}
}

// PutAdversarialConfigHandler replaces the active config. Semantic
// validation failures are 422s.
func (s *Server) PutAdversarialConfigHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		var cfg domain.AdversarialConfig
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		if err := s.advConfig(r).Update(r.Context(), cfg); err != nil {
			if errors.Is(err, domain.ErrInvalidArgument) {
				writeValidationError(w, err)
				return
			}
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	}
}

// ResetAdversarialConfigHandler deletes the saved config so the default
// applies again.
func (s *Server) ResetAdversarialConfigHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc := s.advConfig(r)
		if err := svc.Reset(r.Context()); err != nil {
			writeError(w, r, err, nil)
			return
		}
		cfg, err := svc.Get(r.Context())
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	}
}

// ExportAdversarialConfigHandler returns the active config as YAML.
func (s *Server) ExportAdversarialConfigHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := s.advConfig(r).ExportYAML(r.Context())
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="adversarial-config.yaml"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}

// ImportAdversarialConfigHandler replaces the active config from a YAML
// body. Parse and validation failures are 422s.
func (s *Server) ImportAdversarialConfigHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		data, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: read body: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		cfg, err := s.advConfig(r).ImportYAML(r.Context(), data)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidArgument) {
				writeValidationError(w, err)
				return
			}
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	}
}
