package httpserver

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/config"
	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
	"github.com/fairyhunter13/ai-convo-evaluator/internal/usecase"
)

// Canceller applies the cancel-endpoint semantics to a job.
type Canceller interface {
	CancelJob(ctx context.Context, jobID string) error
}

// Server aggregates handler dependencies.
type Server struct {
	Cfg         config.Config
	Jobs        domain.JobRepository
	Runs        domain.EvalRunRepository
	ThreadEvals domain.ThreadEvalRepository
	AdvEvals    domain.AdversarialEvalRepository
	ApiLogs     domain.ApiLogRepository
	Files       domain.FileRepository
	Blobs       domain.BlobStore
	Settings    domain.SettingsRepository
	Canceller   Canceller
	DBCheck     func(ctx context.Context) error
}

// advConfig builds the adversarial-config service scoped to the request's
// app and user.
func (s *Server) advConfig(r *http.Request) *usecase.AdversarialConfigService {
	return usecase.NewAdversarialConfigService(s.Settings, appID(r), userID(r))
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// appID resolves the tenant scope of a request.
func appID(r *http.Request) string {
	if id := r.URL.Query().Get("app_id"); id != "" {
		return id
	}
	return "default"
}

// userID resolves the user scope of a request. Auth is handled upstream;
// the header is trusted here.
func userID(r *http.Request) string {
	if id := r.Header.Get("X-User-Id"); id != "" {
		return id
	}
	return "system"
}

// ReadyzHandler probes the database within a short deadline.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]check, 0, 1)
		ok := true
		if s.DBCheck != nil {
			if err := s.DBCheck(ctx); err != nil {
				checks = append(checks, check{Name: "db", OK: false, Details: err.Error()})
				ok = false
			} else {
				checks = append(checks, check{Name: "db", OK: true})
			}
		}
		st := http.StatusOK
		if !ok {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
