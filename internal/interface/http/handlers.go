package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/leetsync/leetsync-stats/internal/application/query"
	"github.com/leetsync/leetsync-stats/internal/domain/shared"
	"github.com/leetsync/leetsync-stats/internal/infrastructure/scheduler"
	"github.com/leetsync/leetsync-stats/internal/infrastructure/scheduler/jobs"
	"github.com/leetsync/leetsync-stats/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	respond(w, r, http.StatusOK, map[string]any{
		"name":    "leetsync-stats",
		"version": s.deps.Version,
		"endpoints": map[string]string{
			"health":     "/health",
			"metrics":    "/metrics",
			"user_stats": "/api/v1/users/{username}/stats",
			"last_batch": "/api/v1/batch/last",
			"jobs":       "/api/v1/jobs",
		},
	})
}

// handleHealth checks the fact source and the stats cache.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status": "healthy",
		"uptime": s.Uptime().String(),
	}

	if s.deps.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := s.deps.Health.HealthCheck(ctx); err != nil {
			s.log.Warn("health check failed", logger.Err(err))
			status["status"] = "unhealthy"
			status["error"] = err.Error()
			respond(w, r, http.StatusServiceUnavailable, status)
			return
		}
	}

	respond(w, r, http.StatusOK, status)
}

// handleLive handles the liveness endpoint.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	respond(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// STATS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetUserStats handles GET /api/v1/users/{username}/stats?days=7&date=YYYY-MM-DD
func (s *Server) handleGetUserStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.UserStats == nil {
		fail(w, r, http.StatusNotImplemented, "not_implemented", "User stats are not configured")
		return
	}

	days, err := intParam(r, "days", query.MaxWindowDays)
	if err != nil {
		fail(w, r, http.StatusBadRequest, "invalid_parameter", err.Error())
		return
	}

	dto, err := s.deps.UserStats.Handle(r.Context(), query.GetUserStatsQuery{
		Username: r.PathValue("username"),
		EndDate:  r.URL.Query().Get("date"),
		Days:     days,
	})
	if err != nil {
		if shared.IsValidation(err) {
			fail(w, r, http.StatusBadRequest, "invalid_parameter", "Invalid username or date", err.Error())
			return
		}
		s.log.Error("failed to get user stats", logger.Err(err))
		fail(w, r, http.StatusInternalServerError, "internal_error", "Failed to read user stats")
		return
	}
	if !dto.Found() {
		fail(w, r, http.StatusNotFound, "not_found", "No stats for user")
		return
	}

	respond(w, r, http.StatusOK, dto)
}

// ══════════════════════════════════════════════════════════════════════════════
// BATCH & JOB HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type batchFailureDTO struct {
	Username  string `json:"username"`
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

type batchDTO struct {
	RunID       string            `json:"run_id"`
	Date        string            `json:"date"`
	Summary     string            `json:"summary"`
	Outcome     string            `json:"outcome"`
	Total       int               `json:"total"`
	Processed   int               `json:"processed"`
	Committed   int               `json:"committed"`
	Skipped     int               `json:"skipped"`
	AlreadyDone int               `json:"already_done"`
	Failed      int               `json:"failed"`
	Failures    []batchFailureDTO `json:"failures,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	DurationMs  int64             `json:"duration_ms"`
}

func toBatchDTO(res *jobs.BatchResult) batchDTO {
	dto := batchDTO{
		RunID:       res.RunID,
		Date:        res.Date,
		Summary:     res.Summary(),
		Outcome:     res.Outcome(),
		Total:       res.Total,
		Processed:   res.Processed,
		Committed:   res.Committed,
		Skipped:     res.Skipped,
		AlreadyDone: res.AlreadyDone,
		Failed:      res.Failed,
		StartedAt:   res.StartedAt,
		DurationMs:  res.Duration.Milliseconds(),
	}
	for _, f := range res.Failures {
		dto.Failures = append(dto.Failures, batchFailureDTO{
			Username:  f.Username,
			Error:     f.Err.Error(),
			Retryable: f.Retryable,
		})
	}
	return dto
}

// handleLastBatch handles GET /api/v1/batch/last
func (s *Server) handleLastBatch(w http.ResponseWriter, r *http.Request) {
	if s.deps.Batch == nil {
		fail(w, r, http.StatusNotImplemented, "not_implemented", "Batch job is not configured")
		return
	}

	res := s.deps.Batch.LastResult()
	if res == nil {
		fail(w, r, http.StatusNotFound, "not_found", "No batch has finished since startup")
		return
	}

	respond(w, r, http.StatusOK, toBatchDTO(res))
}

type jobDTO struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Schedule    string     `json:"schedule"`
	Enabled     bool       `json:"enabled"`
	Running     bool       `json:"running"`
	NextRun     *time.Time `json:"next_run,omitempty"`
	LastRun     *time.Time `json:"last_run,omitempty"`
	RunCount    int64      `json:"run_count"`
	FailCount   int64      `json:"fail_count"`
	LastError   string     `json:"last_error,omitempty"`
}

func toJobDTO(info scheduler.JobInfo) jobDTO {
	dto := jobDTO{
		Name:        info.Name,
		Description: info.Description,
		Schedule:    info.Schedule,
		Enabled:     info.Enabled,
		Running:     info.Running,
		RunCount:    info.RunCount,
		FailCount:   info.FailCount,
	}
	if !info.NextRun.IsZero() {
		dto.NextRun = &info.NextRun
	}
	if !info.LastRun.IsZero() {
		dto.LastRun = &info.LastRun
	}
	if info.LastResult != nil && info.LastResult.Error != nil {
		dto.LastError = info.LastResult.Error.Error()
	}
	return dto
}

// handleListJobs handles GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		fail(w, r, http.StatusNotImplemented, "not_implemented", "Scheduler is not configured")
		return
	}

	infos := s.deps.Jobs.ListJobs()
	out := make([]jobDTO, 0, len(infos))
	for _, info := range infos {
		out = append(out, toJobDTO(info))
	}

	respond(w, r, http.StatusOK, out)
}

// handleRunBatch handles POST /api/v1/batch/run. The run continues after
// the response and is cancelled on Shutdown.
func (s *Server) handleRunBatch(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil || s.deps.BatchJobName == "" {
		fail(w, r, http.StatusNotImplemented, "not_implemented", "Scheduler is not configured")
		return
	}

	for _, info := range s.deps.Jobs.ListJobs() {
		if info.Name != s.deps.BatchJobName {
			continue
		}
		if info.Running {
			fail(w, r, http.StatusConflict, "already_running", "Batch is already running")
			return
		}

		requestID := requestIDFrom(r.Context())
		s.runs.Add(1)
		go func() {
			defer s.runs.Done()
			_, err := s.deps.Jobs.RunNow(s.runCtx, s.deps.BatchJobName)
			if err != nil && !errors.Is(err, scheduler.ErrJobInFlight) {
				s.log.Error("manual batch failed", logger.Err(err), logger.String("request_id", requestID))
			}
		}()

		respond(w, r, http.StatusAccepted, map[string]string{"status": "started", "job": s.deps.BatchJobName})
		return
	}

	fail(w, r, http.StatusNotFound, "not_found", "Batch job is not registered")
}
