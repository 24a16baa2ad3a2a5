package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"offbook/internal/extract"
	"offbook/internal/library"
	"offbook/internal/queue"
)

// maxUploadBytes caps multipart script uploads.
const maxUploadBytes = 32 << 20

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)

	mux.HandleFunc("POST /api/v1/jobs", s.handleCreateJob)
	mux.HandleFunc("GET /api/v1/jobs", s.handleListJobs)
	mux.HandleFunc("GET /api/v1/jobs/stats", s.handleJobStats)
	mux.HandleFunc("GET /api/v1/jobs/{id}", s.handleGetJob)
	mux.HandleFunc("POST /api/v1/jobs/{id}/cancel", s.handleCancelJob)
	mux.HandleFunc("POST /api/v1/jobs/{id}/pause", s.handlePauseJob)
	mux.HandleFunc("POST /api/v1/jobs/{id}/resume", s.handleResumeJob)

	mux.HandleFunc("GET /api/v1/playbooks", s.handleListPlaybooks)
	mux.HandleFunc("GET /api/v1/playbooks/{id}", s.handleGetPlaybook)
	mux.HandleFunc("DELETE /api/v1/playbooks/{id}", s.handleDeletePlaybook)
}

// HealthResponse is the response for health check endpoints.
type HealthResponse struct {
	Status string `json:"status"`
	DB     string `json:"db,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DB().PingContext(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "degraded", DB: "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", DB: "ok"})
}

// CreateJobRequest enqueues a new parse job. Either RawText or Data must be
// set; Data carries base64 file content converted through the extractor.
// Multipart uploads use a "file" part plus the same option fields as form values.
type CreateJobRequest struct {
	RawText   string `json:"rawText,omitempty"`
	Data      string `json:"data,omitempty"`
	Filename  string `json:"filename"`
	Priority  int    `json:"priority,omitempty"`
	ChunkSize int    `json:"chunkSize,omitempty"`
	Provider  string `json:"provider,omitempty"`
	Model     string `json:"model,omitempty"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	var fileData []byte

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart form")
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "missing file part")
			return
		}
		defer file.Close()
		fileData, err = io.ReadAll(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read upload")
			return
		}
		req.Filename = header.Filename
		req.Priority, _ = strconv.Atoi(r.FormValue("priority"))
		req.ChunkSize, _ = strconv.Atoi(r.FormValue("chunkSize"))
		req.Provider = r.FormValue("provider")
		req.Model = r.FormValue("model")
	} else {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.RawText == "" && req.Data != "" {
			data, err := base64.StdEncoding.DecodeString(req.Data)
			if err != nil {
				writeError(w, http.StatusBadRequest, "data is not valid base64")
				return
			}
			fileData = data
		}
	}

	rawText := req.RawText
	if rawText == "" && fileData != nil {
		var err error
		rawText, err = extract.ExtractText(fileData, req.Filename)
		if err != nil {
			if errors.Is(err, extract.ErrUnsupportedFormat) {
				writeError(w, http.StatusUnprocessableEntity, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "text extraction failed")
			return
		}
	}

	chunkSize := req.ChunkSize
	if chunkSize == 0 {
		chunkSize = s.defaultChunkSize
	}
	provider := req.Provider
	if provider == "" {
		provider = s.defaultProvider
	}

	id, err := s.store.Enqueue(r.Context(), queue.EnqueueInput{
		RawText:  rawText,
		Filename: req.Filename,
		Priority: req.Priority,
		Config: queue.ParseConfig{
			ChunkSize: chunkSize,
			Provider:  provider,
			Model:     req.Model,
		},
	})
	if err != nil {
		if errors.Is(err, queue.ErrEmptyScript) {
			writeError(w, http.StatusBadRequest, "script text is empty")
			return
		}
		s.logger.Error("enqueue failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	var statuses []queue.Status
	for _, value := range r.URL.Query()["status"] {
		status, ok := queue.ParseStatus(value)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown status: "+value)
			return
		}
		statuses = append(statuses, status)
	}

	jobs, err := s.store.List(r.Context(), statuses...)
	if err != nil {
		s.logger.Error("list jobs failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobViews(jobs)})
}

func (s *Server) handleJobStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.logger.Error("job stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.store.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	writeJSON(w, http.StatusOK, jobView(job))
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	s.handleStatusChange(w, r, s.store.Cancel)
}

func (s *Server) handlePauseJob(w http.ResponseWriter, r *http.Request) {
	s.handleStatusChange(w, r, s.store.Pause)
}

func (s *Server) handleResumeJob(w http.ResponseWriter, r *http.Request) {
	s.handleStatusChange(w, r, s.store.Resume)
}

func (s *Server) handleStatusChange(w http.ResponseWriter, r *http.Request, change func(ctx context.Context, jobID string) error) {
	id := r.PathValue("id")
	if err := change(r.Context(), id); err != nil {
		var transitionErr *queue.TransitionError
		switch {
		case errors.Is(err, queue.ErrJobNotFound):
			writeError(w, http.StatusNotFound, "job not found")
		case errors.As(err, &transitionErr):
			writeError(w, http.StatusConflict, transitionErr.Error())
		default:
			s.logger.Error("status change failed", "job_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "status change failed")
		}
		return
	}

	job, err := s.store.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to reload job")
		return
	}
	writeJSON(w, http.StatusOK, jobView(job))
}

func (s *Server) handleListPlaybooks(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.library.List(r.Context())
	if err != nil {
		s.logger.Error("list playbooks failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list playbooks")
		return
	}
	if summaries == nil {
		summaries = []library.Summary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"playbooks": summaries})
}

func (s *Server) handleGetPlaybook(w http.ResponseWriter, r *http.Request) {
	p, err := s.library.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, library.ErrPlaybookNotFound) {
			writeError(w, http.StatusNotFound, "playbook not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load playbook")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeletePlaybook(w http.ResponseWriter, r *http.Request) {
	if err := s.library.Delete(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, library.ErrPlaybookNotFound) {
			writeError(w, http.StatusNotFound, "playbook not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete playbook")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
