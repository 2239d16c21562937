package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/labelgw/internal/dispatch"
	"github.com/mattjoyce/labelgw/internal/driver"
	"github.com/mattjoyce/labelgw/internal/journal"
)

const rootNote = "Labels are rendered client-side. This service accepts pre-rendered PNG images."

// handlePrint handles POST /print
func (s *Server) handlePrint(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)

	var req PrintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			s.writeError(w, http.StatusRequestEntityTooLarge, "request body exceeds "+strconv.FormatInt(maxErr.Limit, 10)+" bytes")
		case errors.Is(err, io.EOF):
			s.writeError(w, http.StatusBadRequest, "request body is empty")
		default:
			s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		}
		return
	}
	if req.ImageData == nil {
		s.writeError(w, http.StatusBadRequest, "image_data is required")
		return
	}
	if req.LabelType == nil {
		s.writeError(w, http.StatusBadRequest, "label_type is required")
		return
	}

	res, err := s.dispatcher.Dispatch(r.Context(), dispatch.Request{
		ImageData: *req.ImageData,
		Label:     *req.LabelType,
	})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to print label: "+err.Error())
		return
	}

	respondJSON(w, http.StatusOK, res)
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:        "healthy",
		DryRun:        s.config.DryRun,
		Version:       s.config.Version,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	})
}

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, RootResponse{
		Service:      s.config.ServiceName,
		Version:      s.config.Version,
		DryRun:       s.config.DryRun,
		PrinterModel: s.config.PrinterModel,
		TapeSize:     s.config.TapeSize,
		Driver:       s.config.Driver,
		Note:         rootNote,
	})
}

// handleLabels handles GET /labels
func (s *Server) handleLabels(w http.ResponseWriter, r *http.Request) {
	all := driver.Labels()
	out := make([]LabelResponse, 0, len(all))
	for _, l := range all {
		out = append(out, LabelResponse{
			Identifier:    l.Identifier,
			TapeSize:      l.TapeSize,
			DotsPrintable: l.DotsPrintable,
			FormFactor:    l.Form.String(),
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"labels": out})
}

// handleListJobs handles GET /jobs?status=&label=&limit=
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		s.writeError(w, http.StatusNotFound, "print journal is disabled")
		return
	}

	q := r.URL.Query()
	filter := journal.ListFilter{
		Status: journal.Status(q.Get("status")),
		Label:  q.Get("label"),
	}
	if filter.Status != "" && filter.Status != journal.StatusQueued && !filter.Status.Terminal() {
		s.writeError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(string(filter.Status)))
		return
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}

	entries, err := s.jobs.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list jobs", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	resp := JobListResponse{Jobs: make([]JobResponse, 0, len(entries))}
	for i := range entries {
		resp.Jobs = append(resp.Jobs, toJobResponse(&entries[i]))
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleGetJob handles GET /jobs/{jobID}
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		s.writeError(w, http.StatusNotFound, "print journal is disabled")
		return
	}

	jobID := chi.URLParam(r, "jobID")
	entry, err := s.jobs.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, journal.ErrJobNotFound) {
			s.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error("failed to get job", "job_id", jobID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to retrieve job")
		return
	}

	respondJSON(w, http.StatusOK, toJobResponse(entry))
}

// handleOpenAPI handles GET /openapi.json
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc(s.config.Version, driver.Labels(), s.config.APIKey != ""))
}

func toJobResponse(e *journal.Entry) JobResponse {
	resp := JobResponse{
		JobID:       e.ID,
		Label:       e.Label,
		Model:       e.Model,
		Driver:      e.Driver,
		DryRun:      e.DryRun,
		Digest:      e.Digest,
		SizeBytes:   e.SizeBytes,
		Status:      string(e.Status),
		Filename:    e.Filename,
		Error:       e.Error,
		ExitCode:    e.ExitCode,
		CreatedAt:   e.CreatedAt,
		CompletedAt: e.CompletedAt,
	}
	if e.Duration != nil {
		ms := e.Duration.Milliseconds()
		resp.DurationMS = &ms
	}
	return resp
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Detail: message})
}
