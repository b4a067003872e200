package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"leadpipe/internal/core/domain"
	"leadpipe/internal/service"
)

type submitRequest struct {
	URL        string `json:"url"`
	LeadsCount int    `json:"leadsCount"`
	FileName   string `json:"fileName"`
	FileFormat string `json:"fileFormat"`
	UserID     string `json:"user_id"`
}

type submitResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// handleSubmit accepts a scrape job and returns as soon as the pending
// record exists; the scrape itself runs detached.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Message: "Invalid request body"})
		return
	}

	job, err := s.orch.Submit(r.Context(), service.SubmitRequest{
		SourceURL:  req.URL,
		LeadsCount: req.LeadsCount,
		FileName:   req.FileName,
		FileFormat: req.FileFormat,
		UserID:     req.UserID,
	})
	if err != nil {
		var validation domain.ValidationError
		if errors.As(err, &validation) {
			writeJSON(w, http.StatusBadRequest, errorBody{Message: validation.Msg})
			return
		}
		s.logger.Error("job submission failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Message: "Failed to start scraping process"})
		return
	}

	writeJSON(w, http.StatusOK, submitResponse{
		ID:      job.ID,
		Status:  string(job.Status),
		Message: "Scraping started successfully. This may take a few minutes due to high demand.",
	})
}

// handleList returns all jobs, newest first, for polling clients.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.store.ListJobs(r.Context())
	if err != nil {
		s.logger.Error("list jobs failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Message: "Internal server error"})
		return
	}
	if jobs == nil {
		jobs = []domain.ScrapeJob{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	job, err := s.store.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody{Message: "Job not found"})
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleDownload streams the provider's export file for a completed job.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	job, err := s.store.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody{Message: "Job not found"})
		return
	}
	if job.Status != domain.JobCompleted || job.DownloadLink == "" {
		writeJSON(w, http.StatusConflict, errorBody{Message: "Job has no downloadable export"})
		return
	}

	body, contentType, err := s.downloader.Download(r.Context(), job.DownloadLink)
	if err != nil {
		s.logger.Error("export download failed",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusBadGateway, errorBody{Message: "Failed to fetch export file"})
		return
	}
	defer body.Close()

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", job.FileName))
	if _, err := io.Copy(w, body); err != nil {
		s.logger.Warn("export stream interrupted",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
	}
}

// handleVerify verifies a JSON array of emails synchronously and responds
// with the CSV report.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var emails []string
	if err := json.NewDecoder(r.Body).Decode(&emails); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Message: "Request body must be a JSON array of emails"})
		return
	}

	records, err := s.verifier.VerifyBatch(r.Context(), emails)
	if err != nil {
		var validation domain.ValidationError
		var tooMany domain.TooManyRecords
		switch {
		case errors.As(err, &validation):
			writeJSON(w, http.StatusBadRequest, errorBody{Message: validation.Msg})
		case errors.As(err, &tooMany):
			writeJSON(w, http.StatusBadRequest, errorBody{Message: tooMany.Error()})
		default:
			s.logger.Error("verification batch failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorBody{Message: "Verification service unavailable"})
		}
		return
	}

	report, err := service.Report(records)
	if err != nil {
		s.logger.Error("report rendering failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Message: "Internal server error"})
		return
	}

	accepted := 0
	for _, rec := range records {
		if rec.Status == domain.VerifyAccepted {
			accepted++
		}
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=verified_emails.csv")
	w.Header().Set("X-Processed-Count", strconv.Itoa(len(records)))
	w.Header().Set("X-Valid-Count", strconv.Itoa(accepted))
	_, _ = w.Write(report)
}
