package server

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// upload godoc
// @Summary Upload a CSV dataset
// @Description Parses the uploaded CSV file and registers it as a new job.
// @Tags Jobs
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV file"
// @Param name formData string false "Dataset name"
// @Success 201 {object} UploadResponse
// @Failure 400 {object} ErrorResponse
// @Failure 413 {object} ErrorResponse
// @Router /api/v1/upload [post]
func (s *Server) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.Server.MaxUploadBytes)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			s.writeError(c, fmt.Errorf("%w: limit is %d bytes", ErrUploadTooLarge, s.cfg.Server.MaxUploadBytes))
			return
		}
		s.writeError(c, fmt.Errorf("%w: %v", ErrMissingFile, err))
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext != ".csv" {
		s.writeError(c, fmt.Errorf("%w: %q", ErrUnsupportedFile, ext))
		return
	}

	name := c.PostForm("name")
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(header.Filename), filepath.Ext(header.Filename))
	}

	jobID, err := s.processor.CreateJobFromCSV(name, file)
	if err != nil {
		s.writeError(c, err)
		return
	}

	status, err := s.processor.GetStatus(jobID)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, UploadResponse{
		JobID:   status.ID,
		Name:    status.Name,
		Rows:    status.Rows,
		Columns: status.Columns,
		Status:  status.Status,
	})
}

// process godoc
// @Summary Start cleaning an uploaded dataset
// @Tags Jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 202 {object} ProcessResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/process/{id} [post]
func (s *Server) process(c *gin.Context) {
	jobID := c.Param("id")

	if err := s.processor.StartProcessing(jobID); err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, ProcessResponse{
		JobID:   jobID,
		Message: "Processing started",
	})
}

// getJobStatus godoc
// @Summary Get job status
// @Description Returns status, progress, stage outcomes and, once completed, the report.
// @Tags Jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} job.Status
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/status/{id} [get]
func (s *Server) getJobStatus(c *gin.Context) {
	status, err := s.processor.GetStatus(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// cancelJob godoc
// @Summary Cancel a job
// @Description The running stage finishes; the job then fails as cancelled.
// @Tags Jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 202 {object} MessageResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/jobs/{id}/cancel [post]
func (s *Server) cancelJob(c *gin.Context) {
	if err := s.processor.Cancel(c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, MessageResponse{Message: "Cancellation requested"})
}

// listJobs godoc
// @Summary List jobs
// @Tags Jobs
// @Produce json
// @Param page query int false "Page number"
// @Param pageSize query int false "Page size"
// @Success 200 {object} job.Response
// @Router /api/v1/jobs [get]
func (s *Server) listJobs(c *gin.Context) {
	page, pageSize := pagination(c)
	c.JSON(http.StatusOK, s.processor.ListJobs(page, pageSize))
}

// health godoc
// @Summary Health check
// @Tags Utility
// @Produce json
// @Success 200 {object} MessageResponse
// @Router /health [get]
func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
