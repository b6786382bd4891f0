package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jaki95/dataset-cleaner/internal/storage"
)

// downloadCSV handles downloading the cleaned dataset of a job
//
//	@Summary		Download the cleaned dataset
//	@Description	Streams the cleaned CSV (UTF-8 with BOM) of a completed job
//	@Tags			Downloads
//	@Produce		text/csv
//	@Param			id	path		string			true	"Job ID"
//	@Success		200	{file}		text/csv		"Cleaned CSV"
//	@Failure		404	{object}	ErrorResponse	"Job not found or not completed"
//	@Router			/api/v1/download/{id}/csv [get]
func (s *Server) downloadCSV(c *gin.Context) {
	s.serveArtifact(c, storage.CleanedFile, "text/csv; charset=utf-8", "%s_cleaned.csv")
}

// downloadReport handles downloading the cleaning report of a job
//
//	@Summary		Download the cleaning report
//	@Tags			Downloads
//	@Produce		application/json
//	@Param			id	path		string			true	"Job ID"
//	@Success		200	{file}		application/json	"Report"
//	@Failure		404	{object}	ErrorResponse	"Job not found or not completed"
//	@Router			/api/v1/download/{id}/report [get]
func (s *Server) downloadReport(c *gin.Context) {
	s.serveArtifact(c, storage.ReportFile, "application/json", "%s_report.json")
}

func (s *Server) serveArtifact(c *gin.Context, artifact, contentType, filenameFormat string) {
	jobID := c.Param("id")

	status, err := s.processor.GetStatus(jobID)
	if err != nil {
		s.writeError(c, err)
		return
	}

	rc, err := s.processor.OpenArtifact(c.Request.Context(), jobID, artifact)
	if err != nil {
		s.writeError(c, err)
		return
	}
	defer rc.Close()

	filename := fmt.Sprintf(filenameFormat, SanitizeFilename(status.Name))
	c.DataFromReader(http.StatusOK, -1, contentType, rc, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=\"%s\"", filename),
	})
	s.logger.Info("Artifact downloaded", "jobId", jobID, "artifact", artifact)
}
