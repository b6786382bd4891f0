package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jaki95/dataset-cleaner/internal/job"
	"github.com/jaki95/dataset-cleaner/internal/service"
	"github.com/jaki95/dataset-cleaner/internal/storage"
)

// statusCode maps a sentinel error to the HTTP status reported for it.
func statusCode(err error) int {
	switch {
	case errors.Is(err, job.ErrNotFound),
		errors.Is(err, storage.ErrNotFound),
		errors.Is(err, service.ErrArtifactNotReady):
		return http.StatusNotFound
	case errors.Is(err, job.ErrAlreadyRunning),
		errors.Is(err, job.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, ErrMissingFile),
		errors.Is(err, ErrUnsupportedFile),
		errors.Is(err, service.ErrInvalidDataset):
		return http.StatusBadRequest
	case errors.Is(err, ErrUploadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, service.ErrShuttingDown),
		errors.Is(err, service.ErrNoStorage):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(c *gin.Context, err error) {
	code := statusCode(err)
	if code == http.StatusInternalServerError {
		s.logger.Error("Request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(code, ErrorResponse{Error: err.Error()})
}

// pagination reads page and pageSize, falling back to defaults for values
// that are missing or out of range.
func pagination(c *gin.Context) (int, int) {
	page := 1
	pageSize := job.DefaultPageSize

	if p := c.Query("page"); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil && parsed > 0 {
			page = parsed
		}
	}

	if ps := c.Query("pageSize"); ps != "" {
		if parsed, err := strconv.Atoi(ps); err == nil && parsed > 0 && parsed <= job.MaxPageSize {
			pageSize = parsed
		}
	}
	return page, pageSize
}

// SanitizeFilename sanitizes a filename by removing invalid characters
func SanitizeFilename(name string) string {
	invalid := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|", "\n", "\r", "\t"}
	result := name
	for _, char := range invalid {
		result = strings.ReplaceAll(result, char, "_")
	}

	result = strings.Trim(result, " .")

	if result == "" {
		result = "dataset"
	}

	return result
}
