package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

var (
	ErrNotFound   = errors.New("artifact not found")
	ErrInvalidKey = errors.New("invalid artifact key")
)

// Artifact names written for every completed job.
const (
	CleanedFile = "cleaned.csv"
	ReportFile  = "report.json"
)

// Storage defines the interface for handling the artifacts of cleaning jobs.
// Keys are slash-separated and relative, e.g. "<jobID>/cleaned.csv".
type Storage interface {
	// Save stores data under key and returns where it was written.
	Save(ctx context.Context, key, contentType string, data []byte) (string, error)

	Open(ctx context.Context, key string) (io.ReadCloser, error)

	Exists(ctx context.Context, key string) bool

	// List returns the keys under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	Close() error
}

// CleanedKey is the key of a job's cleaned dataset.
func CleanedKey(jobID string) string {
	return path.Join(jobID, CleanedFile)
}

// ReportKey is the key of a job's report.
func ReportKey(jobID string) string {
	return path.Join(jobID, ReportFile)
}

func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}
