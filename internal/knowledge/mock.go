package knowledge

import (
	"context"

	"github.com/jaki95/dataset-cleaner/internal/domain"
)

// MockService is a mock implementation of Service for testing
type MockService struct {
	AnalyzeFunc func(ctx context.Context, req Request) (*domain.Hints, error)
}

// Analyze implements the Service interface
func (m *MockService) Analyze(ctx context.Context, req Request) (*domain.Hints, error) {
	if m.AnalyzeFunc != nil {
		return m.AnalyzeFunc(ctx, req)
	}
	return nil, ErrUnavailable
}
