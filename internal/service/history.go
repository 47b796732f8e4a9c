package service

import (
	"context"
	"fmt"

	"github.com/pkordes/little-escape/internal/domain"
	"github.com/pkordes/little-escape/internal/repo"
)

// HistoryService lists completed runs.
type HistoryService struct {
	runs repo.RunRepo
}

// NewHistoryService constructs a HistoryService backed by the provided RunRepo.
func NewHistoryService(runs repo.RunRepo) *HistoryService {
	return &HistoryService{runs: runs}
}

// List returns one page of runs, most recent first.
func (s *HistoryService) List(ctx context.Context, p domain.PaginationParams) (domain.Page[domain.Run], error) {
	items, total, err := s.runs.ListPaged(ctx, p)
	if err != nil {
		return domain.Page[domain.Run]{}, fmt.Errorf("service.HistoryService.List: %w", err)
	}
	if items == nil {
		items = []domain.Run{}
	}
	return domain.Page[domain.Run]{Items: items, Total: total, Params: p}, nil
}

// ExportService assembles a flat export of all completed runs.
type ExportService struct {
	runs repo.RunRepo
}

// NewExportService constructs an ExportService backed by the provided RunRepo.
func NewExportService(runs repo.RunRepo) *ExportService {
	return &ExportService{runs: runs}
}

// Export returns one ExportRow per completed run, oldest first.
func (s *ExportService) Export(ctx context.Context) ([]domain.ExportRow, error) {
	rows, err := s.runs.Export(ctx)
	if err != nil {
		return nil, fmt.Errorf("service.ExportService.Export: %w", err)
	}
	if rows == nil {
		rows = []domain.ExportRow{}
	}
	return rows, nil
}
