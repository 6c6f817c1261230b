package repository

import "sharkcam/internal/model"

// DetectionRepository indexes logged detections for querying.
type DetectionRepository interface {
	// Create operations
	Insert(det *model.Detection) (int64, error)
	InsertBatch(detections []model.Detection) (int, error)

	// Read operations
	GetByID(id string) (*model.Detection, error)
	GetByClip(clip string) (*model.Detection, error)
	GetAll(filter *model.DetectionFilter) ([]model.Detection, error)
	GetTotalCount(filter *model.DetectionFilter) (int, error)
	GetStats() (*model.DetectionStats, error)

	// Delete operations
	DeleteAll() error
}
