package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"sharkcam/internal/model"
)

const detectionColumns = `detection_id, timestamp_ms, clip, score, lat, lon, alt`

// DetectionRepository implements repository.DetectionRepository for SQLite.
type DetectionRepository struct {
	db *DB
}

// NewDetectionRepository creates a new SQLite detection repository.
func NewDetectionRepository(db *DB) *DetectionRepository {
	return &DetectionRepository{db: db}
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDetection(row scanner) (*model.Detection, error) {
	var (
		det           model.Detection
		timestampMs   int64
		lat, lon, alt sql.NullFloat64
	)
	if err := row.Scan(&det.ID, &timestampMs, &det.Clip, &det.Score, &lat, &lon, &alt); err != nil {
		return nil, err
	}
	det.Timestamp = time.UnixMilli(timestampMs).UTC()
	if lat.Valid && lon.Valid {
		det.Location = &model.Location{Lat: lat.Float64, Lon: lon.Float64}
		if alt.Valid {
			a := alt.Float64
			det.Location.Alt = &a
		}
	}
	return &det, nil
}

func locationArgs(det *model.Detection) (lat, lon, alt interface{}) {
	if det.Location == nil {
		return nil, nil, nil
	}
	lat, lon = det.Location.Lat, det.Location.Lon
	if det.Location.Alt != nil {
		alt = *det.Location.Alt
	}
	return lat, lon, alt
}

// Insert adds a detection. Inserting an already indexed detection ID is a
// no-op that returns 0.
func (r *DetectionRepository) Insert(det *model.Detection) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	lat, lon, alt := locationArgs(det)
	result, err := r.db.Conn().Exec(`
		INSERT OR IGNORE INTO detections (`+detectionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, det.ID, det.Timestamp.UnixMilli(), det.Clip, det.Score, lat, lon, alt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert detection: %w", err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return 0, nil
	}
	return result.LastInsertId()
}

// InsertBatch adds multiple detections in a single transaction and returns
// how many were new.
func (r *DetectionRepository) InsertBatch(detections []model.Detection) (int, error) {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO detections (` + detectionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i := range detections {
		det := &detections[i]
		lat, lon, alt := locationArgs(det)
		result, err := stmt.Exec(det.ID, det.Timestamp.UnixMilli(), det.Clip, det.Score, lat, lon, alt)
		if err != nil {
			return 0, fmt.Errorf("failed to insert detection: %w", err)
		}
		if n, _ := result.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return inserted, nil
}

// GetByID retrieves a detection by its detection ID; nil when absent.
func (r *DetectionRepository) GetByID(id string) (*model.Detection, error) {
	return r.getOne(`SELECT `+detectionColumns+` FROM detections WHERE detection_id = ?`, id)
}

// GetByClip retrieves the detection that produced a clip path; nil when absent.
func (r *DetectionRepository) GetByClip(clip string) (*model.Detection, error) {
	return r.getOne(`SELECT `+detectionColumns+` FROM detections WHERE clip = ?`, clip)
}

func (r *DetectionRepository) getOne(query string, arg interface{}) (*model.Detection, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	det, err := scanDetection(r.db.Conn().QueryRow(query, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get detection: %w", err)
	}
	return det, nil
}

func whereClause(filter *model.DetectionFilter) (string, []interface{}) {
	query := " WHERE 1=1"
	args := []interface{}{}
	if filter == nil {
		return query, args
	}

	if filter.MinScore > 0 {
		query += " AND score >= ?"
		args = append(args, filter.MinScore)
	}
	if !filter.After.IsZero() {
		query += " AND timestamp_ms >= ?"
		args = append(args, filter.After.UnixMilli())
	}
	if !filter.Before.IsZero() {
		query += " AND timestamp_ms <= ?"
		args = append(args, filter.Before.UnixMilli())
	}
	return query, args
}

// GetAll retrieves detections matching filter, newest first.
func (r *DetectionRepository) GetAll(filter *model.DetectionFilter) ([]model.Detection, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := whereClause(filter)
	query := `SELECT ` + detectionColumns + ` FROM detections` + where + ` ORDER BY timestamp_ms DESC, id DESC`

	if filter != nil && filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}
	defer rows.Close()

	detections := []model.Detection{}
	for rows.Next() {
		det, err := scanDetection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		detections = append(detections, *det)
	}
	return detections, rows.Err()
}

// GetTotalCount counts detections matching filter, ignoring paging.
func (r *DetectionRepository) GetTotalCount(filter *model.DetectionFilter) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := whereClause(filter)
	var count int
	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM detections`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count detections: %w", err)
	}
	return count, nil
}

// GetStats summarizes the index.
func (r *DetectionRepository) GetStats() (*model.DetectionStats, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var stats model.DetectionStats
	err := r.db.Conn().QueryRow(`
		SELECT COUNT(*), COALESCE(MAX(score), 0), COUNT(lat)
		FROM detections
	`).Scan(&stats.TotalDetections, &stats.MaxScore, &stats.WithLocation)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return &stats, nil
}

// DeleteAll removes every indexed detection.
func (r *DetectionRepository) DeleteAll() error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM detections`); err != nil {
		return fmt.Errorf("failed to delete detections: %w", err)
	}
	return nil
}
