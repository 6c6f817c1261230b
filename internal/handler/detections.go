package handler

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"sharkcam/internal/config"
	"sharkcam/internal/dto"
	"sharkcam/internal/logger"
	"sharkcam/internal/model"
	"sharkcam/internal/repository"
)

const (
	defaultPageLimit = 24
	maxPageLimit     = 500
	maxPage          = 100000
)

// GetDetectionsHandler returns a filtered, paginated list of indexed detections.
// Query parameters: page, limit, minScore, dateAfter, dateBefore (YYYY-MM-DD).
func GetDetectionsHandler(cfg *config.Config, logger *logger.Logger, detectionRepo repository.DetectionRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page := min(atoiDefault(q.Get("page"), 1), maxPage)
		limit := min(atoiDefault(q.Get("limit"), defaultPageLimit), maxPageLimit)

		filter := &model.DetectionFilter{
			MinScore: parseScore(q.Get("minScore")),
			After:    parseDate(q.Get("dateAfter")),
			Before:   endOfDay(parseDate(q.Get("dateBefore"))),
			Limit:    limit,
			Offset:   (page - 1) * limit,
		}

		detections, err := detectionRepo.GetAll(filter)
		if err != nil {
			logger.Error("Error querying detections from database: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		totalCount, err := detectionRepo.GetTotalCount(filter)
		if err != nil {
			logger.Error("Error counting detections: %v", err)
			totalCount = len(detections)
		}

		data := dto.DetectionsPage{
			Detections:  detections,
			OutputDir:   cfg.OutputDirectory,
			Length:      totalCount,
			TotalPages:  (totalCount + limit - 1) / limit,
			CurrentPage: page,
			Limit:       limit,
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(data); err != nil {
			logger.Error("Error encoding JSON response: %v", err)
		}
	}
}

// DetectionStatsHandler returns summary statistics of the detection index.
func DetectionStatsHandler(logger *logger.Logger, detectionRepo repository.DetectionRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := detectionRepo.GetStats()
		if err != nil {
			logger.Error("Error getting detection stats: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stats)
	}
}

// DetectionClipHandler serves the clip of the detection given by the "id"
// query parameter. Only clips inside the output directory are served.
func DetectionClipHandler(cfg *config.Config, logger *logger.Logger, detectionRepo repository.DetectionRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		if id == "" {
			http.Error(w, "id parameter is required", http.StatusBadRequest)
			return
		}

		detection, err := detectionRepo.GetByID(id)
		if err != nil {
			logger.Error("Error looking up detection %s: %v", id, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if detection == nil {
			http.NotFound(w, r)
			return
		}

		if !insideDir(cfg.OutputDirectory, detection.Clip) {
			logger.Warning("Refusing to serve clip outside output directory: %s", detection.Clip)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		if _, err := os.Stat(detection.Clip); os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Content-Disposition", "inline; filename=\""+filepath.Base(detection.Clip)+"\"")
		http.ServeFile(w, r, detection.Clip)
	}
}

func insideDir(dir, path string) bool {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// atoiDefault converts string to int or returns a default when conversion fails or value <= 0.
func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}

func parseScore(v string) float64 {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 0
	}
	return f
}

// parseDate parses a date string in the format "2006-01-02" (HTML input format) as UTC.
func parseDate(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func endOfDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.Add(24*time.Hour - time.Millisecond)
}
