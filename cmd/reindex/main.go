package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"sharkcam/internal/config"
	"sharkcam/internal/model"
	"sharkcam/internal/repository"
	"sharkcam/internal/repository/sqlite"
	"sharkcam/internal/service/detectionlog"
)

func main() {
	defaults := config.Default()
	logPath := flag.String("log", defaults.DetectionLogPath(), "Detection log to index")
	dbPath := flag.String("db", defaults.DatabasePath, "Database path")
	reset := flag.Bool("reset", false, "Drop indexed detections before reindexing")
	flag.Parse()

	fmt.Printf("Indexing detections from %s into database %s\n", *logPath, *dbPath)

	if _, err := os.Stat(*logPath); os.IsNotExist(err) {
		fmt.Println("No detection log found, nothing to index")
		return
	}

	detections, err := detectionlog.Open(*logPath)
	if err != nil {
		log.Fatalf("Failed to load detection log: %v", err)
	}

	db, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	repo := sqlite.NewDetectionRepository(db)

	if *reset {
		if err := repo.DeleteAll(); err != nil {
			log.Fatalf("Failed to reset index: %v", err)
		}
	}

	entries := detections.Entries()
	if len(entries) == 0 {
		fmt.Println("Detection log is empty")
		return
	}

	pending, skipped, err := unindexed(repo, entries)
	if err != nil {
		log.Fatalf("Failed to check index: %v", err)
	}
	if skipped > 0 {
		fmt.Printf("Skipping %d detections whose clip is already indexed\n", skipped)
	}

	fmt.Printf("Indexing %d detections...\n", len(pending))
	inserted, err := repo.InsertBatch(pending)
	if err != nil {
		log.Fatalf("Failed to index detections: %v", err)
	}

	fmt.Printf("Indexed %d new detections (%d already present)\n", inserted, len(entries)-inserted)

	stats, err := repo.GetStats()
	if err == nil {
		fmt.Printf("\nIndex statistics:\n")
		fmt.Printf("   Total detections: %d\n", stats.TotalDetections)
		fmt.Printf("   Highest score: %.3f\n", stats.MaxScore)
		fmt.Printf("   With location: %d\n", stats.WithLocation)
	}
}

// unindexed returns the entries whose clip is not yet in the index, keeping
// only the first entry for a clip the log names more than once.
func unindexed(repo repository.DetectionRepository, entries []model.Detection) ([]model.Detection, int, error) {
	seen := make(map[string]bool, len(entries))
	var pending []model.Detection
	for _, entry := range entries {
		if seen[entry.Clip] {
			continue
		}
		seen[entry.Clip] = true

		existing, err := repo.GetByClip(entry.Clip)
		if err != nil {
			return nil, 0, err
		}
		if existing == nil {
			pending = append(pending, entry)
		}
	}
	return pending, len(entries) - len(pending), nil
}
