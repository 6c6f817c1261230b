package handler

import (
	"net/http"
	"os"
	"path/filepath"

	"sharkcam/internal/logger"
)

// ShowLogsHandler serves one of the logger's files as text/plain.
func ShowLogsHandler(log *logger.Logger, fileName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filePath := filepath.Join(log.Dir(), fileName)

		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte("Log file not found: " + fileName))
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		http.ServeFile(w, r, filePath)
	}
}

// ClearLogsHandler truncates one of the logger's files.
func ClearLogsHandler(log *logger.Logger, fileName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost && r.Method != http.MethodDelete {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := log.CleanLogs(fileName); err != nil {
			log.Error("Failed to clear %s: %v", fileName, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
