package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"sharkcam/internal/config"
	"sharkcam/internal/logger"
	"sharkcam/internal/repository/sqlite"
	"sharkcam/internal/route"
	"sharkcam/internal/service"
	"sharkcam/internal/service/ai"
	"sharkcam/internal/service/clip"
	"sharkcam/internal/service/detectionlog"
	"sharkcam/internal/service/location"
	"sharkcam/internal/service/notify"
	"sharkcam/internal/service/source"
	"sharkcam/internal/service/video"
	"sharkcam/internal/service/websocket"
)

type App struct {
	config     *config.Config
	logger     *logger.Logger
	db         *sqlite.DB
	detector   *ai.DetectorService
	hubService *websocket.HubService
	source     source.FrameSource
	manager    *service.Manager
}

// NewApp opens every component. A frame source that cannot be opened is
// fatal, as is a model that cannot be loaded.
func NewApp(cfg *config.Config) (*App, error) {
	log, err := logger.NewLogger(cfg.LogDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	a := &App{config: cfg, logger: log}
	if err := a.init(); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *App) init() error {
	cfg := a.config

	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open detection index: %w", err)
	}
	a.db = db

	detectionLog, err := detectionlog.Open(cfg.DetectionLogPath())
	if err != nil {
		return fmt.Errorf("failed to load detection log: %w", err)
	}

	a.detector, err = ai.NewDetectorService(cfg.ModelBackend, cfg.ModelPath, cfg.ModelInputSize, cfg.Preprocess, a.logger)
	if err != nil {
		return fmt.Errorf("failed to load model: %w", err)
	}

	a.source, err = openSource(cfg, a.logger)
	if err != nil {
		return err
	}

	a.hubService = websocket.NewHubService(a.logger)

	notifiers, err := buildNotifiers(cfg, a.hubService, a.logger)
	if err != nil {
		return err
	}

	recorder, err := openRecorder(cfg, a.logger)
	if err != nil {
		notifiers.Close()
		return err
	}

	a.manager, err = service.NewManager(cfg, service.Dependencies{
		Scorer:   a.detector,
		Writer:   clip.NewWriter(video.NewEncoder()),
		Log:      detectionLog,
		Index:    sqlite.NewDetectionRepository(db),
		Location: location.FromConfig(cfg.DroneLat, cfg.DroneLon, cfg.DroneAlt),
		Notifier: notifiers,
		Hub:      a.hubService,
		Overlay:  ai.NewScoreOverlay(cfg.Threshold),
		Recorder: recorder,
		Camera:   cfg.Source,
	}, a.logger)
	if err != nil {
		notifiers.Close()
		if recorder != nil {
			recorder.Close()
		}
		return err
	}
	return nil
}

func openSource(cfg *config.Config, log *logger.Logger) (source.FrameSource, error) {
	if cfg.Source == "udp" {
		src, err := source.ListenUDP(":"+strconv.Itoa(cfg.CamerasPort), cfg.CameraNames, "", cfg.MaxFrameBytes, log)
		if err != nil {
			return nil, fmt.Errorf("failed to open frame source: %w", err)
		}
		return src, nil
	}

	src, err := video.OpenCapture(cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open frame source: %w", err)
	}
	if fps := src.FPS(); fps > 0 && int(fps+0.5) != cfg.FPS {
		log.Warning("Source reports %.1f fps, clips are written at %d fps", fps, cfg.FPS)
	}
	return src, nil
}

// openRecorder opens the full-stream recording when RecordPath is set.
func openRecorder(cfg *config.Config, log *logger.Logger) (service.Recorder, error) {
	if cfg.RecordPath == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.RecordPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create recording directory: %w", err)
	}
	sink, err := video.NewEncoder().Open(cfg.RecordPath, float64(cfg.FPS))
	if err != nil {
		return nil, fmt.Errorf("failed to open stream recording: %w", err)
	}
	log.Info("Recording annotated stream to %s", cfg.RecordPath)
	return sink, nil
}

func buildNotifiers(cfg *config.Config, hub *websocket.HubService, log *logger.Logger) (notify.Multi, error) {
	notifiers := notify.Multi{notify.NewHubNotifier(hub)}

	if cfg.SharkAPIURL != "" {
		notifiers = append(notifiers, notify.NewHTTPNotifier(cfg.SharkAPIURL, cfg.DroneName, cfg.NotifyTimeoutDuration()))
		log.Info("Posting detections to %s", cfg.SharkAPIURL)
	}

	if cfg.Kafka.BootstrapServers != "" {
		kafkaNotifier, err := notify.NewKafkaNotifier(cfg.Kafka, cfg.DroneName, log)
		if err != nil {
			notifiers.Close()
			return nil, fmt.Errorf("failed to create kafka notifier: %w", err)
		}
		notifiers = append(notifiers, kafkaNotifier)
	}
	return notifiers, nil
}

// Run serves HTTP and feeds frames to the pipeline until ctx is done or the
// server fails. The server keeps running after a finite source is exhausted.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.hubService.Run(ctx)

	pipelineDone := make(chan struct{})
	go func() {
		defer close(pipelineDone)
		if err := a.manager.Run(ctx, a.source); err != nil {
			a.logger.Error("Frame pipeline stopped: %v", err)
			return
		}
		if ctx.Err() == nil {
			a.logger.Info("Frame source exhausted")
		}
	}()

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.config.Port),
		Handler: route.SetupRoutes(a.config, a.logger, a.hubService, sqlite.NewDetectionRepository(a.db)),
	}
	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	a.logger.Info("Shark camera server - URL: http://localhost:%d", a.config.Port)
	a.logger.Info("Source: %s, model: %s (%s), clips: %s", a.config.Source, a.config.ModelPath, a.detector.Backend(), a.config.OutputDirectory)

	var runErr error
	select {
	case runErr = <-serverErr:
		a.logger.Error("HTTP server failed: %v", runErr)
	case <-ctx.Done():
	}

	cancel()
	<-pipelineDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("HTTP shutdown: %v", err)
	}
	return runErr
}

// close shuts down the pipeline first so queued clips are written and
// logged, then releases the source, model, index and logger.
func (a *App) close() {
	if a.manager != nil {
		a.manager.Stop()
	}
	if a.source != nil {
		a.source.Close()
	}
	if a.detector != nil {
		a.detector.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	a.logger.Info("Shutdown complete")
	a.logger.Close()
}
