package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"CONFIG_FILE", "PORT", "SOURCE", "CAMERA_NAMES", "MODEL_BACKEND", "PREPROCESS", "THRESHOLD",
	"BUFFER_SIZE", "POST_TRIGGER", "FPS", "OUTPUT_DIR", "FLUSH_PARTIAL_CLIPS", "CLIP_QUEUE_SIZE",
	"CLIP_WRITE_TIMEOUT", "DRONE_LAT", "DRONE_LON", "DRONE_ALT", "KAFKA_BOOTSTRAP_SERVERS", "KAFKA_TOPIC",
	"MAX_FRAME_BYTES", "RECORD_PATH", "STATIC_DIR",
}

// clearEnv blanks every key the tests touch; getEnv treats "" as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.BufferSize)
	assert.Equal(t, 30, cfg.PostTrigger)
	assert.Equal(t, 0.5, cfg.Threshold)
	assert.Equal(t, 10, cfg.FPS)
	assert.Equal(t, filepath.Join("detections", "detections.json"), cfg.DetectionLogPath())
	assert.Zero(t, cfg.ClipWriteTimeoutDuration())
	assert.Nil(t, cfg.DroneLat)
	assert.Equal(t, 4<<20, cfg.MaxFrameBytes)
	assert.Empty(t, cfg.RecordPath)
	assert.Equal(t, "static", cfg.StaticDirectory)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("THRESHOLD", "0.75")
	t.Setenv("BUFFER_SIZE", "5")
	t.Setenv("POST_TRIGGER", "3")
	t.Setenv("OUTPUT_DIR", "/tmp/clips")
	t.Setenv("FLUSH_PARTIAL_CLIPS", "true")
	t.Setenv("CLIP_WRITE_TIMEOUT", "20")
	t.Setenv("DRONE_LAT", "-33.89")
	t.Setenv("DRONE_LON", "151.27")
	t.Setenv("CAMERA_NAMES", "10.0.0.5=pier, 10.0.0.6=tower,broken")
	t.Setenv("KAFKA_BOOTSTRAP_SERVERS", "localhost:9092")
	t.Setenv("MAX_FRAME_BYTES", "1048576")
	t.Setenv("RECORD_PATH", "/tmp/stream.mp4")
	t.Setenv("STATIC_DIR", "/srv/sharkcam/static")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 0.75, cfg.Threshold)
	assert.Equal(t, 5, cfg.BufferSize)
	assert.Equal(t, 3, cfg.PostTrigger)
	assert.Equal(t, "/tmp/clips", cfg.OutputDirectory)
	assert.True(t, cfg.FlushPartialClips)
	assert.Equal(t, 20.0, cfg.ClipWriteTimeoutDuration().Seconds())
	require.NotNil(t, cfg.DroneLat)
	assert.Equal(t, -33.89, *cfg.DroneLat)
	assert.Equal(t, map[string]string{"10.0.0.5": "pier", "10.0.0.6": "tower"}, cfg.CameraNames)
	assert.Equal(t, "localhost:9092", cfg.Kafka.BootstrapServers)
	assert.Equal(t, "shark-detections", cfg.Kafka.Topic)
	assert.Equal(t, 1<<20, cfg.MaxFrameBytes)
	assert.Equal(t, "/tmp/stream.mp4", cfg.RecordPath)
	assert.Equal(t, "/srv/sharkcam/static", cfg.StaticDirectory)
}

func TestLoad_RejectsNaNThreshold(t *testing.T) {
	clearEnv(t)
	t.Setenv("THRESHOLD", "NaN")

	_, err := Load()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoad_InvalidValuesIgnoredByParser(t *testing.T) {
	clearEnv(t)
	t.Setenv("BUFFER_SIZE", "many")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.BufferSize)
}

func TestLoad_YAMLFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "sharkcam.yaml")
	content := `
threshold: 0.8
buffer_size: 12
post_trigger: 4
model_backend: onnx
kafka:
  topic: beach-alerts
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("POST_TRIGGER", "6")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 0.8, cfg.Threshold)
	assert.Equal(t, 12, cfg.BufferSize)
	assert.Equal(t, 6, cfg.PostTrigger, "environment wins over the file")
	assert.Equal(t, "onnx", cfg.ModelBackend)
	assert.Equal(t, "beach-alerts", cfg.Kafka.Topic)
	assert.Equal(t, 10, cfg.FPS, "unset keys keep defaults")
}

func TestLoad_TOMLFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "sharkcam.toml")
	content := `
fps = 15
output_dir = "clips"
drone_lat = 21.3
drone_lon = -157.8

[kafka]
bootstrap_servers = "broker:9092"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 15, cfg.FPS)
	assert.Equal(t, "clips", cfg.OutputDirectory)
	require.NotNil(t, cfg.DroneLon)
	assert.Equal(t, -157.8, *cfg.DroneLon)
	assert.Equal(t, "broker:9092", cfg.Kafka.BootstrapServers)
}

func TestLoad_UnsupportedFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "sharkcam.ini")
	require.NoError(t, os.WriteFile(path, []byte("fps=1"), 0644))
	t.Setenv("CONFIG_FILE", path)

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	lat := 1.0
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero capacity", func(c *Config) { c.BufferSize = 0 }},
		{"threshold zero", func(c *Config) { c.Threshold = 0 }},
		{"threshold one", func(c *Config) { c.Threshold = 1 }},
		{"threshold NaN", func(c *Config) { c.Threshold = math.NaN() }},
		{"zero max frame", func(c *Config) { c.MaxFrameBytes = 0 }},
		{"negative post trigger", func(c *Config) { c.PostTrigger = -1 }},
		{"zero fps", func(c *Config) { c.FPS = 0 }},
		{"no output dir", func(c *Config) { c.OutputDirectory = "" }},
		{"zero queue", func(c *Config) { c.ClipQueueSize = 0 }},
		{"negative timeout", func(c *Config) { c.ClipWriteTimeout = -1 }},
		{"bad backend", func(c *Config) { c.ModelBackend = "tflite" }},
		{"bad preprocess", func(c *Config) { c.Preprocess = "imagenet" }},
		{"lat without lon", func(c *Config) { c.DroneLat = &lat }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	cfg := Default()
	cfg.PostTrigger = 0
	assert.NoError(t, cfg.Validate(), "a zero post-trigger window is allowed")
}
