package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// KafkaConfig holds Kafka connection settings for the detection notifier.
// An empty BootstrapServers disables Kafka.
type KafkaConfig struct {
	BootstrapServers string `yaml:"bootstrap_servers" toml:"bootstrap_servers"`
	SecurityProtocol string `yaml:"security_protocol" toml:"security_protocol"`
	SASLMechanism    string `yaml:"sasl_mechanism" toml:"sasl_mechanism"`
	SASLUsername     string `yaml:"sasl_username" toml:"sasl_username"`
	SASLPassword     string `yaml:"sasl_password" toml:"sasl_password"`
	Topic            string `yaml:"topic" toml:"topic"`
}

type Config struct {
	Port            int    `yaml:"port" toml:"port"`
	Password        string `yaml:"password" toml:"password"`
	LogDirectory    string `yaml:"log_dir" toml:"log_dir"`
	StaticDirectory string `yaml:"static_dir" toml:"static_dir"`

	// Source is a camera index ("0"), a file path or stream URL, or "udp".
	Source      string            `yaml:"source" toml:"source"`
	CamerasPort int               `yaml:"cameras_port" toml:"cameras_port"`
	CameraNames map[string]string `yaml:"camera_names" toml:"camera_names"` // camera IP -> name
	// MaxFrameBytes bounds UDP frame reassembly.
	MaxFrameBytes int `yaml:"max_frame_bytes" toml:"max_frame_bytes"`

	ModelPath      string `yaml:"model_path" toml:"model_path"`
	ModelBackend   string `yaml:"model_backend" toml:"model_backend"` // tensorflow | onnx
	ModelInputSize int    `yaml:"model_input_size" toml:"model_input_size"`
	Preprocess     string `yaml:"preprocess" toml:"preprocess"` // default | mobilenetv2

	Threshold         float64 `yaml:"threshold" toml:"threshold"`
	BufferSize        int     `yaml:"buffer_size" toml:"buffer_size"`
	PostTrigger       int     `yaml:"post_trigger" toml:"post_trigger"`
	FPS               int     `yaml:"fps" toml:"fps"`
	OutputDirectory   string  `yaml:"output_dir" toml:"output_dir"`
	FlushPartialClips bool    `yaml:"flush_partial_clips" toml:"flush_partial_clips"`
	ClipQueueSize     int     `yaml:"clip_queue_size" toml:"clip_queue_size"`
	ClipWriteTimeout  int     `yaml:"clip_write_timeout" toml:"clip_write_timeout"` // seconds, 0 = none
	DatabasePath      string  `yaml:"db_path" toml:"db_path"`
	LiveViewInterval  int     `yaml:"live_view_interval" toml:"live_view_interval"` // broadcast every Nth frame
	RecordPath        string  `yaml:"record_path" toml:"record_path"`               // full annotated stream, empty = off

	DroneName     string   `yaml:"drone_name" toml:"drone_name"`
	DroneLat      *float64 `yaml:"drone_lat" toml:"drone_lat"`
	DroneLon      *float64 `yaml:"drone_lon" toml:"drone_lon"`
	DroneAlt      *float64 `yaml:"drone_alt" toml:"drone_alt"`
	SharkAPIURL   string   `yaml:"shark_api_url" toml:"shark_api_url"`
	NotifyTimeout int      `yaml:"notify_timeout" toml:"notify_timeout"` // seconds

	Kafka KafkaConfig `yaml:"kafka" toml:"kafka"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:             8080,
		Password:         "sharkcam",
		LogDirectory:     filepath.Join(".", "logs"),
		StaticDirectory:  "static",
		Source:           "0",
		CamerasPort:      8081,
		CameraNames:      map[string]string{},
		MaxFrameBytes:    4 << 20,
		ModelPath:        filepath.Join(".", "models", "best_shark_model.pb"),
		ModelBackend:     "tensorflow",
		ModelInputSize:   224,
		Preprocess:       "mobilenetv2",
		Threshold:        0.5,
		BufferSize:       50,
		PostTrigger:      30,
		FPS:              10,
		OutputDirectory:  "detections",
		ClipQueueSize:    4,
		DatabasePath:     filepath.Join(".", "data", "detections.db"),
		LiveViewInterval: 1,
		DroneName:        "drone-1",
		NotifyTimeout:    5,
		Kafka: KafkaConfig{
			SecurityProtocol: "plaintext",
			Topic:            "shark-detections",
		},
	}
}

// Load builds the configuration from defaults, an optional CONFIG_FILE and
// the environment (a .env file in the working directory is read first).
func Load() (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile decodes a YAML or TOML file over the current values.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("decode YAML: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), c); err != nil {
			return fmt.Errorf("decode TOML: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file extension %q", ext)
	}
	return nil
}

// ApplyEnvOverrides replaces values with those set in the environment.
func (c *Config) ApplyEnvOverrides() {
	c.Port = getEnvAsInt("PORT", c.Port)
	c.Password = getEnv("PASSWORD", c.Password)
	c.LogDirectory = getEnv("LOG_DIR", c.LogDirectory)
	c.StaticDirectory = getEnv("STATIC_DIR", c.StaticDirectory)

	c.Source = getEnv("SOURCE", c.Source)
	c.CamerasPort = getEnvAsInt("CAMERAS_PORT", c.CamerasPort)
	if value := os.Getenv("CAMERA_NAMES"); value != "" {
		c.CameraNames = parseCameraNames(value)
	}
	c.MaxFrameBytes = getEnvAsInt("MAX_FRAME_BYTES", c.MaxFrameBytes)

	c.ModelPath = getEnv("MODEL_PATH", c.ModelPath)
	c.ModelBackend = getEnv("MODEL_BACKEND", c.ModelBackend)
	c.ModelInputSize = getEnvAsInt("MODEL_INPUT_SIZE", c.ModelInputSize)
	c.Preprocess = getEnv("PREPROCESS", c.Preprocess)

	c.Threshold = getEnvAsFloat("THRESHOLD", c.Threshold)
	c.BufferSize = getEnvAsInt("BUFFER_SIZE", c.BufferSize)
	c.PostTrigger = getEnvAsInt("POST_TRIGGER", c.PostTrigger)
	c.FPS = getEnvAsInt("FPS", c.FPS)
	c.OutputDirectory = getEnv("OUTPUT_DIR", c.OutputDirectory)
	c.FlushPartialClips = getEnvAsBool("FLUSH_PARTIAL_CLIPS", c.FlushPartialClips)
	c.ClipQueueSize = getEnvAsInt("CLIP_QUEUE_SIZE", c.ClipQueueSize)
	c.ClipWriteTimeout = getEnvAsInt("CLIP_WRITE_TIMEOUT", c.ClipWriteTimeout)
	c.DatabasePath = getEnv("DB_PATH", c.DatabasePath)
	c.LiveViewInterval = getEnvAsInt("LIVE_VIEW_INTERVAL", c.LiveViewInterval)
	c.RecordPath = getEnv("RECORD_PATH", c.RecordPath)

	c.DroneName = getEnv("DRONE_NAME", c.DroneName)
	c.DroneLat = getEnvAsFloatPtr("DRONE_LAT", c.DroneLat)
	c.DroneLon = getEnvAsFloatPtr("DRONE_LON", c.DroneLon)
	c.DroneAlt = getEnvAsFloatPtr("DRONE_ALT", c.DroneAlt)
	c.SharkAPIURL = getEnv("SHARK_API_URL", c.SharkAPIURL)
	c.NotifyTimeout = getEnvAsInt("NOTIFY_TIMEOUT", c.NotifyTimeout)

	c.Kafka.BootstrapServers = getEnv("KAFKA_BOOTSTRAP_SERVERS", c.Kafka.BootstrapServers)
	c.Kafka.SecurityProtocol = getEnv("KAFKA_SECURITY_PROTOCOL", c.Kafka.SecurityProtocol)
	c.Kafka.SASLMechanism = getEnv("KAFKA_SASL_MECHANISM", c.Kafka.SASLMechanism)
	c.Kafka.SASLUsername = getEnv("KAFKA_SASL_USERNAME", c.Kafka.SASLUsername)
	c.Kafka.SASLPassword = getEnv("KAFKA_SASL_PASSWORD", c.Kafka.SASLPassword)
	c.Kafka.Topic = getEnv("KAFKA_TOPIC", c.Kafka.Topic)
}

// Validate checks the values the recording pipeline depends on.
func (c *Config) Validate() error {
	var problems []string

	if c.BufferSize <= 0 {
		problems = append(problems, fmt.Sprintf("buffer size must be > 0, got %d", c.BufferSize))
	}
	if math.IsNaN(c.Threshold) || c.Threshold <= 0 || c.Threshold >= 1 {
		problems = append(problems, fmt.Sprintf("threshold must be in (0,1), got %g", c.Threshold))
	}
	if c.PostTrigger < 0 {
		problems = append(problems, fmt.Sprintf("post trigger count must be >= 0, got %d", c.PostTrigger))
	}
	if c.FPS <= 0 {
		problems = append(problems, fmt.Sprintf("fps must be > 0, got %d", c.FPS))
	}
	if c.OutputDirectory == "" {
		problems = append(problems, "output directory must be set")
	}
	if c.ClipQueueSize <= 0 {
		problems = append(problems, fmt.Sprintf("clip queue size must be > 0, got %d", c.ClipQueueSize))
	}
	if c.ClipWriteTimeout < 0 {
		problems = append(problems, fmt.Sprintf("clip write timeout must be >= 0, got %d", c.ClipWriteTimeout))
	}
	if c.MaxFrameBytes <= 0 {
		problems = append(problems, fmt.Sprintf("max frame bytes must be > 0, got %d", c.MaxFrameBytes))
	}
	if c.ModelBackend != "tensorflow" && c.ModelBackend != "onnx" {
		problems = append(problems, fmt.Sprintf("unknown model backend %q", c.ModelBackend))
	}
	if c.Preprocess != "default" && c.Preprocess != "mobilenetv2" {
		problems = append(problems, fmt.Sprintf("unknown preprocess type %q", c.Preprocess))
	}
	if (c.DroneLat == nil) != (c.DroneLon == nil) {
		problems = append(problems, "drone latitude and longitude must be set together")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// DetectionLogPath is the fixed location of the detection log.
func (c *Config) DetectionLogPath() string {
	return filepath.Join(c.OutputDirectory, "detections.json")
}

// ClipWriteTimeoutDuration returns the per-clip write bound, 0 for none.
func (c *Config) ClipWriteTimeoutDuration() time.Duration {
	return time.Duration(c.ClipWriteTimeout) * time.Second
}

// NotifyTimeoutDuration returns the per-notification bound.
func (c *Config) NotifyTimeoutDuration() time.Duration {
	return time.Duration(c.NotifyTimeout) * time.Second
}

// parseCameraNames reads "ip=name,ip=name" pairs.
func parseCameraNames(value string) map[string]string {
	names := make(map[string]string)
	for _, pair := range strings.Split(value, ",") {
		ip, name, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || ip == "" || name == "" {
			continue
		}
		names[ip] = name
	}
	return names
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsFloatPtr(key string, defaultValue *float64) *float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return &floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
