// Package config loads seglo's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ayusman/seglo/internal/nn"
)

// Config holds all seglo configuration.
type Config struct {
	Paths      PathsConfig      `yaml:"paths"`
	Camera     CameraConfig     `yaml:"camera"`
	Detector   DetectorConfig   `yaml:"detector"`
	Collection CollectionConfig `yaml:"collection"`
	Training   TrainingConfig   `yaml:"training"`
	Inference  InferenceConfig  `yaml:"inference"`
	Server     ServerConfig     `yaml:"server"`
	Hooks      HooksConfig      `yaml:"hooks"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// PathsConfig locates the dataset, label map, models and database.
type PathsConfig struct {
	DataDir       string `yaml:"data_dir"`
	LabelMap      string `yaml:"label_map"`
	ModelsDir     string `yaml:"models_dir"`
	EvaluationDir string `yaml:"evaluation_dir"`
	Database      string `yaml:"database"`
}

// CameraConfig configures the capture device.
type CameraConfig struct {
	DeviceID int  `yaml:"device_id"`
	Width    int  `yaml:"width"`
	Height   int  `yaml:"height"`
	FPS      int  `yaml:"fps"`
	Mirror   bool `yaml:"mirror"`
}

// DetectorConfig configures the MediaPipe landmark service.
type DetectorConfig struct {
	Python                 string  `yaml:"python"` // venv interpreter, then python3, when empty
	Script                 string  `yaml:"script"` // discovered when empty
	MaxHands               int     `yaml:"max_hands"`
	MinDetectionConfidence float64 `yaml:"min_detection_confidence"`
	MinTrackingConfidence  float64 `yaml:"min_tracking_confidence"`
	IdleTimeout            string  `yaml:"idle_timeout"`
}

// CollectionConfig configures sample recording.
type CollectionConfig struct {
	SamplesPerClass int    `yaml:"samples_per_class"`
	Countdown       string `yaml:"countdown"`
}

// TrainingConfig configures model fitting.
type TrainingConfig struct {
	Epochs       int            `yaml:"epochs"`
	BatchSize    int            `yaml:"batch_size"`
	TestSplit    float64        `yaml:"test_split"`
	Seed         uint64         `yaml:"seed"`
	LearningRate float64        `yaml:"learning_rate"`
	Layers       []nn.LayerSpec `yaml:"layers"`
}

// InferenceConfig configures realtime recognition.
type InferenceConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	StableFrames        int     `yaml:"stable_frames"`
	Model               string  `yaml:"model"` // final model when empty
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr      string `yaml:"addr"`
	StaticDir string `yaml:"static_dir"`
}

// HooksConfig configures external hook plugins.
type HooksConfig struct {
	Dir      string        `yaml:"dir"`
	Timeout  string        `yaml:"timeout"`
	Bindings []HookBinding `yaml:"bindings"`
}

// HookBinding sends stable predictions of Label ("*" for any) to Plugin.
type HookBinding struct {
	Label  string         `yaml:"label"`
	Plugin string         `yaml:"plugin"`
	Action string         `yaml:"action"`
	Params map[string]any `yaml:"params,omitempty"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level       string `yaml:"level"` // debug, info, warn, error
	Development bool   `yaml:"development"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()

	return &Config{
		Paths: PathsConfig{
			DataDir:       "data/gestures",
			LabelMap:      "labels/label_map.json",
			ModelsDir:     "models",
			EvaluationDir: "evaluation",
			Database:      "data/seglo.db",
		},

		Camera: CameraConfig{
			DeviceID: 0,
			Width:    640,
			Height:   480,
			FPS:      30,
			Mirror:   true,
		},

		Detector: DetectorConfig{
			MaxHands:               2,
			MinDetectionConfidence: 0.7,
			MinTrackingConfidence:  0.5,
			IdleTimeout:            "30s",
		},

		Collection: CollectionConfig{
			SamplesPerClass: 1000,
			Countdown:       "3s",
		},

		Training: TrainingConfig{
			Epochs:       50,
			BatchSize:    32,
			TestSplit:    0.2,
			Seed:         42,
			LearningRate: 0.001,
			Layers:       append([]nn.LayerSpec(nil), nn.DefaultLayers...),
		},

		Inference: InferenceConfig{
			ConfidenceThreshold: 0.7,
			StableFrames:        3,
		},

		Server: ServerConfig{
			Addr: ":8080",
		},

		Hooks: HooksConfig{
			Dir:     filepath.Join(home, ".seglo", "plugins"),
			Timeout: "5s",
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if dir := os.Getenv("SEGLO_DATA_DIR"); dir != "" {
		c.Paths.DataDir = dir
	}
	if dir := os.Getenv("SEGLO_MODELS_DIR"); dir != "" {
		c.Paths.ModelsDir = dir
	}
	if cam := os.Getenv("SEGLO_CAMERA"); cam != "" {
		if id, err := strconv.Atoi(cam); err == nil {
			c.Camera.DeviceID = id
		}
	}
	if level := os.Getenv("SEGLO_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if addr := os.Getenv("SEGLO_SERVER_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
}

// ValidLogLevels lists the accepted logging levels.
var ValidLogLevels = []string{"debug", "info", "warn", "error"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Paths.DataDir == "" || c.Paths.LabelMap == "" || c.Paths.ModelsDir == "" {
		return errors.New("paths.data_dir, paths.label_map and paths.models_dir are required")
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 || c.Camera.FPS <= 0 {
		return fmt.Errorf("invalid camera mode %dx%d@%d", c.Camera.Width, c.Camera.Height, c.Camera.FPS)
	}
	if c.Detector.MaxHands < 1 || c.Detector.MaxHands > 2 {
		return fmt.Errorf("detector.max_hands must be 1 or 2, got %d", c.Detector.MaxHands)
	}
	if !unit(c.Detector.MinDetectionConfidence) || !unit(c.Detector.MinTrackingConfidence) {
		return errors.New("detector confidences must be within [0, 1]")
	}
	if c.Collection.SamplesPerClass <= 0 {
		return fmt.Errorf("collection.samples_per_class must be positive, got %d", c.Collection.SamplesPerClass)
	}
	if c.Training.Epochs <= 0 || c.Training.BatchSize <= 0 {
		return errors.New("training.epochs and training.batch_size must be positive")
	}
	if c.Training.TestSplit <= 0 || c.Training.TestSplit >= 1 {
		return fmt.Errorf("training.test_split must be in (0, 1), got %v", c.Training.TestSplit)
	}
	if c.Training.LearningRate <= 0 {
		return fmt.Errorf("training.learning_rate must be positive, got %v", c.Training.LearningRate)
	}
	for i, l := range c.Training.Layers {
		if l.Units <= 0 || l.Dropout < 0 || l.Dropout >= 1 {
			return fmt.Errorf("training.layers[%d] is invalid: %+v", i, l)
		}
	}
	if !unit(c.Inference.ConfidenceThreshold) {
		return fmt.Errorf("inference.confidence_threshold must be within [0, 1], got %v", c.Inference.ConfidenceThreshold)
	}
	if c.Inference.StableFrames < 1 {
		return fmt.Errorf("inference.stable_frames must be at least 1, got %d", c.Inference.StableFrames)
	}
	for i, b := range c.Hooks.Bindings {
		if b.Label == "" || b.Plugin == "" {
			return fmt.Errorf("hooks.bindings[%d] needs a label and a plugin", i)
		}
	}

	valid := false
	for _, l := range ValidLogLevels {
		if c.Logging.Level == l {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid logging level: %s (valid: %v)", c.Logging.Level, ValidLogLevels)
	}

	return nil
}

func unit(v float64) bool { return v >= 0 && v <= 1 }

// GetIdleTimeout returns the detector idle timeout as a duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return parseDuration(c.Detector.IdleTimeout, 30*time.Second)
}

// GetCountdown returns the recording countdown as a duration.
func (c *Config) GetCountdown() time.Duration {
	return parseDuration(c.Collection.Countdown, 3*time.Second)
}

// GetHookTimeout returns the hook execution timeout as a duration.
func (c *Config) GetHookTimeout() time.Duration {
	return parseDuration(c.Hooks.Timeout, 5*time.Second)
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// CheckpointPath is where training saves the best epoch.
func (c *Config) CheckpointPath() string {
	return filepath.Join(c.Paths.ModelsDir, "static_model.json")
}

// FinalModelPath is where training saves the model after the last epoch.
func (c *Config) FinalModelPath() string {
	return filepath.Join(c.Paths.ModelsDir, "final_static_model.json")
}

// ScalerPath is the fitted feature scaler.
func (c *Config) ScalerPath() string {
	return filepath.Join(c.Paths.ModelsDir, "scaler.json")
}

// ScalerStatsPath is the mean/std export read by the mobile app.
func (c *Config) ScalerStatsPath() string {
	return filepath.Join(c.Paths.ModelsDir, "scaler_stats.json")
}

// MobileModelPath is the quantized model produced by convert.
func (c *Config) MobileModelPath() string {
	return filepath.Join(c.Paths.ModelsDir, "final_static_model.q8")
}

// ConfusionMatrixPath is the heatmap written by evaluate.
func (c *Config) ConfusionMatrixPath() string {
	return filepath.Join(c.Paths.EvaluationDir, "confusion_matrix.png")
}

// InferenceModelPath is the model used for realtime recognition.
func (c *Config) InferenceModelPath() string {
	if c.Inference.Model != "" {
		return c.Inference.Model
	}
	return c.FinalModelPath()
}
