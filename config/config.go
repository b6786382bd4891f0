package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CLEANER_"

type Config struct {
	LogLevel int `yaml:"log_level"`

	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
}

type ServerConfig struct {
	Port           string `yaml:"port"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

type StorageConfig struct {
	// Type of storage: "local" or "gcs"
	Type string `yaml:"type"`

	// Local storage options
	OutputDir string `yaml:"output_dir"`

	// GCS options
	Bucket          string `yaml:"bucket"`
	ObjectPrefix    string `yaml:"object_prefix"`
	CredentialsFile string `yaml:"credentials_file"`
}

// KnowledgeConfig configures the domain knowledge service client. An empty
// URL disables the service and every job runs on rule-based profiles.
type KnowledgeConfig struct {
	URL               string        `yaml:"url"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	BreakerFailures   uint32        `yaml:"breaker_failures"`
	BreakerCooldown   time.Duration `yaml:"breaker_cooldown"`
	SampleRows        int           `yaml:"sample_rows"`
}

type PipelineConfig struct {
	Workers        int           `yaml:"workers"`
	JobTimeout     time.Duration `yaml:"job_timeout"`
	OutlierAction  string        `yaml:"outlier_action"`
	IForestTrees   int           `yaml:"iforest_trees"`
	IForestMinRows int           `yaml:"iforest_min_rows"`
	Seed           int64         `yaml:"seed"`
	KNNNeighbors   int           `yaml:"knn_neighbors"`
}

// Load reads the YAML file at path, then a .env file next to it if one
// exists, applies CLEANER_* environment overrides and fills defaults. An
// empty path skips the YAML file.
func Load(path string) (*Config, error) {
	config := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, err
		}
	}

	envFile := ".env"
	if path != "" {
		envFile = filepath.Join(filepath.Dir(path), ".env")
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	config.setDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyEnv() error {
	var errs []error
	c.LogLevel = getEnvAsInt("LOG_LEVEL", c.LogLevel, &errs)

	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.MaxUploadBytes = int64(getEnvAsInt("MAX_UPLOAD_BYTES", int(c.Server.MaxUploadBytes), &errs))

	c.Storage.Type = getEnv("STORAGE_TYPE", c.Storage.Type)
	c.Storage.OutputDir = getEnv("OUTPUT_DIR", c.Storage.OutputDir)
	c.Storage.Bucket = getEnv("GCS_BUCKET", c.Storage.Bucket)
	c.Storage.ObjectPrefix = getEnv("GCS_PREFIX", c.Storage.ObjectPrefix)
	c.Storage.CredentialsFile = getEnv("GCS_CREDENTIALS_FILE", c.Storage.CredentialsFile)

	c.Knowledge.URL = getEnv("KNOWLEDGE_URL", c.Knowledge.URL)
	c.Knowledge.Timeout = getEnvAsDuration("KNOWLEDGE_TIMEOUT", c.Knowledge.Timeout, &errs)

	c.Pipeline.Workers = getEnvAsInt("WORKERS", c.Pipeline.Workers, &errs)
	c.Pipeline.JobTimeout = getEnvAsDuration("JOB_TIMEOUT", c.Pipeline.JobTimeout, &errs)
	c.Pipeline.OutlierAction = getEnv("OUTLIER_ACTION", c.Pipeline.OutlierAction)
	c.Pipeline.Seed = int64(getEnvAsInt("SEED", int(c.Pipeline.Seed), &errs))

	return errors.Join(errs...)
}

func (c *Config) setDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.MaxUploadBytes <= 0 {
		c.Server.MaxUploadBytes = 50 << 20
	}

	if c.Storage.Type == "" {
		c.Storage.Type = "local"
	}
	if c.Storage.OutputDir == "" {
		c.Storage.OutputDir = "output"
	}

	if c.Knowledge.Timeout <= 0 {
		c.Knowledge.Timeout = 10 * time.Second
	}
	if c.Knowledge.RequestsPerSecond <= 0 {
		c.Knowledge.RequestsPerSecond = 2
	}
	if c.Knowledge.Burst <= 0 {
		c.Knowledge.Burst = 4
	}
	if c.Knowledge.BreakerFailures == 0 {
		c.Knowledge.BreakerFailures = 5
	}
	if c.Knowledge.BreakerCooldown <= 0 {
		c.Knowledge.BreakerCooldown = 30 * time.Second
	}
	if c.Knowledge.SampleRows <= 0 {
		c.Knowledge.SampleRows = 5
	}

	if c.Pipeline.Workers <= 0 {
		c.Pipeline.Workers = 4
	}
	if c.Pipeline.JobTimeout <= 0 {
		c.Pipeline.JobTimeout = 15 * time.Minute
	}
	if c.Pipeline.OutlierAction == "" {
		c.Pipeline.OutlierAction = "clip"
	}
	if c.Pipeline.IForestTrees <= 0 {
		c.Pipeline.IForestTrees = 100
	}
	if c.Pipeline.IForestMinRows <= 0 {
		c.Pipeline.IForestMinRows = 16
	}
	if c.Pipeline.Seed == 0 {
		c.Pipeline.Seed = 42
	}
	if c.Pipeline.KNNNeighbors <= 0 {
		c.Pipeline.KNNNeighbors = 5
	}
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		errs = append(errs, fmt.Errorf("server.port %q is not a number", c.Server.Port))
	}
	switch c.Storage.Type {
	case "local":
	case "gcs":
		if c.Storage.Bucket == "" {
			errs = append(errs, errors.New("storage.bucket is required for gcs storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.type %q is not one of local, gcs", c.Storage.Type))
	}
	switch c.Pipeline.OutlierAction {
	case "clip", "null", "flag":
	default:
		errs = append(errs, fmt.Errorf("pipeline.outlier_action %q is not one of clip, null, flag", c.Pipeline.OutlierAction))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(EnvPrefix + key); ok && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int, errs *[]error) int {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
		return defaultValue
	}
	return n
}

func getEnvAsDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
		return defaultValue
	}
	return d
}
