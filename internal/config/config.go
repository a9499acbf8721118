// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/cefr-dataset/internal/storage/postgres"
)

// Storage backends for the cache and progress objects.
const (
	BackendLocal  = "local"
	BackendMemory = "memory"
	BackendGCS    = "gcs"
)

// Default network word lists.
var DefaultURLs = []string{
	"https://norvig.com/ngrams/word.list",
	"https://raw.githubusercontent.com/dwyl/english-words/master/words_alpha.txt",
}

// Config captures all knobs loaded via Viper.
type Config struct {
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Output    OutputConfig    `mapstructure:"output"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Analyzer  AnalyzerConfig  `mapstructure:"analyzer"`
	Storage   StorageConfig   `mapstructure:"storage"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// PipelineConfig governs batching and parallelism.
type PipelineConfig struct {
	BatchSize int    `mapstructure:"batch_size"`
	Workers   int    `mapstructure:"workers"`
	MaxItems  int    `mapstructure:"max_items"`
	JobName   string `mapstructure:"job_name"`
}

// OutputConfig locates the CSV dataset.
type OutputConfig struct {
	Path string `mapstructure:"path"`
}

// SourcesConfig lists the word providers.
type SourcesConfig struct {
	Words          []string `mapstructure:"words"`
	Files          []string `mapstructure:"files"`
	URLs           []string `mapstructure:"urls"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
	UserAgent      string   `mapstructure:"user_agent"`
	MaxAttempts    int      `mapstructure:"max_attempts"`
	RatePerSecond  float64  `mapstructure:"rate_per_second"`
}

// AnalyzerConfig points at the lexicon data files.
type AnalyzerConfig struct {
	LevelsPath     string `mapstructure:"levels_path"`
	DictionaryPath string `mapstructure:"dictionary_path"`
}

// StorageConfig selects where cache and progress objects live when no
// database is configured.
type StorageConfig struct {
	Backend        string `mapstructure:"backend"`
	BaseDir        string `mapstructure:"base_dir"`
	GCSBucket      string `mapstructure:"gcs_bucket"`
	Prefix         string `mapstructure:"prefix"`
	CacheObject    string `mapstructure:"cache_object"`
	ProgressObject string `mapstructure:"progress_object"`
}

// DBConfig controls the optional Postgres cache and progress tables.
type DBConfig struct {
	DSN           string `mapstructure:"dsn"`
	MaxConns      int32  `mapstructure:"max_conns"`
	CacheTable    string `mapstructure:"cache_table"`
	ProgressTable string `mapstructure:"progress_table"`
}

// PubSubConfig holds metadata for checkpoint notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// MetricsConfig enables the status server when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// TelemetryConfig controls tracing. Spans go to Cloud Trace when
// TraceProjectID is set.
type TelemetryConfig struct {
	ServiceName    string `mapstructure:"service_name"`
	TraceProjectID string `mapstructure:"trace_project_id"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CEFR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Pipeline.Workers = clampWorkers(cfg.Pipeline.Workers)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("pipeline.batch_size", 1000)
	v.SetDefault("pipeline.workers", runtime.NumCPU())
	v.SetDefault("pipeline.max_items", 2000000)
	v.SetDefault("pipeline.job_name", "cefr")
	v.SetDefault("output.path", "cefr_mega_dataset.csv")
	v.SetDefault("sources.words", []string{})
	v.SetDefault("sources.files", []string{})
	v.SetDefault("sources.urls", DefaultURLs)
	v.SetDefault("sources.timeout_seconds", 15)
	v.SetDefault("sources.user_agent", "cefr-dataset/1.0")
	v.SetDefault("sources.max_attempts", 3)
	v.SetDefault("sources.rate_per_second", 2.0)
	v.SetDefault("analyzer.levels_path", "data/cefr_levels.csv")
	v.SetDefault("analyzer.dictionary_path", "")
	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("storage.base_dir", "cefr_cache")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "cefr")
	v.SetDefault("storage.cache_object", "cache.gob")
	v.SetDefault("storage.progress_object", "progress.json")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.cache_table", "cefr_cache")
	v.SetDefault("db.progress_table", "cefr_progress")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("telemetry.service_name", "cefrgen")
	v.SetDefault("telemetry.trace_project_id", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// clampWorkers keeps the pool within [1, 4*NumCPU]. Non-positive values mean
// one worker per CPU.
func clampWorkers(n int) int {
	limit := runtime.NumCPU() * 4
	if n <= 0 {
		return runtime.NumCPU()
	}
	return min(n, limit)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("pipeline.batch_size must be > 0")
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be > 0")
	}
	if c.Pipeline.MaxItems <= 0 {
		return fmt.Errorf("pipeline.max_items must be > 0")
	}
	if c.Output.Path == "" {
		return fmt.Errorf("output.path must be set")
	}
	if c.Sources.TimeoutSeconds <= 0 {
		return fmt.Errorf("sources.timeout_seconds must be > 0")
	}
	if c.Analyzer.LevelsPath == "" {
		return fmt.Errorf("analyzer.levels_path must be set")
	}
	switch c.Storage.Backend {
	case BackendLocal:
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir must be set for the local backend")
		}
	case BackendMemory:
	case BackendGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	if c.Storage.CacheObject == "" || c.Storage.ProgressObject == "" {
		return fmt.Errorf("storage.cache_object and storage.progress_object must be set")
	}
	if c.DB.DSN != "" {
		if c.Pipeline.JobName == "" {
			return fmt.Errorf("pipeline.job_name must be set when db.dsn is set")
		}
		for _, table := range []string{c.DB.CacheTable, c.DB.ProgressTable} {
			if err := postgres.ValidateTableName(table); err != nil {
				return fmt.Errorf("db tables: %w", err)
			}
		}
	}
	if c.PubSub.ProjectID != "" && c.PubSub.TopicName == "" {
		return fmt.Errorf("pubsub.topic_name must be set when pubsub.project_id is set")
	}
	return nil
}

// SourceTimeout converts the provider timeout into a duration.
func (c Config) SourceTimeout() time.Duration {
	return time.Duration(c.Sources.TimeoutSeconds) * time.Second
}
