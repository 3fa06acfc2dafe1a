// Package config loads and validates runtime settings from the environment.
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// LogConfig controls logger behavior.
type LogConfig struct {
	Level  string `validate:"oneof=debug info warn error"`
	Format string `validate:"oneof=auto json console"`
}

// ScrapingConfig controls the scraping orchestrator.
type ScrapingConfig struct {
	MaxWorkers   int `validate:"min=1,max=32"`
	MaxQueueSize int `validate:"min=1"`
}

// ClassificationConfig controls the classification orchestrator.
type ClassificationConfig struct {
	MaxWorkers   int `validate:"min=1,max=32"`
	MaxQueueSize int `validate:"min=1"`
}

// AIConfig controls the LLM classifier collaborator.
type AIConfig struct {
	APIKey         string
	Model          string        `validate:"required"`
	MaxTokens      int           `validate:"min=1"`
	Temperature    float64       `validate:"min=0,max=2"`
	MaxConcurrent  int           `validate:"min=1"`
	MinInterval    time.Duration `validate:"min=0"`
	MaxPromptChars int           `validate:"min=1000"`
}

// AlertConfig holds per-severity suppression windows.
type AlertConfig struct {
	ThrottleCritical time.Duration `validate:"min=0"`
	ThrottleHigh     time.Duration `validate:"min=0"`
	ThrottleMedium   time.Duration `validate:"min=0"`
	ThrottleLow      time.Duration `validate:"min=0"`
}

// PipelineConfig holds the classifier vote weights. The five weights must
// sum to 1.0; pattern_match is carried but reserved.
type PipelineConfig struct {
	WeightAI         float64 `validate:"min=0,max=1"`
	WeightRule       float64 `validate:"min=0,max=1"`
	WeightSemantic   float64 `validate:"min=0,max=1"`
	WeightBehavioral float64 `validate:"min=0,max=1"`
	WeightPattern    float64 `validate:"min=0,max=1"`
}

// NotificationConfig holds default fan-out targets.
type NotificationConfig struct {
	DefaultChannels []string
	DefaultUsers    []string
}

// DatabaseConfig points at the sqlite store.
type DatabaseConfig struct {
	Path string `validate:"required"`
}

// SchedulerConfig controls the scheduling orchestrator.
type SchedulerConfig struct {
	DefaultCheckInterval time.Duration `validate:"min=1s"`
	HealthCheckInterval  time.Duration `validate:"min=1s"`
}

// Settings is the full configuration surface.
type Settings struct {
	Log            LogConfig
	Scraping       ScrapingConfig
	Classification ClassificationConfig
	AI             AIConfig
	Alert          AlertConfig
	Pipeline       PipelineConfig
	Notification   NotificationConfig
	Database       DatabaseConfig
	Scheduler      SchedulerConfig
	MetricsPort    int `validate:"min=0,max=65535"`
}

// Defaults returns settings populated with the documented defaults.
func Defaults() *Settings {
	return &Settings{
		Log: LogConfig{Level: "info", Format: "auto"},
		Scraping: ScrapingConfig{
			MaxWorkers:   2,
			MaxQueueSize: 500,
		},
		Classification: ClassificationConfig{
			MaxWorkers:   2,
			MaxQueueSize: 500,
		},
		AI: AIConfig{
			Model:          "gpt-4o-mini",
			MaxTokens:      1024,
			Temperature:    0.1,
			MaxConcurrent:  5,
			MinInterval:    200 * time.Millisecond,
			MaxPromptChars: 50000,
		},
		Alert: AlertConfig{
			ThrottleCritical: 5 * time.Minute,
			ThrottleHigh:     15 * time.Minute,
			ThrottleMedium:   30 * time.Minute,
			ThrottleLow:      2 * time.Hour,
		},
		Pipeline: PipelineConfig{
			WeightAI:         0.20,
			WeightRule:       0.30,
			WeightSemantic:   0.20,
			WeightBehavioral: 0.15,
			WeightPattern:    0.15,
		},
		Notification: NotificationConfig{},
		Database:     DatabaseConfig{Path: "defacewatch.db"},
		Scheduler: SchedulerConfig{
			DefaultCheckInterval: 15 * time.Minute,
			HealthCheckInterval:  5 * time.Minute,
		},
		MetricsPort: 9091,
	}
}

// Load reads settings from the environment on top of defaults.
func Load() (*Settings, error) {
	s := Defaults()

	s.Log.Level = envString("DEFACEWATCH_LOG_LEVEL", s.Log.Level)
	s.Log.Format = envString("DEFACEWATCH_LOG_FORMAT", s.Log.Format)

	s.Scraping.MaxWorkers = envInt("SCRAPING_MAX_WORKERS", s.Scraping.MaxWorkers)
	s.Scraping.MaxQueueSize = envInt("SCRAPING_MAX_QUEUE_SIZE", s.Scraping.MaxQueueSize)
	s.Classification.MaxWorkers = envInt("CLASSIFICATION_MAX_WORKERS", s.Classification.MaxWorkers)
	s.Classification.MaxQueueSize = envInt("CLASSIFICATION_MAX_QUEUE_SIZE", s.Classification.MaxQueueSize)

	s.AI.APIKey = envString("AI_API_KEY", s.AI.APIKey)
	s.AI.Model = envString("AI_MODEL", s.AI.Model)
	s.AI.MaxTokens = envInt("AI_MAX_TOKENS", s.AI.MaxTokens)
	s.AI.Temperature = envFloat("AI_TEMPERATURE", s.AI.Temperature)
	s.AI.MaxConcurrent = envInt("AI_MAX_CONCURRENT", s.AI.MaxConcurrent)
	s.AI.MinInterval = time.Duration(envInt("AI_MIN_INTERVAL_MS", int(s.AI.MinInterval/time.Millisecond))) * time.Millisecond
	s.AI.MaxPromptChars = envInt("AI_MAX_PROMPT_CHARS", s.AI.MaxPromptChars)

	s.Alert.ThrottleCritical = envDuration("ALERT_THROTTLE_CRITICAL", s.Alert.ThrottleCritical)
	s.Alert.ThrottleHigh = envDuration("ALERT_THROTTLE_HIGH", s.Alert.ThrottleHigh)
	s.Alert.ThrottleMedium = envDuration("ALERT_THROTTLE_MEDIUM", s.Alert.ThrottleMedium)
	s.Alert.ThrottleLow = envDuration("ALERT_THROTTLE_LOW", s.Alert.ThrottleLow)

	s.Pipeline.WeightAI = envFloat("PIPELINE_WEIGHT_AI", s.Pipeline.WeightAI)
	s.Pipeline.WeightRule = envFloat("PIPELINE_WEIGHT_RULE", s.Pipeline.WeightRule)
	s.Pipeline.WeightSemantic = envFloat("PIPELINE_WEIGHT_SEMANTIC", s.Pipeline.WeightSemantic)
	s.Pipeline.WeightBehavioral = envFloat("PIPELINE_WEIGHT_BEHAVIORAL", s.Pipeline.WeightBehavioral)
	s.Pipeline.WeightPattern = envFloat("PIPELINE_WEIGHT_PATTERN", s.Pipeline.WeightPattern)

	s.Notification.DefaultChannels = envList("NOTIFICATION_DEFAULT_CHANNELS", s.Notification.DefaultChannels)
	s.Notification.DefaultUsers = envList("NOTIFICATION_DEFAULT_USERS", s.Notification.DefaultUsers)

	s.Database.Path = envString("DATABASE_PATH", s.Database.Path)

	s.Scheduler.DefaultCheckInterval = envDuration("SCHEDULER_DEFAULT_CHECK_INTERVAL", s.Scheduler.DefaultCheckInterval)
	s.Scheduler.HealthCheckInterval = envDuration("SCHEDULER_HEALTH_CHECK_INTERVAL", s.Scheduler.HealthCheckInterval)
	s.MetricsPort = envInt("METRICS_PORT", s.MetricsPort)

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks struct tags plus the cross-field weight invariant.
func (s *Settings) Validate() error {
	v := validator.New()
	if err := v.Struct(s); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	sum := s.Pipeline.WeightAI + s.Pipeline.WeightRule + s.Pipeline.WeightSemantic +
		s.Pipeline.WeightBehavioral + s.Pipeline.WeightPattern
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("pipeline weights must sum to 1.0, got %.4f", sum)
	}
	return nil
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return fallback
}
