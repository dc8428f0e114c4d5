package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	Env string `yaml:"env"` // development, staging, production

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Roots
	InputDir    string `yaml:"input_dir"`    // policies/, universe/, bars/, predictions/
	PublishRoot string `yaml:"publish_root"` // <date>/{six bundle files}
	LedgerRoot  string `yaml:"ledger_root"`  // manifests, diagnostics, outcomes
	StateRoot   string `yaml:"state_root"`   // last_good.json, router, baseline, feature store
	RepoRoot    string `yaml:"repo_root"`    // secrecy scan root

	// Mode contract
	// LOCAL 모드에서만 설정 가능, CI 모드에서는 금지
	ModelWeightsDir string `yaml:"-"`
	CI              bool   `yaml:"-"`

	Timezone string `yaml:"timezone"`
	Workers  int    `yaml:"workers"`

	// Monitoring
	MetricsTextfile string `yaml:"metrics_textfile"`

	// Scheduler
	Schedule string `yaml:"schedule"`
}

// ModelWeightsEnv is the LOCAL-mode credential variable
const ModelWeightsEnv = "FORECAST_MODEL_WEIGHTS_DIR"

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Env: getEnv("ENV", "development"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		InputDir:    getEnv("FORECAST_INPUT_DIR", "."),
		PublishRoot: getEnv("FORECAST_PUBLISH_ROOT", filepath.Join("public", "data", "forecast", "v6")),
		LedgerRoot:  getEnv("FORECAST_LEDGER_ROOT", filepath.Join("ledger", "forecast", "v6")),
		StateRoot:   getEnv("FORECAST_STATE_ROOT", filepath.Join("state", "forecast", "v6")),
		RepoRoot:    getEnv("FORECAST_REPO_ROOT", ""),

		ModelWeightsDir: os.Getenv(ModelWeightsEnv),
		CI:              getEnvAsBool("CI", false),

		Timezone: getEnv("FORECAST_TIMEZONE", "America/New_York"),
		Workers:  getEnvAsInt("FORECAST_WORKERS", 8),

		MetricsTextfile: getEnv("FORECAST_METRICS_TEXTFILE", ""),
		Schedule:        getEnv("FORECAST_SCHEDULE", "0 30 18 * * 1-5"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadWithOverlay loads the environment config, then applies a YAML overlay file.
// Unknown keys in the overlay are rejected.
func LoadWithOverlay(path string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config overlay %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // 알 수 없는 필드 발견 시 에러 반환
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode config overlay %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// ScanRoot returns the secrecy scan root (defaults to the input dir)
func (c *Config) ScanRoot() string {
	if c.RepoRoot != "" {
		return c.RepoRoot
	}
	return c.InputDir
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("FORECAST_WORKERS must be > 0")
	}
	if c.InputDir == "" || c.PublishRoot == "" || c.LedgerRoot == "" || c.StateRoot == "" {
		return fmt.Errorf("input, publish, ledger and state roots are required")
	}
	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{".env"}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
