package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment variable, e.g. REPGAP_SERVER_PORT.
const EnvPrefix = "REPGAP"

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Analysis  AnalysisConfig  `yaml:"analysis" envconfig:"ANALYSIS"`
	Paths     PathsConfig     `yaml:"paths" envconfig:"PATHS"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"30s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES" default:"1048576"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT" default:"60s"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS" default:"http://localhost:8080"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS" default:"true"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"20"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"40"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format      string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output      string `yaml:"output" envconfig:"OUTPUT" default:"console"`
	FilePath    string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/repgap.log"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT" default:"false"`
}

// AnalysisConfig controls the gap analysis engine
type AnalysisConfig struct {
	// CatalogFile is a YAML demographic catalog. Empty uses the embedded default.
	CatalogFile string `yaml:"catalog_file" envconfig:"CATALOG_FILE"`
	// Band is the half-width of the on-target band in percentage points.
	Band float64 `yaml:"band" envconfig:"BAND" default:"1.0"`
	// DefaultTarget applies to fields with no configured target.
	DefaultTarget         float64 `yaml:"default_target" envconfig:"DEFAULT_TARGET" default:"10.0"`
	ExcludeOverAttributed bool    `yaml:"exclude_over_attributed" envconfig:"EXCLUDE_OVER_ATTRIBUTED" default:"true"`
	MaxUploadBytes        int64   `yaml:"max_upload_bytes" envconfig:"MAX_UPLOAD_BYTES" default:"20971520"`
	LabelMaxLength        int     `yaml:"label_max_length" envconfig:"LABEL_MAX_LENGTH" default:"0"`
	SparseThreshold       float64 `yaml:"sparse_threshold" envconfig:"SPARSE_THRESHOLD" default:"1.0"`
	SmallModuleThreshold  int64   `yaml:"small_module_threshold" envconfig:"SMALL_MODULE_THRESHOLD" default:"10"`
}

// PathsConfig contains file system paths configuration
type PathsConfig struct {
	ExecutableDir string `yaml:"executable_dir" envconfig:"EXECUTABLE_DIR"`
	LogsDir       string `yaml:"logs_dir" envconfig:"LOGS_DIR" default:"logs"`
	ExportsDir    string `yaml:"exports_dir" envconfig:"EXPORTS_DIR" default:"exports"`
}

// TelemetryConfig contains OpenTelemetry configuration
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name" envconfig:"SERVICE_NAME" default:"repgap"`
	MetricsEnabled bool   `yaml:"metrics_enabled" envconfig:"METRICS_ENABLED" default:"true"`
	TracingEnabled bool   `yaml:"tracing_enabled" envconfig:"TRACING_ENABLED" default:"false"`
}

// Load loads configuration from environment variables and config file
func Load() (*Config, error) {
	return LoadFile(getConfigFilePath())
}

// LoadFile loads configuration from the environment merged over the YAML
// file at path. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	var cfg Config

	// Load from environment variables first
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if path != "" {
		fileConfig, keys, err := loadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileConfig, cfg, keys, envSet)
	}

	if err := cfg.resolvePaths(); err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from YAML file. It also returns the set
// of keys present in the file, named the way envconfig names them.
func loadFromFile(filePath string) (*Config, map[string]bool, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, nil, err
	}

	var raw map[interface{}]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, nil, err
	}
	keys := make(map[string]bool)
	flattenKeys("", raw, keys)

	return &cfg, keys, nil
}

func flattenKeys(prefix string, m map[interface{}]interface{}, out map[string]bool) {
	for k, v := range m {
		name := strings.ToUpper(fmt.Sprint(k))
		if prefix != "" {
			name = prefix + "_" + name
		}
		if nested, ok := v.(map[interface{}]interface{}); ok {
			flattenKeys(name, nested, out)
			continue
		}
		out[name] = true
	}
}

// envSet reports whether an environment variable is present.
func envSet(name string) bool {
	_, ok := os.LookupEnv(EnvPrefix + "_" + name)
	return ok
}

// mergeConfigs merges file config with env config. Env config already holds
// defaults, so a file value wins unless the variable was set explicitly.
func mergeConfigs(f, e Config, inFile map[string]bool, isSet func(string) bool) Config {
	pick := func(name string, apply func()) {
		if inFile[name] && !isSet(name) {
			apply()
		}
	}

	pick("SERVER_PORT", func() { e.Server.Port = f.Server.Port })
	pick("SERVER_READ_TIMEOUT", func() { e.Server.ReadTimeout = f.Server.ReadTimeout })
	pick("SERVER_WRITE_TIMEOUT", func() { e.Server.WriteTimeout = f.Server.WriteTimeout })
	pick("SERVER_IDLE_TIMEOUT", func() { e.Server.IdleTimeout = f.Server.IdleTimeout })
	pick("SERVER_MAX_HEADER_BYTES", func() { e.Server.MaxHeaderBytes = f.Server.MaxHeaderBytes })
	pick("SERVER_SHUTDOWN_TIMEOUT", func() { e.Server.ShutdownTimeout = f.Server.ShutdownTimeout })
	pick("SERVER_REQUEST_TIMEOUT", func() { e.Server.RequestTimeout = f.Server.RequestTimeout })

	pick("SECURITY_ALLOWED_ORIGINS", func() { e.Security.AllowedOrigins = f.Security.AllowedOrigins })
	pick("SECURITY_ENABLE_CORS", func() { e.Security.EnableCORS = f.Security.EnableCORS })
	pick("SECURITY_RATE_LIMIT_ENABLED", func() { e.Security.RateLimit.Enabled = f.Security.RateLimit.Enabled })
	pick("SECURITY_RATE_LIMIT_RPS", func() { e.Security.RateLimit.RPS = f.Security.RateLimit.RPS })
	pick("SECURITY_RATE_LIMIT_BURST", func() { e.Security.RateLimit.Burst = f.Security.RateLimit.Burst })

	pick("LOGGING_LEVEL", func() { e.Logging.Level = f.Logging.Level })
	pick("LOGGING_FORMAT", func() { e.Logging.Format = f.Logging.Format })
	pick("LOGGING_OUTPUT", func() { e.Logging.Output = f.Logging.Output })
	pick("LOGGING_FILE_PATH", func() { e.Logging.FilePath = f.Logging.FilePath })
	pick("LOGGING_DEVELOPMENT", func() { e.Logging.Development = f.Logging.Development })

	pick("ANALYSIS_CATALOG_FILE", func() { e.Analysis.CatalogFile = f.Analysis.CatalogFile })
	pick("ANALYSIS_BAND", func() { e.Analysis.Band = f.Analysis.Band })
	pick("ANALYSIS_DEFAULT_TARGET", func() { e.Analysis.DefaultTarget = f.Analysis.DefaultTarget })
	pick("ANALYSIS_EXCLUDE_OVER_ATTRIBUTED", func() { e.Analysis.ExcludeOverAttributed = f.Analysis.ExcludeOverAttributed })
	pick("ANALYSIS_MAX_UPLOAD_BYTES", func() { e.Analysis.MaxUploadBytes = f.Analysis.MaxUploadBytes })
	pick("ANALYSIS_LABEL_MAX_LENGTH", func() { e.Analysis.LabelMaxLength = f.Analysis.LabelMaxLength })
	pick("ANALYSIS_SPARSE_THRESHOLD", func() { e.Analysis.SparseThreshold = f.Analysis.SparseThreshold })
	pick("ANALYSIS_SMALL_MODULE_THRESHOLD", func() { e.Analysis.SmallModuleThreshold = f.Analysis.SmallModuleThreshold })

	pick("PATHS_EXECUTABLE_DIR", func() { e.Paths.ExecutableDir = f.Paths.ExecutableDir })
	pick("PATHS_LOGS_DIR", func() { e.Paths.LogsDir = f.Paths.LogsDir })
	pick("PATHS_EXPORTS_DIR", func() { e.Paths.ExportsDir = f.Paths.ExportsDir })

	pick("TELEMETRY_SERVICE_NAME", func() { e.Telemetry.ServiceName = f.Telemetry.ServiceName })
	pick("TELEMETRY_METRICS_ENABLED", func() { e.Telemetry.MetricsEnabled = f.Telemetry.MetricsEnabled })
	pick("TELEMETRY_TRACING_ENABLED", func() { e.Telemetry.TracingEnabled = f.Telemetry.TracingEnabled })

	return e
}

// resolvePaths anchors relative directories at the executable directory
func (c *Config) resolvePaths() error {
	if c.Paths.ExecutableDir == "" {
		dir, err := ExecutableDir()
		if err != nil {
			return err
		}
		c.Paths.ExecutableDir = dir
	}
	return nil
}

// GetLogsDir returns the resolved logs directory path
func (c *Config) GetLogsDir() string {
	return c.resolve(c.Paths.LogsDir)
}

// GetExportsDir returns the resolved exports directory path
func (c *Config) GetExportsDir() string {
	return c.resolve(c.Paths.ExportsDir)
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) || c.Paths.ExecutableDir == "" {
		return p
	}
	return filepath.Join(c.Paths.ExecutableDir, p)
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if len(c.Security.AllowedOrigins) == 0 {
		return fmt.Errorf("at least one allowed origin must be specified")
	}

	if c.Analysis.Band < 0 {
		return fmt.Errorf("analysis band must not be negative: %v", c.Analysis.Band)
	}

	if c.Analysis.DefaultTarget < 0 || c.Analysis.DefaultTarget > 100 {
		return fmt.Errorf("analysis default target must be between 0 and 100: %v", c.Analysis.DefaultTarget)
	}

	if c.Analysis.MaxUploadBytes <= 0 {
		return fmt.Errorf("analysis max upload bytes must be positive")
	}

	if c.Analysis.LabelMaxLength < 0 {
		return fmt.Errorf("analysis label max length must not be negative")
	}

	// Logs are always JSON
	if c.Logging.Format != "json" {
		c.Logging.Format = "json"
	}

	switch c.Logging.Output {
	case "console", "file", "both":
	default:
		c.Logging.Output = "console"
	}

	if c.Logging.FilePath == "" {
		c.Logging.FilePath = filepath.Join(c.GetLogsDir(), "repgap.log")
	}

	return nil
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	// Check for config file in common locations
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
		"../configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return "" // No config file found, use env vars only
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20, // 1MB
			ShutdownTimeout: 30 * time.Second,
			RequestTimeout:  60 * time.Second,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:8080"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     20,
				Burst:   40,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/repgap.log",
		},
		Analysis: AnalysisConfig{
			Band:                  1.0,
			DefaultTarget:         10.0,
			ExcludeOverAttributed: true,
			MaxUploadBytes:        DefaultMaxUploadBytes,
			SparseThreshold:       1.0,
			SmallModuleThreshold:  10,
		},
		Paths: PathsConfig{
			LogsDir:    "logs",
			ExportsDir: "exports",
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "repgap",
			MetricsEnabled: true,
		},
	}
}
