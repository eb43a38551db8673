package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
	errs "subarchive/pkg/errors"
)

// DateLayout is the calendar-day layout accepted for range bounds
const DateLayout = "2006-01-02"

// Config holds all configuration options for an archive run
type Config struct {
	// What to collect
	Source SourceConfig `yaml:"source" json:"source"`

	// Upstream API access
	Reddit RedditConfig `yaml:"reddit" json:"reddit"`

	// Rate limiting and retry
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Comment tree handling
	Comments CommentsConfig `yaml:"comments" json:"comments"`

	// Snapshot, manifest and metrics locations
	Output OutputConfig `yaml:"output" json:"output"`

	// Resume support
	Checkpoint CheckpointConfig `yaml:"checkpoint" json:"checkpoint"`

	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// SourceConfig selects the subreddit and the date range to walk
type SourceConfig struct {
	Subreddit string `yaml:"subreddit" json:"subreddit"`
	// Start and End accept either a date (2006-01-02, UTC midnight) or an RFC3339 instant
	Start string `yaml:"start" json:"start"`
	End   string `yaml:"end" json:"end"`
}

// RedditConfig holds upstream client settings
type RedditConfig struct {
	BaseURL     string        `yaml:"base_url" json:"base_url"`
	UserAgent   string        `yaml:"user_agent" json:"user_agent"`
	AccessToken string        `yaml:"access_token" json:"-"`
	PageSize    int           `yaml:"page_size" json:"page_size"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
}

// RateLimitConfig paces upstream calls and bounds retries
type RateLimitConfig struct {
	Policy            string        `yaml:"policy" json:"policy"`
	MinInterval       time.Duration `yaml:"min_interval" json:"min_interval"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	MaxRetries        int           `yaml:"max_retries" json:"max_retries"`
	MaxBackoff        time.Duration `yaml:"max_backoff" json:"max_backoff"`
}

// CommentsConfig controls how "load more" placeholders are treated
type CommentsConfig struct {
	Policy      string `yaml:"policy" json:"policy"`
	MaxResolves int    `yaml:"max_resolves" json:"max_resolves"`
}

// OutputConfig holds output locations
type OutputConfig struct {
	Directory    string `yaml:"directory" json:"directory"`
	Manifest     string `yaml:"manifest" json:"manifest"`
	MetricsFile  string `yaml:"metrics_file" json:"metrics_file"`
	WriteWorkers int    `yaml:"write_workers" json:"write_workers"`
}

// CheckpointConfig holds resume settings
type CheckpointConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Directory string `yaml:"directory" json:"directory"`
}

// LoggingConfig is consumed by logger.New
type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	File     string `yaml:"file" json:"file"`
	FileOnly bool   `yaml:"file_only" json:"file_only"`
}

// DefaultConfig returns the built-in settings, overridden by file, env and flags
func DefaultConfig() *Config {
	return &Config{
		Reddit: RedditConfig{
			BaseURL:   "https://oauth.reddit.com",
			UserAgent: "subarchive/1.0",
			PageSize:  100,
			Timeout:   30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Policy:            "fixed",
			MinInterval:       600 * time.Millisecond,
			RequestsPerMinute: 100,
			MaxRetries:        3,
			MaxBackoff:        time.Minute,
		},
		Comments: CommentsConfig{
			Policy:      "drop",
			MaxResolves: 50,
		},
		Output: OutputConfig{
			Directory:    "./data",
			WriteWorkers: 0,
		},
		Checkpoint: CheckpointConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from SUBARCHIVE_* environment variables
func (c *Config) LoadFromEnv() error {
	var problems []error

	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				problems = append(problems, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				problems = append(problems, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	setString("SUBARCHIVE_SUBREDDIT", &c.Source.Subreddit)
	setString("SUBARCHIVE_START", &c.Source.Start)
	setString("SUBARCHIVE_END", &c.Source.End)

	setString("SUBARCHIVE_BASE_URL", &c.Reddit.BaseURL)
	setString("SUBARCHIVE_USER_AGENT", &c.Reddit.UserAgent)
	setString("SUBARCHIVE_ACCESS_TOKEN", &c.Reddit.AccessToken)
	setInt("SUBARCHIVE_PAGE_SIZE", &c.Reddit.PageSize)
	setDuration("SUBARCHIVE_TIMEOUT", &c.Reddit.Timeout)

	setString("SUBARCHIVE_RATE_POLICY", &c.RateLimit.Policy)
	setDuration("SUBARCHIVE_MIN_INTERVAL", &c.RateLimit.MinInterval)
	setInt("SUBARCHIVE_REQUESTS_PER_MINUTE", &c.RateLimit.RequestsPerMinute)
	setInt("SUBARCHIVE_MAX_RETRIES", &c.RateLimit.MaxRetries)

	setString("SUBARCHIVE_COMMENT_POLICY", &c.Comments.Policy)

	setString("SUBARCHIVE_OUTPUT_DIR", &c.Output.Directory)
	setString("SUBARCHIVE_MANIFEST", &c.Output.Manifest)
	setString("SUBARCHIVE_METRICS_FILE", &c.Output.MetricsFile)
	setInt("SUBARCHIVE_WRITE_WORKERS", &c.Output.WriteWorkers)

	if v := os.Getenv("SUBARCHIVE_CHECKPOINT"); v != "" {
		c.Checkpoint.Enabled = strings.ToLower(v) == "true"
	}

	setString("SUBARCHIVE_LOG_LEVEL", &c.Logging.Level)
	setString("SUBARCHIVE_LOG_FILE", &c.Logging.File)

	if len(problems) > 0 {
		return errors.Join(problems...)
	}
	return nil
}

// LoadFromFile overlays a YAML file. An empty path searches the usual locations.
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile returns the first existing config file, or ""
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".subarchive.yaml",
		".subarchive.yml",
		filepath.Join(home, ".config", "subarchive", "config.yaml"),
		filepath.Join(home, ".config", "subarchive", "config.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Range parses the configured start and end into UTC instants
func (c *Config) Range() (time.Time, time.Time, error) {
	start, err := ParseInstant(c.Source.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("start: %w", err)
	}
	end, err := ParseInstant(c.Source.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("end: %w", err)
	}
	return start, end, nil
}

// ParseInstant accepts a calendar date or an RFC3339 timestamp
func ParseInstant(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("empty value")
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected %s or RFC3339, got %q", DateLayout, s)
	}
	return t.UTC(), nil
}

// Validate reports every problem at once as a configuration error
func (c *Config) Validate() error {
	var problems []error

	if strings.TrimSpace(c.Source.Subreddit) == "" {
		problems = append(problems, errors.New("subreddit is required"))
	}
	start, end, err := c.Range()
	if err != nil {
		problems = append(problems, err)
	} else if !start.Before(end) {
		problems = append(problems, fmt.Errorf("range start %s must be before end %s",
			start.Format(time.RFC3339), end.Format(time.RFC3339)))
	}

	if c.Reddit.BaseURL == "" {
		problems = append(problems, errors.New("base URL is required"))
	}
	if c.Reddit.PageSize <= 0 || c.Reddit.PageSize > 100 {
		problems = append(problems, errors.New("page size must be between 1 and 100"))
	}
	if c.Reddit.Timeout <= 0 {
		problems = append(problems, errors.New("timeout must be positive"))
	}

	switch strings.ToLower(c.RateLimit.Policy) {
	case "fixed", "sliding", "adaptive":
	default:
		problems = append(problems, fmt.Errorf("unknown rate limit policy %q", c.RateLimit.Policy))
	}
	if c.RateLimit.MinInterval <= 0 {
		problems = append(problems, errors.New("minimum call interval must be positive"))
	}
	if c.RateLimit.RequestsPerMinute <= 0 {
		problems = append(problems, errors.New("requests per minute must be positive"))
	}
	if c.RateLimit.MaxRetries < 0 {
		problems = append(problems, errors.New("max retries cannot be negative"))
	}

	switch strings.ToLower(c.Comments.Policy) {
	case "drop", "resolve-all":
	default:
		problems = append(problems, fmt.Errorf("unknown comment placeholder policy %q", c.Comments.Policy))
	}
	if c.Comments.MaxResolves < 0 {
		problems = append(problems, errors.New("max resolves cannot be negative"))
	}

	if c.Output.Directory == "" {
		problems = append(problems, errors.New("output directory is required"))
	}
	if c.Output.WriteWorkers < 0 || c.Output.WriteWorkers > 16 {
		problems = append(problems, errors.New("write workers must be between 0 and 16"))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error", "disabled":
	default:
		problems = append(problems, fmt.Errorf("invalid log level %q", c.Logging.Level))
	}

	if len(problems) > 0 {
		return errs.Wrap(errs.ErrorTypeConfiguration, errors.Join(problems...), "invalid configuration")
	}

	return nil
}

// CheckpointDir returns the checkpoint directory, defaulting to a hidden folder under the output directory
func (c *Config) CheckpointDir() string {
	if c.Checkpoint.Directory != "" {
		return c.Checkpoint.Directory
	}
	return filepath.Join(c.Output.Directory, ".checkpoints")
}

// ManifestPath returns the ledger database path, defaulting to manifest.db under the output directory
func (c *Config) ManifestPath() string {
	if c.Output.Manifest != "" {
		return c.Output.Manifest
	}
	return filepath.Join(c.Output.Directory, "manifest.db")
}

// Save writes the configuration as YAML with owner-only permissions
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Only non-zero values override.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	str := func(key string, dst *string) {
		if v, ok := flags[key].(string); ok && v != "" {
			*dst = v
		}
	}

	str("subreddit", &c.Source.Subreddit)
	str("start", &c.Source.Start)
	str("end", &c.Source.End)
	str("base-url", &c.Reddit.BaseURL)
	str("rate-policy", &c.RateLimit.Policy)
	str("comment-policy", &c.Comments.Policy)
	str("output", &c.Output.Directory)
	str("manifest", &c.Output.Manifest)
	str("metrics-file", &c.Output.MetricsFile)
	str("log-level", &c.Logging.Level)
	str("log-file", &c.Logging.File)

	if v, ok := flags["min-interval"].(time.Duration); ok && v > 0 {
		c.RateLimit.MinInterval = v
	}
	if v, ok := flags["max-retries"].(int); ok && v > 0 {
		c.RateLimit.MaxRetries = v
	}
	if v, ok := flags["write-workers"].(int); ok && v > 0 {
		c.Output.WriteWorkers = v
	}
	if v, ok := flags["no-checkpoint"].(bool); ok && v {
		c.Checkpoint.Enabled = false
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: command line flags > environment variables > .env file > config file > defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".subarchive.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeConfiguration, err, "failed to load config file")
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeConfiguration, err, "failed to load environment variables")
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}
