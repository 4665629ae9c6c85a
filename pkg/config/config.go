package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Duplicate handling policies for issue references the tracker returns twice
const (
	DuplicatesRedownload = "redownload"
	DuplicatesSkip       = "skip"
)

// Config holds all configuration options for a Jira backup run
type Config struct {
	// Tracker connection
	Jira JiraConfig `yaml:"jira" json:"jira"`

	// What to back up and where
	Backup BackupConfig `yaml:"backup" json:"backup"`

	// Retry policy of the HTTP client
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Attachment download settings
	Download DownloadConfig `yaml:"download" json:"download"`

	// Request pacing
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Optional archive upload
	Upload UploadConfig `yaml:"upload" json:"upload"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// JiraConfig holds tracker-specific configuration
type JiraConfig struct {
	URL      string `yaml:"url" json:"url"`
	Board    string `yaml:"board" json:"board"`
	Username string `yaml:"username" json:"username"`
	// Password is only ever filled from the prompt, the credential store or the environment.
	Password       string        `yaml:"-" json:"-"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// BackupConfig holds the layout and pagination settings of a run
type BackupConfig struct {
	Directory  string        `yaml:"directory" json:"directory"`
	Name       string        `yaml:"name" json:"name"`
	Start      int           `yaml:"start" json:"start"`
	BatchSize  int           `yaml:"batch_size" json:"batch_size"`
	SleepTime  time.Duration `yaml:"sleep_time" json:"sleep_time"`
	Duplicates string        `yaml:"duplicates" json:"duplicates"`
	ArchiveDir string        `yaml:"archive_dir" json:"archive_dir"`
}

// RetryConfig holds the bounded retry policy for transient failures
type RetryConfig struct {
	MaxRetries    int           `yaml:"max_retries" json:"max_retries"`
	BackoffFactor time.Duration `yaml:"backoff_factor" json:"backoff_factor"`
	MaxBackoff    time.Duration `yaml:"max_backoff" json:"max_backoff"`
}

// DownloadConfig holds attachment download configuration
type DownloadConfig struct {
	ChunkSize int           `yaml:"chunk_size" json:"chunk_size"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
}

// RateLimitConfig caps the request rate against the tracker. Zero disables the cap.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// UploadConfig enables uploading the finished archive to S3
type UploadConfig struct {
	S3Bucket string `yaml:"s3_bucket" json:"s3_bucket"`
	S3Prefix string `yaml:"s3_prefix" json:"s3_prefix"`
	Region   string `yaml:"region" json:"region"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with the stock defaults
func DefaultConfig() *Config {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	return &Config{
		Jira: JiraConfig{
			URL:            "http://jira.mskcc.org:8090",
			Board:          "RSL",
			RequestTimeout: 60 * time.Second,
		},
		Backup: BackupConfig{
			Directory:  cwd,
			Start:      0,
			BatchSize:  100,
			SleepTime:  2 * time.Second,
			Duplicates: DuplicatesRedownload,
			ArchiveDir: cwd,
		},
		Retry: RetryConfig{
			MaxRetries:    4,
			BackoffFactor: 200 * time.Millisecond,
			MaxBackoff:    120 * time.Second,
		},
		Download: DownloadConfig{
			ChunkSize: 10 * 1024,
			Timeout:   10 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 0,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// BackupName returns the name of the backup tree and archive, "<board>-backup" unless overridden
func (c *Config) BackupName() string {
	if c.Backup.Name != "" {
		return c.Backup.Name
	}
	return fmt.Sprintf("%s-backup", c.Jira.Board)
}

// BackupRoot returns <directory>/<backup name>
func (c *Config) BackupRoot() string {
	return filepath.Join(c.Backup.Directory, c.BackupName())
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	if v := os.Getenv("JIRABACKUP_URL"); v != "" {
		c.Jira.URL = v
	}
	if v := os.Getenv("JIRABACKUP_BOARD"); v != "" {
		c.Jira.Board = v
	}
	if v := os.Getenv("JIRABACKUP_USERNAME"); v != "" {
		c.Jira.Username = v
	}
	if v := os.Getenv("JIRABACKUP_PASSWORD"); v != "" {
		c.Jira.Password = v
	}
	if v := os.Getenv("JIRABACKUP_BACKUP_DIR"); v != "" {
		c.Backup.Directory = v
	}
	if v := os.Getenv("JIRABACKUP_ARCHIVE_DIR"); v != "" {
		c.Backup.ArchiveDir = v
	}
	if v := os.Getenv("JIRABACKUP_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("JIRABACKUP_BATCH_SIZE: %w", err))
		} else {
			c.Backup.BatchSize = n
		}
	}
	if v := os.Getenv("JIRABACKUP_SLEEP_TIME"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("JIRABACKUP_SLEEP_TIME: %w", err))
		} else {
			c.Backup.SleepTime = d
		}
	}
	if v := os.Getenv("JIRABACKUP_DUPLICATES"); v != "" {
		c.Backup.Duplicates = strings.ToLower(v)
	}
	if v := os.Getenv("JIRABACKUP_REQUESTS_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("JIRABACKUP_REQUESTS_PER_MINUTE: %w", err))
		} else {
			c.RateLimit.RequestsPerMinute = n
		}
	}
	if v := os.Getenv("JIRABACKUP_S3_BUCKET"); v != "" {
		c.Upload.S3Bucket = v
	}
	if v := os.Getenv("JIRABACKUP_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	return errors.Join(errs...)
}

// parseSeconds accepts either a bare number of seconds or a Go duration string
func parseSeconds(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}

// LoadFromFile loads configuration from a YAML file
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

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".jirabackup.yaml",
		".jirabackup.yml",
		filepath.Join(home, ".config", "jirabackup", "config.yaml"),
		filepath.Join(home, ".config", "jirabackup", "config.yml"),
		filepath.Join(home, ".jirabackup.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Jira.URL == "" {
		errs = append(errs, errors.New("jira url is required"))
	} else if u, err := url.Parse(c.Jira.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("jira url %q must be an absolute http(s) url", c.Jira.URL))
	}
	if strings.TrimSpace(c.Jira.Board) == "" {
		errs = append(errs, errors.New("jira board is required"))
	}

	if c.Backup.Directory == "" {
		errs = append(errs, errors.New("backup directory is required"))
	}
	if c.Backup.Start < 0 {
		errs = append(errs, errors.New("start offset cannot be negative"))
	}
	if c.Backup.BatchSize <= 0 {
		errs = append(errs, errors.New("batch size must be positive"))
	}
	if c.Backup.SleepTime < 0 {
		errs = append(errs, errors.New("sleep time cannot be negative"))
	}
	switch c.Backup.Duplicates {
	case DuplicatesRedownload, DuplicatesSkip:
	default:
		errs = append(errs, fmt.Errorf("invalid duplicate policy %q (want %s or %s)",
			c.Backup.Duplicates, DuplicatesRedownload, DuplicatesSkip))
	}

	if c.Retry.MaxRetries < 0 {
		errs = append(errs, errors.New("max retries cannot be negative"))
	}
	if c.Retry.BackoffFactor < 0 {
		errs = append(errs, errors.New("backoff factor cannot be negative"))
	}

	if c.Download.ChunkSize <= 0 {
		errs = append(errs, errors.New("chunk size must be positive"))
	}
	if c.RateLimit.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("requests per minute cannot be negative"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file. The password is never written.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["url"].(string); ok && v != "" {
		c.Jira.URL = v
	}
	if v, ok := flags["board"].(string); ok && v != "" {
		c.Jira.Board = v
	}
	if v, ok := flags["username"].(string); ok && v != "" {
		c.Jira.Username = v
	}
	if v, ok := flags["backup-dir"].(string); ok && v != "" {
		c.Backup.Directory = v
	}
	if v, ok := flags["archive-dir"].(string); ok && v != "" {
		c.Backup.ArchiveDir = v
	}
	if v, ok := flags["start"].(int); ok {
		c.Backup.Start = v
	}
	if v, ok := flags["batch-size"].(int); ok {
		c.Backup.BatchSize = v
	}
	if v, ok := flags["sleep-time"].(int); ok {
		c.Backup.SleepTime = time.Duration(v) * time.Second
	}
	if v, ok := flags["duplicates"].(string); ok && v != "" {
		c.Backup.Duplicates = strings.ToLower(v)
	}
	if v, ok := flags["max-retries"].(int); ok {
		c.Retry.MaxRetries = v
	}
	if v, ok := flags["requests-per-minute"].(int); ok {
		c.RateLimit.RequestsPerMinute = v
	}
	if v, ok := flags["s3-bucket"].(string); ok && v != "" {
		c.Upload.S3Bucket = v
	}
	if v, ok := flags["s3-prefix"].(string); ok && v != "" {
		c.Upload.S3Prefix = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".jirabackup.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
