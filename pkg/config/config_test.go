package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Jira.Board != "RSL" {
		t.Errorf("Expected default board RSL, got %s", config.Jira.Board)
	}
	if config.Jira.URL != "http://jira.mskcc.org:8090" {
		t.Errorf("Expected default url, got %s", config.Jira.URL)
	}
	if config.Backup.BatchSize != 100 {
		t.Errorf("Expected default batch size 100, got %d", config.Backup.BatchSize)
	}
	if config.Backup.SleepTime != 2*time.Second {
		t.Errorf("Expected default sleep time 2s, got %v", config.Backup.SleepTime)
	}
	if config.Backup.Start != 0 {
		t.Errorf("Expected default start 0, got %d", config.Backup.Start)
	}

	assert.Equal(t, 4, config.Retry.MaxRetries)
	assert.Equal(t, 200*time.Millisecond, config.Retry.BackoffFactor)
	assert.Equal(t, 10*1024, config.Download.ChunkSize)
	assert.Equal(t, DuplicatesRedownload, config.Backup.Duplicates)
	assert.NoError(t, config.Validate())
}

func TestBackupName(t *testing.T) {
	config := DefaultConfig()
	config.Backup.Directory = "/tmp/backups"

	assert.Equal(t, "RSL-backup", config.BackupName())
	assert.Equal(t, filepath.Join("/tmp/backups", "RSL-backup"), config.BackupRoot())

	config.Backup.Name = "nightly"
	assert.Equal(t, "nightly", config.BackupName())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("JIRABACKUP_URL", "https://jira.example.com")
	t.Setenv("JIRABACKUP_BOARD", "ABC")
	t.Setenv("JIRABACKUP_USERNAME", "jdoe")
	t.Setenv("JIRABACKUP_PASSWORD", "hunter2")
	t.Setenv("JIRABACKUP_BATCH_SIZE", "25")
	t.Setenv("JIRABACKUP_SLEEP_TIME", "5")
	t.Setenv("JIRABACKUP_DUPLICATES", "SKIP")
	t.Setenv("JIRABACKUP_LOG_LEVEL", "debug")

	config := DefaultConfig()
	require.NoError(t, config.LoadFromEnv())

	assert.Equal(t, "https://jira.example.com", config.Jira.URL)
	assert.Equal(t, "ABC", config.Jira.Board)
	assert.Equal(t, "jdoe", config.Jira.Username)
	assert.Equal(t, "hunter2", config.Jira.Password)
	assert.Equal(t, 25, config.Backup.BatchSize)
	assert.Equal(t, 5*time.Second, config.Backup.SleepTime)
	assert.Equal(t, DuplicatesSkip, config.Backup.Duplicates)
	assert.Equal(t, "debug", config.Logging.Level)
}

func TestLoadFromEnvDurationAndErrors(t *testing.T) {
	t.Setenv("JIRABACKUP_SLEEP_TIME", "1500ms")
	config := DefaultConfig()
	require.NoError(t, config.LoadFromEnv())
	assert.Equal(t, 1500*time.Millisecond, config.Backup.SleepTime)

	t.Setenv("JIRABACKUP_BATCH_SIZE", "lots")
	t.Setenv("JIRABACKUP_REQUESTS_PER_MINUTE", "many")
	err := DefaultConfig().LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JIRABACKUP_BATCH_SIZE")
	assert.Contains(t, err.Error(), "JIRABACKUP_REQUESTS_PER_MINUTE")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid default",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing url",
			mutate:  func(c *Config) { c.Jira.URL = "" },
			wantErr: "jira url is required",
		},
		{
			name:    "relative url",
			mutate:  func(c *Config) { c.Jira.URL = "jira.local/path" },
			wantErr: "absolute http(s) url",
		},
		{
			name:    "missing board",
			mutate:  func(c *Config) { c.Jira.Board = "  " },
			wantErr: "jira board is required",
		},
		{
			name:    "negative start",
			mutate:  func(c *Config) { c.Backup.Start = -1 },
			wantErr: "start offset",
		},
		{
			name:    "zero batch size",
			mutate:  func(c *Config) { c.Backup.BatchSize = 0 },
			wantErr: "batch size",
		},
		{
			name:    "negative sleep",
			mutate:  func(c *Config) { c.Backup.SleepTime = -time.Second },
			wantErr: "sleep time",
		},
		{
			name:    "unknown duplicate policy",
			mutate:  func(c *Config) { c.Backup.Duplicates = "merge" },
			wantErr: "invalid duplicate policy",
		},
		{
			name:    "zero chunk size",
			mutate:  func(c *Config) { c.Download.ChunkSize = 0 },
			wantErr: "chunk size",
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "invalid log level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	config := DefaultConfig()
	config.Jira.Board = ""
	config.Backup.BatchSize = -5
	config.Logging.Level = ""

	err := config.Validate()
	require.Error(t, err)
	assert.Equal(t, 3, len(strings.Split(err.Error(), "\n")))
}

func TestMergeCommandLineFlags(t *testing.T) {
	config := DefaultConfig()

	flags := map[string]interface{}{
		"board":       "XYZ",
		"url":         "https://jira.internal",
		"backup-dir":  "/flag/backups",
		"start":       200,
		"batch-size":  50,
		"sleep-time":  0,
		"duplicates":  "skip",
		"s3-bucket":   "archives",
		"log-level":   "error",
		"unknown-key": true,
	}

	config.MergeCommandLineFlags(flags)

	assert.Equal(t, "XYZ", config.Jira.Board)
	assert.Equal(t, "https://jira.internal", config.Jira.URL)
	assert.Equal(t, "/flag/backups", config.Backup.Directory)
	assert.Equal(t, 200, config.Backup.Start)
	assert.Equal(t, 50, config.Backup.BatchSize)
	assert.Equal(t, time.Duration(0), config.Backup.SleepTime)
	assert.Equal(t, DuplicatesSkip, config.Backup.Duplicates)
	assert.Equal(t, "archives", config.Upload.S3Bucket)
	assert.Equal(t, "error", config.Logging.Level)
}

func TestSaveAndLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "config.yaml")

	config := DefaultConfig()
	config.Jira.Board = "SAVE"
	config.Jira.Username = "jdoe"
	config.Jira.Password = "must-not-persist"
	config.Backup.BatchSize = 7
	config.Backup.SleepTime = 3 * time.Second

	require.NoError(t, config.Save(configPath))

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "must-not-persist")

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded := DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(configPath))

	assert.Equal(t, "SAVE", loaded.Jira.Board)
	assert.Equal(t, "jdoe", loaded.Jira.Username)
	assert.Empty(t, loaded.Jira.Password)
	assert.Equal(t, 7, loaded.Backup.BatchSize)
	assert.Equal(t, 3*time.Second, loaded.Backup.SleepTime)
}

func TestLoadFromFileErrors(t *testing.T) {
	config := DefaultConfig()
	assert.Error(t, config.LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")))

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("jira: [unclosed"), 0644))
	err := config.LoadFromFile(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoadPrecedence(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	content := `jira:
  board: FILE
  url: https://file.example.com
backup:
  batch_size: 10
  sleep_time: 4s
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	t.Setenv("JIRABACKUP_BOARD", "ENV")

	config, err := Load(configPath, map[string]interface{}{"batch-size": 30})
	require.NoError(t, err)

	assert.Equal(t, "ENV", config.Jira.Board)
	assert.Equal(t, "https://file.example.com", config.Jira.URL)
	assert.Equal(t, 30, config.Backup.BatchSize)
	assert.Equal(t, 4*time.Second, config.Backup.SleepTime)
}

func TestLoadRejectsInvalid(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("backup:\n  batch_size: 0\n"), 0644))

	_, err := Load(configPath, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
}
