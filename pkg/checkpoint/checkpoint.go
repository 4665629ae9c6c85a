package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"

	"jirabackup/pkg/logger"
)

// Version is the on-disk format version
const Version = 1

// Checkpoint records how far a backup of one board into one backup root got
type Checkpoint struct {
	RunID      string    `json:"run_id"`
	Board      string    `json:"board"`
	URL        string    `json:"url"`
	BackupRoot string    `json:"backup_root"`
	Total      int       `json:"total"`
	BatchSize  int       `json:"batch_size"`
	NextOffset int       `json:"next_offset"`
	Issues     int       `json:"issues"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Version    int       `json:"version"`
}

// Target identifies the backup a checkpoint belongs to
type Target struct {
	URL        string
	Board      string
	BackupRoot string
}

// Key derives a stable file name for t
func (t Target) Key() string {
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(t.URL+"\x00"+t.Board+"\x00"+t.BackupRoot))
	return fmt.Sprintf("%s-%s", t.Board, id.String()[:8])
}

// Manager loads and saves the checkpoint of one Target
type Manager struct {
	target         Target
	checkpointPath string
	logger         logger.Logger
}

// NewManager creates a Manager storing checkpoints under dir. An empty dir
// selects <data dir>/jirabackup/checkpoints.
func NewManager(dir string, target Target, log logger.Logger) (*Manager, error) {
	if dir == "" {
		dataDir, err := getDataDirectory()
		if err != nil {
			return nil, fmt.Errorf("failed to get data directory: %w", err)
		}
		dir = filepath.Join(dataDir, "checkpoints")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}
	if log == nil {
		log = logger.GetLogger()
	}

	return &Manager{
		target:         target,
		checkpointPath: filepath.Join(dir, target.Key()+".checkpoint.json"),
		logger:         log,
	}, nil
}

// Path returns the checkpoint file location
func (m *Manager) Path() string { return m.checkpointPath }

// Create writes a fresh checkpoint starting at offset start
func (m *Manager) Create(runID string, total, batchSize, start int) (*Checkpoint, error) {
	now := time.Now()
	cp := &Checkpoint{
		RunID:      runID,
		Board:      m.target.Board,
		URL:        m.target.URL,
		BackupRoot: m.target.BackupRoot,
		Total:      total,
		BatchSize:  batchSize,
		NextOffset: start,
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    Version,
	}

	if err := m.Save(cp); err != nil {
		return nil, fmt.Errorf("failed to save initial checkpoint: %w", err)
	}

	m.logger.InfoWithFields("Checkpoint created", map[string]interface{}{
		"board": cp.Board,
		"path":  m.checkpointPath,
	})
	return cp, nil
}

// Load returns the saved checkpoint, or nil if there is none. A checkpoint
// written for a different target or format version is treated as absent.
func (m *Manager) Load() (*Checkpoint, error) {
	data, err := os.ReadFile(m.checkpointPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}

	if cp.Version != Version || cp.Board != m.target.Board || cp.URL != m.target.URL || cp.BackupRoot != m.target.BackupRoot {
		m.logger.WarnWithFields("Ignoring checkpoint for a different backup", map[string]interface{}{
			"path":    m.checkpointPath,
			"board":   cp.Board,
			"version": cp.Version,
		})
		return nil, nil
	}

	m.logger.InfoWithFields("Checkpoint loaded", map[string]interface{}{
		"board":       cp.Board,
		"next_offset": cp.NextOffset,
		"issues":      cp.Issues,
		"updated_at":  cp.UpdatedAt,
	})
	return &cp, nil
}

// Save writes the checkpoint atomically
func (m *Manager) Save(cp *Checkpoint) error {
	cp.UpdatedAt = time.Now()

	tempPath := m.checkpointPath + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(cp); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}

	if err := os.Rename(tempPath, m.checkpointPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}

	m.logger.DebugWithFields("Checkpoint saved", map[string]interface{}{
		"board":       cp.Board,
		"next_offset": cp.NextOffset,
	})
	return nil
}

// UpdateProgress records that every issue before nextOffset is on disk
func (m *Manager) UpdateProgress(cp *Checkpoint, nextOffset, issues int) error {
	cp.NextOffset = nextOffset
	cp.Issues += issues
	return m.Save(cp)
}

// Delete removes the checkpoint file
func (m *Manager) Delete() error {
	if err := os.Remove(m.checkpointPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	m.logger.Debug("Checkpoint deleted")
	return nil
}

// Exists checks if a checkpoint file exists
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.checkpointPath)
	return err == nil
}

// getDataDirectory returns the per-user data directory for the current OS
func getDataDirectory() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support", "jirabackup")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dataDir = filepath.Join(appData, "jirabackup")
	default:
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			dataDir = filepath.Join(xdgDataHome, "jirabackup")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share", "jirabackup")
		}
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dataDir, nil
}
