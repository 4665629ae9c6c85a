package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"jirabackup/pkg/storage"
)

// ManifestFile is written at the top of every backup root
const ManifestFile = "manifest.json"

// Manifest describes one backup run and every entry it wrote
type Manifest struct {
	RunID       string    `json:"run_id"`
	Board       string    `json:"board"`
	URL         string    `json:"url"`
	Total       int       `json:"total"`
	StartOffset int       `json:"start_offset"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`

	Entries []EntryMetadata `json:"entries"`
}

// EntryMetadata represents one issue directory in the backup tree
type EntryMetadata struct {
	Key     string `json:"key"`
	Status  string `json:"status"`
	Summary string `json:"summary"`

	// Path is relative to the backup root, slash separated
	Path string `json:"path"`

	Attachments []AttachmentMetadata `json:"attachments,omitempty"`
	Bytes       int64                `json:"bytes"`
	Replaced    bool                 `json:"replaced,omitempty"`
	WrittenAt   time.Time            `json:"written_at"`
}

// AttachmentMetadata is one downloaded attachment file
type AttachmentMetadata struct {
	Filename string `json:"filename"`
	Bytes    int64  `json:"bytes"`
}

// New starts a manifest for a run
func New(runID, board, url string, total, start int) *Manifest {
	return &Manifest{
		RunID:       runID,
		Board:       board,
		URL:         url,
		Total:       total,
		StartOffset: start,
		StartedAt:   time.Now(),
		Entries:     []EntryMetadata{},
	}
}

// FromEntry converts a written backup entry, making its path relative to root
func FromEntry(entry *storage.Entry, root string) EntryMetadata {
	rel, err := filepath.Rel(root, entry.Path)
	if err != nil {
		rel = entry.Path
	}

	meta := EntryMetadata{
		Key:       entry.Key,
		Status:    entry.Status,
		Summary:   entry.Summary,
		Path:      filepath.ToSlash(rel),
		Bytes:     entry.Bytes,
		Replaced:  entry.Replaced,
		WrittenAt: time.Now(),
	}
	for _, a := range entry.Attachments {
		meta.Attachments = append(meta.Attachments, AttachmentMetadata{
			Filename: filepath.Base(a.Path),
			Bytes:    a.Bytes,
		})
	}
	return meta
}

// Record adds an entry. A later entry at the same path replaces the earlier
// one, mirroring what happened on disk.
func (m *Manifest) Record(e EntryMetadata) {
	for i := range m.Entries {
		if m.Entries[i].Path == e.Path {
			m.Entries[i] = e
			return
		}
	}
	m.Entries = append(m.Entries, e)
}

// Merge adds every entry of prev that this manifest does not already hold.
// Used when a resumed run continues a backup root.
func (m *Manifest) Merge(prev *Manifest) {
	if prev == nil {
		return
	}
	seen := make(map[string]bool, len(m.Entries))
	for _, e := range m.Entries {
		seen[e.Path] = true
	}
	for _, e := range prev.Entries {
		if !seen[e.Path] {
			m.Entries = append(m.Entries, e)
		}
	}
}

// Attachments counts attachment files across all entries
func (m *Manifest) Attachments() int {
	n := 0
	for _, e := range m.Entries {
		n += len(e.Attachments)
	}
	return n
}

// Bytes sums the size of every entry
func (m *Manifest) Bytes() int64 {
	var n int64
	for _, e := range m.Entries {
		n += e.Bytes
	}
	return n
}

// Complete stamps the end of the run
func (m *Manifest) Complete() {
	m.CompletedAt = time.Now()
}

// Save writes the manifest to <root>/manifest.json, entries sorted by path
func (m *Manifest) Save(root string) error {
	sort.SliceStable(m.Entries, func(i, j int) bool {
		return m.Entries[i].Path < m.Entries[j].Path
	})

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	tmp := filepath.Join(root, ManifestFile+".tmp")
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest file: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(root, ManifestFile)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write manifest file: %w", err)
	}
	return nil
}

// Load reads <root>/manifest.json
func Load(root string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(root, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}
	return &m, nil
}

// Exists checks if a manifest is present in root
func Exists(root string) bool {
	_, err := os.Stat(filepath.Join(root, ManifestFile))
	return err == nil
}
