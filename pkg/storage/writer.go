package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"jirabackup/internal/downloader"
	"jirabackup/pkg/jira"
	"jirabackup/pkg/logger"
)

// IssueFile is the name of the serialized issue inside every entry
const IssueFile = "jira.json"

// AttachmentDownloader streams one attachment into a directory
type AttachmentDownloader interface {
	Download(ctx context.Context, filename, url, dir string) (downloader.Result, error)
}

// Entry describes one written backup entry
type Entry struct {
	Key         string
	Status      string
	Summary     string
	Path        string
	Replaced    bool
	Attachments []downloader.Result
	Bytes       int64
}

// Writer lays issues out under <root>/<status>/<summary>_<key>/
type Writer struct {
	root       string
	downloader AttachmentDownloader
	logger     logger.Logger
}

// NewWriter creates a Writer rooted at root, creating root if needed
func NewWriter(root string, d AttachmentDownloader, log logger.Logger) (*Writer, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	return &Writer{root: root, downloader: d, logger: log}, nil
}

// Root returns the backup root directory
func (w *Writer) Root() string { return w.root }

// EntryPath returns the directory an issue is written to
func (w *Writer) EntryPath(issue *jira.Issue) string {
	dir := fmt.Sprintf("%s_%s", issue.Summary(), issue.Key)
	return filepath.Join(w.root, SanitizeName(issue.StatusName()), SanitizeName(dir))
}

// WriteBackup replaces the entry directory of issue with a fresh one holding
// jira.json and every attachment. Nothing from a previous entry at the same
// path survives.
func (w *Writer) WriteBackup(ctx context.Context, issue *jira.Issue) (*Entry, error) {
	path := w.EntryPath(issue)
	entry := &Entry{
		Key:     issue.Key,
		Status:  issue.StatusName(),
		Summary: issue.Summary(),
		Path:    path,
	}

	if _, err := os.Stat(path); err == nil {
		w.logger.InfoWithFields("Removing existing backup path", map[string]interface{}{
			"path":  path,
			"issue": issue.Key,
		})
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("failed to remove %s: %w", path, err)
		}
		entry.Replaced = true
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}

	doc, err := IndentIssue(issue.Raw)
	if err != nil {
		return nil, fmt.Errorf("issue %s: %w", issue.Key, err)
	}
	if err := WriteFileAtomic(filepath.Join(path, IssueFile), bytes.NewReader(doc)); err != nil {
		return nil, fmt.Errorf("issue %s: %w", issue.Key, err)
	}
	entry.Bytes += int64(len(doc))

	for _, a := range issue.Fields.Attachments {
		name := SanitizeName(filepath.Base(strings.ReplaceAll(a.Filename, `\`, "/")))
		res, err := w.downloader.Download(ctx, name, a.Content, path)
		logger.LogAttachment(w.logger, issue.Key, name, res.Bytes, err)
		if err != nil {
			return entry, fmt.Errorf("issue %s: %w", issue.Key, err)
		}
		entry.Attachments = append(entry.Attachments, res)
		entry.Bytes += res.Bytes
	}

	return entry, nil
}

// IndentIssue pretty-prints a raw issue document with four-space indentation,
// keeping the key order of the source
func IndentIssue(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty issue document")
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "    "); err != nil {
		return nil, fmt.Errorf("failed to indent issue document: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFileAtomic writes r to path through a temporary file and a rename
func WriteFileAtomic(path string, r io.Reader) error {
	tempFile := path + ".tmp"
	out, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	_, err = io.Copy(out, r)
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to write data: %w", err)
	}
	if closeErr != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tempFile, path); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}

var unsafeChars = strings.NewReplacer(
	"/", "_",
	`\`, "_",
	"\x00", "_",
	":", "_",
	"*", "_",
	"?", "_",
	`"`, "_",
	"<", "_",
	">", "_",
	"|", "_",
)

// SanitizeName turns arbitrary issue text into a single safe path element.
// Separators and characters reserved on common filesystems become "_"; names
// that would resolve to the current or parent directory become "_".
func SanitizeName(s string) string {
	s = unsafeChars.Replace(s)
	switch strings.TrimSpace(s) {
	case "", ".", "..":
		return "_"
	}
	return s
}
