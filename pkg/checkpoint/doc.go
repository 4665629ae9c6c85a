// Package checkpoint persists the paging position of a backup run so an
// interrupted run can continue where it stopped.
//
// A checkpoint belongs to one (url, board, backup root) target and records
// the next search offset once a page is fully on disk. Issues before that
// offset are not revisited on resume; the in-run duplicate set is not
// persisted.
//
// Checkpoints are stored in platform-specific data directories:
//   - Linux: $XDG_DATA_HOME/jirabackup/checkpoints/ or ~/.local/share/jirabackup/checkpoints/
//   - macOS: ~/Library/Application Support/jirabackup/checkpoints/
//   - Windows: %APPDATA%/jirabackup/checkpoints/
package checkpoint
