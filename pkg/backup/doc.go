// Package backup drives a complete board backup.
//
// A Runner asks the tracker for the number of issues, then walks the board
// page by page in key order. Every issue reference is fetched in full and
// handed to the storage writer, which replaces the issue's entry directory
// and downloads its attachments. After each page the runner pauses for the
// configured delay, including after the last page. Once the walk is done the
// backup root is packed into a single <name>.tar.gz and optionally uploaded.
//
// Work is strictly sequential. The first API error that survives the retry
// layer ends the run and is returned to the caller unchanged, so the CLI can
// report its status code.
//
// Duplicate references within one run are logged. Depending on the
// configured policy they are fetched again or skipped.
//
// When a checkpoint manager is configured the next page offset is saved
// after every page, and a resumed run continues from there. The checkpoint
// is removed once the archive has been written.
package backup
