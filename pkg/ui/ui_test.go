package ui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"jirabackup/internal/downloader"
	"jirabackup/pkg/storage"
)

func TestRenderBar(t *testing.T) {
	assert.Equal(t, strings.Repeat(ProgressEmpty, 20), RenderBar(0, 10))
	assert.Equal(t, strings.Repeat(ProgressBar, 10)+strings.Repeat(ProgressEmpty, 10), RenderBar(5, 10))
	assert.Equal(t, strings.Repeat(ProgressBar, 20), RenderBar(15, 10))
	assert.Equal(t, strings.Repeat(ProgressEmpty, 20), RenderBar(3, 0))
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "25 KiB", FormatBytes(25*1024))
	assert.Equal(t, "0 B", FormatBytes(-1))
	assert.Equal(t, "42s", FormatDuration(42*time.Second))
	assert.Equal(t, "2m5s", FormatDuration(125*time.Second))
	assert.Equal(t, "1h1m", FormatDuration(61*time.Minute))

	assert.Equal(t, "calculating...", ETA(0, 10, time.Second))
	assert.Equal(t, "0s", ETA(10, 10, time.Second))
	assert.Equal(t, "9s", ETA(1, 10, time.Second))
}

func TestProgressDisplay(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(&bytes.Buffer{})

	p := NewProgressDisplay(&buf, false)
	p.Started("RSL", 1200, 0)
	p.PageStarted(0, 100, 1200)
	p.EntryWritten(&storage.Entry{
		Key:         "RSL-1",
		Bytes:       2048,
		Attachments: []downloader.Result{{Bytes: 1024}},
	})
	p.Duplicate("RSL-1")
	p.Finished("/tmp/RSL-backup.tar.gz")

	text := buf.String()
	assert.Contains(t, text, "1,200 issues in RSL")
	assert.NotContains(t, text, "Page 0", "pages are only listed in debug mode")
	assert.Contains(t, text, "1/1200")
	assert.Contains(t, text, "2.0 KiB")
	assert.Contains(t, text, "Backed up 1 issues from RSL")
	assert.Contains(t, text, "1 duplicate references")
	assert.Contains(t, text, "/tmp/RSL-backup.tar.gz")
	assert.NotContains(t, text, "\033[", "color is off for non-terminals")
}

func TestProgressDisplayDebug(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(&bytes.Buffer{})

	p := NewProgressDisplay(&buf, true)
	p.Started("RSL", 3, 2)
	p.PageStarted(2, 3, 3)
	p.EntryWritten(&storage.Entry{Key: "RSL-3", Bytes: 10})
	p.Duplicate("RSL-3")

	text := buf.String()
	assert.Contains(t, text, "continuing at 2")
	assert.Contains(t, text, "Page 2 to 3 of 3")
	assert.Contains(t, text, "RSL-3 • 10 B • 0 attachments")
	assert.Contains(t, text, "Duplicate of RSL-3")
}

func TestPrintHelpers(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(&bytes.Buffer{})

	PrintBanner()
	PrintInfo("Board", "RSL")
	PrintWarning("Resuming", "offset 200")
	PrintError("Backup failed")
	PrintSuccess("done")
	PrintHighlight("archive")

	text := buf.String()
	assert.Contains(t, text, "JIRABACKUP")
	assert.Contains(t, text, "Board: RSL")
	assert.Contains(t, text, "Resuming: offset 200")
	assert.Contains(t, text, "Backup failed\n")
	assert.Same(t, &buf, Output().(*bytes.Buffer))
}
