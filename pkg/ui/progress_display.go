package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"jirabackup/pkg/storage"
)

// ProgressDisplay prints a one-line progress view of a backup run
type ProgressDisplay struct {
	mu          sync.Mutex
	w           io.Writer
	board       string
	total       int
	done        int
	attachments int
	duplicates  int
	bytes       int64
	current     string
	startTime   time.Time
	isDebug     bool
}

// NewProgressDisplay creates a display writing to w. In debug mode every
// entry gets its own line instead of the rewritten progress line.
func NewProgressDisplay(w io.Writer, debug bool) *ProgressDisplay {
	if w == nil {
		w = out
	}
	return &ProgressDisplay{
		w:         w,
		startTime: time.Now(),
		isDebug:   debug,
	}
}

// Started records the board and the number of issues the tracker reported
func (p *ProgressDisplay) Started(board string, total, start int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.board = board
	p.total = total
	p.done = start
	p.startTime = time.Now()

	fmt.Fprintf(p.w, "%s %s issues in %s", Magenta("→"), humanize.Comma(int64(total)), Cyan(board))
	if start > 0 {
		fmt.Fprintf(p.w, " %s", Dim(fmt.Sprintf("(continuing at %d)", start)))
	}
	fmt.Fprintln(p.w)
}

// PageStarted announces the issue range of the next page
func (p *ProgressDisplay) PageStarted(from, to, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isDebug {
		fmt.Fprintf(p.w, "\n%s Page %d to %d of %d\n", Magenta("→"), from, to, total)
	}
}

// EntryWritten counts one finished backup entry
func (p *ProgressDisplay) EntryWritten(entry *storage.Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done++
	p.attachments += len(entry.Attachments)
	p.bytes += entry.Bytes
	p.current = entry.Key

	if p.isDebug {
		fmt.Fprintf(p.w, "%s %s • %s • %d attachments\n",
			Green("✓"), entry.Key, FormatBytes(entry.Bytes), len(entry.Attachments))
		return
	}
	p.printProgress()
}

// Duplicate counts an issue reference seen twice in one run
func (p *ProgressDisplay) Duplicate(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.duplicates++
	if p.isDebug {
		fmt.Fprintf(p.w, "%s Duplicate of %s\n", Yellow("⚠"), key)
	}
}

// Finished prints the closing summary
func (p *ProgressDisplay) Finished(archive string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	elapsed := time.Since(p.startTime)

	fmt.Fprintf(p.w, "\n\n%s Backed up %s issues from %s\n",
		Green("✓"),
		humanize.Comma(int64(p.done)),
		p.board,
	)
	fmt.Fprintf(p.w, "  %s %s in %s attachments, %s\n",
		Dim("•"),
		FormatBytes(p.bytes),
		humanize.Comma(int64(p.attachments)),
		FormatDuration(elapsed),
	)
	if p.duplicates > 0 {
		fmt.Fprintf(p.w, "  %s %d duplicate references\n", Dim("•"), p.duplicates)
	}
	if archive != "" {
		fmt.Fprintf(p.w, "  %s %s\n", Dim("•"), archive)
	}
}

// printProgress rewrites the progress line
func (p *ProgressDisplay) printProgress() {
	elapsed := time.Since(p.startTime)

	line := fmt.Sprintf("%s [%s] %d/%d • %s • %s",
		Cyan(p.board),
		RenderBar(p.done, p.total),
		p.done,
		p.total,
		FormatBytes(p.bytes),
		ETA(p.done, p.total, elapsed),
	)
	if p.current != "" {
		line += fmt.Sprintf(" • %s", p.current)
	}
	if p.duplicates > 0 {
		line += fmt.Sprintf(" • %s", Yellow(fmt.Sprintf("%d duplicates", p.duplicates)))
	}

	fmt.Fprintf(p.w, "\r%s\r%s", strings.Repeat(" ", 100), line)
}
