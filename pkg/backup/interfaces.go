package backup

import (
	"context"

	"jirabackup/pkg/jira"
	"jirabackup/pkg/storage"
)

// IssueSource lists and fetches the issues of a board
type IssueSource interface {
	Total(ctx context.Context, board string) (int, error)
	ListIssues(ctx context.Context, board string, startAt, maxResults int) (*jira.SearchResponse, error)
	FetchIssue(ctx context.Context, self string) (*jira.Issue, error)
}

// EntryWriter persists one fetched issue as a backup entry
type EntryWriter interface {
	Root() string
	WriteBackup(ctx context.Context, issue *jira.Issue) (*storage.Entry, error)
}

// Compressor packs the finished backup root into one archive
type Compressor interface {
	Compress(ctx context.Context, root, name, outDir string) (string, error)
}

// Observer is told about the progress of a run
type Observer interface {
	Started(board string, total, start int)
	PageStarted(from, to, total int)
	EntryWritten(entry *storage.Entry)
	Duplicate(key string)
	Finished(archive string)
}

type nopObserver struct{}

func (nopObserver) Started(string, int, int)    {}
func (nopObserver) PageStarted(int, int, int)   {}
func (nopObserver) EntryWritten(*storage.Entry) {}
func (nopObserver) Duplicate(string)            {}
func (nopObserver) Finished(string)             {}
