package backup

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jirabackup/internal/downloader"
	"jirabackup/internal/jiratest"
	"jirabackup/pkg/archive"
	"jirabackup/pkg/config"
	errs "jirabackup/pkg/errors"
	"jirabackup/pkg/jira"
	"jirabackup/pkg/logger"
	"jirabackup/pkg/metadata"
	"jirabackup/pkg/ratelimit"
	"jirabackup/pkg/storage"
)

var (
	issueOne   = jiratest.Issue{Key: "TEST-1", Status: "Open", Summary: "Fix bug", Attachments: []jiratest.Attachment{{Filename: "log.txt", Body: bytes.Repeat([]byte("x"), 25*1024)}}}
	issueTwo   = jiratest.Issue{Key: "TEST-2", Status: "Done", Summary: "Write docs"}
	issueThree = jiratest.Issue{Key: "TEST-3", Status: "In Progress", Summary: "Ship it"}
)

func testConfig(t *testing.T, srv *jiratest.Server) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Jira.URL = srv.URL
	cfg.Jira.Board = srv.Board
	cfg.Jira.Username = jiratest.Username
	cfg.Jira.Password = jiratest.Password
	cfg.Backup.Directory = t.TempDir()
	cfg.Backup.ArchiveDir = t.TempDir()
	cfg.Backup.BatchSize = 2
	cfg.Backup.SleepTime = 0
	cfg.Retry.BackoffFactor = time.Millisecond
	cfg.Retry.MaxBackoff = 10 * time.Millisecond
	return cfg
}

func newTestRunner(t *testing.T, cfg *config.Config, opts Options) (*Runner, *logger.TestLogger) {
	t.Helper()
	if opts.CheckpointDir == "" {
		opts.CheckpointDir = t.TempDir()
	}
	tl := logger.NewTestLogger()
	r, err := New(context.Background(), cfg, opts, tl)
	require.NoError(t, err)
	return r, tl
}

// snapshot reads every entry file under root, keyed by slash path
func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()
	files := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() == metadata.ManifestFile {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	require.NoError(t, err)
	return files
}

func archives(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*"))
	require.NoError(t, err)
	return matches
}

type recordingObserver struct {
	pages      [][2]int
	entries    []string
	duplicates []string
	archive    string
}

func (o *recordingObserver) Started(string, int, int) {}

func (o *recordingObserver) PageStarted(from, to, total int) {
	o.pages = append(o.pages, [2]int{from, to})
}

func (o *recordingObserver) EntryWritten(e *storage.Entry) {
	o.entries = append(o.entries, e.Key)
}

func (o *recordingObserver) Duplicate(key string) {
	o.duplicates = append(o.duplicates, key)
}

func (o *recordingObserver) Finished(archive string) { o.archive = archive }

type fakeUploader struct{ uploaded []string }

func (f *fakeUploader) Upload(ctx context.Context, file string) (string, error) {
	f.uploaded = append(f.uploaded, file)
	return "s3://bucket/" + filepath.Base(file), nil
}

func TestRunEndToEnd(t *testing.T) {
	srv := jiratest.New(t, issueOne, issueTwo, issueThree)
	cfg := testConfig(t, srv)
	obs := &recordingObserver{}
	checkpoints := t.TempDir()
	r, tl := newTestRunner(t, cfg, Options{Observer: obs, CheckpointDir: checkpoints})

	sum, err := r.Run(context.Background())
	require.NoError(t, err)

	searches := srv.Searches()
	require.Len(t, searches, 3)
	assert.Equal(t, jiratest.SearchCall{JQL: "project=TEST", StartAt: 0, MaxResults: 1, Fields: "key", OrderBy: "key"}, searches[0])
	assert.Equal(t, 0, searches[1].StartAt)
	assert.Equal(t, 2, searches[1].MaxResults)
	assert.Equal(t, 2, searches[2].StartAt)

	assert.Equal(t, 3, srv.TotalFetches())
	assert.Equal(t, [][2]int{{0, 2}, {2, 3}}, obs.pages)
	assert.Equal(t, []string{"TEST-1", "TEST-2", "TEST-3"}, obs.entries)

	root := cfg.BackupRoot()
	indented := func(i jiratest.Issue) string {
		doc, err := storage.IndentIssue(srv.IssueJSON(i))
		require.NoError(t, err)
		return string(doc)
	}
	assert.Equal(t, map[string]string{
		"Open/Fix bug_TEST-1/jira.json":        indented(issueOne),
		"Open/Fix bug_TEST-1/log.txt":          string(issueOne.Attachments[0].Body),
		"Done/Write docs_TEST-2/jira.json":     indented(issueTwo),
		"In Progress/Ship it_TEST-3/jira.json": indented(issueThree),
	}, snapshot(t, root))

	wantArchive := filepath.Join(cfg.Backup.ArchiveDir, "TEST-backup.tar.gz")
	assert.Equal(t, []string{wantArchive}, archives(t, cfg.Backup.ArchiveDir))
	assert.Equal(t, wantArchive, sum.Archive)
	assert.Equal(t, wantArchive, obs.archive)

	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 2, sum.Pages)
	assert.Equal(t, 3, sum.Issues)
	assert.Equal(t, 1, sum.Attachments)
	assert.Zero(t, sum.Duplicates)
	assert.Equal(t, int64(7), sum.Requests)
	assert.Zero(t, sum.Retries)
	assert.NotEmpty(t, sum.RunID)

	assert.True(t, tl.HasMessage("Downloading issues from TEST, 0 to 2 of 3"))
	assert.True(t, tl.HasMessage("Downloading issues from TEST, 2 to 3 of 3"))
	assert.Empty(t, tl.GetMessagesByLevel("WARN"))

	manifest, err := metadata.Load(root)
	require.NoError(t, err)
	assert.Equal(t, sum.RunID, manifest.RunID)
	assert.Len(t, manifest.Entries, 3)
	assert.False(t, manifest.CompletedAt.IsZero())

	left, err := filepath.Glob(filepath.Join(checkpoints, "*.checkpoint.json"))
	require.NoError(t, err)
	assert.Empty(t, left, "checkpoint is removed after a complete run")
}

func TestRunPausesAfterEveryPage(t *testing.T) {
	srv := jiratest.New(t, issueOne, issueTwo, issueThree)
	nop := logger.NewNopLogger()

	client, err := jira.NewClient(jira.Options{
		BaseURL:  srv.URL,
		Username: jiratest.Username,
		Password: jiratest.Password,
		Logger:   nop,
	})
	require.NoError(t, err)
	writer, err := storage.NewWriter(filepath.Join(t.TempDir(), "TEST-backup"), downloader.New(client, 0, 0, nop), nop)
	require.NoError(t, err)
	pacer := ratelimit.NewPacer(5 * time.Millisecond)
	outDir := t.TempDir()

	r := NewRunner(
		Settings{Board: srv.Board, BatchSize: 2, ArchiveDir: outDir},
		Deps{Source: client, Writer: writer, Archiver: archive.New(nop), Pacer: pacer},
		nop,
	)

	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Pages)
	assert.Equal(t, 2, pacer.Pauses(), "the final page is followed by a pause as well")
	assert.Equal(t, 10*time.Millisecond, sum.Slept)
	assert.Equal(t, filepath.Join(outDir, "TEST-backup.tar.gz"), sum.Archive)
}

func TestRunDuplicateIsRedownloaded(t *testing.T) {
	srv := jiratest.New(t, issueOne, issueTwo, issueOne)
	cfg := testConfig(t, srv)
	obs := &recordingObserver{}
	r, tl := newTestRunner(t, cfg, Options{Observer: obs})

	sum, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, srv.Fetches("TEST-1"))
	assert.Equal(t, 2, srv.Downloads("log.txt"))
	assert.Equal(t, 3, sum.Issues)
	assert.Equal(t, 1, sum.Duplicates)
	assert.Equal(t, []string{"TEST-1"}, obs.duplicates)

	warns := tl.GetMessagesByLevel("WARN")
	require.Len(t, warns, 1)
	assert.Equal(t, "Duplicate of "+srv.IssueURL("TEST-1"), warns[0].Message)
	assert.True(t, tl.HasMessage("Removing existing backup path"))

	assert.Len(t, snapshot(t, cfg.BackupRoot()), 3)
}

func TestRunDuplicateSkipPolicy(t *testing.T) {
	srv := jiratest.New(t, issueOne, issueTwo, issueOne)
	cfg := testConfig(t, srv)
	cfg.Backup.Duplicates = config.DuplicatesSkip
	r, tl := newTestRunner(t, cfg, Options{})

	sum, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, srv.Fetches("TEST-1"))
	assert.Equal(t, 2, sum.Issues)
	assert.Equal(t, 1, sum.Duplicates)
	assert.True(t, tl.HasMessage("Duplicate of"))
	assert.False(t, tl.HasMessage("Removing existing backup path"))
}

func TestRunIsIdempotent(t *testing.T) {
	srv := jiratest.New(t, issueOne, issueTwo, issueThree)
	cfg := testConfig(t, srv)

	r, _ := newTestRunner(t, cfg, Options{})
	_, err := r.Run(context.Background())
	require.NoError(t, err)
	first := snapshot(t, cfg.BackupRoot())

	r, tl := newTestRunner(t, cfg, Options{})
	_, err = r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, snapshot(t, cfg.BackupRoot()))
	assert.Len(t, archives(t, cfg.Backup.ArchiveDir), 1)
	assert.True(t, tl.HasMessage("Removing existing backup path"))
}

func TestRunAbortsOnFatalError(t *testing.T) {
	srv := jiratest.New(t, issueOne, issueTwo, issueThree)
	srv.FailNext("/rest/api/2/issue/TEST-2", 404)
	cfg := testConfig(t, srv)
	r, _ := newTestRunner(t, cfg, Options{})

	sum, err := r.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsFatal(err))
	assert.Equal(t, 404, errs.StatusCode(err))

	assert.Equal(t, 1, sum.Issues)
	assert.Empty(t, sum.Archive)
	assert.Empty(t, archives(t, cfg.Backup.ArchiveDir))
	assert.Zero(t, srv.Fetches("TEST-3"))
	assert.DirExists(t, filepath.Join(cfg.BackupRoot(), "Open", "Fix bug_TEST-1"))
}

func TestRunRetriesTransientErrors(t *testing.T) {
	srv := jiratest.New(t, issueOne, issueTwo, issueThree)
	srv.FailNext("/rest/api/2/issue/TEST-1", 503, 503)
	cfg := testConfig(t, srv)
	r, tl := newTestRunner(t, cfg, Options{})

	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), sum.Retries)
	assert.Equal(t, 3, sum.Issues)
	assert.NotEmpty(t, tl.GetMessagesByLevel("WARN"))
}

func TestRunBadCredentials(t *testing.T) {
	srv := jiratest.New(t, issueOne)
	cfg := testConfig(t, srv)
	cfg.Jira.Password = "wrong"
	r, _ := newTestRunner(t, cfg, Options{})

	sum, err := r.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 401, errs.StatusCode(err))
	assert.Zero(t, sum.Pages)
	assert.Len(t, srv.Searches(), 0, "rejected before reaching the handler")
}

func TestRunResumesFromCheckpoint(t *testing.T) {
	srv := jiratest.New(t, issueOne, issueTwo, issueThree)
	srv.FailNext("/rest/api/2/issue/TEST-3", 404)
	cfg := testConfig(t, srv)
	checkpoints := t.TempDir()

	r, _ := newTestRunner(t, cfg, Options{CheckpointDir: checkpoints})
	_, err := r.Run(context.Background())
	require.Error(t, err)

	r, tl := newTestRunner(t, cfg, Options{CheckpointDir: checkpoints, Resume: true})
	sum, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, tl.HasMessage("Resuming from checkpoint"))
	assert.Equal(t, 2, sum.Start)
	assert.Equal(t, 1, sum.Pages)
	assert.Equal(t, 1, sum.Issues)
	assert.Equal(t, 1, srv.Fetches("TEST-1"))
	assert.Equal(t, 1, srv.Fetches("TEST-3"))

	searches := srv.Searches()
	assert.Equal(t, 2, searches[len(searches)-1].StartAt)

	manifest, err := metadata.Load(cfg.BackupRoot())
	require.NoError(t, err)
	assert.Len(t, manifest.Entries, 3)
	assert.Equal(t, 2, manifest.StartOffset)

	assert.Len(t, archives(t, cfg.Backup.ArchiveDir), 1)
	left, err := filepath.Glob(filepath.Join(checkpoints, "*.checkpoint.json"))
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestRunWithoutResumeStartsOver(t *testing.T) {
	srv := jiratest.New(t, issueOne, issueTwo, issueThree)
	srv.FailNext("/rest/api/2/issue/TEST-3", 404)
	cfg := testConfig(t, srv)
	checkpoints := t.TempDir()

	r, _ := newTestRunner(t, cfg, Options{CheckpointDir: checkpoints})
	_, err := r.Run(context.Background())
	require.Error(t, err)

	r, tl := newTestRunner(t, cfg, Options{CheckpointDir: checkpoints})
	sum, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, tl.HasMessage("Previous checkpoint found"))
	assert.Equal(t, 3, sum.Issues)
	assert.Equal(t, 2, srv.Fetches("TEST-1"))
}

func TestRunResumeWithoutCheckpointUsesStart(t *testing.T) {
	srv := jiratest.New(t, issueOne, issueTwo, issueThree)
	cfg := testConfig(t, srv)
	cfg.Backup.Start = 2
	r, tl := newTestRunner(t, cfg, Options{Resume: true})

	sum, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, tl.HasMessage("No checkpoint found"))
	assert.Equal(t, 1, sum.Issues)
	assert.Zero(t, srv.Fetches("TEST-1"))
	assert.Equal(t, 1, srv.Fetches("TEST-3"))
}

func TestRunWithInflatedTotal(t *testing.T) {
	srv := jiratest.New(t, issueOne, issueTwo, issueThree)
	srv.InflateTotal(2)
	cfg := testConfig(t, srv)
	r, _ := newTestRunner(t, cfg, Options{NoCheckpoint: true})

	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, sum.Total)
	assert.Equal(t, 3, sum.Pages, "the last page comes back empty")
	assert.Equal(t, 3, sum.Issues)
}

func TestRunEmptyBoard(t *testing.T) {
	srv := jiratest.New(t)
	cfg := testConfig(t, srv)
	r, _ := newTestRunner(t, cfg, Options{})

	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sum.Pages)
	assert.FileExists(t, sum.Archive)
}

func TestRunUploadsArchive(t *testing.T) {
	srv := jiratest.New(t, issueTwo)
	cfg := testConfig(t, srv)
	r, _ := newTestRunner(t, cfg, Options{})
	up := &fakeUploader{}
	r.deps.Uploader = up

	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{sum.Archive}, up.uploaded)
	assert.Equal(t, "s3://bucket/TEST-backup.tar.gz", sum.Uploaded)
}

func TestRunCancelled(t *testing.T) {
	srv := jiratest.New(t, issueOne)
	cfg := testConfig(t, srv)
	r, _ := newTestRunner(t, cfg, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errs.IsFatal(err))
}
