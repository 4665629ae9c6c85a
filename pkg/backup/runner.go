package backup

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"jirabackup/pkg/checkpoint"
	"jirabackup/pkg/config"
	"jirabackup/pkg/jira"
	"jirabackup/pkg/logger"
	"jirabackup/pkg/metadata"
	"jirabackup/pkg/ratelimit"
	"jirabackup/pkg/upload"
)

// DuplicatePolicy decides what happens to an issue reference seen twice in one run
type DuplicatePolicy string

const (
	// Redownload fetches and rewrites the issue again
	Redownload DuplicatePolicy = config.DuplicatesRedownload
	// Skip leaves the entry written the first time
	Skip DuplicatePolicy = config.DuplicatesSkip
)

// Settings are the per-run parameters
type Settings struct {
	Board      string
	URL        string
	Name       string
	Start      int
	BatchSize  int
	Duplicates DuplicatePolicy
	ArchiveDir string

	// Resume continues from a saved checkpoint instead of Start
	Resume bool
}

// Deps are the collaborators of a Runner. Checkpoints, Uploader and
// Observer are optional.
type Deps struct {
	Source      IssueSource
	Writer      EntryWriter
	Archiver    Compressor
	Pacer       *ratelimit.Pacer
	Checkpoints *checkpoint.Manager
	Uploader    upload.Uploader
	Observer    Observer
}

// Summary reports what a run did
type Summary struct {
	RunID       string
	Total       int
	Start       int
	Pages       int
	Issues      int
	Duplicates  int
	Attachments int
	Bytes       int64
	Archive     string
	Uploaded    string
	Requests    int64
	Retries     int64
	Slept       time.Duration
	Duration    time.Duration
}

// Runner performs one board backup
type Runner struct {
	settings Settings
	deps     Deps
	logger   logger.Logger
}

// NewRunner creates a Runner from explicit collaborators
func NewRunner(settings Settings, deps Deps, log logger.Logger) *Runner {
	if log == nil {
		log = logger.GetLogger()
	}
	if settings.Duplicates == "" {
		settings.Duplicates = Redownload
	}
	if deps.Pacer == nil {
		deps.Pacer = ratelimit.NewPacer(0)
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	return &Runner{settings: settings, deps: deps, logger: log}
}

// Run walks the whole board, writes every entry, then archives the backup
// root. The returned Summary is filled as far as the run got, also on error.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	started := time.Now()
	s := r.settings
	sum := &Summary{RunID: uuid.NewString(), Start: s.Start}
	log := r.logger.WithFields(map[string]interface{}{
		"run_id": sum.RunID,
		"board":  s.Board,
	})
	defer func() {
		sum.Duration = time.Since(started)
		sum.Slept = r.deps.Pacer.Slept()
		if st, ok := r.deps.Source.(interface{ Stats() jira.Stats }); ok {
			stats := st.Stats()
			sum.Requests, sum.Retries = stats.Requests, stats.Retries
		}
	}()

	total, err := r.deps.Source.Total(ctx, s.Board)
	if err != nil {
		return sum, fmt.Errorf("count issues of %s: %w", s.Board, err)
	}
	sum.Total = total

	current := s.Start
	root := r.deps.Writer.Root()
	manifest := metadata.New(sum.RunID, s.Board, s.URL, total, current)

	cp, resumed, err := r.openCheckpoint(sum, total, log)
	if err != nil {
		return sum, err
	}
	if resumed {
		current = cp.NextOffset
		sum.Start = current
		manifest.StartOffset = current
		if metadata.Exists(root) {
			if prev, err := metadata.Load(root); err == nil {
				manifest.Merge(prev)
			} else {
				log.WithError(err).Warn("Ignoring unreadable manifest")
			}
		}
	}

	log.InfoWithFields("Starting backup", map[string]interface{}{
		"total":      total,
		"start":      current,
		"batch_size": s.BatchSize,
		"root":       root,
	})
	r.deps.Observer.Started(s.Board, total, current)

	seen := make(map[string]bool)
	for current < total {
		end := current + s.BatchSize
		if end > total {
			end = total
		}
		log.Info(fmt.Sprintf("Downloading issues from %s, %d to %d of %d", s.Board, current, end, total))
		r.deps.Observer.PageStarted(current, end, total)

		page, err := r.deps.Source.ListIssues(ctx, s.Board, current, s.BatchSize)
		if err != nil {
			return sum, err
		}
		sum.Pages++

		for _, ref := range page.Issues {
			if seen[ref.Self] {
				sum.Duplicates++
				log.WarnWithFields(fmt.Sprintf("Duplicate of %s", ref.Self), map[string]interface{}{
					"issue":  ref.Key,
					"policy": string(s.Duplicates),
				})
				r.deps.Observer.Duplicate(ref.Key)
				if s.Duplicates == Skip {
					continue
				}
			}
			seen[ref.Self] = true

			if err := r.backupIssue(ctx, ref, root, manifest, sum); err != nil {
				return sum, err
			}
		}

		logger.LogPage(log, s.Board, current, len(page.Issues), total)
		current += s.BatchSize
		r.saveProgress(cp, current, len(page.Issues), manifest, root, log)

		if err := r.deps.Pacer.Pause(ctx); err != nil {
			return sum, err
		}
	}

	manifest.Complete()
	if err := manifest.Save(root); err != nil {
		return sum, fmt.Errorf("write manifest: %w", err)
	}

	name := s.Name
	if name == "" {
		name = s.Board + "-backup"
	}
	archivePath, err := r.deps.Archiver.Compress(ctx, root, name, s.ArchiveDir)
	if err != nil {
		return sum, fmt.Errorf("archive %s: %w", root, err)
	}
	sum.Archive = archivePath

	if r.deps.Checkpoints != nil {
		if err := r.deps.Checkpoints.Delete(); err != nil {
			log.WithError(err).Warn("Failed to delete checkpoint")
		}
	}

	if r.deps.Uploader != nil {
		location, err := r.deps.Uploader.Upload(ctx, archivePath)
		if err != nil {
			return sum, fmt.Errorf("upload archive: %w", err)
		}
		sum.Uploaded = location
	}

	r.deps.Observer.Finished(archivePath)
	log.InfoWithFields("Backup completed", map[string]interface{}{
		"issues":      sum.Issues,
		"pages":       sum.Pages,
		"duplicates":  sum.Duplicates,
		"attachments": sum.Attachments,
		"bytes":       sum.Bytes,
		"archive":     archivePath,
		"entries":     len(manifest.Entries),
		"tree_bytes":  manifest.Bytes(),
		"tree_files":  manifest.Attachments(),
		"pauses":      r.deps.Pacer.Pauses(),
		"slept":       r.deps.Pacer.Slept(),
		"duration":    time.Since(started).Round(time.Millisecond).String(),
	})
	return sum, nil
}

// backupIssue fetches one referenced issue and writes its entry
func (r *Runner) backupIssue(ctx context.Context, ref jira.IssueRef, root string, manifest *metadata.Manifest, sum *Summary) error {
	issue, err := r.deps.Source.FetchIssue(ctx, ref.Self)
	if err != nil {
		return err
	}

	entry, err := r.deps.Writer.WriteBackup(ctx, issue)
	if err != nil {
		return err
	}

	sum.Issues++
	sum.Attachments += len(entry.Attachments)
	sum.Bytes += entry.Bytes
	manifest.Record(metadata.FromEntry(entry, root))
	r.deps.Observer.EntryWritten(entry)
	return nil
}

// openCheckpoint loads the checkpoint to resume from, or starts a new one.
// A checkpoint that cannot be created only disables checkpointing.
func (r *Runner) openCheckpoint(sum *Summary, total int, log logger.Logger) (*checkpoint.Checkpoint, bool, error) {
	mgr := r.deps.Checkpoints
	if mgr == nil {
		return nil, false, nil
	}

	if r.settings.Resume {
		cp, err := mgr.Load()
		if err != nil {
			return nil, false, fmt.Errorf("failed to load checkpoint: %w", err)
		}
		if cp != nil {
			log.InfoWithFields("Resuming from checkpoint", map[string]interface{}{
				"previous_run": cp.RunID,
				"next_offset":  cp.NextOffset,
				"issues":       cp.Issues,
			})
			cp.Total = total
			return cp, true, nil
		}
		log.Info("No checkpoint found, starting at the configured offset")
	} else if mgr.Exists() {
		log.WarnWithFields("Previous checkpoint found, starting over", map[string]interface{}{
			"path": mgr.Path(),
			"hint": "use --resume to continue where it stopped",
		})
	}

	cp, err := mgr.Create(sum.RunID, total, r.settings.BatchSize, r.settings.Start)
	if err != nil {
		log.WithError(err).Warn("Failed to create checkpoint")
		return nil, false, nil
	}
	return cp, false, nil
}

// saveProgress records a finished page. Failures are logged, the entries
// themselves are already on disk.
func (r *Runner) saveProgress(cp *checkpoint.Checkpoint, next, issues int, manifest *metadata.Manifest, root string, log logger.Logger) {
	if cp != nil {
		if err := r.deps.Checkpoints.UpdateProgress(cp, next, issues); err != nil {
			log.WithError(err).Warn("Failed to update checkpoint progress")
		}
	}
	if err := manifest.Save(root); err != nil {
		log.WithError(err).Warn("Failed to save manifest")
	}
}
