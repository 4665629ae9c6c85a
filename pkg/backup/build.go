package backup

import (
	"context"
	"fmt"

	"jirabackup/internal/downloader"
	"jirabackup/pkg/archive"
	"jirabackup/pkg/checkpoint"
	"jirabackup/pkg/config"
	"jirabackup/pkg/jira"
	"jirabackup/pkg/logger"
	"jirabackup/pkg/ratelimit"
	"jirabackup/pkg/storage"
	"jirabackup/pkg/upload"
)

// Options are the run switches that do not belong in the config file
type Options struct {
	Resume bool

	// NoCheckpoint disables saving the paging position
	NoCheckpoint bool

	// CheckpointDir overrides the per-user data directory
	CheckpointDir string

	Observer Observer
}

// New wires a Runner with the real tracker client, writer and archiver
// described by cfg
func New(ctx context.Context, cfg *config.Config, opts Options, log logger.Logger) (*Runner, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	client, err := jira.NewClient(jira.Options{
		BaseURL:       cfg.Jira.URL,
		Username:      cfg.Jira.Username,
		Password:      cfg.Jira.Password,
		Timeout:       cfg.Jira.RequestTimeout,
		MaxRetries:    cfg.Retry.MaxRetries,
		BackoffFactor: cfg.Retry.BackoffFactor,
		MaxBackoff:    cfg.Retry.MaxBackoff,
		Limiter:       ratelimit.PerMinute(cfg.RateLimit.RequestsPerMinute),
		Logger:        log,
	})
	if err != nil {
		return nil, err
	}

	dl := downloader.New(client, cfg.Download.ChunkSize, cfg.Download.Timeout, log)
	writer, err := storage.NewWriter(cfg.BackupRoot(), dl, log)
	if err != nil {
		return nil, err
	}

	deps := Deps{
		Source:   client,
		Writer:   writer,
		Archiver: archive.New(log),
		Pacer:    ratelimit.NewPacer(cfg.Backup.SleepTime),
		Observer: opts.Observer,
	}

	if !opts.NoCheckpoint {
		target := checkpoint.Target{URL: cfg.Jira.URL, Board: cfg.Jira.Board, BackupRoot: cfg.BackupRoot()}
		deps.Checkpoints, err = checkpoint.NewManager(opts.CheckpointDir, target, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create checkpoint manager: %w", err)
		}
	}

	uploader, err := upload.FromConfig(ctx, &cfg.Upload, log)
	if err != nil {
		return nil, err
	}
	if uploader != nil {
		deps.Uploader = uploader
	}

	settings := Settings{
		Board:      cfg.Jira.Board,
		URL:        cfg.Jira.URL,
		Name:       cfg.BackupName(),
		Start:      cfg.Backup.Start,
		BatchSize:  cfg.Backup.BatchSize,
		Duplicates: DuplicatePolicy(cfg.Backup.Duplicates),
		ArchiveDir: cfg.Backup.ArchiveDir,
		Resume:     opts.Resume,
	}
	return NewRunner(settings, deps, log), nil
}
