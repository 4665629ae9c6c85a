// Package archive packs a finished backup tree into a single .tar.gz file.
package archive

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"jirabackup/pkg/logger"
)

// Extension is appended to the archive name
const Extension = ".tar.gz"

// Archiver writes gzip-compressed tarballs
type Archiver struct {
	level  int
	logger logger.Logger
}

// New creates an Archiver using the default gzip compression level
func New(log logger.Logger) *Archiver {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Archiver{level: gzip.DefaultCompression, logger: log}
}

// Compress archives the contents of root into <outDir>/<name>.tar.gz and
// returns the archive path. Member names are relative to root and start
// with "./". The archive only appears under its final name once complete.
func (a *Archiver) Compress(ctx context.Context, root, name, outDir string) (string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return "", fmt.Errorf("backup root: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("backup root %s is not a directory", root)
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	final := filepath.Join(outDir, name+Extension)
	tmp, err := os.CreateTemp(outDir, "."+name+"-*"+Extension)
	if err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	files, err := a.write(ctx, tmp, root, final, tmpName)
	if closeErr := tmp.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close archive: %w", closeErr)
	}
	if err != nil {
		return "", err
	}

	if err := os.Rename(tmpName, final); err != nil {
		return "", fmt.Errorf("failed to move archive into place: %w", err)
	}

	a.logger.InfoWithFields("Archive written", map[string]interface{}{
		"archive": final,
		"files":   files,
	})
	return final, nil
}

// write streams root into out. The paths in skip are left out, so an archive
// placed inside root never includes itself or its temp file.
func (a *Archiver) write(ctx context.Context, out io.Writer, root string, skip ...string) (int, error) {
	gz, err := gzip.NewWriterLevel(out, a.level)
	if err != nil {
		return 0, fmt.Errorf("invalid compression level: %w", err)
	}
	tw := tar.NewWriter(gz)

	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		abs, _ := filepath.Abs(p)
		skipped[abs] = true
	}
	files := 0

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if abs, _ := filepath.Abs(path); skipped[abs] {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		member := "./"
		if rel != "." {
			member += filepath.ToSlash(rel)
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() && !info.IsDir() {
			return nil
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = member
		if info.IsDir() && !strings.HasSuffix(hdr.Name, "/") {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(tw, f)
		f.Close()
		if err != nil {
			return err
		}
		files++
		return nil
	})
	if walkErr != nil {
		return files, fmt.Errorf("failed to archive %s: %w", root, walkErr)
	}

	if err := tw.Close(); err != nil {
		return files, fmt.Errorf("failed to finish tar stream: %w", err)
	}
	if err := gz.Close(); err != nil {
		return files, fmt.Errorf("failed to finish gzip stream: %w", err)
	}
	return files, nil
}
