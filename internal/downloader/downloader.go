package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	errs "jirabackup/pkg/errors"
	"jirabackup/pkg/logger"
)

// DefaultChunkSize is the size of each read from the response body
const DefaultChunkSize = 10 * 1024

// Getter issues authenticated GET requests. *jira.Client satisfies it.
type Getter interface {
	Get(ctx context.Context, url string) (*http.Response, error)
}

// Result describes one finished download
type Result struct {
	Path     string
	Bytes    int64
	Chunks   int
	Duration time.Duration
}

// Downloader streams attachments to disk one at a time
type Downloader struct {
	client    Getter
	chunkSize int
	timeout   time.Duration
	logger    logger.Logger
}

// New creates a Downloader. A chunkSize <= 0 selects DefaultChunkSize; a
// timeout of zero leaves each download bounded only by the caller's context.
func New(client Getter, chunkSize int, timeout time.Duration, log logger.Logger) *Downloader {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Downloader{
		client:    client,
		chunkSize: chunkSize,
		timeout:   timeout,
		logger:    log,
	}
}

// Download streams url into dir/filename in fixed-size chunks. filename must
// already be a single path element. An existing file is truncated. If the
// stream breaks the partial file is left in place and an error is returned.
func (d *Downloader) Download(ctx context.Context, filename, url, dir string) (Result, error) {
	if filename == "" || filename != filepath.Base(filename) || filename == "." || filename == ".." {
		return Result{}, fmt.Errorf("invalid attachment filename %q", filename)
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	path := filepath.Join(dir, filename)

	resp, err := d.client.Get(ctx, url)
	if err != nil {
		return Result{}, fmt.Errorf("download %s: %w", filename, err)
	}
	defer resp.Body.Close()

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return Result{}, fmt.Errorf("failed to create %s: %w", path, err)
	}

	result := Result{Path: path}
	written, chunks, copyErr := d.copyChunks(file, resp.Body)
	result.Bytes, result.Chunks = written, chunks

	if err := file.Close(); err != nil && copyErr == nil {
		copyErr = fmt.Errorf("failed to close %s: %w", path, err)
	}
	result.Duration = time.Since(start)

	if copyErr != nil {
		if ctx.Err() != nil {
			return result, fmt.Errorf("download %s: %w", filename, ctx.Err())
		}
		return result, fmt.Errorf("download %s: %w", filename, copyErr)
	}

	d.logger.DebugWithFields("attachment downloaded", map[string]interface{}{
		"file":     filename,
		"bytes":    result.Bytes,
		"chunks":   result.Chunks,
		"duration": result.Duration,
	})
	return result, nil
}

// copyChunks reads src in chunkSize pieces and writes each piece as it arrives.
// Only the final chunk may be short.
func (d *Downloader) copyChunks(dst io.Writer, src io.Reader) (int64, int, error) {
	buf := make([]byte, d.chunkSize)
	var written int64
	chunks := 0

	for {
		n, readErr := fill(src, buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return written, chunks, fmt.Errorf("write failed: %w", err)
			}
			written += int64(n)
			chunks++
		}

		if readErr == nil {
			continue
		}
		if errors.Is(readErr, io.EOF) {
			return written, chunks, nil
		}
		return written, chunks, errs.Network("", fmt.Errorf("stream interrupted after %d bytes: %w", written, readErr))
	}
}

// fill reads until buf is full or src fails. Unlike io.ReadFull it reports a
// clean end of stream as io.EOF even after a partial read, so a body cut
// short by the server (io.ErrUnexpectedEOF) stays distinguishable.
func fill(src io.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := src.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
