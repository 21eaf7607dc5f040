// Package patcher applies stored translations back to project files. Files
// patch independently; a bad entry skips that entry, a bad file skips that
// file, and the report carries per-file outcomes either way.
package patcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"rmloc/internal/project"
	"rmloc/internal/store"
	"rmloc/internal/textutil"
	"rmloc/internal/walker"
	"rmloc/internal/worker"

	"github.com/rs/zerolog/log"
)

// FileStatus is the outcome of patching one file.
type FileStatus struct {
	File      string
	Applied   int
	Missing   int
	Conflicts []walker.Problem
	// Err is set on a document-level failure (unreadable, malformed); the
	// file was left untouched.
	Err error
}

// Report aggregates the batch.
type Report struct {
	Files []FileStatus
}

// Applied totals applied translations across the batch.
func (r Report) Applied() int {
	n := 0
	for _, f := range r.Files {
		n += f.Applied
	}
	return n
}

// Failed lists files that could not be processed at all.
func (r Report) Failed() []FileStatus {
	var out []FileStatus
	for _, f := range r.Files {
		if f.Err != nil {
			out = append(out, f)
		}
	}
	return out
}

// Patcher rewrites project files from a populated store.
type Patcher struct {
	store *store.Store
	lang  string
}

// New creates a patcher for one target language. The store is only read.
func New(st *store.Store, lang string) *Patcher {
	return &Patcher{store: st, lang: lang}
}

// PatchProject patches every file, fanning out across files and reducing the
// results single-threaded. The store is shared read-only, so the walkers need
// no coordination.
func (p *Patcher) PatchProject(ctx context.Context, files []project.File, workers int) Report {
	pool := worker.NewPool[project.File, FileStatus](workers,
		func(ctx context.Context, f project.File) (FileStatus, error) {
			return p.patchFile(f), nil
		},
	)

	var report Report
	for _, task := range pool.Execute(ctx, files) {
		status := task.Result
		if task.Err != nil {
			status = FileStatus{File: task.Input.Rel, Err: task.Err}
		}
		report.Files = append(report.Files, status)

		for _, c := range status.Conflicts {
			ev := log.Warn().Str("file", status.File).Str("path", c.Path)
			var stale *walker.StaleOriginalError
			if errors.As(c.Err, &stale) {
				ev = ev.Str("current", textutil.Truncate(stale.Current, 60))
			}
			ev.Err(c.Err).Msg("Entry skipped")
		}
		switch {
		case status.Err != nil:
			log.Error().Str("file", status.File).Err(status.Err).Msg("File not patched")
		case status.Applied > 0:
			log.Info().Str("file", status.File).Int("applied", status.Applied).Int("missing", status.Missing).Msg("File patched")
		}
	}
	return report
}

func (p *Patcher) patchFile(f project.File) FileStatus {
	status := FileStatus{File: f.Rel}

	doc, err := project.LoadDocument(f)
	if err != nil {
		status.Err = err
		return status
	}

	lookup := func(id string) (string, string, bool) {
		return p.store.Translation(id, p.lang)
	}
	stats := walker.Patch(doc, f.Category, f.Rel, lookup)
	status.Applied = stats.Applied
	status.Missing = stats.Missing
	status.Conflicts = stats.Conflicts

	if stats.Applied == 0 {
		// Nothing changed; leave the original bytes alone.
		return status
	}

	out, err := doc.Encode()
	if err != nil {
		status.Err = err
		return status
	}
	if err := writeFileAtomic(f.Path, out); err != nil {
		status.Err = err
		return status
	}
	return status
}

// writeFileAtomic writes via a temp file in the target directory and renames
// it into place, so an interrupted write cannot corrupt a game file.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace file: %w", err)
	}
	return nil
}
