// Package reference captures decoder output as the new trusted reference.
//
// A run stages a complete snapshot in a hidden directory next to the
// previous one and swaps it in only at Commit, so a failed or interrupted
// run leaves the prior snapshot untouched. A snapshot directory holds
//
//	reference.json             the catalog with every digest filled in
//	reference.tar.zst          all outputs (zstd)
//	reference.7z               all outputs (7z)
//	outputs/<name>.out         one file per test (none)
//
// with exactly one of the three artifact forms present.
package reference

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/roach88/decodecheck/internal/catalog"
	"github.com/roach88/decodecheck/internal/decode"
	"github.com/roach88/decodecheck/internal/digest"
	"github.com/roach88/decodecheck/internal/harness"
)

// Options configure a Writer.
type Options struct {
	// Archiver is the resolved 7z binary, required for Kind7z.
	Archiver string
	Logger   *slog.Logger
}

// Entry is what was persisted for one Job.
type Entry struct {
	Triple   catalog.Triple
	Artifact string
	Digest   digest.Set
}

// ArtifactName names the persisted output of t. Names cannot contain
// dots, so the result is unambiguous.
func ArtifactName(t catalog.Triple) string {
	return t.Decoder + "." + t.Sample + "." + t.Test + ".out"
}

// Writer builds one reference snapshot. Capture may be called from many
// goroutines; Commit and Abort are for the coordinating goroutine only.
type Writer struct {
	dir     string
	staging string
	kind    Kind
	lock    *flock.Flock
	logger  *slog.Logger

	mu      sync.Mutex
	sink    sink
	entries map[catalog.Triple]Entry
	done    bool
}

// Open locks dir and prepares a staging area for a new snapshot. It fails
// fast with *LockedError when another run holds the directory.
func Open(dir string, kind Kind, opts Options) (*Writer, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if kind == Kind7z && opts.Archiver == "" {
		return nil, errors.New("7z archive requested without an archiver")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create reference directory: %w", err)
	}

	lock := flock.New(filepath.Join(dir, LockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", dir, err)
	}
	if !locked {
		return nil, &LockedError{Dir: dir}
	}

	staging, err := os.MkdirTemp(dir, ".reference-")
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("create staging directory: %w", err)
	}

	var s sink
	switch kind {
	case KindZstd:
		s, err = newZstdSink(staging)
		if err != nil {
			err = &ArchiveError{Kind: kind, Op: "create", Err: err}
		}
	case Kind7z:
		s = newSevenZSink(staging, opts.Archiver)
	case KindRaw:
		s, err = newRawSink(staging)
	default:
		err = fmt.Errorf("unknown archive kind %q", kind)
	}
	if err != nil {
		_ = os.RemoveAll(staging)
		_ = lock.Unlock()
		return nil, err
	}

	logger.Debug("reference staging ready", "dir", dir, "staging", staging, "kind", string(kind))
	return &Writer{
		dir:     dir,
		staging: staging,
		kind:    kind,
		lock:    lock,
		logger:  logger,
		sink:    s,
		entries: make(map[catalog.Triple]Entry),
	}, nil
}

// Kind reports the persistence strategy of the run.
func (w *Writer) Kind() Kind { return w.kind }

// Capture digests the output of job and persists it. Expected digests on
// the job are ignored. A failure of a shared archive is an *ArchiveError;
// a failure to write a raw file concerns only this job.
func (w *Writer) Capture(job catalog.Job, captured *decode.Captured) (Entry, error) {
	entry := Entry{
		Triple:   job.Triple,
		Artifact: ArtifactName(job.Triple),
		Digest:   captured.Digests(),
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return Entry{}, errors.New("reference writer is closed")
	}
	if err := w.sink.put(entry.Artifact, captured.Stdout); err != nil {
		if w.kind == KindRaw {
			return Entry{}, fmt.Errorf("write %s: %w", entry.Artifact, err)
		}
		return Entry{}, &ArchiveError{Kind: w.kind, Op: "add " + entry.Artifact, Err: err}
	}
	w.entries[job.Triple] = entry
	return entry, nil
}

// Process is the reference-mode harness.Processor. Tool failures are not
// captured; archive failures abort the run.
func (w *Writer) Process(job catalog.Job, captured *decode.Captured) (harness.Outcome, error) {
	if captured.ExitStatus != 0 {
		return harness.ToolError(captured.ExitStatus, captured.Stderr), nil
	}
	if _, err := w.Capture(job, captured); err != nil {
		var archiveErr *ArchiveError
		if errors.As(err, &archiveErr) {
			return harness.Outcome{}, harness.Fatal(err)
		}
		return harness.Outcome{}, err
	}
	return harness.Pass(), nil
}

// Entries returns a copy of everything captured so far.
func (w *Writer) Entries() map[catalog.Triple]Entry {
	w.mu.Lock()
	defer w.mu.Unlock()
	return maps.Clone(w.entries)
}

// Commit finalizes the snapshot for every test in store. Every test must
// have been captured. The staged artifact replaces the previous one,
// artifacts of other kinds are removed, and the catalog is written last
// and atomically.
func (w *Writer) Commit(store *catalog.Store) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return errors.New("reference writer is closed")
	}
	defer w.release()

	sets := make(map[catalog.Triple]digest.Set, len(w.entries))
	var missing []string
	for _, t := range store.Triples() {
		e, ok := w.entries[t]
		if !ok {
			missing = append(missing, t.String())
			continue
		}
		sets[t] = e.Digest
	}
	if len(missing) > 0 {
		_ = w.sink.close()
		return &IncompleteError{Missing: missing}
	}

	if err := w.sink.close(); err != nil {
		return &ArchiveError{Kind: w.kind, Op: "finish", Err: err}
	}

	artifact := w.kind.artifact()
	target := filepath.Join(w.dir, artifact)
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("remove previous %s: %w", artifact, err)
	}
	if err := os.Rename(filepath.Join(w.staging, artifact), target); err != nil {
		return fmt.Errorf("install %s: %w", artifact, err)
	}
	for _, k := range []Kind{KindZstd, Kind7z, KindRaw} {
		if k == w.kind {
			continue
		}
		if err := os.RemoveAll(filepath.Join(w.dir, k.artifact())); err != nil {
			return fmt.Errorf("remove stale %s: %w", k.artifact(), err)
		}
	}

	snapshot := store.WithDigests(sets)
	if err := catalog.WriteFileAtomic(filepath.Join(w.dir, CatalogFile), snapshot.Marshal(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", CatalogFile, err)
	}

	w.logger.Info("reference snapshot written", "dir", w.dir, "kind", string(w.kind), "tests", len(sets))
	return nil
}

// Abort discards the staged snapshot. It is safe to call after Commit.
func (w *Writer) Abort() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return
	}
	_ = w.sink.close()
	w.release()
	w.logger.Debug("reference staging discarded", "dir", w.dir)
}

// release removes staging and unlocks. Callers hold mu.
func (w *Writer) release() {
	w.done = true
	if err := os.RemoveAll(w.staging); err != nil {
		w.logger.Warn("remove staging directory", "dir", w.staging, "err", err)
	}
	if err := w.lock.Unlock(); err != nil {
		w.logger.Warn("unlock reference directory", "dir", w.dir, "err", err)
	}
}
