package reference

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/roach88/decodecheck/internal/catalog"
	"github.com/roach88/decodecheck/internal/digest"
)

// ErrNotInSnapshot is returned when an artifact is absent.
var ErrNotInSnapshot = errors.New("artifact not in snapshot")

// ReadArtifact reads one persisted output back from the snapshot in dir.
// opts.Archiver is used for Kind7z.
func ReadArtifact(dir string, kind Kind, name string, opts Options) ([]byte, error) {
	switch kind {
	case KindRaw:
		data, err := os.ReadFile(filepath.Join(dir, OutputsDir, name))
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", name, ErrNotInSnapshot)
		}
		return data, err
	case KindZstd:
		return readZstd(filepath.Join(dir, ZstdFile), name)
	case Kind7z:
		return read7z(filepath.Join(dir, SevenZFile), name, opts.Archiver)
	default:
		return nil, fmt.Errorf("unknown archive kind %q", kind)
	}
}

func readZstd(path, name string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil, fmt.Errorf("%s: %w", name, ErrNotInSnapshot)
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if hdr.Name == name {
			return io.ReadAll(tr)
		}
	}
}

func read7z(path, name, archiver string) ([]byte, error) {
	if archiver == "" {
		archiver = DefaultArchiver
	}
	cmd := exec.Command(archiver, "e", "-so", path, name)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("extract %s: %w: %s", name, err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// CheckResult is the outcome of re-digesting one persisted output.
type CheckResult struct {
	Triple     catalog.Triple    `json:"triple"`
	Mismatches []digest.Mismatch `json:"mismatches,omitempty"`
	Err        string            `json:"error,omitempty"`
}

// OK reports whether the artifact matched its catalog entry.
func (r CheckResult) OK() bool {
	return r.Err == "" && len(r.Mismatches) == 0
}

// Check reloads the snapshot in dir and re-digests every persisted output
// against reference.json. Results follow catalog order.
func Check(dir string, opts Options) ([]CheckResult, error) {
	kind, err := DetectKind(dir)
	if err != nil {
		return nil, err
	}
	store, err := catalog.LoadFiles(filepath.Join(dir, CatalogFile))
	if err != nil {
		return nil, err
	}

	var out []CheckResult
	for _, t := range store.Triples() {
		res := CheckResult{Triple: t}
		test, _ := store.Test(t)
		data, err := ReadArtifact(dir, kind, ArtifactName(t), opts)
		switch {
		case err != nil:
			res.Err = err.Error()
		case test.Digest == nil:
			res.Err = "no digest recorded"
		default:
			res.Mismatches = digest.Compare(*test.Digest, digest.Sum(data))
		}
		out = append(out, res)
	}
	return out, nil
}
