package reference

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
)

// Kind selects how captured outputs are persisted for a whole run.
type Kind string

const (
	// KindZstd stores every output in one zstd-compressed tar stream.
	KindZstd Kind = "zstd"
	// Kind7z appends every output to one archive through the external
	// 7z archiver.
	Kind7z Kind = "7z"
	// KindRaw writes one plain file per Job.
	KindRaw Kind = "none"
)

// DefaultArchiver is the 7z binary looked up when none is configured.
const DefaultArchiver = "7z"

// File names inside a snapshot directory.
const (
	CatalogFile = "reference.json"
	ZstdFile    = "reference.tar.zst"
	SevenZFile  = "reference.7z"
	OutputsDir  = "outputs"
	LockFile    = ".decodecheck.lock"
)

// ParseKind accepts the names used on the command line and in config.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "zstd", "":
		return KindZstd, nil
	case "7z":
		return Kind7z, nil
	case "none", "raw":
		return KindRaw, nil
	default:
		return "", fmt.Errorf("unknown archive kind %q (want zstd, 7z or none)", s)
	}
}

// artifact is the path of the kind's artifact relative to a snapshot dir.
func (k Kind) artifact() string {
	switch k {
	case KindZstd:
		return ZstdFile
	case Kind7z:
		return SevenZFile
	default:
		return OutputsDir
	}
}

// ResolveKind decides the persistence strategy once for the run. A 7z
// request whose archiver cannot be found falls back to raw files with a
// warning; it never falls back per Job. The returned archiver path is
// only meaningful for Kind7z.
func ResolveKind(kind Kind, archiver string, logger *slog.Logger) (Kind, string) {
	if kind != Kind7z {
		return kind, ""
	}
	if archiver == "" {
		archiver = DefaultArchiver
	}
	path, err := exec.LookPath(archiver)
	if err != nil {
		if logger != nil {
			logger.Warn("archiver not found, writing raw output files instead", "archiver", archiver, "err", err)
		}
		return KindRaw, ""
	}
	return Kind7z, path
}

// DetectKind reports which artifact a snapshot directory holds.
func DetectKind(dir string) (Kind, error) {
	for _, k := range []Kind{KindZstd, Kind7z, KindRaw} {
		if _, err := os.Stat(filepath.Join(dir, k.artifact())); err == nil {
			return k, nil
		}
	}
	return "", fmt.Errorf("no reference artifacts in %s", dir)
}
