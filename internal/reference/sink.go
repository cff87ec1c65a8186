package reference

import (
	"archive/tar"
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

// sink persists named outputs. Calls are serialized by the Writer.
type sink interface {
	put(name string, data []byte) error
	close() error
}

type rawSink struct {
	dir string
}

func newRawSink(staging string) (*rawSink, error) {
	dir := filepath.Join(staging, OutputsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &rawSink{dir: dir}, nil
}

func (s *rawSink) put(name string, data []byte) error {
	return os.WriteFile(filepath.Join(s.dir, name), data, 0o644)
}

func (s *rawSink) close() error { return nil }

// zstdSink writes a tar stream through a zstd encoder.
type zstdSink struct {
	f  *os.File
	zw *zstd.Encoder
	tw *tar.Writer
}

// Entries carry a fixed mtime so identical outputs give identical archives.
var entryTime = time.Unix(0, 0).UTC()

func newZstdSink(staging string) (*zstdSink, error) {
	f, err := os.Create(filepath.Join(staging, ZstdFile))
	if err != nil {
		return nil, err
	}
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		f.Close()
		return nil, err
	}
	return &zstdSink{f: f, zw: zw, tw: tar.NewWriter(zw)}, nil
}

func (s *zstdSink) put(name string, data []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(data)),
		ModTime:  entryTime,
		Typeflag: tar.TypeReg,
	}
	if err := s.tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := s.tw.Write(data)
	return err
}

func (s *zstdSink) close() error {
	err := s.tw.Close()
	if zerr := s.zw.Close(); err == nil {
		err = zerr
	}
	if serr := s.f.Sync(); err == nil {
		err = serr
	}
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// sevenZSink feeds each output to `7z u -mx1 -si<name> <archive>`.
type sevenZSink struct {
	archiver string
	archive  string
}

func newSevenZSink(staging, archiver string) *sevenZSink {
	return &sevenZSink{archiver: archiver, archive: filepath.Join(staging, SevenZFile)}
}

func (s *sevenZSink) put(name string, data []byte) error {
	cmd := exec.Command(s.archiver, "u", "-mx1", "-si"+name, s.archive)
	cmd.Stdin = bytes.NewReader(data)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(out.String())
		if msg == "" {
			return err
		}
		return fmt.Errorf("%w: %s", err, msg)
	}
	return nil
}

func (s *sevenZSink) close() error { return nil }
