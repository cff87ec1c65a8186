package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Marshal renders the store as a tab-indented JSON catalog in catalog
// order. Test fields are written in a fixed order (options, annotate,
// desc, size, crc, blake2b, sha256) and empty optional strings are
// omitted, so the output is byte-for-byte reproducible.
func (s *Store) Marshal() []byte {
	var b bytes.Buffer
	b.WriteString("{")
	firstDecoder := true
	for d := range s.decoders.values() {
		comma(&b, &firstDecoder)
		indent(&b, 1)
		writeKey(&b, d.name)
		b.WriteString("{")
		firstSample := true
		for smp := range d.samples.values() {
			comma(&b, &firstSample)
			indent(&b, 2)
			writeKey(&b, smp.Name)
			b.WriteString("{")
			firstTest := true
			if smp.Path != "" {
				comma(&b, &firstTest)
				indent(&b, 3)
				writeKey(&b, PathKey)
				writeString(&b, smp.Path)
			}
			for t := range smp.tests.values() {
				comma(&b, &firstTest)
				indent(&b, 3)
				writeKey(&b, t.Name)
				writeTest(&b, t)
			}
			closeObject(&b, 2, firstTest)
		}
		closeObject(&b, 1, firstSample)
	}
	closeObject(&b, 0, firstDecoder)
	b.WriteString("\n")
	return b.Bytes()
}

func writeTest(b *bytes.Buffer, t *Test) {
	b.WriteString("{")
	first := true
	field := func(key string, write func()) {
		comma(b, &first)
		indent(b, 4)
		writeKey(b, key)
		write()
	}
	for _, f := range []struct{ key, val string }{
		{"options", t.Options},
		{"annotate", t.Annotate},
		{"desc", t.Desc},
	} {
		if f.val != "" {
			field(f.key, func() { writeString(b, f.val) })
		}
	}
	if d := t.Digest; d != nil {
		field("size", func() { b.WriteString(strconv.FormatInt(d.Size, 10)) })
		field("crc", func() { writeString(b, d.CRCString()) })
		field("blake2b", func() { writeString(b, d.BLAKE2bHex()) })
		field("sha256", func() { writeString(b, d.SHA256Hex()) })
	}
	closeObject(b, 3, first)
}

func comma(b *bytes.Buffer, first *bool) {
	if !*first {
		b.WriteString(",")
	}
	*first = false
}

func indent(b *bytes.Buffer, depth int) {
	b.WriteString("\n")
	for range depth {
		b.WriteByte('\t')
	}
}

func closeObject(b *bytes.Buffer, depth int, empty bool) {
	if !empty {
		indent(b, depth)
	}
	b.WriteString("}")
}

func writeKey(b *bytes.Buffer, k string) {
	writeString(b, k)
	b.WriteString(": ")
}

// writeString emits a JSON string without HTML escaping.
func writeString(b *bytes.Buffer, s string) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s) // strings always encode
	b.Write(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
}

// WriteFile writes the store to path atomically.
func (s *Store) WriteFile(path string) error {
	return WriteFileAtomic(path, s.Marshal(), 0o644)
}

// WriteFileAtomic replaces path with data so that readers observe either
// the old content or the complete new content, never a partial write.
// The data goes to a temporary file in the same directory, is synced and
// then renamed over path.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing %s: %w", tmp.Name(), err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("syncing %s: %w", tmp.Name(), err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmp.Name(), err)
	}
	if err = os.Chmod(tmp.Name(), perm); err != nil {
		return fmt.Errorf("chmod %s: %w", tmp.Name(), err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
