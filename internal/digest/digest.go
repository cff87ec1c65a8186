// Package digest computes the fingerprint used to compare decoder output
// against a reference.
//
// A Set holds the byte size plus three independent hashes (CRC32/IEEE,
// BLAKE2b-512 and SHA-256), all computed over the exact captured bytes.
// No normalization is applied: trailing whitespace and line endings are
// part of the fingerprint. Test mode and reference mode use the same code
// path so their results are directly comparable.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"hash/crc32"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Field names, in the order Compare reports them.
const (
	FieldSize    = "size"
	FieldCRC     = "crc"
	FieldBLAKE2b = "blake2b"
	FieldSHA256  = "sha256"
)

// Set is the digest set of one captured output.
type Set struct {
	Size    int64
	CRC32   uint32
	BLAKE2b [blake2b.Size]byte
	SHA256  [sha256.Size]byte
}

// Sum computes the digest set of b.
func Sum(b []byte) Set {
	return Set{
		Size:    int64(len(b)),
		CRC32:   crc32.ChecksumIEEE(b),
		BLAKE2b: blake2b.Sum512(b),
		SHA256:  sha256.Sum256(b),
	}
}

// CRCString formats the checksum the way catalogs store it: "0x" followed
// by lowercase hex without zero padding.
func (s Set) CRCString() string {
	return "0x" + strconv.FormatUint(uint64(s.CRC32), 16)
}

// BLAKE2bHex returns the lowercase hex BLAKE2b-512 digest.
func (s Set) BLAKE2bHex() string {
	return hex.EncodeToString(s.BLAKE2b[:])
}

// SHA256Hex returns the lowercase hex SHA-256 digest.
func (s Set) SHA256Hex() string {
	return hex.EncodeToString(s.SHA256[:])
}

func (s Set) String() string {
	return fmt.Sprintf("size=%d crc=%s blake2b=%s sha256=%s", s.Size, s.CRCString(), s.BLAKE2bHex(), s.SHA256Hex())
}

// Mismatch describes one field that differs between an expected and an
// actual digest set.
type Mismatch struct {
	Field    string `json:"field"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s: expected %s, got %s", m.Field, m.Expected, m.Actual)
}

// Compare returns every field that differs between expected and actual,
// in the fixed order size, crc, blake2b, sha256. An empty result means the
// sets are equal. Comparison is exact.
func Compare(expected, actual Set) []Mismatch {
	var out []Mismatch
	if expected.Size != actual.Size {
		out = append(out, Mismatch{
			Field:    FieldSize,
			Expected: strconv.FormatInt(expected.Size, 10),
			Actual:   strconv.FormatInt(actual.Size, 10),
		})
	}
	if expected.CRC32 != actual.CRC32 {
		out = append(out, Mismatch{Field: FieldCRC, Expected: expected.CRCString(), Actual: actual.CRCString()})
	}
	if expected.BLAKE2b != actual.BLAKE2b {
		out = append(out, Mismatch{Field: FieldBLAKE2b, Expected: expected.BLAKE2bHex(), Actual: actual.BLAKE2bHex()})
	}
	if expected.SHA256 != actual.SHA256 {
		out = append(out, Mismatch{Field: FieldSHA256, Expected: expected.SHA256Hex(), Actual: actual.SHA256Hex()})
	}
	return out
}

// ParseCRC parses a "0x"-prefixed hexadecimal CRC32 as stored in catalogs.
func ParseCRC(s string) (uint32, error) {
	digits, ok := strings.CutPrefix(s, "0x")
	if !ok {
		digits, ok = strings.CutPrefix(s, "0X")
	}
	if !ok || digits == "" {
		return 0, fmt.Errorf("crc %q: want 0x-prefixed hex", s)
	}
	v, err := strconv.ParseUint(digits, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("crc %q: %w", s, err)
	}
	return uint32(v), nil
}

// ParseHex decodes a hex digest into dst, which must be exactly
// len(dst) bytes long once decoded. Upper and lower case are accepted.
func ParseHex(dst []byte, s string) error {
	if len(s) != hex.EncodedLen(len(dst)) {
		return fmt.Errorf("digest %q: want %d hex characters, got %d", s, hex.EncodedLen(len(dst)), len(s))
	}
	if _, err := hex.Decode(dst, []byte(s)); err != nil {
		return fmt.Errorf("digest %q: %w", s, err)
	}
	return nil
}

// Hasher computes a Set incrementally. It implements io.Writer so it can
// sit behind an io.MultiWriter while output is still streaming.
//
// A Hasher is not safe for concurrent use.
type Hasher struct {
	size int64
	crc  hash.Hash32
	b2   hash.Hash
	sha  hash.Hash
}

// NewHasher returns an empty Hasher.
func NewHasher() *Hasher {
	b2, err := blake2b.New512(nil)
	if err != nil {
		// Only reachable with an oversized key.
		panic(fmt.Sprintf("digest: blake2b.New512: %v", err))
	}
	return &Hasher{
		crc: crc32.NewIEEE(),
		b2:  b2,
		sha: sha256.New(),
	}
}

// Write adds p to all running hashes. It never returns an error.
func (h *Hasher) Write(p []byte) (int, error) {
	h.size += int64(len(p))
	h.crc.Write(p)
	h.b2.Write(p)
	h.sha.Write(p)
	return len(p), nil
}

// Sum returns the digest set of everything written so far.
func (h *Hasher) Sum() Set {
	s := Set{Size: h.size, CRC32: h.crc.Sum32()}
	copy(s.BLAKE2b[:], h.b2.Sum(nil))
	copy(s.SHA256[:], h.sha.Sum(nil))
	return s
}
