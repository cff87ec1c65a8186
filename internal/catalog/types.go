package catalog

import (
	"iter"
	"path/filepath"
	"slices"

	"github.com/roach88/decodecheck/internal/digest"
)

// SampleExt is the file extension of decoder input samples.
const SampleExt = ".sr"

// PathKey is the reserved sample-level key holding a directory override.
// It can never be used as a test name.
const PathKey = "path"

// Triple identifies one test: (decoder, sample, test).
type Triple struct {
	Decoder string `json:"decoder"`
	Sample  string `json:"sample"`
	Test    string `json:"test"`
}

func (t Triple) String() string {
	return t.Decoder + ":" + t.Sample + ":" + t.Test
}

// Test is the configuration of one named test under a sample.
//
// Digest is nil when the catalog records no reference for the test, which
// is normal for catalogs that only drive reference generation.
type Test struct {
	Name     string
	Options  string
	Annotate string
	Desc     string
	Digest   *digest.Set
}

// Sample groups the tests run against one input file.
type Sample struct {
	Name  string
	Path  string // directory override for <name>.sr, empty for the default
	tests ordered[*Test]
}

// Test returns the named test.
func (s *Sample) Test(name string) (*Test, bool) {
	return s.tests.get(name)
}

// Tests yields test names sorted by name.
func (s *Sample) Tests() iter.Seq[string] {
	return s.tests.sorted()
}

// TestsInOrder yields tests in catalog order.
func (s *Sample) TestsInOrder() iter.Seq[*Test] {
	return s.tests.values()
}

// Len reports the number of tests.
func (s *Sample) Len() int {
	return s.tests.len()
}

type decoderEntry struct {
	name    string
	samples ordered[*Sample]
}

// Store is the in-memory catalog: decoder -> sample -> test.
//
// Keys are unique per level. Catalog (insertion) order is kept for
// enumeration of work and for writing; the listing accessors (Decoders,
// Samples, Tests) are sorted by name so output is stable.
//
// A Store is immutable once loaded and safe for concurrent reads.
type Store struct {
	decoders ordered[*decoderEntry]
	sources  []string
}

// Sources returns the names of the sources the store was loaded from.
func (s *Store) Sources() []string {
	return slices.Clone(s.sources)
}

// Decoders yields decoder names sorted by name.
func (s *Store) Decoders() iter.Seq[string] {
	return s.decoders.sorted()
}

// HasDecoder reports whether the decoder is defined.
func (s *Store) HasDecoder(decoder string) bool {
	_, ok := s.decoders.get(decoder)
	return ok
}

// Samples yields the sample names of decoder sorted by name. It yields
// nothing for an unknown decoder.
func (s *Store) Samples(decoder string) iter.Seq[string] {
	d, ok := s.decoders.get(decoder)
	if !ok {
		return func(func(string) bool) {}
	}
	return d.samples.sorted()
}

// Tests yields the test names of decoder:sample sorted by name.
func (s *Store) Tests(decoder, sample string) iter.Seq[string] {
	smp, ok := s.Lookup(decoder, sample)
	if !ok {
		return func(func(string) bool) {}
	}
	return smp.Tests()
}

// Lookup returns the sample record for decoder:sample.
func (s *Store) Lookup(decoder, sample string) (*Sample, bool) {
	d, ok := s.decoders.get(decoder)
	if !ok {
		return nil, false
	}
	return d.samples.get(sample)
}

// Test returns the test addressed by t.
func (s *Store) Test(t Triple) (*Test, bool) {
	smp, ok := s.Lookup(t.Decoder, t.Sample)
	if !ok {
		return nil, false
	}
	return smp.Test(t.Test)
}

// Triples returns every defined test in catalog order.
func (s *Store) Triples() []Triple {
	var out []Triple
	for d := range s.decoders.values() {
		for smp := range d.samples.values() {
			for t := range smp.tests.values() {
				out = append(out, Triple{Decoder: d.name, Sample: smp.Name, Test: t.Name})
			}
		}
	}
	return out
}

// Len reports the number of tests in the store.
func (s *Store) Len() int {
	n := 0
	for d := range s.decoders.values() {
		for smp := range d.samples.values() {
			n += smp.Len()
		}
	}
	return n
}

// ExpectedSize sums the recorded output sizes. Tests without a reference
// digest contribute nothing.
func (s *Store) ExpectedSize() int64 {
	var total int64
	for _, t := range s.Triples() {
		if test, _ := s.Test(t); test.Digest != nil {
			total += test.Digest.Size
		}
	}
	return total
}

// SamplePath resolves the input file of decoder:sample. The sample's path
// override wins over samplesDir.
func (s *Store) SamplePath(samplesDir, decoder, sample string) string {
	dir := samplesDir
	if smp, ok := s.Lookup(decoder, sample); ok && smp.Path != "" {
		dir = smp.Path
	}
	return filepath.Join(dir, sample+SampleExt)
}

// Subset returns a store holding only the given triples, in the order of
// the receiver. Unknown triples are ignored.
func (s *Store) Subset(triples []Triple) *Store {
	keep := make(map[Triple]bool, len(triples))
	for _, t := range triples {
		keep[t] = true
	}
	return s.rebuild(func(t Triple, test *Test) (*Test, bool) {
		return test, keep[t]
	})
}

// WithDigests returns a copy of the store whose reference digests are
// replaced by sets. Tests missing from sets lose their digest.
func (s *Store) WithDigests(sets map[Triple]digest.Set) *Store {
	return s.rebuild(func(t Triple, test *Test) (*Test, bool) {
		cp := *test
		cp.Digest = nil
		if set, ok := sets[t]; ok {
			cp.Digest = &set
		}
		return &cp, true
	})
}

func (s *Store) rebuild(fn func(Triple, *Test) (*Test, bool)) *Store {
	out := &Store{sources: slices.Clone(s.sources)}
	for d := range s.decoders.values() {
		nd := &decoderEntry{name: d.name}
		for smp := range d.samples.values() {
			ns := &Sample{Name: smp.Name, Path: smp.Path}
			for t := range smp.tests.values() {
				if nt, ok := fn(Triple{Decoder: d.name, Sample: smp.Name, Test: t.Name}, t); ok {
					ns.tests.set(nt.Name, nt)
				}
			}
			if ns.Len() > 0 {
				nd.samples.set(ns.Name, ns)
			}
		}
		if nd.samples.len() > 0 {
			out.decoders.set(nd.name, nd)
		}
	}
	return out
}

// Job is one resolved, immutable unit of work. Its identity is the Triple.
type Job struct {
	Triple
	SamplePath string
	Spec       Test
}

// ordered is a string-keyed map that remembers insertion order.
type ordered[V any] struct {
	keys []string
	m    map[string]V
}

func (o *ordered[V]) get(k string) (V, bool) {
	v, ok := o.m[k]
	return v, ok
}

func (o *ordered[V]) set(k string, v V) {
	if o.m == nil {
		o.m = make(map[string]V)
	}
	if _, ok := o.m[k]; !ok {
		o.keys = append(o.keys, k)
	}
	o.m[k] = v
}

func (o *ordered[V]) len() int {
	return len(o.keys)
}

func (o *ordered[V]) values() iter.Seq[V] {
	return func(yield func(V) bool) {
		for _, k := range o.keys {
			if !yield(o.m[k]) {
				return
			}
		}
	}
}

func (o *ordered[V]) sorted() iter.Seq[string] {
	keys := slices.Sorted(slices.Values(o.keys))
	return slices.Values(keys)
}
