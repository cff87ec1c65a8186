package catalog

import (
	"fmt"
	"os"
	"regexp"
	"strconv"

	"github.com/tidwall/gjson"
	"github.com/tidwall/jsonc"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/decodecheck/internal/digest"
)

// namePattern restricts decoder, sample and test names. Names end up in
// selector tokens (':'-separated) and in artifact file names ('.'-separated).
var namePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Source is one catalog document.
type Source struct {
	Name string // used in error messages, usually the file path
	Data []byte
}

// LoadFiles reads and merges the catalogs at paths, in order.
func LoadFiles(paths ...string) (*Store, error) {
	sources := make([]Source, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading catalog: %w", err)
		}
		sources = append(sources, Source{Name: p, Data: data})
	}
	return Load(sources...)
}

// Load parses and merges sources into one Store.
//
// JSON comments and trailing commas are tolerated. Document order is
// preserved. Sources may share decoders and samples, but every
// (decoder, sample, test) triple must be defined exactly once across all
// sources; a redefinition is a *ConflictError. Structural problems are
// reported as *MalformedError. The whole structure is validated here so
// later lookups never meet a half-valid entry.
func Load(sources ...Source) (*Store, error) {
	l := &loader{
		store:   &Store{},
		defined: make(map[string]string),
		origins: make(map[string]origin),
	}
	for _, src := range sources {
		if err := l.load(src); err != nil {
			return nil, err
		}
		l.store.sources = append(l.store.sources, src.Name)
	}
	return l.store, nil
}

type loader struct {
	store   *Store
	defined map[string]string // key -> source that defined it
	origins map[string]origin // "decoder:sample" -> first declaration
	src     string
}

// origin is where a sample was first declared and the path it declared
// there, empty when it had none.
type origin struct {
	source string
	path   string
}

func (l *loader) load(src Source) error {
	l.src = src.Name
	data := jsonc.ToJSON(src.Data)
	if !gjson.ValidBytes(data) {
		return l.malformed("", "invalid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return l.malformed("", "top level must be an object of decoders")
	}
	return forEachField(root, func(decoder string, v gjson.Result) error {
		if err := l.checkName(decoder, decoder); err != nil {
			return err
		}
		if !v.IsObject() {
			return l.malformed(decoder, "decoder must be an object of samples")
		}
		d, ok := l.store.decoders.get(decoder)
		if !ok {
			d = &decoderEntry{name: decoder}
			l.store.decoders.set(decoder, d)
		}
		return forEachField(v, func(sample string, sv gjson.Result) error {
			return l.loadSample(d, sample, sv)
		})
	})
}

func (l *loader) loadSample(d *decoderEntry, name string, v gjson.Result) error {
	path := d.name + "." + name
	if name == PathKey {
		return l.malformed(path, "decoder-level path is not supported, set it per sample")
	}
	if err := l.checkName(path, name); err != nil {
		return err
	}
	if !v.IsObject() {
		return l.malformed(path, "sample must be an object of tests")
	}

	smp, ok := d.samples.get(name)
	if !ok {
		smp = &Sample{Name: name}
		d.samples.set(name, smp)
	}

	var (
		declared string
		seenPath bool
	)
	err := forEachField(v, func(key string, tv gjson.Result) error {
		if key == PathKey {
			if seenPath {
				return l.malformed(path+"."+PathKey, "repeated field")
			}
			if tv.Type != gjson.String {
				return l.malformed(path+"."+PathKey, "must be a string")
			}
			seenPath = true
			declared = tv.String()
			return nil
		}
		if err := l.checkName(path+"."+key, key); err != nil {
			return err
		}
		test, err := l.parseTest(path+"."+key, key, tv)
		if err != nil {
			return err
		}
		id := Triple{Decoder: d.name, Sample: name, Test: key}.String()
		if first, dup := l.defined[id]; dup {
			return &ConflictError{Key: id, First: first, Second: l.src}
		}
		l.defined[id] = l.src
		smp.tests.set(key, test)
		return nil
	})
	if err != nil {
		return err
	}
	return l.setPath(d.name, smp, declared)
}

// setPath fixes a sample's path on its first declaration. Every later
// declaration, whether or not it names a path, must agree with it, so no
// source can move the input of tests another source defined.
func (l *loader) setPath(decoder string, smp *Sample, p string) error {
	key := decoder + ":" + smp.Name
	first, ok := l.origins[key]
	if !ok {
		l.origins[key] = origin{source: l.src, path: p}
		smp.Path = p
		return nil
	}
	if first.path != p {
		return &ConflictError{Key: key + " " + PathKey, First: first.source, Second: l.src}
	}
	return nil
}

func (l *loader) parseTest(path, name string, v gjson.Result) (*Test, error) {
	if !v.IsObject() {
		return nil, l.malformed(path, "test must be an object")
	}
	t := &Test{Name: name}
	var (
		set     digest.Set
		present = map[string]bool{}
	)
	err := forEachField(v, func(key string, fv gjson.Result) error {
		fpath := path + "." + key
		if present[key] {
			return l.malformed(fpath, "repeated field")
		}
		switch key {
		case "options", "annotate", "desc":
			if fv.Type != gjson.String {
				return l.malformed(fpath, "must be a string")
			}
			switch key {
			case "options":
				t.Options = fv.String()
			case "annotate":
				t.Annotate = fv.String()
			default:
				t.Desc = fv.String()
			}
		case digest.FieldSize:
			if fv.Type != gjson.Number {
				return l.malformed(fpath, "must be an integer")
			}
			n, err := strconv.ParseInt(fv.Raw, 10, 64)
			if err != nil || n < 0 {
				return l.malformed(fpath, fmt.Sprintf("must be a non-negative integer, got %s", fv.Raw))
			}
			set.Size = n
		case digest.FieldCRC:
			if fv.Type != gjson.String {
				return l.malformed(fpath, "must be a string")
			}
			crc, err := digest.ParseCRC(fv.String())
			if err != nil {
				return l.malformed(fpath, err.Error())
			}
			set.CRC32 = crc
		case digest.FieldBLAKE2b:
			if fv.Type != gjson.String {
				return l.malformed(fpath, "must be a string")
			}
			if err := digest.ParseHex(set.BLAKE2b[:], fv.String()); err != nil {
				return l.malformed(fpath, err.Error())
			}
		case digest.FieldSHA256:
			if fv.Type != gjson.String {
				return l.malformed(fpath, "must be a string")
			}
			if err := digest.ParseHex(set.SHA256[:], fv.String()); err != nil {
				return l.malformed(fpath, err.Error())
			}
		default:
			return l.malformed(fpath, "unknown field")
		}
		present[key] = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	fields := []string{digest.FieldSize, digest.FieldCRC, digest.FieldBLAKE2b, digest.FieldSHA256}
	n := 0
	for _, f := range fields {
		if present[f] {
			n++
		}
	}
	switch n {
	case 0:
	case len(fields):
		t.Digest = &set
	default:
		for _, f := range fields {
			if !present[f] {
				return nil, l.malformed(path, fmt.Sprintf("incomplete digest set, missing %q", f))
			}
		}
	}
	return t, nil
}

func (l *loader) checkName(path, name string) error {
	if !namePattern.MatchString(name) {
		return l.malformed(path, fmt.Sprintf("invalid name %q, want [a-zA-Z0-9_-]+", name))
	}
	return nil
}

func (l *loader) malformed(path, reason string) error {
	return &MalformedError{Source: l.src, Path: path, Reason: reason}
}

// forEachField iterates an object's fields in document order with
// NFC-normalized keys, stopping at the first error.
func forEachField(obj gjson.Result, fn func(key string, v gjson.Result) error) error {
	var err error
	obj.ForEach(func(k, v gjson.Result) bool {
		err = fn(NormalizeName(k.String()), v)
		return err == nil
	})
	return err
}

// NormalizeName puts a name into Unicode NFC so catalog keys and user
// tokens compare equal regardless of how they were typed.
func NormalizeName(s string) string {
	return norm.NFC.String(s)
}
