// Package selector turns user-supplied test specifiers into work.
//
// Grammar, one token per argument:
//
//	all                              every test in the catalog
//	decoder                          list the samples of decoder
//	decoder:sample                   list the tests of decoder:sample
//	decoder:sample:test[:test...]    run the named tests
//	decoder:sample:all               run every test of decoder:sample
//
// No tokens at all lists every decoder:sample:test combination.
// Resolution produces either an Execute result (a deduplicated Job list in
// token order) or a List result (scopes to enumerate), never both.
package selector

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/decodecheck/internal/catalog"
)

// Wildcard selects everything at its level.
const Wildcard = "all"

// Kind tags a Resolution.
type Kind int

const (
	// Execute means the tokens named runnable tests.
	Execute Kind = iota
	// List means the tokens asked what is available.
	List
)

func (k Kind) String() string {
	if k == List {
		return "list"
	}
	return "execute"
}

// Level is the depth of a listing request.
type Level int

const (
	LevelAll     Level = iota // every decoder:sample:test
	LevelDecoder              // samples of one decoder
	LevelSample               // tests of one sample
)

// Scope is one listing request.
type Scope struct {
	Level   Level
	Decoder string
	Sample  string
}

// Resolution is the outcome of resolving tokens.
type Resolution struct {
	Kind   Kind
	Jobs   []catalog.Job // Execute only
	Scopes []Scope       // List only
}

// Error reports a token that cannot be resolved against the catalog.
type Error struct {
	Token     string
	Reason    string
	Available []string // valid names at the level that failed, sorted
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("selector %q: %s", e.Token, e.Reason)
	if len(e.Available) > 0 {
		msg += " (available: " + strings.Join(e.Available, ", ") + ")"
	}
	return msg
}

// Selector resolves tokens against one catalog.
type Selector struct {
	store      *catalog.Store
	samplesDir string
}

// New returns a Selector over store. samplesDir is where sample files live
// unless a sample overrides it with its own path.
func New(store *catalog.Store, samplesDir string) *Selector {
	return &Selector{store: store, samplesDir: samplesDir}
}

// All returns a Job for every test in catalog order.
func (s *Selector) All() []catalog.Job {
	triples := s.store.Triples()
	jobs := make([]catalog.Job, 0, len(triples))
	for _, t := range triples {
		jobs = append(jobs, s.job(t))
	}
	return jobs
}

// Resolve applies the grammar to tokens.
//
// Jobs named by several tokens appear once, at their first occurrence.
// A catalog test literally named "all" takes precedence over the
// wildcard meaning. Mixing listing tokens with runnable tokens is an
// error because the invocation would be ambiguous.
func (s *Selector) Resolve(tokens []string) (*Resolution, error) {
	if len(tokens) == 0 {
		return &Resolution{Kind: List, Scopes: []Scope{{Level: LevelAll}}}, nil
	}

	var (
		res      = &Resolution{Kind: Execute}
		seen     = make(map[catalog.Triple]bool)
		runnable bool
	)
	add := func(t catalog.Triple) {
		if seen[t] {
			return
		}
		seen[t] = true
		res.Jobs = append(res.Jobs, s.job(t))
	}

	for _, tok := range tokens {
		parts, err := split(tok)
		if err != nil {
			return nil, err
		}

		if len(parts) == 1 && parts[0] == Wildcard {
			runnable = true
			for _, t := range s.store.Triples() {
				add(t)
			}
			continue
		}

		decoder := parts[0]
		if !s.store.HasDecoder(decoder) {
			return nil, &Error{Token: tok, Reason: fmt.Sprintf("unknown decoder %q", decoder), Available: slices.Collect(s.store.Decoders())}
		}
		if len(parts) == 1 {
			res.Scopes = append(res.Scopes, Scope{Level: LevelDecoder, Decoder: decoder})
			continue
		}

		sampleName := parts[1]
		if sampleName == catalog.PathKey {
			return nil, &Error{Token: tok, Reason: "\"path\" is not a sample name", Available: slices.Collect(s.store.Samples(decoder))}
		}
		smp, ok := s.store.Lookup(decoder, sampleName)
		if !ok {
			return nil, &Error{Token: tok, Reason: fmt.Sprintf("unknown sample %q for decoder %q", sampleName, decoder), Available: slices.Collect(s.store.Samples(decoder))}
		}
		if len(parts) == 2 {
			res.Scopes = append(res.Scopes, Scope{Level: LevelSample, Decoder: decoder, Sample: sampleName})
			continue
		}

		runnable = true
		for _, testName := range parts[2:] {
			if _, ok := smp.Test(testName); ok {
				add(catalog.Triple{Decoder: decoder, Sample: sampleName, Test: testName})
				continue
			}
			if testName == Wildcard {
				for t := range smp.TestsInOrder() {
					add(catalog.Triple{Decoder: decoder, Sample: sampleName, Test: t.Name})
				}
				continue
			}
			return nil, &Error{
				Token:     tok,
				Reason:    fmt.Sprintf("unknown test %q for %s:%s", testName, decoder, sampleName),
				Available: slices.Collect(smp.Tests()),
			}
		}
	}

	switch {
	case runnable && len(res.Scopes) > 0:
		return nil, &Error{
			Token:  strings.Join(tokens, " "),
			Reason: "cannot mix listing requests (decoder or decoder:sample) with tests to run",
		}
	case len(res.Scopes) > 0:
		return &Resolution{Kind: List, Scopes: res.Scopes}, nil
	default:
		return res, nil
	}
}

func (s *Selector) job(t catalog.Triple) catalog.Job {
	test, _ := s.store.Test(t)
	return catalog.Job{
		Triple:     t,
		SamplePath: s.store.SamplePath(s.samplesDir, t.Decoder, t.Sample),
		Spec:       *test,
	}
}

// split breaks a token into trimmed, normalized parts. Leading and
// trailing colons are ignored; empty parts in the middle are not.
func split(tok string) ([]string, error) {
	trimmed := strings.Trim(strings.TrimSpace(tok), ":")
	if trimmed == "" {
		return nil, &Error{Token: tok, Reason: "empty selector"}
	}
	parts := strings.Split(trimmed, ":")
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, &Error{Token: tok, Reason: "empty name between colons"}
		}
		parts[i] = catalog.NormalizeName(p)
	}
	return parts, nil
}
