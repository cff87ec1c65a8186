package selector

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/roach88/decodecheck/internal/catalog"
)

// Lines renders listing scopes, one entry per line, sorted by name.
//
//	LevelAll:     decoder:sample:test1:test2
//	LevelDecoder: decoder:sample
//	LevelSample:  test - description (descriptions aligned)
func Lines(store *catalog.Store, scopes []Scope) []string {
	var out []string
	for _, sc := range scopes {
		switch sc.Level {
		case LevelAll:
			for d := range store.Decoders() {
				for smp := range store.Samples(d) {
					tests := slices.Collect(store.Tests(d, smp))
					out = append(out, d+":"+smp+":"+strings.Join(tests, ":"))
				}
			}
		case LevelDecoder:
			for smp := range store.Samples(sc.Decoder) {
				out = append(out, sc.Decoder+":"+smp)
			}
		case LevelSample:
			out = append(out, sampleLines(store, sc.Decoder, sc.Sample)...)
		}
	}
	return out
}

func sampleLines(store *catalog.Store, decoder, sample string) []string {
	smp, ok := store.Lookup(decoder, sample)
	if !ok {
		return nil
	}
	names := slices.Collect(smp.Tests())
	width := 0
	for _, n := range names {
		width = max(width, len(n))
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		t, _ := smp.Test(n)
		if t.Desc == "" {
			out = append(out, n)
			continue
		}
		out = append(out, fmt.Sprintf("%-*s - %s", width, n, t.Desc))
	}
	return out
}

// Render writes Lines to w.
func Render(w io.Writer, store *catalog.Store, scopes []Scope) error {
	for _, line := range Lines(store, scopes) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
