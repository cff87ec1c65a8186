package selector

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/decodecheck/internal/catalog"
)

const vectors = `{
	"uart": {
		"rx_9600": {
			"path": "samples/uart",
			"default": {"options": "baudrate=9600", "annotate": "rx-data", "desc": "RX data only"},
			"bits": {"options": "baudrate=9600", "annotate": "rx-data-bits", "desc": "Bit timing"}
		},
		"tx_115200": {
			"all": {"desc": "Literal test called all"},
			"frames": {}
		}
	},
	"i2c": {
		"eeprom": {
			"addr": {"annotate": "address-read:address-write"}
		}
	}
}`

func newSelector(t *testing.T) (*Selector, *catalog.Store) {
	t.Helper()
	store, err := catalog.Load(catalog.Source{Name: "vectors.json", Data: []byte(vectors)})
	require.NoError(t, err)
	return New(store, "test"), store
}

func triples(jobs []catalog.Job) []catalog.Triple {
	out := make([]catalog.Triple, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.Triple)
	}
	return out
}

func TestResolve_NoTokensListsEverything(t *testing.T) {
	sel, _ := newSelector(t)

	res, err := sel.Resolve(nil)
	require.NoError(t, err)
	assert.Equal(t, List, res.Kind)
	assert.Equal(t, []Scope{{Level: LevelAll}}, res.Scopes)
	assert.Empty(t, res.Jobs)
}

func TestResolve_All(t *testing.T) {
	sel, store := newSelector(t)

	res, err := sel.Resolve([]string{"all"})
	require.NoError(t, err)
	assert.Equal(t, Execute, res.Kind)
	assert.Equal(t, store.Triples(), triples(res.Jobs))
	assert.Equal(t, triples(sel.All()), triples(res.Jobs))
}

func TestResolve_ListingTokens(t *testing.T) {
	sel, _ := newSelector(t)

	res, err := sel.Resolve([]string{"uart", "uart:rx_9600:"})
	require.NoError(t, err)
	assert.Equal(t, List, res.Kind)
	assert.Equal(t, []Scope{
		{Level: LevelDecoder, Decoder: "uart"},
		{Level: LevelSample, Decoder: "uart", Sample: "rx_9600"},
	}, res.Scopes)
}

func TestResolve_NamedTests(t *testing.T) {
	sel, _ := newSelector(t)

	res, err := sel.Resolve([]string{"uart:rx_9600:bits:default", "i2c:eeprom:addr"})
	require.NoError(t, err)
	require.Equal(t, Execute, res.Kind)
	assert.Equal(t, []catalog.Triple{
		{Decoder: "uart", Sample: "rx_9600", Test: "bits"},
		{Decoder: "uart", Sample: "rx_9600", Test: "default"},
		{Decoder: "i2c", Sample: "eeprom", Test: "addr"},
	}, triples(res.Jobs))

	first := res.Jobs[0]
	assert.Equal(t, filepath.Join("samples/uart", "rx_9600.sr"), first.SamplePath)
	assert.Equal(t, "baudrate=9600", first.Spec.Options)
	assert.Equal(t, "rx-data-bits", first.Spec.Annotate)
	assert.Equal(t, filepath.Join("test", "eeprom.sr"), res.Jobs[2].SamplePath)
}

func TestResolve_SampleWildcard(t *testing.T) {
	sel, _ := newSelector(t)

	res, err := sel.Resolve([]string{"uart:rx_9600:all"})
	require.NoError(t, err)
	assert.Equal(t, []catalog.Triple{
		{Decoder: "uart", Sample: "rx_9600", Test: "default"},
		{Decoder: "uart", Sample: "rx_9600", Test: "bits"},
	}, triples(res.Jobs), "wildcard expands in catalog order")
}

func TestResolve_LiteralAllTestWins(t *testing.T) {
	sel, _ := newSelector(t)

	res, err := sel.Resolve([]string{"uart:tx_115200:all"})
	require.NoError(t, err)
	assert.Equal(t, []catalog.Triple{
		{Decoder: "uart", Sample: "tx_115200", Test: "all"},
	}, triples(res.Jobs))
}

func TestResolve_Deduplicates(t *testing.T) {
	sel, store := newSelector(t)

	res, err := sel.Resolve([]string{"i2c:eeprom:addr", "all", "i2c:eeprom:addr:addr"})
	require.NoError(t, err)

	got := triples(res.Jobs)
	assert.Len(t, got, store.Len())
	assert.Equal(t, catalog.Triple{Decoder: "i2c", Sample: "eeprom", Test: "addr"}, got[0], "first occurrence decides position")
}

func TestResolve_TrimsColonsAndSpace(t *testing.T) {
	sel, _ := newSelector(t)

	res, err := sel.Resolve([]string{" :i2c:eeprom:addr: "})
	require.NoError(t, err)
	assert.Equal(t, []catalog.Triple{{Decoder: "i2c", Sample: "eeprom", Test: "addr"}}, triples(res.Jobs))
}

func TestResolve_Errors(t *testing.T) {
	tests := []struct {
		name      string
		tokens    []string
		reason    string
		available []string
	}{
		{name: "unknown decoder", tokens: []string{"spi"}, reason: `unknown decoder "spi"`, available: []string{"i2c", "uart"}},
		{name: "unknown sample", tokens: []string{"uart:rx_1200"}, reason: `unknown sample "rx_1200"`, available: []string{"rx_9600", "tx_115200"}},
		{name: "path is not a sample", tokens: []string{"uart:path"}, reason: "not a sample name"},
		{name: "unknown test", tokens: []string{"uart:rx_9600:nope"}, reason: `unknown test "nope"`, available: []string{"bits", "default"}},
		{name: "empty", tokens: []string{":"}, reason: "empty selector"},
		{name: "empty middle part", tokens: []string{"uart::bits"}, reason: "empty name"},
		{name: "mixed listing and execution", tokens: []string{"uart", "i2c:eeprom:addr"}, reason: "cannot mix"},
	}
	sel, _ := newSelector(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := sel.Resolve(tt.tokens)
			require.Error(t, err)
			assert.Nil(t, res)

			var selErr *Error
			require.ErrorAs(t, err, &selErr)
			assert.Contains(t, selErr.Reason, tt.reason)
			if tt.available != nil {
				assert.Equal(t, tt.available, selErr.Available)
			}
		})
	}
}

func TestError_Message(t *testing.T) {
	err := &Error{Token: "spi", Reason: `unknown decoder "spi"`, Available: []string{"i2c", "uart"}}
	assert.Equal(t, `selector "spi": unknown decoder "spi" (available: i2c, uart)`, err.Error())
}
