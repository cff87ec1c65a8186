package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/decodecheck/internal/digest"
)

func TestValidate_Accepts(t *testing.T) {
	set := digest.Sum([]byte("ok"))
	withRef := `{"mfm": {"fdd_fm": {"path": "x", "all": {
		"options": "o", "annotate": "a", "desc": "d",
		"size": 2, "crc": "` + set.CRCString() + `",
		"blake2b": "` + set.BLAKE2bHex() + `", "sha256": "` + set.SHA256Hex() + `"
	}}}}`

	assert.NoError(t, Validate(src("plain.json", uartCatalog)))
	assert.NoError(t, Validate(src("ref.json", withRef)))
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "unknown test field", doc: `{"mfm": {"fdd": {"all": {"colour": "red"}}}}`},
		{name: "bad sample name", doc: `{"mfm": {"fd d": {"all": {}}}}`},
		{name: "size negative", doc: `{"mfm": {"fdd": {"all": {"size": -3}}}}`},
		{name: "crc without prefix", doc: `{"mfm": {"fdd": {"all": {"crc": "abc"}}}}`},
		{name: "sha256 short", doc: `{"mfm": {"fdd": {"all": {"sha256": "00"}}}}`},
		{name: "path not string", doc: `{"mfm": {"fdd": {"path": 3}}}`},
		{name: "not json", doc: `{"mfm": `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(src("bad.json", tt.doc))
			require.Error(t, err)

			var malformed *MalformedError
			require.ErrorAs(t, err, &malformed)
			assert.Equal(t, "bad.json", malformed.Source)
		})
	}
}
