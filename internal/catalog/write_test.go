package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/decodecheck/internal/digest"
)

func TestMarshal_Format(t *testing.T) {
	doc := `{"mfm": {"fdd_fm": {"path": "fdd", "all": {"desc": "a<b", "options": "data_rate=125000"}}}}`
	s, err := Load(src("in.json", doc))
	require.NoError(t, err)

	set := digest.Sum([]byte("abc"))
	out := s.WithDigests(map[Triple]digest.Set{{"mfm", "fdd_fm", "all"}: set}).Marshal()

	want := "{\n" +
		"\t\"mfm\": {\n" +
		"\t\t\"fdd_fm\": {\n" +
		"\t\t\t\"path\": \"fdd\",\n" +
		"\t\t\t\"all\": {\n" +
		"\t\t\t\t\"options\": \"data_rate=125000\",\n" +
		"\t\t\t\t\"desc\": \"a<b\",\n" +
		"\t\t\t\t\"size\": 3,\n" +
		"\t\t\t\t\"crc\": \"0x352441c2\",\n" +
		"\t\t\t\t\"blake2b\": \"" + set.BLAKE2bHex() + "\",\n" +
		"\t\t\t\t\"sha256\": \"" + set.SHA256Hex() + "\"\n" +
		"\t\t\t}\n" +
		"\t\t}\n" +
		"\t}\n" +
		"}\n"
	assert.Equal(t, want, string(out))
}

func TestMarshal_Empty(t *testing.T) {
	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "{}\n", string(s.Marshal()))

	s, err = Load(src("in.json", `{"mfm": {"fdd_fm": {"all": {}}}}`))
	require.NoError(t, err)
	assert.Contains(t, string(s.Marshal()), "\"all\": {}")
}

func TestMarshal_RoundTrip(t *testing.T) {
	s, err := Load(src("uart.json", uartCatalog))
	require.NoError(t, err)

	sets := map[Triple]digest.Set{}
	for _, tr := range s.Triples() {
		sets[tr] = digest.Sum([]byte(tr.String()))
	}
	withRef := s.WithDigests(sets)

	reloaded, err := Load(src("out.json", string(withRef.Marshal())))
	require.NoError(t, err)

	assert.Equal(t, withRef.Triples(), reloaded.Triples())
	for _, tr := range reloaded.Triples() {
		test, ok := reloaded.Test(tr)
		require.True(t, ok)
		require.NotNil(t, test.Digest, tr.String())
		assert.Equal(t, sets[tr], *test.Digest, tr.String())
	}
	assert.Equal(t, withRef.Marshal(), reloaded.Marshal())
}

func TestWriteFile_ReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reference.json")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o600))

	s, err := Load(src("uart.json", uartCatalog))
	require.NoError(t, err)
	require.NoError(t, s.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, s.Marshal(), data)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files may be left behind")
}

func TestWriteFileAtomic_MissingDir(t *testing.T) {
	err := WriteFileAtomic(filepath.Join(t.TempDir(), "nope", "x.json"), []byte("{}"), 0o644)
	assert.Error(t, err)
}
