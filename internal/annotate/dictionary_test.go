package annotate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDictionary_MissingFileIsNotAnError(t *testing.T) {
	dict, err := LoadDictionary(filepath.Join(t.TempDir(), "no_such_dict.txt"))
	require.NoError(t, err)
	assert.Equal(t, 0, dict.Len())
	assert.Equal(t, "そのまま", dict.Apply("そのまま"))
}

func TestLoadDictionary_ParsesEntriesAndSkipsJunk(t *testing.T) {
	content := `# 読み辞書
凍結防止帯<とうけつぼうしたい>

楽して<らくして>
これは解析できない行
DIY<ディーアイワイ>
`
	path := filepath.Join(t.TempDir(), "reading_dict.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	dict, err := LoadDictionary(path)
	require.NoError(t, err)
	assert.Equal(t, 3, dict.Len())

	assert.Equal(t, "とうけつぼうしたいを巻く", dict.Apply("凍結防止帯を巻く"))
	assert.Equal(t, "らくして稼ぐ", dict.Apply("楽して稼ぐ"))
	assert.Equal(t, "ディーアイワイ", dict.Apply("DIY"))
}

func TestDictionary_LongestMatchFirst(t *testing.T) {
	dict := NewDictionary(map[string]string{
		"水":   "みず",
		"水道":  "すいどう",
		"水道管": "すいどうかん",
	})

	// The longest entry must win even though shorter entries are
	// substrings of it.
	assert.Equal(t, "すいどうかんが凍る", dict.Apply("水道管が凍る"))
	assert.Equal(t, "すいどうとみず", dict.Apply("水道と水"))
}

func TestDictionary_ApplyIsDeterministic(t *testing.T) {
	dict := NewDictionary(map[string]string{
		"ああ": "1",
		"いい": "2",
		"うう": "3",
	})

	want := dict.Apply("ああいいうう")
	for i := 0; i < 20; i++ {
		assert.Equal(t, want, dict.Apply("ああいいうう"))
	}
}
