package annotate

import (
	"errors"
	"io/fs"
	"os"
	"regexp"
	"sort"
	"strings"
)

// dictEntryPattern parses one dictionary line. Unlike inline
// annotations, dictionary words may contain hiragana (e.g. 楽して).
var dictEntryPattern = regexp.MustCompile(`([\x{4E00}-\x{9FAF}\x{3005}\x{30F6}a-zA-Zａ-ｚＡ-Ｚ\x{3040}-\x{309F}\x{30A0}-\x{30FF}]+)<([^<>]+)>`)

type dictEntry struct {
	word    string
	reading string
}

// Dictionary is an immutable word-to-reading mapping applied to
// narration text. Entries are matched longest word first so overlapping
// entries substitute deterministically.
type Dictionary struct {
	entries []dictEntry
}

// NewDictionary builds a Dictionary from a word-to-reading map.
func NewDictionary(readings map[string]string) Dictionary {
	entries := make([]dictEntry, 0, len(readings))
	for word, reading := range readings {
		entries = append(entries, dictEntry{word: word, reading: reading})
	}
	sortEntries(entries)
	return Dictionary{entries: entries}
}

// LoadDictionary reads a line-oriented dictionary file of word<reading>
// pairs. Blank lines, comment lines starting with # and unparseable
// lines are skipped. A missing file yields an empty dictionary, not an
// error.
func LoadDictionary(path string) (Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Dictionary{}, nil
		}
		return Dictionary{}, err
	}

	var entries []dictEntry
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m := dictEntryPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		entries = append(entries, dictEntry{word: m[1], reading: m[2]})
	}
	sortEntries(entries)
	return Dictionary{entries: entries}, nil
}

// sortEntries orders longest word first; ties break lexicographically
// so substitution order never depends on map iteration.
func sortEntries(entries []dictEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if len(entries[i].word) != len(entries[j].word) {
			return len(entries[i].word) > len(entries[j].word)
		}
		return entries[i].word < entries[j].word
	})
}

// Apply rewrites every known word in text to its reading.
func (d Dictionary) Apply(text string) string {
	for _, e := range d.entries {
		text = strings.ReplaceAll(text, e.word, e.reading)
	}
	return text
}

// Len returns the number of loaded entries.
func (d Dictionary) Len() int {
	return len(d.entries)
}
