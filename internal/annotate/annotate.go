// Package annotate resolves inline script markup into separate narration
// and caption text.
//
// Authored dialogue text carries two kinds of markup: display-only spans
// "[[...]]" that appear in captions but are never narrated, and reading
// annotations "WORD<READING>" that narrate the reading while displaying
// the word. A user-maintained reading dictionary supplies additional
// word-to-reading substitutions for narration only.
package annotate

import "regexp"

var (
	// displayOnlyPattern matches [[...]] spans. Spans may contain reading
	// annotations but not other display-only spans.
	displayOnlyPattern = regexp.MustCompile(`\[\[(.+?)\]\]`)

	// inlineReadingPattern matches WORD<READING> where WORD is kanji,
	// katakana or Latin. Hiragana is excluded so a reading never swallows
	// the particles preceding it.
	inlineReadingPattern = regexp.MustCompile(`([\x{4E00}-\x{9FAF}\x{3005}\x{30F6}a-zA-Zａ-ｚＡ-Ｚ\x{30A0}-\x{30FF}]+)<([^<>]+)>`)

	// bareAnnotationPattern matches any leftover <...> chunk for caption
	// cleanup.
	bareAnnotationPattern = regexp.MustCompile(`<[^<>]+>`)

	// speakablePattern matches characters the speech service can
	// pronounce: word characters plus hiragana, katakana (including the
	// long-vowel mark) and CJK ideographs. Text without any of these is
	// silence-only.
	speakablePattern = regexp.MustCompile(`[0-9A-Za-z_\x{3040}-\x{309F}\x{30A0}-\x{30FF}\x{4E00}-\x{9FAF}\x{3005}]`)
)

// Process resolves all markup in rawText and returns the narration text
// for speech synthesis and the caption text for display. Given the same
// rawText and dictionary the output is byte-identical.
func Process(rawText string, dict Dictionary) (narration, caption string) {
	return Narration(rawText, dict), Caption(rawText)
}

// Narration derives the spoken form: display-only spans are dropped
// entirely, reading annotations collapse to their reading, then the
// dictionary rewrites any remaining known words.
func Narration(rawText string, dict Dictionary) string {
	text := displayOnlyPattern.ReplaceAllString(rawText, "")
	text = inlineReadingPattern.ReplaceAllString(text, "$2")
	return dict.Apply(text)
}

// Caption derives the displayed form: display-only spans are unwrapped
// to their content and reading annotations collapse to their word. The
// dictionary never touches captions.
func Caption(rawText string) string {
	text := displayOnlyPattern.ReplaceAllString(rawText, "$1")
	return bareAnnotationPattern.ReplaceAllString(text, "")
}

// Speakable reports whether text contains at least one character the
// speech service can pronounce. Punctuation-only narration must be
// mapped to a silence clip instead of being synthesized.
func Speakable(text string) bool {
	return speakablePattern.MatchString(text)
}
