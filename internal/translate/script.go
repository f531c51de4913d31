package translate

import (
	"strings"
	"unicode"
)

// scriptTables maps a target language code to the scripts its text is
// expected to use. Languages not listed fall back to Latin.
var scriptTables = map[string][]*unicode.RangeTable{
	"ru": {unicode.Cyrillic},
	"uk": {unicode.Cyrillic},
	"be": {unicode.Cyrillic},
	"bg": {unicode.Cyrillic},
	"sr": {unicode.Cyrillic},
	"mk": {unicode.Cyrillic},
	"kk": {unicode.Cyrillic},
	"el": {unicode.Greek},
	"ar": {unicode.Arabic},
	"fa": {unicode.Arabic},
	"ur": {unicode.Arabic},
	"he": {unicode.Hebrew},
	"hi": {unicode.Devanagari},
	"zh": {unicode.Han},
	"ja": {unicode.Han, unicode.Hiragana, unicode.Katakana},
	"ko": {unicode.Hangul},
	"th": {unicode.Thai},
	"ka": {unicode.Georgian},
	"hy": {unicode.Armenian},
}

// scriptShare returns the proportion of letters in s written in the script of
// the target language, in [0, 1]. English counts only ASCII letters so that
// untranslated Latin-script text with diacritics scores lower.
//
// This is a heuristic for ranking candidate translations, not language
// detection.
func scriptShare(s, target string) float64 {
	target = strings.ToLower(target)
	if i := strings.IndexAny(target, "-_"); i > 0 {
		target = target[:i]
	}
	tables, ok := scriptTables[target]

	var letters, matched int
	for _, r := range s {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		switch {
		case ok:
			if unicode.IsOneOf(tables, r) {
				matched++
			}
		case target == "en":
			if r < unicode.MaxASCII {
				matched++
			}
		default:
			if unicode.Is(unicode.Latin, r) {
				matched++
			}
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(matched) / float64(letters)
}
