// Package textstat counts words in document text.
package textstat

import (
	"strings"
	"unicode"
)

// CountWords returns the number of words in text. A word is a run of letters,
// digits, apostrophes or joining hyphens; markup punctuation separates words.
func CountWords(text string) int {
	n := 0
	for _, field := range strings.FieldsFunc(text, isSeparator) {
		// A lone "-" list bullet or "'" quote is not a word.
		if strings.IndexFunc(field, isWordRune) >= 0 {
			n++
		}
	}
	return n
}

// Offset returns the word count change from before to after.
func Offset(before, after string) int {
	return CountWords(after) - CountWords(before)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isSeparator(r rune) bool {
	switch {
	case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsMark(r):
		return false
	case r == '\'' || r == '’' || r == '-':
		return false
	}
	return true
}
