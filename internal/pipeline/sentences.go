package pipeline

import (
	"strings"
	"unicode"
)

// SplitSentences cuts text after each run of '.', '!' or '?' that is
// followed by whitespace or the end of the text. A trailing fragment without
// terminal punctuation is kept as its own sentence.
func SplitSentences(text string) []string {
	runes := []rune(text)
	var out []string
	start := 0
	for i := 0; i < len(runes); i++ {
		if !isSentenceTerminal(runes[i]) {
			continue
		}
		j := i
		for j+1 < len(runes) && isSentenceTerminal(runes[j+1]) {
			j++
		}
		if j+1 == len(runes) || unicode.IsSpace(runes[j+1]) {
			if s := strings.TrimSpace(string(runes[start : j+1])); s != "" {
				out = append(out, s)
			}
			start = j + 1
		}
		i = j
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

func isSentenceTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
