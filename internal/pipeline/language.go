package pipeline

import (
	"strings"
	"unicode"
)

const (
	LangKorean  = "ko"
	LangEnglish = "en"
	LangUnknown = "unknown"
)

// DetectLanguage classifies text as Korean when it contains any Hangul, as
// English when it consists only of ASCII letters, digits, whitespace and
// basic punctuation, and as unknown otherwise.
func DetectLanguage(text string) string {
	for _, r := range text {
		if unicode.Is(unicode.Hangul, r) {
			return LangKorean
		}
	}
	if strings.TrimSpace(text) == "" {
		return LangUnknown
	}
	for _, r := range text {
		if !isPlainEnglishRune(r) {
			return LangUnknown
		}
	}
	return LangEnglish
}

func isPlainEnglishRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case unicode.IsSpace(r):
		return true
	}
	return strings.ContainsRune(`.,!?'"-`, r)
}

// NormalizeLanguage maps backend language labels ("korean", "ko-KR", "en")
// onto the supported universe, or "" when the label is outside it.
func NormalizeLanguage(lang string) string {
	l := strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(l, "-_"); i > 0 {
		l = l[:i]
	}
	switch l {
	case "ko", "kor", "korean":
		return LangKorean
	case "en", "eng", "english":
		return LangEnglish
	default:
		return ""
	}
}

// ResolveLanguage picks the source language of a sentence. When detection
// is inconclusive the backend's overall language is used, then English.
func ResolveLanguage(sentence, backendLang string) string {
	if lang := DetectLanguage(sentence); lang != LangUnknown {
		return lang
	}
	if lang := NormalizeLanguage(backendLang); lang != "" {
		return lang
	}
	return LangEnglish
}

// TargetLanguage returns the other member of the {ko, en} pair.
func TargetLanguage(source string) string {
	if source == LangKorean {
		return LangEnglish
	}
	return LangKorean
}
