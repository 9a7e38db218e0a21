package transcription

import (
	"regexp"
	"strings"
)

var (
	arabicDiacritics = regexp.MustCompile(`[\x{064B}-\x{065F}\x{0670}]`)
	arabicAlef       = regexp.MustCompile(`[\x{FE87}\x{FE83}\x{FE81}\x{FE8D}]`)
	arabicYeh        = regexp.MustCompile(`[\x{FEF1}\x{FEEF}]`)

	russianDisallowed = regexp.MustCompile(`[^а-яё0-9\s\v\p{Z}]`)
	latinDisallowed   = regexp.MustCompile(`[^a-z0-9\s\v\p{Z}]`)
)

const (
	alefIsolated      = "ﺍ"
	yehIsolated       = "ﻱ"
	tehMarbutaIsolate = "ﺓ"
	hehIsolated       = "ﻩ"
)

// Normalize prepares recognized text for comparison against a reference.
//
// Arabic keeps its case and punctuation but loses diacritics, and alef and yeh variants are
// folded into one form each with teh marbuta written as heh. Russian is lowercased and reduced
// to Cyrillic letters, digits and whitespace. Every other language is lowercased and reduced to
// ASCII letters, digits and whitespace. The result is trimmed.
func Normalize(text, language string) string {
	switch language {
	case "ar":
		text = arabicDiacritics.ReplaceAllString(text, "")
		text = arabicAlef.ReplaceAllString(text, alefIsolated)
		text = arabicYeh.ReplaceAllString(text, yehIsolated)
		text = strings.ReplaceAll(text, tehMarbutaIsolate, hehIsolated)
	case "ru":
		text = russianDisallowed.ReplaceAllString(strings.ToLower(text), "")
	default:
		text = latinDisallowed.ReplaceAllString(strings.ToLower(text), "")
	}
	return strings.TrimSpace(text)
}
