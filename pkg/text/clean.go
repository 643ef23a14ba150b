// Package text holds the pure text utilities shared by the transcription
// pipeline and the speech synthesis path: edit distance for duplicate
// detection, markup stripping before TTS, and transcript noise filtering.
package text

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	reBold      = regexp.MustCompile(`\*\*(.*?)\*\*`)
	reItalic    = regexp.MustCompile(`\*(.*?)\*`)
	reUnderline = regexp.MustCompile(`__(.*?)__`)
	reItalicAlt = regexp.MustCompile(`_(.*?)_`)
	reStrike    = regexp.MustCompile(`~~(.*?)~~`)
	reCodeBlock = regexp.MustCompile("(?s)```(.*?)```")
	reCodeSpan  = regexp.MustCompile("`(.*?)`")
	reLink      = regexp.MustCompile(`\[(.*?)\]\((.*?)\)`)
	reSpecials  = regexp.MustCompile("[*_~`#]")
	reNewlines  = regexp.MustCompile(`[\r\n]+`)
	reSpaces    = regexp.MustCompile(`\s+`)
)

// StripMarkup removes markdown formatting from model output so the
// synthesizer never reads asterisks or link targets aloud.
func StripMarkup(s string) string {
	if s == "" {
		return ""
	}
	s = reCodeBlock.ReplaceAllString(s, "$1")
	s = reCodeSpan.ReplaceAllString(s, "$1")
	s = reBold.ReplaceAllString(s, "$1")
	s = reItalic.ReplaceAllString(s, "$1")
	s = reUnderline.ReplaceAllString(s, "$1")
	s = reItalicAlt.ReplaceAllString(s, "$1")
	s = reStrike.ReplaceAllString(s, "$1")
	s = reLink.ReplaceAllString(s, "$1")
	s = reSpecials.ReplaceAllString(s, "")
	s = reNewlines.ReplaceAllString(s, " ")
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Captioning-service credits the transcription backend hallucinates on
// silent or near-silent audio. Matched case-insensitively as substrings.
var boilerplate = []string{
	"subtítulos realizados por la comunidad de amara.org",
	"subtitulos realizados por la comunidad de amara.org",
	"subtítulos por la comunidad de amara.org",
	"subtitles by the amara.org community",
	"subtitled by the amara.org community",
	"www.amara.org",
	"amara.org",
}

// FilterTranscript strips known transcription artifacts. An utterance that
// was nothing but boilerplate comes back empty and is rejected upstream.
func FilterTranscript(s string) string {
	lower := strings.ToLower(s)
	for _, phrase := range boilerplate {
		idx := strings.Index(lower, phrase)
		if idx < 0 {
			continue
		}
		s = s[:idx] + s[idx+len(phrase):]
		lower = strings.ToLower(s)
	}
	return strings.TrimSpace(reSpaces.ReplaceAllString(s, " "))
}

var spanishFold = strings.NewReplacer(
	"ñ", "ni", "Ñ", "Ni",
	"ü", "u", "Ü", "U",
	"ç", "c", "Ç", "C",
)

// PrepareSpanishTTS folds accents and letters the es-ES voices tend to
// mispronounce. Applied only when the session language is Spanish.
func PrepareSpanishTTS(s string) string {
	if s == "" {
		return ""
	}
	s = spanishFold.Replace(s)
	decomposed := norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
