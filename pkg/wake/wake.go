// Package wake classifies short utterances captured while the assistant is
// speaking: is this the user barging in, or cross-talk that should be
// treated as a normal request? Classification is pure string matching so it
// can run before any model call.
package wake

import (
	"regexp"
	"strings"
)

// Reason records which detection tier classified the utterance.
type Reason string

const (
	ReasonNone      Reason = "none"
	ReasonPattern   Reason = "pattern"
	ReasonWakeWord  Reason = "wake_word"
	ReasonHeuristic Reason = "heuristic"
)

// Result is the classifier verdict for one utterance.
type Result struct {
	Interrupt bool
	Reason    Reason
	// Match is the pattern or word that fired, empty for heuristics.
	Match string
}

// MaxTokens is the longest utterance the classifier considers. Anything
// longer is a full request, not an interruption.
const MaxTokens = 3

// Exact hesitation and stock-interruption patterns per language. Anchored:
// the whole utterance must match.
var patterns = map[string][]*regexp.Regexp{
	"es": compile(
		`eh+`, `mm+`, `hm+`, `ah+`, `oye`, `oiga`,
		`espera( un momento| un segundo)?`, `esp[eé]rate`,
		`para( ya| un momento)?`, `basta( ya)?`, `c[aá]llate`,
		`un momento`, `un segundo`, `silencio`, `vale vale`, `ya ya`,
	),
	"en": compile(
		`u+m+`, `u+h+`, `hm+`, `er+`, `hey`,
		`wait( a (second|sec|moment|minute))?`, `hold on`, `hang on`,
		`stop( it| talking)?`, `okay stop`, `ok stop`, `shut up`,
		`one (second|sec|moment)`, `quiet`, `enough`,
	),
	"fr": compile(
		`euh+`, `hm+`, `h[eé]`, `attends?( une seconde| un instant)?`,
		`arr[eê]te(z)?( toi)?`, `stop`, `un instant`, `une seconde`,
		`un moment`, `tais[- ]toi`, `silence`, `[cç]a suffit`,
	),
	"it": compile(
		`e+h+`, `mm+`, `ehi`, `aspetta( un attimo| un secondo)?`,
		`fermati`, `ferma`, `basta( cos[iì])?`, `stop`, `zitto`,
		`un attimo`, `un secondo`, `un momento`, `silenzio`,
	),
}

// Wake words matched as whole words anywhere in the utterance.
var wakeWords = map[string][]string{
	"es": {"para", "basta", "espera", "calla", "cállate", "oye", "alto", "vale"},
	"en": {"stop", "wait", "pause", "enough", "quiet", "hey"},
	"fr": {"stop", "attends", "arrête", "arrete", "assez", "silence"},
	"it": {"stop", "basta", "aspetta", "fermati", "zitto", "silenzio"},
}

// Words that double as ordinary vocabulary. These only count when the
// utterance is the word alone, starts with it, or an attention phrase
// precedes it ("oye para").
var ambiguous = map[string]bool{
	"para": true, "vale": true, "basta": true, "alto": true,
	"stop": true, "wait": true, "enough": true,
	"assez": true,
}

var attentionPhrases = []string{"oye", "oiga", "ey", "eh", "hey", "escucha", "ehi", "hé"}

// Utterances that contain a wake word but plainly are not interruptions.
var negativeContexts = map[string][]string{
	"es": {"no gracias", "no, gracias", "muchas gracias", "vale gracias", "está bien", "esta bien"},
	"en": {"no thanks", "no, thanks", "no thank you", "thank you", "that's all", "thats all"},
	"fr": {"non merci", "non, merci", "merci beaucoup", "c'est tout"},
	"it": {"no grazie", "no, grazie", "grazie mille", "va bene grazie"},
}

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(`^(?:`+e+`)$`))
	}
	return out
}

// Classify decides whether utterance is an interruption. language is a
// two-letter code; unknown languages fall back to Spanish, the default
// service language. The caller is expected to gate on token count, but
// Classify enforces MaxTokens itself so the contract holds either way.
func Classify(utterance, language string) Result {
	norm := normalize(utterance)
	if norm == "" {
		return Result{Reason: ReasonNone}
	}
	tokens := strings.Fields(norm)
	if len(tokens) > MaxTokens {
		return Result{Reason: ReasonNone}
	}

	lang := language
	if _, ok := patterns[lang]; !ok {
		lang = "es"
	}

	for _, neg := range negativeContexts[lang] {
		if norm == neg || strings.Contains(norm, neg) {
			return Result{Reason: ReasonNone}
		}
	}

	for _, re := range patterns[lang] {
		if re.MatchString(norm) {
			return Result{Interrupt: true, Reason: ReasonPattern, Match: re.String()}
		}
	}

	for _, word := range wakeWords[lang] {
		if !containsWord(tokens, word) {
			continue
		}
		if ambiguous[word] && !positional(tokens, word) {
			continue
		}
		return Result{Interrupt: true, Reason: ReasonWakeWord, Match: word}
	}

	if len(tokens) <= 2 && len([]rune(norm)) < 8 {
		return Result{Interrupt: true, Reason: ReasonHeuristic}
	}
	raw := strings.TrimSpace(utterance)
	if len(tokens) <= MaxTokens && (strings.HasSuffix(raw, "!") || strings.HasSuffix(raw, "?")) {
		return Result{Interrupt: true, Reason: ReasonHeuristic}
	}

	return Result{Reason: ReasonNone}
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Trim(s, ".!?¡¿,;:")
}

func containsWord(tokens []string, word string) bool {
	for _, t := range tokens {
		if strings.Trim(t, ",.;:!?¡¿") == word {
			return true
		}
	}
	return false
}

// positional: ambiguous words count only when they lead the utterance or
// follow an attention phrase, never mid-sentence ("algo para comer").
func positional(tokens []string, word string) bool {
	first := strings.Trim(tokens[0], ",.;:!?¡¿")
	if first == word {
		return true
	}
	for i := 1; i < len(tokens); i++ {
		if strings.Trim(tokens[i], ",.;:!?¡¿") != word {
			continue
		}
		prev := strings.Trim(tokens[i-1], ",.;:!?¡¿")
		for _, att := range attentionPhrases {
			if prev == att {
				return true
			}
		}
	}
	return false
}
