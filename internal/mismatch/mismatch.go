// Package mismatch compares a fragment's source text with its translation
// and flags structural or typographic drift: lost numbers, broken
// placeholders, changed paragraph counts, mangled punctuation and the like.
// Detection is pure classification; it never errors.
package mismatch

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/valpere/fragtran/internal/fragment"
)

// Kind names one discrepancy category.
type Kind int

const (
	ParagraphCount Kind = iota
	LeadingChar
	TrailingChar
	Placeholders
	LengthRatio
	Numbers
	Formatting
	URLs
	BracketsQuotes
	SentenceCaps
	SpecialChars
	ListStructure
)

var kindReasons = map[Kind]string{
	ParagraphCount: "Mismatched number of paragraphs",
	LeadingChar:    "Different first character type",
	TrailingChar:   "Different last character type",
	Placeholders:   "Mismatched placeholders",
	LengthRatio:    "Significant length difference",
	Numbers:        "Mismatched numbers",
	Formatting:     "Mismatched formatting (bold/italic/code)",
	URLs:           "Mismatched URLs or links",
	BracketsQuotes: "Mismatched brackets or quotes",
	SentenceCaps:   "Different sentence capitalization pattern",
	SpecialChars:   "Mismatched special characters or emojis",
	ListStructure:  "Mismatched list structure",
}

func (k Kind) String() string { return kindReasons[k] }

// Finding is one detected discrepancy with its display reason.
type Finding struct {
	Kind   Kind
	Reason string
}

type check struct {
	kind Kind
	fn   func(orig, trans string) bool
}

var checks = []check{
	{ParagraphCount, func(o, t string) bool { return countParagraphs(o) != countParagraphs(t) }},
	{LeadingChar, func(o, t string) bool { return firstCharClass(o) != firstCharClass(t) }},
	{TrailingChar, func(o, t string) bool { return lastCharClass(o) != lastCharClass(t) }},
	{Placeholders, func(o, t string) bool { return !equalSets(placeholders(o), placeholders(t)) }},
	{LengthRatio, lengthMismatch},
	{Numbers, func(o, t string) bool { return !equalSets(numbers(o), numbers(t)) }},
	{Formatting, func(o, t string) bool { return !equalSets(formatting(o), formatting(t)) }},
	{URLs, func(o, t string) bool { return !equalSets(urls(o), urls(t)) }},
	{BracketsQuotes, func(o, t string) bool { return bracketCounts(o) != bracketCounts(t) }},
	{SentenceCaps, sentenceCapsMismatch},
	{SpecialChars, func(o, t string) bool { return !equalSets(specialChars(o), specialChars(t)) }},
	{ListStructure, func(o, t string) bool { return listFlags(o) != listFlags(t) }},
}

// Detect runs every check on the (original, translated) pair and returns the
// union of triggered findings. Identical inputs always yield nil.
func Detect(original, translated string) []Finding {
	var findings []Finding
	for _, c := range checks {
		if c.fn(original, translated) {
			findings = append(findings, Finding{Kind: c.kind, Reason: kindReasons[c.kind]})
		}
	}
	return findings
}

// Check applies Detect to a fragment. Untranslated fragments are never
// flagged.
func Check(f *fragment.Fragment) []Finding {
	if !f.Translated {
		return nil
	}
	return Detect(f.OriginalText, f.TranslatedText)
}

// Reasons joins findings into the diagnostic message shown to the user.
func Reasons(findings []Finding) string {
	if len(findings) == 0 {
		return ""
	}
	parts := make([]string, len(findings))
	for i, f := range findings {
		parts[i] = f.Reason
	}
	return strings.Join(parts, "; ")
}

// --- paragraph count ---

// countParagraphs counts blank-line-separated blocks, falling back to
// non-blank line count when the text is a single block.
func countParagraphs(text string) int {
	blocks := 0
	for _, p := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(p) != "" {
			blocks++
		}
	}
	if blocks > 1 {
		return blocks
	}
	lines := 0
	for _, l := range strings.Split(text, "\n") {
		if strings.TrimSpace(l) != "" {
			lines++
		}
	}
	return lines
}

// --- character classes ---

func firstCharClass(text string) string {
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		switch {
		case unicode.IsDigit(r):
			return "digit"
		case unicode.IsLetter(r):
			return "alpha"
		default:
			return "other"
		}
	}
	return "none"
}

func lastCharClass(text string) string {
	runes := []rune(strings.TrimRight(text, " \t\r\n"))
	if len(runes) == 0 {
		return "none"
	}
	r := runes[len(runes)-1]
	switch {
	case strings.ContainsRune(".!?", r):
		return "sentence_end"
	case strings.ContainsRune(",;:", r):
		return "punctuation"
	case unicode.IsDigit(r):
		return "digit"
	case unicode.IsLetter(r):
		return "alpha"
	default:
		return "other"
	}
}

// --- token set extraction ---

var (
	placeholderRe = regexp.MustCompile(`\{[^{}]*\}|%s|%d`)
	numberRe      = regexp.MustCompile(`\d+`)
	boldRe        = regexp.MustCompile(`\*\*.*?\*\*`)
	italicRe      = regexp.MustCompile(`\*.*?\*`)
	codeRe        = regexp.MustCompile("`.*?`")
	underlineRe   = regexp.MustCompile(`_.*?_`)
	urlRe         = regexp.MustCompile(`https?://[A-Za-z0-9$\-_@.&+!*'(),%/:#?=~]+`)
	mdLinkRe      = regexp.MustCompile(`\[.*?\]\(.*?\)`)
	contractionRe = regexp.MustCompile(`(\w)'(\w)`)
	emojiRe       = regexp.MustCompile(`[\x{1F300}-\x{1FAFF}\x{2600}-\x{27BF}]|:\)|:\(|:D|;-?\)|:-?\(|:-?D`)
	symbolRe      = regexp.MustCompile(`[©®™§¶†‡•…‰′″‹›«»¡¿]`)
	sentenceSplit = regexp.MustCompile(`[.!?]+\s+`)
)

func toSet(matches []string) map[string]bool {
	set := make(map[string]bool, len(matches))
	for _, m := range matches {
		set[m] = true
	}
	return set
}

func equalSets(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

func placeholders(text string) map[string]bool {
	return toSet(placeholderRe.FindAllString(text, -1))
}

func numbers(text string) map[string]bool {
	return toSet(numberRe.FindAllString(text, -1))
}

func formatting(text string) map[string]bool {
	set := toSet(boldRe.FindAllString(text, -1))
	for _, re := range []*regexp.Regexp{italicRe, codeRe, underlineRe} {
		for _, m := range re.FindAllString(text, -1) {
			set[m] = true
		}
	}
	return set
}

func urls(text string) map[string]bool {
	set := toSet(urlRe.FindAllString(text, -1))
	for _, m := range mdLinkRe.FindAllString(text, -1) {
		set[m] = true
	}
	return set
}

func specialChars(text string) map[string]bool {
	set := toSet(emojiRe.FindAllString(text, -1))
	for _, m := range symbolRe.FindAllString(text, -1) {
		set[m] = true
	}
	return set
}

// --- counted checks ---

type bracketTally struct {
	quotes  int
	parens  int
	squares int
	curlies int
}

// bracketCounts tallies quote marks and each bracket type. Apostrophes used
// as word-internal contractions are removed first so "don't" does not count
// as a quote.
func bracketCounts(text string) bracketTally {
	filtered := contractionRe.ReplaceAllString(text, "$1$2")
	return bracketTally{
		quotes:  strings.Count(filtered, `"`) + strings.Count(filtered, "'"),
		parens:  strings.Count(filtered, "(") + strings.Count(filtered, ")"),
		squares: strings.Count(filtered, "[") + strings.Count(filtered, "]"),
		curlies: strings.Count(filtered, "{") + strings.Count(filtered, "}"),
	}
}

func lengthMismatch(orig, trans string) bool {
	lo, lt := len([]rune(orig)), len([]rune(trans))
	if lo == 0 || lt == 0 {
		return false
	}
	diff := lo - lt
	if diff < 0 {
		diff = -diff
	}
	max := lo
	if lt > max {
		max = lt
	}
	return float64(diff) > 0.5*float64(max)
}

// sentenceCapsMismatch tolerates a difference of one: translations may
// legitimately merge or split a sentence.
func sentenceCapsMismatch(orig, trans string) bool {
	diff := countCapitalizedSentences(orig) - countCapitalizedSentences(trans)
	if diff < 0 {
		diff = -diff
	}
	return diff > 1
}

func countCapitalizedSentences(text string) int {
	count := 0
	for _, s := range sentenceSplit.Split(text, -1) {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if unicode.IsUpper([]rune(s)[0]) {
			count++
		}
	}
	return count
}

// --- list structure ---

var listMarkers = []*regexp.Regexp{
	regexp.MustCompile(`^\s*\d+\.`),          // 1. 2. 3.
	regexp.MustCompile(`^\s*[a-zA-Z]\.`),     // a. b. c.
	regexp.MustCompile(`^\s*[-*•]`),          // bullets
	regexp.MustCompile(`^\s*\([a-zA-Z0-9]+\)`), // (1) (a) (i)
}

// listFlags reports, per marker pattern, whether at least two lines match.
// The whole flag vector is compared so a numbered list turning into a bullet
// list is caught even though both "have a list".
func listFlags(text string) [4]bool {
	lines := strings.Split(text, "\n")
	var flags [4]bool
	for i, re := range listMarkers {
		hits := 0
		for _, line := range lines {
			if re.MatchString(line) {
				hits++
			}
		}
		flags[i] = hits >= 2
	}
	return flags
}
