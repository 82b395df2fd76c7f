// Package validator checks that translated fragments are actually written in
// the target language, using lingua-go language detection.
package validator

import (
	"fmt"
	"strings"

	lingua "github.com/pemistahl/lingua-go"

	"github.com/valpere/fragtran/internal/fragment"
)

// minValidationLength is the minimum rune count required to attempt language
// detection. Shorter texts produce unreliable results and are accepted
// without validation.
const minValidationLength = 20

// Validator wraps a lingua-go detector. The detector is expensive to build;
// reuse the instance.
type Validator struct {
	det lingua.LanguageDetector
}

func New() *Validator {
	return &Validator{
		det: lingua.NewLanguageDetectorBuilder().
			FromAllLanguages().
			Build(),
	}
}

// DetectISO returns the ISO 639-1 code of the detected language, or false
// when the text is empty or ambiguous.
func (v *Validator) DetectISO(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	lang, ok := v.det.DetectLanguageOf(text)
	if !ok {
		return "", false
	}
	return lang.IsoCode639_1().String(), true
}

// IsValid returns true when translatedText appears to be written in
// targetLang.
//
// Short texts (fewer than minValidationLength runes) and texts whose language
// cannot be determined pass without error. When the detected language differs
// from targetLang the returned error names both codes.
func (v *Validator) IsValid(translatedText, targetLang string) (bool, error) {
	if targetLang == "" {
		return true, nil
	}

	text := strings.TrimSpace(translatedText)
	if text == "" {
		return false, fmt.Errorf("translation is empty")
	}

	// Detector is unreliable for very short texts; skip validation.
	if len([]rune(text)) < minValidationLength {
		return true, nil
	}

	detected, ok := v.DetectISO(text)
	if !ok {
		// Ambiguous language, cannot validate.
		return true, nil
	}

	if !strings.EqualFold(detected, targetLang) {
		return false, fmt.Errorf("expected %s but detected %s", targetLang, detected)
	}

	return true, nil
}

// Issue flags one fragment whose translation failed language validation.
type Issue struct {
	Index    int
	Fragment *fragment.Fragment
	Reason   string
}

// CheckFragments validates every translated fragment against targetLang and
// returns the offenders in list order.
func (v *Validator) CheckFragments(fragments []*fragment.Fragment, targetLang string) []Issue {
	var issues []Issue
	for i, f := range fragments {
		if !f.Translated {
			continue
		}
		ok, err := v.IsValid(f.TranslatedText, targetLang)
		if ok {
			continue
		}
		reason := "not in target language"
		if err != nil {
			reason = err.Error()
		}
		issues = append(issues, Issue{Index: i, Fragment: f, Reason: reason})
	}
	return issues
}
