// Package translator implements the translation backends: LLM services that
// take a prompt-shaped request (lmstudio, ollama, openrouter) and machine
// translation APIs that take bare text (deepl, google).
package translator

import (
	"context"
	"errors"

	"github.com/valpere/fragtran/internal/prompt"
)

// ErrEmptyResult is returned when a backend call succeeds at the transport
// level but yields no usable text after cleaning.
var ErrEmptyResult = errors.New("backend returned an empty translation")

// Request carries everything an LLM backend needs for one fragment.
type Request struct {
	// Instruction is the translation system prompt (target language, tone).
	Instruction string
	// Context holds surrounding fragments, for understanding only.
	Context string
	// Text is the core text to translate, affixes already split off.
	Text string

	Model       string
	Temperature float64

	// Prompts supplies custom templates; zero value renders the defaults.
	Prompts prompt.Set
}

// Backend is an LLM translation service.
type Backend interface {
	Name() string
	Translate(ctx context.Context, req Request) (string, error)
}

// MachineTranslator is a conventional translation API addressed by language
// pair instead of by prompt.
type MachineTranslator interface {
	Name() string
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}
