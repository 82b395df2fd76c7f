// Package prompt builds the instruction payloads sent to translation
// backends. Custom templates are validated when configured, not when called:
// a template missing one of its required slots is rejected up front.
package prompt

import (
	"fmt"
	"regexp"
	"strings"
)

// Slot names usable in templates.
const (
	SlotContext  = "context"
	SlotCoreText = "core_text"
)

// Template is a prompt text with named {slot} placeholders. Every required
// slot must be present exactly as written, e.g. {context}.
type Template struct {
	raw      string
	required []string
}

// Parse validates that raw contains each required slot.
func Parse(raw string, required ...string) (*Template, error) {
	for _, slot := range required {
		if !strings.Contains(raw, "{"+slot+"}") {
			return nil, fmt.Errorf("template is missing required slot {%s}", slot)
		}
	}
	return &Template{raw: raw, required: required}, nil
}

// Render substitutes slot values into the template.
func (t *Template) Render(values map[string]string) string {
	out := t.raw
	for slot, val := range values {
		out = strings.ReplaceAll(out, "{"+slot+"}", val)
	}
	return out
}

// Set carries the optional custom templates for the two backend shapes: a
// single combined prompt (generate-style backends) and a system/user pair
// (chat-completion backends). Nil members fall back to the defaults.
type Set struct {
	Single *Template
	System *Template
	User   *Template
}

// ParseSet validates raw template strings; empty strings leave the
// corresponding member nil. system and user must be given together.
func ParseSet(single, system, user string) (Set, error) {
	var set Set
	var err error
	if single != "" {
		if set.Single, err = Parse(single, SlotContext, SlotCoreText); err != nil {
			return Set{}, fmt.Errorf("single prompt: %w", err)
		}
	}
	if (system == "") != (user == "") {
		return Set{}, fmt.Errorf("custom system and user prompts must be set together")
	}
	if system != "" {
		if set.System, err = Parse(system, SlotContext); err != nil {
			return Set{}, fmt.Errorf("system prompt: %w", err)
		}
		if set.User, err = Parse(user, SlotCoreText); err != nil {
			return Set{}, fmt.Errorf("user prompt: %w", err)
		}
	}
	return set, nil
}

const contextHeader = "Context (ONLY for understanding, DO NOT translate):"

// RenderSingle renders the combined prompt for generate-style backends.
func (s Set) RenderSingle(instruction, context, coreText string) string {
	if s.Single != nil {
		return s.Single.Render(map[string]string{
			SlotContext:  context,
			SlotCoreText: coreText,
		})
	}
	return strings.TrimSpace(instruction) + "\n\n" +
		contextHeader + "\n" +
		context + "\n---\n" +
		"Translate ONLY this (do not write anything else):\n" + coreText
}

// RenderChat renders the system/user pair for chat-completion backends.
func (s Set) RenderChat(instruction, context, coreText string) (system, user string) {
	if s.System != nil && s.User != nil {
		return s.System.Render(map[string]string{SlotContext: context}),
			s.User.Render(map[string]string{SlotCoreText: coreText})
	}
	system = strings.TrimSpace(instruction) + "\n\n" +
		contextHeader + "\n" +
		context + "\n---"
	user = "Translate ONLY this:\n" + coreText
	return system, user
}

// affixRe isolates a leading enumeration marker and a trailing terminator so
// neither is sent to the LLM. Multi-line texts never match and are passed
// through whole.
var affixRe = regexp.MustCompile(`^(\s*\d+[.)]\s*)(.*?)([.?!]?)(\s*)$`)

// SplitAffixes splits text into (prefix, core, suffix): an optional "12. "
// style numbering prefix, the translatable core, and an optional trailing
// sentence terminator with whitespace. The affixes are reattached verbatim
// around the backend's output.
func SplitAffixes(text string) (prefix, core, suffix string) {
	m := affixRe.FindStringSubmatch(text)
	if m == nil {
		return "", text, ""
	}
	return m[1], m[2], m[3] + m[4]
}
