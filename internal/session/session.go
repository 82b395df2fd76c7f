// Package session saves and restores translation runs as JSON, so a long
// document can be translated across several sittings. A saved session is
// reconciled against a fresh extraction of the original file rather than
// trusted blindly: fragments are matched by (location, original text).
package session

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/valpere/fragtran/internal/fragment"
)

// File types a session can reference.
const (
	FileTypeEPUB = "epub"
	FileTypeSRT  = "srt"
)

// Session is the persisted state of one translation run.
type Session struct {
	OriginalFilePath   string               `json:"original_file_path"`
	FileType           string               `json:"file_type"`
	Paragraphs         []*fragment.Fragment `json:"paragraphs"`
	SystemPrompt       string               `json:"system_prompt"`
	ContextSize        int                  `json:"context_size"`
	Temperature        float64              `json:"temperature"`
	CustomOllamaPrompt string               `json:"custom_ollama_prompt"`
	CustomSystemPrompt string               `json:"custom_system_prompt"`
	CustomUserPrompt   string               `json:"custom_user_prompt"`
}

// Save writes the session to path, creating or truncating it.
func Save(path string, s *Session) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

// Load reads a session from path.
func Load(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}
	if s.FileType != FileTypeEPUB && s.FileType != FileTypeSRT {
		return nil, fmt.Errorf("unknown file type %q in session", s.FileType)
	}
	return &s, nil
}

// Reconcile matches saved fragments onto a fresh extraction of the same
// document by (location, original text), restoring translation state and
// overwriting the fresh ids with the saved ones. It returns the fresh-to-
// saved id remapping so the caller can rewrite id annotations already
// written into the document tree. Saved fragments with no match (the source
// file changed since the session was saved) are logged and dropped.
func (s *Session) Reconcile(fresh []*fragment.Fragment, log *logrus.Logger) map[string]string {
	saved := make(map[string]*fragment.Fragment, len(s.Paragraphs))
	for _, f := range s.Paragraphs {
		saved[f.Key()] = f
	}

	remap := make(map[string]string)
	matched := 0
	for _, f := range fresh {
		old, ok := saved[f.Key()]
		if !ok {
			continue
		}
		if f.ID != old.ID {
			remap[f.ID] = old.ID
			f.ID = old.ID
		}
		f.TranslatedText = old.TranslatedText
		f.Translated = old.Translated
		f.LastError = old.LastError
		f.Timestamp = old.Timestamp
		delete(saved, old.Key())
		matched++
	}

	for _, orphan := range saved {
		log.WithFields(logrus.Fields{
			"fragment": orphan.ID,
			"location": orphan.Location,
		}).Warn("saved fragment no longer present in source file")
	}
	log.WithFields(logrus.Fields{
		"matched": matched,
		"fresh":   len(fresh),
		"saved":   len(s.Paragraphs),
	}).Info("session reconciled")

	return remap
}
