// Package fragment defines the unit of translation: an addressable piece of
// a document (a block-level element of an EPUB chapter, or one subtitle of
// an SRT file) together with its translation state.
package fragment

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind identifies the block-level category a fragment was extracted from.
// It is a closed set; extraction and reinsertion never branch on raw tag
// strings.
type Kind int

const (
	KindUnknown Kind = iota
	KindH1
	KindH2
	KindH3
	KindH4
	KindH5
	KindH6
	KindParagraph
	KindListItem
	KindTableCell
	KindTableHeader
	KindBlockquote
	KindPreformatted
	KindSubtitle
)

var kindTags = map[Kind]string{
	KindH1:           "h1",
	KindH2:           "h2",
	KindH3:           "h3",
	KindH4:           "h4",
	KindH5:           "h5",
	KindH6:           "h6",
	KindParagraph:    "p",
	KindListItem:     "li",
	KindTableCell:    "td",
	KindTableHeader:  "th",
	KindBlockquote:   "blockquote",
	KindPreformatted: "pre",
	KindSubtitle:     "subtitle",
}

var tagKinds = func() map[string]Kind {
	m := make(map[string]Kind, len(kindTags))
	for k, tag := range kindTags {
		m[tag] = k
	}
	return m
}()

// KindForTag maps a markup tag name to its Kind. ok is false for tags that
// are not translatable block-level elements.
func KindForTag(tag string) (Kind, bool) {
	k, ok := tagKinds[strings.ToLower(tag)]
	return k, ok
}

// Tag returns the markup tag name for the kind ("subtitle" for SRT blocks).
func (k Kind) Tag() string {
	if tag, ok := kindTags[k]; ok {
		return tag
	}
	return "unknown"
}

// BlockLevel reports whether the kind is one of the markup block elements
// subject to extraction (subtitles live outside any markup tree).
func (k Kind) BlockLevel() bool {
	return k >= KindH1 && k <= KindPreformatted
}

func (k Kind) String() string { return k.Tag() }

// MarshalJSON serializes the kind as its tag name so session files stay
// readable and stable across releases.
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.Tag())
}

func (k *Kind) UnmarshalJSON(data []byte) error {
	var tag string
	if err := json.Unmarshal(data, &tag); err != nil {
		return err
	}
	if tag == "subtitle" {
		*k = KindSubtitle
		return nil
	}
	kind, ok := KindForTag(tag)
	if !ok {
		return fmt.Errorf("unknown fragment kind %q", tag)
	}
	*k = kind
	return nil
}

// Fragment is one translatable unit of a document.
//
// Snapshot holds the element's serialized markup exactly as first seen at
// extraction time and is the single source of truth for reinsertion
// structure; it must never be modified afterwards. Timestamp is only set for
// subtitle fragments and is carried verbatim into the output file.
type Fragment struct {
	ID             string `json:"id"`
	Location       string `json:"item_href"`
	Kind           Kind   `json:"element_type"`
	OriginalText   string `json:"original_text"`
	TranslatedText string `json:"translated_text"`
	Translated     bool   `json:"is_translated"`
	LastError      string `json:"last_error,omitempty"`
	Snapshot       string `json:"original_html,omitempty"`
	Timestamp      string `json:"timestamp,omitempty"`
}

// SetTranslated stores a successful translation. Translated and
// TranslatedText change together and only here, in SetFailed, or during
// session restore.
func (f *Fragment) SetTranslated(text string) {
	f.TranslatedText = text
	f.Translated = true
	f.LastError = ""
}

// SetFailed records a failed attempt. A previous successful translation is
// never discarded: when the fragment already holds one, only LastError is
// updated and the fragment stays translated. A fragment that has never been
// translated gets the error string as its visible text, marked untranslated.
func (f *Fragment) SetFailed(msg string) {
	f.LastError = msg
	if f.Translated {
		return
	}
	f.TranslatedText = "ERROR: " + msg
	f.Translated = false
}

// CurrentText returns the text a reader should see now: the translation when
// one succeeded, the original otherwise. Context windows and output files
// are built from this.
func (f *Fragment) CurrentText() string {
	if f.Translated {
		return f.TranslatedText
	}
	return f.OriginalText
}

// Key identifies a fragment across re-extractions of the same document.
// Session reconciliation matches fresh and saved fragments on it.
func (f *Fragment) Key() string {
	return f.Location + "\x00" + f.OriginalText
}

// NormalizeText collapses all runs of whitespace to single spaces and trims
// the ends, matching how extraction renders an element's plain text.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
