package fragment

import (
	"encoding/json"
	"testing"
)

func TestKindForTag(t *testing.T) {
	tests := []struct {
		tag  string
		kind Kind
		ok   bool
	}{
		{"p", KindParagraph, true},
		{"P", KindParagraph, true},
		{"h1", KindH1, true},
		{"h6", KindH6, true},
		{"li", KindListItem, true},
		{"td", KindTableCell, true},
		{"th", KindTableHeader, true},
		{"blockquote", KindBlockquote, true},
		{"pre", KindPreformatted, true},
		{"div", 0, false},
		{"span", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		kind, ok := KindForTag(tt.tag)
		if ok != tt.ok {
			t.Errorf("KindForTag(%q) ok = %v, want %v", tt.tag, ok, tt.ok)
			continue
		}
		if ok && kind != tt.kind {
			t.Errorf("KindForTag(%q) = %v, want %v", tt.tag, kind, tt.kind)
		}
	}
}

func TestKind_BlockLevel(t *testing.T) {
	for _, k := range []Kind{KindH1, KindH6, KindParagraph, KindPreformatted} {
		if !k.BlockLevel() {
			t.Errorf("%v should be block level", k)
		}
	}
	if KindSubtitle.BlockLevel() {
		t.Error("subtitle must not be block level")
	}
	if KindUnknown.BlockLevel() {
		t.Error("unknown must not be block level")
	}
}

func TestKind_JSONRoundTrip(t *testing.T) {
	for _, k := range []Kind{KindH3, KindParagraph, KindSubtitle} {
		data, err := json.Marshal(k)
		if err != nil {
			t.Fatalf("marshal %v: %v", k, err)
		}
		var back Kind
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if back != k {
			t.Errorf("round trip of %v gave %v", k, back)
		}
	}

	var k Kind
	if err := json.Unmarshal([]byte(`"marquee"`), &k); err == nil {
		t.Error("expected error for unknown kind tag")
	}
}

func TestSetTranslated(t *testing.T) {
	f := &Fragment{ID: "frag-1", OriginalText: "Hello"}
	f.LastError = "previous failure"

	f.SetTranslated("Привіт")

	if !f.Translated {
		t.Error("expected Translated=true")
	}
	if f.TranslatedText != "Привіт" {
		t.Errorf("TranslatedText = %q", f.TranslatedText)
	}
	if f.LastError != "" {
		t.Errorf("LastError should be cleared, got %q", f.LastError)
	}
}

func TestSetFailed_NeverTranslated(t *testing.T) {
	f := &Fragment{ID: "frag-1", OriginalText: "Hello"}

	f.SetFailed("backend down")

	if f.Translated {
		t.Error("expected Translated=false")
	}
	if f.TranslatedText != "ERROR: backend down" {
		t.Errorf("TranslatedText = %q", f.TranslatedText)
	}
	if f.LastError != "backend down" {
		t.Errorf("LastError = %q", f.LastError)
	}
}

func TestSetFailed_KeepsPreviousSuccess(t *testing.T) {
	f := &Fragment{ID: "frag-1", OriginalText: "Hello"}
	f.SetTranslated("Привіт")

	f.SetFailed("retry failed")

	if !f.Translated {
		t.Error("a failed retry must not discard a successful translation")
	}
	if f.TranslatedText != "Привіт" {
		t.Errorf("TranslatedText = %q, want previous translation", f.TranslatedText)
	}
	if f.LastError != "retry failed" {
		t.Errorf("LastError = %q", f.LastError)
	}
}

func TestCurrentText(t *testing.T) {
	f := &Fragment{OriginalText: "Hello"}
	if f.CurrentText() != "Hello" {
		t.Errorf("untranslated CurrentText = %q", f.CurrentText())
	}
	f.SetTranslated("Привіт")
	if f.CurrentText() != "Привіт" {
		t.Errorf("translated CurrentText = %q", f.CurrentText())
	}
}

func TestKey(t *testing.T) {
	a := &Fragment{Location: "ch1.xhtml", OriginalText: "Hello"}
	b := &Fragment{Location: "ch2.xhtml", OriginalText: "Hello"}
	c := &Fragment{Location: "ch1.xhtml", OriginalText: "Hello"}

	if a.Key() == b.Key() {
		t.Error("same text in different documents must have different keys")
	}
	if a.Key() != c.Key() {
		t.Error("same location and text must have equal keys")
	}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello world", "Hello world"},
		{"  Hello   world  ", "Hello world"},
		{"Hello\n\tworld", "Hello world"},
		{"", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		if got := NormalizeText(tt.input); got != tt.expected {
			t.Errorf("NormalizeText(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
