package extract

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"

	"github.com/valpere/fragtran/internal/epubfile"
	"github.com/valpere/fragtran/internal/fragment"
	"github.com/valpere/fragtran/internal/markup"
)

// EPUB extracts translatable fragments from every spine document of book, in
// reading order. Each matching block element gets a stable id (synthesized
// when absent), its markup snapshotted, and the annotated tree is written
// back into the book so the ids survive into any saved copy. Duplicate
// (document, text) pairs yield a single fragment.
func EPUB(book *epubfile.Book, log *logrus.Logger) ([]*fragment.Fragment, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	var fragments []*fragment.Fragment
	seen := make(map[string]bool)

	for _, name := range book.Documents() {
		raw, ok := book.Content(name)
		if !ok || len(raw) == 0 {
			continue
		}

		doc, decls, err := markup.ParseDocument(string(raw))
		if err != nil {
			return nil, &Error{Location: name, Err: err}
		}

		var walkErr error
		markup.WalkElements(doc, func(n *html.Node) bool {
			kind, ok := fragment.KindForTag(n.Data)
			if !ok || !kind.BlockLevel() {
				return true
			}

			text := markup.Text(n)
			if text == "" {
				return true
			}
			key := name + "\x00" + text
			if seen[key] {
				return true
			}
			seen[key] = true

			if _, ok := markup.Attr(n, "id"); !ok {
				markup.SetAttr(n, "id", "frag-"+uuid.NewString())
			}
			id, _ := markup.Attr(n, "id")

			snapshot, err := markup.RenderNode(n)
			if err != nil {
				walkErr = fmt.Errorf("failed to snapshot %s#%s: %w", n.Data, id, err)
				return false
			}

			fragments = append(fragments, &fragment.Fragment{
				ID:           id,
				Location:     name,
				Kind:         kind,
				OriginalText: text,
				Snapshot:     snapshot,
			})
			return true
		})
		if walkErr != nil {
			return nil, &Error{Location: name, Err: walkErr}
		}

		// Persist the id annotations: reinsertion re-parses this serialized
		// form, not the pristine original.
		annotated, err := markup.RenderDocument(doc, decls)
		if err != nil {
			return nil, &Error{Location: name, Err: err}
		}
		if err := book.SetContent(name, []byte(annotated)); err != nil {
			return nil, &Error{Location: name, Err: err}
		}

		log.WithFields(logrus.Fields{"document": name}).Debug("document extracted")
	}

	log.WithField("fragments", len(fragments)).Info("epub extraction complete")
	return fragments, nil
}

// RemapIDs rewrites id attributes across the book's documents according to
// remap (old id to new id). Session restore uses it to replace freshly
// synthesized ids with the ids recorded in the session file.
func RemapIDs(book *epubfile.Book, remap map[string]string) error {
	if len(remap) == 0 {
		return nil
	}
	for _, name := range book.Documents() {
		raw, ok := book.Content(name)
		if !ok || len(raw) == 0 {
			continue
		}
		doc, decls, err := markup.ParseDocument(string(raw))
		if err != nil {
			return &Error{Location: name, Err: err}
		}
		changed := false
		markup.WalkElements(doc, func(n *html.Node) bool {
			if id, ok := markup.Attr(n, "id"); ok {
				if repl, ok := remap[id]; ok && repl != id {
					markup.SetAttr(n, "id", repl)
					changed = true
				}
			}
			return true
		})
		if !changed {
			continue
		}
		annotated, err := markup.RenderDocument(doc, decls)
		if err != nil {
			return &Error{Location: name, Err: err}
		}
		if err := book.SetContent(name, []byte(annotated)); err != nil {
			return &Error{Location: name, Err: err}
		}
	}
	return nil
}
