// Package reinsert writes translated fragments back into their documents.
// Markup fragments are substituted through their extraction-time snapshot so
// nested inline markup survives; subtitle files are rewritten block by block.
package reinsert

import (
	"regexp"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"

	"github.com/valpere/fragtran/internal/epubfile"
	"github.com/valpere/fragtran/internal/fragment"
	"github.com/valpere/fragtran/internal/markup"
)

// Options name the inline spans the substitution recognizes. A title span is
// the designated target for heading-like fragments; when a numbering span
// sits beside it the "12. " prefix is rendered by that sibling and stripped
// from the inserted text instead of being duplicated.
type Options struct {
	TitleClass  string
	NumberClass string
}

// DefaultOptions matches the class names Calibre-produced EPUBs use.
func DefaultOptions() Options {
	return Options{TitleClass: "calibre1", NumberClass: "item-number"}
}

var leadingNumbering = regexp.MustCompile(`^\s*\d+\.\s*`)

// EPUB substitutes every translated fragment into its document inside book.
// Fragments whose node cannot be located are logged and skipped; one bad
// fragment never aborts the rest of the save. The updated documents are
// stored back into the book, declarations preserved verbatim.
func EPUB(book *epubfile.Book, fragments []*fragment.Fragment, opts Options, log *logrus.Logger) error {
	if log == nil {
		log = logrus.StandardLogger()
	}

	byDoc := make(map[string][]*fragment.Fragment)
	for _, f := range fragments {
		if f.Translated && f.Kind.BlockLevel() {
			byDoc[f.Location] = append(byDoc[f.Location], f)
		}
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
		gq := goquery.NewDocumentFromNode(doc)

		for _, f := range byDoc[name] {
			if err := substitute(gq, f, opts); err != nil {
				log.WithFields(logrus.Fields{
					"document": name,
					"fragment": f.ID,
				}).WithError(err).Warn("fragment skipped during reinsertion")
			}
		}

		out, err := markup.RenderDocument(doc, decls)
		if err != nil {
			return &Error{Location: name, Err: err}
		}
		if err := book.SetContent(name, []byte(out)); err != nil {
			return &Error{Location: name, Err: err}
		}
	}

	return nil
}

// substitute locates the live node for f by (tag, id), fills a fresh parse
// of the snapshot with the translated text, and swaps it in.
func substitute(gq *goquery.Document, f *fragment.Fragment, opts Options) error {
	sel := gq.Find(f.Kind.Tag()).FilterFunction(func(_ int, s *goquery.Selection) bool {
		id, _ := s.Attr("id")
		return id == f.ID
	})
	if sel.Length() == 0 {
		return &Error{Location: f.Location, Fragment: f.ID, Err: errNodeNotFound}
	}
	live := sel.Nodes[0]

	tmpl, err := markup.ParseSnippet(f.Snapshot)
	if err != nil {
		return &Error{Location: f.Location, Fragment: f.ID, Err: err}
	}

	fillTemplate(tmpl, f.TranslatedText, opts)

	return markup.ReplaceNode(live, tmpl)
}

func fillTemplate(tmpl *html.Node, translated string, opts Options) {
	if title := markup.FindByClass(tmpl, "span", opts.TitleClass); title != nil {
		text := translated
		if markup.FindByClass(tmpl, "span", opts.NumberClass) != nil {
			text = leadingNumbering.ReplaceAllString(text, "")
		}
		setNodeText(title, text)
		return
	}

	leaves := markup.TextLeaves(tmpl)
	switch {
	case len(leaves) == 1:
		leaves[0].Data = translated
	case len(leaves) > 1:
		// The longest original run is assumed to be the primary content;
		// shorter runs are residual inline decoration and are blanked.
		main := leaves[0]
		for _, n := range leaves[1:] {
			if len(n.Data) > len(main.Data) {
				main = n
			}
		}
		for _, n := range leaves {
			if n == main {
				n.Data = translated
			} else {
				n.Data = ""
			}
		}
	}
}

// setNodeText replaces all of n's children with a single text node.
func setNodeText(n *html.Node, text string) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}
