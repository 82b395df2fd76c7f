// Package markup wraps golang.org/x/net/html with the document handling the
// extractor and reinserter share: XML/DOCTYPE declaration preservation, node
// text rendering, attribute access, and snippet parsing.
package markup

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/valpere/fragtran/internal/fragment"
)

// Declarations holds file-level metadata a generic HTML serializer would
// normalize or drop. It is captured before parsing and re-prepended verbatim
// after serialization.
type Declarations struct {
	XMLDecl string
	Doctype string
}

// StripDeclarations removes a leading <?xml ...?> processing instruction and
// a DOCTYPE declaration from content, returning them separately so they can
// be restored byte-for-byte after a parse/serialize round trip.
func StripDeclarations(content string) (Declarations, string) {
	var decls Declarations

	if strings.HasPrefix(strings.TrimLeft(content, " \t\r\n"), "<?xml") {
		if idx := strings.Index(content, "?>"); idx >= 0 {
			decls.XMLDecl = content[:idx+2] + "\n"
			content = content[idx+2:]
		}
	}

	if idx := strings.Index(content, "<!DOCTYPE"); idx >= 0 {
		if end := strings.Index(content[idx:], ">"); end >= 0 {
			decls.Doctype = content[idx:idx+end+1] + "\n"
			content = content[:idx] + content[idx+end+1:]
		}
	}

	return decls, content
}

// Prepend restores the captured declarations in front of serialized markup.
func (d Declarations) Prepend(body string) string {
	return d.XMLDecl + d.Doctype + strings.TrimLeft(body, "\n")
}

// ParseDocument strips declarations and parses the remaining markup into a
// document tree.
func ParseDocument(content string) (*html.Node, Declarations, error) {
	decls, body := StripDeclarations(content)
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil, decls, fmt.Errorf("failed to parse document: %w", err)
	}
	return doc, decls, nil
}

// RenderDocument serializes a document tree and re-prepends its declarations.
func RenderDocument(doc *html.Node, decls Declarations) (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return "", fmt.Errorf("failed to serialize document: %w", err)
	}
	return decls.Prepend(buf.String()), nil
}

// RenderNode serializes a single element subtree.
func RenderNode(n *html.Node) (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return "", err
	}
	return buf.String(), nil
}

var snippetTagRe = regexp.MustCompile(`^\s*<([a-zA-Z][a-zA-Z0-9]*)`)

// snippetContext picks the context element for fragment parsing based on the
// snippet's root tag. Table-scoped tags (td, th, tr) are dropped outright by
// the HTML5 fragment algorithm under a body context, so they need a table
// ancestor as context instead.
func snippetContext(snippet string) *html.Node {
	parent := atom.Body
	if m := snippetTagRe.FindStringSubmatch(snippet); m != nil {
		switch strings.ToLower(m[1]) {
		case "td", "th":
			parent = atom.Tr
		case "tr":
			parent = atom.Tbody
		}
	}
	return &html.Node{Type: html.ElementNode, Data: parent.String(), DataAtom: parent}
}

// ParseSnippet parses a serialized element (a fragment snapshot) and returns
// its root element node, detached and ready for insertion into another tree.
func ParseSnippet(snippet string) (*html.Node, error) {
	nodes, err := html.ParseFragment(strings.NewReader(snippet), snippetContext(snippet))
	if err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			if n.Parent != nil {
				n.Parent.RemoveChild(n)
			}
			return n, nil
		}
	}
	return nil, fmt.Errorf("snapshot contains no element")
}

// Text renders the normalized plain text of a subtree: all text nodes joined
// with single spaces, whitespace collapsed.
func Text(n *html.Node) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			if t := strings.TrimSpace(node.Data); t != "" {
				parts = append(parts, t)
			}
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return fragment.NormalizeText(strings.Join(parts, " "))
}

// Attr returns the value of an attribute on n.
func Attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets or replaces an attribute on n.
func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// HasClass reports whether n carries the given class token.
func HasClass(n *html.Node, class string) bool {
	v, ok := Attr(n, "class")
	if !ok {
		return false
	}
	for _, c := range strings.Fields(v) {
		if c == class {
			return true
		}
	}
	return false
}

// FindByClass returns the first element under root (depth-first) whose tag
// and class both match. tag may be empty to match any element.
func FindByClass(root *html.Node, tag, class string) *html.Node {
	var found *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode && (tag == "" || n.Data == tag) && HasClass(n, class) {
			found = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return found
}

// TextLeaves returns all text nodes under root with non-blank content, in
// document order.
func TextLeaves(root *html.Node) []*html.Node {
	var leaves []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode && strings.TrimSpace(n.Data) != "" {
			leaves = append(leaves, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return leaves
}

// ReplaceNode swaps old for repl within old's parent.
func ReplaceNode(old, repl *html.Node) error {
	if old.Parent == nil {
		return fmt.Errorf("node has no parent")
	}
	if repl.Parent != nil {
		repl.Parent.RemoveChild(repl)
	}
	old.Parent.InsertBefore(repl, old)
	old.Parent.RemoveChild(old)
	return nil
}

// WalkElements visits every element node under root in depth-first document
// order. Returning false from visit stops the walk.
func WalkElements(root *html.Node, visit func(*html.Node) bool) {
	stopped := false
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if stopped {
			return
		}
		if n.Type == html.ElementNode {
			if !visit(n) {
				stopped = true
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
}
