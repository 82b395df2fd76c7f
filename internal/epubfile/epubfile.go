// Package epubfile reads and writes EPUB containers in memory. It resolves
// the OPF package through META-INF/container.xml and exposes the spine's
// content documents for extraction and reinsertion; every other entry is
// carried through untouched.
package epubfile

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
)

type container struct {
	XMLName   xml.Name `xml:"container"`
	Rootfiles []struct {
		FullPath  string `xml:"full-path,attr"`
		MediaType string `xml:"media-type,attr"`
	} `xml:"rootfiles>rootfile"`
}

type opfPackage struct {
	XMLName  xml.Name `xml:"package"`
	Manifest struct {
		Items []manifestItem `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		ItemRefs []struct {
			IDRef string `xml:"idref,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

type manifestItem struct {
	ID        string `xml:"id,attr"`
	Href      string `xml:"href,attr"`
	MediaType string `xml:"media-type,attr"`
}

// Book is an EPUB held fully in memory. Entry order from the source archive
// is preserved on write.
type Book struct {
	names    []string
	contents map[string][]byte
	docs     []string
}

// Open reads an EPUB archive and resolves its spine documents.
func Open(epubPath string) (*Book, error) {
	raw, err := os.ReadFile(epubPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read epub: %w", err)
	}
	return Read(bytes.NewReader(raw), int64(len(raw)))
}

// Read parses an EPUB archive from r.
func Read(r io.ReaderAt, size int64) (*Book, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("not a valid epub archive: %w", err)
	}

	b := &Book{contents: make(map[string][]byte)}
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", f.Name, err)
		}
		b.names = append(b.names, f.Name)
		b.contents[f.Name] = data
	}

	if err := b.resolveSpine(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Book) resolveSpine() error {
	raw, ok := b.contents["META-INF/container.xml"]
	if !ok {
		return fmt.Errorf("missing META-INF/container.xml")
	}
	var c container
	if err := xml.Unmarshal(raw, &c); err != nil {
		return fmt.Errorf("failed to parse container.xml: %w", err)
	}
	if len(c.Rootfiles) == 0 {
		return fmt.Errorf("container.xml declares no rootfile")
	}
	opfPath := c.Rootfiles[0].FullPath

	opfRaw, ok := b.contents[opfPath]
	if !ok {
		return fmt.Errorf("missing package document %s", opfPath)
	}
	var pkg opfPackage
	if err := xml.Unmarshal(opfRaw, &pkg); err != nil {
		return fmt.Errorf("failed to parse package document: %w", err)
	}

	items := make(map[string]manifestItem, len(pkg.Manifest.Items))
	for _, it := range pkg.Manifest.Items {
		items[it.ID] = it
	}

	opfDir := path.Dir(opfPath)
	for _, ref := range pkg.Spine.ItemRefs {
		it, ok := items[ref.IDRef]
		if !ok {
			continue
		}
		if it.MediaType != "application/xhtml+xml" && it.MediaType != "text/html" {
			continue
		}
		name := it.Href
		if opfDir != "." {
			name = path.Join(opfDir, it.Href)
		}
		if _, ok := b.contents[name]; ok {
			b.docs = append(b.docs, name)
		}
	}
	if len(b.docs) == 0 {
		return fmt.Errorf("spine references no content documents")
	}
	return nil
}

// Documents returns the archive names of the spine's content documents in
// reading order.
func (b *Book) Documents() []string {
	out := make([]string, len(b.docs))
	copy(out, b.docs)
	return out
}

// Content returns the current bytes of an entry.
func (b *Book) Content(name string) ([]byte, bool) {
	data, ok := b.contents[name]
	return data, ok
}

// SetContent replaces an existing entry's bytes.
func (b *Book) SetContent(name string, data []byte) error {
	if _, ok := b.contents[name]; !ok {
		return fmt.Errorf("no such entry: %s", name)
	}
	b.contents[name] = data
	return nil
}

// Write serializes the book to w. The mimetype entry, when present, is
// written first and uncompressed as the EPUB OCF spec requires.
func (b *Book) Write(w io.Writer) error {
	zw := zip.NewWriter(w)

	if data, ok := b.contents["mimetype"]; ok {
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
		if err != nil {
			return err
		}
		if _, err := fw.Write(data); err != nil {
			return err
		}
	}

	for _, name := range b.names {
		if name == "mimetype" {
			continue
		}
		fw, err := zw.Create(name)
		if err != nil {
			return err
		}
		if _, err := fw.Write(b.contents[name]); err != nil {
			return err
		}
	}
	return zw.Close()
}

// WriteFile serializes the book to a file on disk.
func (b *Book) WriteFile(outPath string) error {
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()
	if err := b.Write(f); err != nil {
		return fmt.Errorf("failed to write epub: %w", err)
	}
	return nil
}
