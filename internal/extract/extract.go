// Package extract turns structured documents into ordered lists of
// addressable fragments. The markup extractor annotates each extracted
// element with a stable id and re-serializes the tree so ids persist into
// the saved document; the line-block extractor handles SRT subtitle files.
package extract

import "fmt"

// Error reports a document that could not be parsed or re-serialized, naming
// the document that failed.
type Error struct {
	Location string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extraction failed for %s: %v", e.Location, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
