package reinsert

import (
	"errors"
	"fmt"
)

var errNodeNotFound = errors.New("fragment node not found")

// Error reports a reinsertion failure scoped to one document or fragment.
type Error struct {
	Location string
	Fragment string
	Err      error
}

func (e *Error) Error() string {
	if e.Fragment != "" {
		return fmt.Sprintf("reinsertion failed for %s in %s: %v", e.Fragment, e.Location, e.Err)
	}
	return fmt.Sprintf("reinsertion failed for %s: %v", e.Location, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
