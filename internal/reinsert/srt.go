package reinsert

import (
	"fmt"
	"io"

	"github.com/valpere/fragtran/internal/fragment"
)

// SRT writes fragments back out in SRT form: id line, timestamp line, the
// translated text when available (original otherwise), then a blank line.
func SRT(w io.Writer, fragments []*fragment.Fragment) error {
	for _, f := range fragments {
		if _, err := fmt.Fprintf(w, "%s\n%s\n%s\n\n", f.ID, f.Timestamp, f.CurrentText()); err != nil {
			return fmt.Errorf("failed to write subtitle %s: %w", f.ID, err)
		}
	}
	return nil
}
