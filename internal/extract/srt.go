package extract

import (
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/valpere/fragtran/internal/fragment"
)

// SRT extracts subtitle fragments from SRT content. Blocks are separated by
// blank lines; a block needs at least an id line, a timestamp line, and one
// text line, otherwise it is treated as separator noise and skipped.
//
// File-supplied sequence ids are kept when they are numeric and unique.
// Duplicate or malformed ids would silently collide in reinsertion lookups,
// so they are rewritten to the 1-based block index and logged.
func SRT(location, content string, log *logrus.Logger) []*fragment.Fragment {
	if log == nil {
		log = logrus.StandardLogger()
	}

	var fragments []*fragment.Fragment
	seenIDs := make(map[string]bool)
	rewritten := 0

	content = strings.ReplaceAll(content, "\r\n", "\n")
	for _, block := range strings.Split(content, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		lines := strings.Split(block, "\n")
		if len(lines) < 3 {
			continue
		}

		id := strings.TrimSpace(lines[0])
		timestamp := strings.TrimSpace(lines[1])
		text := strings.TrimSpace(strings.Join(lines[2:], "\n"))
		if text == "" {
			continue
		}

		if _, err := strconv.Atoi(id); err != nil || seenIDs[id] {
			// The block index itself may already be taken by an id the
			// file supplied; keep bumping until the id is genuinely free.
			candidate := len(fragments) + 1
			for seenIDs[strconv.Itoa(candidate)] {
				candidate++
			}
			id = strconv.Itoa(candidate)
			rewritten++
		}
		seenIDs[id] = true

		fragments = append(fragments, &fragment.Fragment{
			ID:           id,
			Location:     location,
			Kind:         fragment.KindSubtitle,
			OriginalText: text,
			Timestamp:    timestamp,
		})
	}

	if rewritten > 0 {
		log.WithFields(logrus.Fields{
			"file":      location,
			"rewritten": rewritten,
		}).Warn("duplicate or malformed subtitle ids rewritten")
	}
	log.WithField("fragments", len(fragments)).Info("srt extraction complete")
	return fragments
}
