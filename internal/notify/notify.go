// Package notify delivers sync-engine output to Discord channels, splitting
// content that exceeds the destination's message-size ceiling.
package notify

import "strings"

// MaxMessageLen is the Discord message-content ceiling.
const MaxMessageLen = 2000

// Notifier is the outbound channel capability the sync loops depend on.
// Send paginates oversized content; Upsert edits an existing message in
// place, or sends a new one when messageID is empty or no longer
// resolvable, and returns the id of the live message.
type Notifier interface {
	Send(channelID, content string) error
	Upsert(channelID, messageID, content string) (string, error)
}

// Paginate splits content into pages of at most limit bytes, breaking at
// line boundaries. Content is never dropped: a single line longer than the
// limit is hard-split. Splitting is deterministic for a given input.
func Paginate(content string, limit int) []string {
	if content == "" {
		return nil
	}

	var pages []string
	var page strings.Builder

	flush := func() {
		if page.Len() > 0 {
			pages = append(pages, page.String())
			page.Reset()
		}
	}

	for _, line := range strings.Split(content, "\n") {
		// Hard-split lines that cannot fit on any page.
		for len(line) > limit {
			flush()
			pages = append(pages, line[:limit])
			line = line[limit:]
		}

		need := len(line)
		if page.Len() > 0 {
			need++ // joining newline
		}
		if page.Len()+need > limit {
			flush()
		}
		if page.Len() > 0 {
			page.WriteByte('\n')
		}
		page.WriteString(line)
	}
	flush()

	return pages
}
