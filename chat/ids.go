package chat

import (
	"strings"

	"github.com/google/uuid"
)

func newID() string {
	return uuid.NewString()
}

// splitSegments breaks completion text into display paragraphs on blank
// lines. Whitespace-only paragraphs are dropped; empty input yields a single
// empty segment so a message is never segmentless.
func splitSegments(text string) []string {
	parts := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n")
	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			segments = append(segments, p)
		}
	}
	if len(segments) == 0 {
		segments = []string{""}
	}
	return segments
}
