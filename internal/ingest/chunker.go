package ingest

import "strings"

const (
	// DefaultChunkSize bounds chunk length in characters. Sized so a chunk
	// plus prompt framing stays well inside embedding model limits.
	DefaultChunkSize = 1000
	// DefaultChunkOverlap is carried from the tail of one chunk into the
	// next so answers spanning a boundary stay retrievable.
	DefaultChunkOverlap = 200
)

// Chunk splits text into overlapping chunks, preferring paragraph
// boundaries. Paragraphs longer than maxSize are hard-split. Returns nil for
// blank input.
func Chunk(text string, maxSize, overlap int) []string {
	if maxSize <= 0 {
		maxSize = DefaultChunkSize
	}
	if overlap < 0 || overlap >= maxSize {
		overlap = maxSize / 5
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= maxSize {
		return []string{text}
	}

	var paragraphs []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if len(p) > maxSize {
			paragraphs = append(paragraphs, hardSplit(p, maxSize, overlap)...)
		} else {
			paragraphs = append(paragraphs, p)
		}
	}

	var chunks []string
	var current strings.Builder
	for _, p := range paragraphs {
		if current.Len() > 0 && current.Len()+2+len(p) > maxSize {
			chunk := current.String()
			chunks = append(chunks, chunk)
			current.Reset()
			current.WriteString(overlapTail(chunk, overlap))
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// hardSplit cuts an oversized paragraph into maxSize windows with overlap,
// snapping the cut to the last space when one is near.
func hardSplit(p string, maxSize, overlap int) []string {
	var parts []string
	for len(p) > maxSize {
		cut := maxSize
		if idx := strings.LastIndexByte(p[:maxSize], ' '); idx > maxSize/2 {
			cut = idx
		}
		parts = append(parts, strings.TrimSpace(p[:cut]))
		next := cut - overlap
		if next < 1 {
			next = cut
		}
		p = strings.TrimSpace(p[next:])
	}
	if p != "" {
		parts = append(parts, p)
	}
	return parts
}

// overlapTail returns the last overlap characters of chunk, snapped forward
// to a word boundary.
func overlapTail(chunk string, overlap int) string {
	if overlap <= 0 || len(chunk) <= overlap {
		return ""
	}
	tail := chunk[len(chunk)-overlap:]
	if idx := strings.IndexByte(tail, ' '); idx >= 0 {
		tail = tail[idx+1:]
	}
	return strings.TrimSpace(tail)
}
