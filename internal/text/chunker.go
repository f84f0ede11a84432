package text

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"unicode/utf8"
)

// Span is a contiguous slice of a document, addressed by byte offsets into
// the original content. Text is always exactly content[StartOffset:EndOffset].
type Span struct {
	Index       int
	Text        string
	StartOffset int
	EndOffset   int
}

// Split tiles text into overlapping spans of at most maxBytes bytes each,
// with consecutive spans sharing overlap bytes. Span boundaries are pulled
// back to UTF-8 rune starts so no span ever cuts a character in half.
// The tiling is a pure function of its inputs: same text, same spans.
func Split(text string, maxBytes, overlap int) []Span {
	if len(text) == 0 {
		return nil
	}
	if maxBytes <= 0 {
		maxBytes = len(text)
	}
	if overlap < 0 || overlap >= maxBytes {
		overlap = 0
	}

	var spans []Span
	start := 0
	for {
		end := start + maxBytes
		if end >= len(text) {
			end = len(text)
		} else {
			// Never split a rune across two spans
			for end > start && !utf8.RuneStart(text[end]) {
				end--
			}
			if end == start {
				// Rune wider than the budget, take it whole
				_, size := utf8.DecodeRuneInString(text[start:])
				end = start + size
			}
		}

		spans = append(spans, Span{
			Index:       len(spans),
			Text:        text[start:end],
			StartOffset: start,
			EndOffset:   end,
		})

		if end == len(text) {
			return spans
		}

		next := end - overlap
		for next < len(text) && !utf8.RuneStart(text[next]) {
			next++
		}
		if next <= start {
			next = end
		}
		start = next
	}
}

// ChunkID derives a stable identifier from the source and the span's start
// offset. Re-ingesting identical content yields identical IDs.
func ChunkID(sourceID string, startOffset int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", sourceID, startOffset)))
	return hex.EncodeToString(sum[:])[:12]
}
