package text

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSplit(t *testing.T) {
	t.Run("Short Text Single Span", func(t *testing.T) {
		spans := Split("hello world", 1000, 200)
		assert.Len(t, spans, 1)
		assert.Equal(t, "hello world", spans[0].Text)
		assert.Equal(t, 0, spans[0].StartOffset)
		assert.Equal(t, 11, spans[0].EndOffset)
	})

	t.Run("Empty Text", func(t *testing.T) {
		assert.Nil(t, Split("", 1000, 200))
	})

	t.Run("Tiling With Overlap", func(t *testing.T) {
		text := strings.Repeat("a", 25)
		spans := Split(text, 10, 4)

		// step = 6: starts at 0, 6, 12, 18
		assert.Len(t, spans, 4)
		assert.Equal(t, 0, spans[0].StartOffset)
		assert.Equal(t, 10, spans[0].EndOffset)
		assert.Equal(t, 6, spans[1].StartOffset)
		assert.Equal(t, 16, spans[1].EndOffset)
		assert.Equal(t, 12, spans[2].StartOffset)
		assert.Equal(t, 18, spans[3].StartOffset)
		assert.Equal(t, 25, spans[3].EndOffset)
	})

	t.Run("Offsets Address Original Text", func(t *testing.T) {
		text := "The quick brown fox jumps over the lazy dog. " + strings.Repeat("More filler text here. ", 20)
		spans := Split(text, 50, 10)
		for _, s := range spans {
			assert.Equal(t, text[s.StartOffset:s.EndOffset], s.Text)
		}
	})

	t.Run("Full Coverage No Gaps", func(t *testing.T) {
		text := strings.Repeat("0123456789", 31) + "tail"
		spans := Split(text, 100, 20)
		assert.Equal(t, 0, spans[0].StartOffset)
		assert.Equal(t, len(text), spans[len(spans)-1].EndOffset)
		for i := 1; i < len(spans); i++ {
			assert.LessOrEqual(t, spans[i].StartOffset, spans[i-1].EndOffset, "gap between spans %d and %d", i-1, i)
			assert.Greater(t, spans[i].StartOffset, spans[i-1].StartOffset)
		}
	})

	t.Run("Never Splits Runes", func(t *testing.T) {
		text := strings.Repeat("héllo wörld ünïcode ", 30)
		spans := Split(text, 64, 16)
		for _, s := range spans {
			assert.True(t, utf8.ValidString(s.Text), "span %d cuts a rune", s.Index)
		}
	})

	t.Run("Deterministic", func(t *testing.T) {
		text := strings.Repeat("deterministic input ", 100)
		a := Split(text, 1000, 200)
		b := Split(text, 1000, 200)
		assert.Equal(t, a, b)
	})

	t.Run("Degenerate Overlap Falls Back To No Overlap", func(t *testing.T) {
		text := strings.Repeat("x", 30)
		spans := Split(text, 10, 10)
		assert.Len(t, spans, 3)
		assert.Equal(t, 10, spans[1].StartOffset)
	})
}

func TestChunkID(t *testing.T) {
	t.Run("Stable", func(t *testing.T) {
		assert.Equal(t, ChunkID("src-1", 0), ChunkID("src-1", 0))
	})

	t.Run("Varies By Offset", func(t *testing.T) {
		assert.NotEqual(t, ChunkID("src-1", 0), ChunkID("src-1", 800))
	})

	t.Run("Varies By Source", func(t *testing.T) {
		assert.NotEqual(t, ChunkID("src-1", 0), ChunkID("src-2", 0))
	})

	t.Run("Length", func(t *testing.T) {
		assert.Len(t, ChunkID("src-1", 1600), 12)
	})
}
