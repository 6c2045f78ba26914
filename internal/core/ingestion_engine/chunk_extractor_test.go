package ingestion_engine

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func collectChunks(t *testing.T, fragments []string, targetTokens, overlapTokens int) []chunk {
	t.Helper()

	g, ctx := errgroup.WithContext(context.Background())
	frags := make(chan string)
	go func() {
		defer close(frags)
		for _, f := range fragments {
			frags <- f
		}
	}()

	ing := &DocumentIngestor{}
	out := ing.streamChunk(ctx, g, frags, targetTokens, overlapTokens)

	var got []chunk
	for ch := range out {
		got = append(got, ch)
	}
	require.NoError(t, g.Wait())
	return got
}

func TestStreamChunkEmptyInput(t *testing.T) {
	got := collectChunks(t, nil, 100, 10)
	assert.Empty(t, got)
}

func TestStreamChunkShortTail(t *testing.T) {
	got := collectChunks(t, []string{"aaaa", "bb"}, 100, 0)
	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0].Pos)
	assert.Equal(t, "aaaa\nbb", got[0].Text)
	assert.Equal(t, 0, got[0].CharStart)
	assert.Equal(t, 7, got[0].CharEnd)
}

func TestStreamChunkDensePositions(t *testing.T) {
	// Each fragment is ~1 token, so a target of 1 flushes per fragment.
	got := collectChunks(t, []string{"aaaa", "bbbb", "cccc"}, 1, 0)
	require.Len(t, got, 3)
	for i, ch := range got {
		assert.Equal(t, i, ch.Pos)
	}
	assert.Equal(t, "aaaa", got[0].Text)
	assert.Equal(t, "bbbb", got[1].Text)
	assert.Equal(t, "cccc", got[2].Text)

	// Fragments are joined by newlines, so spans advance by rune length + 1.
	assert.Equal(t, 0, got[0].CharStart)
	assert.Equal(t, 4, got[0].CharEnd)
	assert.Equal(t, 5, got[1].CharStart)
	assert.Equal(t, 9, got[1].CharEnd)
	assert.Equal(t, 10, got[2].CharStart)
	assert.Equal(t, 14, got[2].CharEnd)
}

func TestStreamChunkOverlap(t *testing.T) {
	frags := []string{
		strings.Repeat("a", 8),
		strings.Repeat("b", 8),
		strings.Repeat("c", 8),
		strings.Repeat("d", 8),
	}
	// 2 tokens per fragment, flush at 4, keep ~2 tokens of tail.
	got := collectChunks(t, frags, 4, 2)
	require.Len(t, got, 3)

	assert.Equal(t, frags[0]+"\n"+frags[1], got[0].Text)
	// The next chunk re-opens with the previous tail fragment.
	assert.True(t, strings.HasPrefix(got[1].Text, frags[1]))
	assert.Equal(t, 9, got[1].CharStart)
	assert.True(t, strings.HasPrefix(got[2].Text, frags[2]))

	// The final buffer held only already-emitted overlap, so no extra chunk.
	assert.Equal(t, 2, got[2].Pos)
}

func TestStreamChunkSpansMonotonic(t *testing.T) {
	frags := []string{
		"the quick brown fox jumps over the lazy dog",
		"pack my box with five dozen liquor jugs",
		"sphinx of black quartz judge my vow",
		"how vexingly quick daft zebras jump",
	}
	got := collectChunks(t, frags, 12, 3)
	require.NotEmpty(t, got)
	for i, ch := range got {
		assert.Equal(t, i, ch.Pos)
		assert.Less(t, ch.CharStart, ch.CharEnd)
		if i > 0 {
			assert.Greater(t, ch.CharStart, got[i-1].CharStart)
		}
	}
}

func TestApproxTokens(t *testing.T) {
	assert.Equal(t, 0, approxTokens(""))
	assert.Equal(t, 1, approxTokens("abc"))
	assert.Equal(t, 1, approxTokens("abcd"))
	assert.Equal(t, 2, approxTokens("abcde"))
	assert.Equal(t, 25, approxTokens(strings.Repeat("x", 100)))
}
