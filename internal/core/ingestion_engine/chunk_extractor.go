package ingestion_engine

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"
)

// fragment is one extracted line with its absolute rune offset.
type fragment struct {
	text  string
	start int
	toks  int
}

// streamChunk groups incoming fragments into token-bounded chunks with
// optional overlap, tracking character spans as it goes.
//
// frags:         upstream fragments channel.
// targetTokens:  approximate tokens per chunk.
// overlapTokens: tokens to retain from the end of the previous chunk as seed of the next.
func (i *DocumentIngestor) streamChunk(
	ctx context.Context,
	g *errgroup.Group,
	frags <-chan string,
	targetTokens int,
	overlapTokens int,
) <-chan chunk {
	out := make(chan chunk, 8)

	g.Go(func() error {
		defer close(out)

		var (
			buf    []fragment
			tokSum int
			pos    int
			cursor int // absolute rune offset, fragments joined by "\n"
			fresh  bool
		)

		// flush emits the buffer as one chunk, then seeds the next buffer
		// with a tail worth ~overlapTokens.
		flush := func() error {
			if tokSum == 0 {
				return nil
			}
			parts := make([]string, len(buf))
			for j, f := range buf {
				parts[j] = f.text
			}
			text := strings.Join(parts, "\n")
			ch := chunk{
				Pos:       pos,
				Text:      text,
				CharStart: buf[0].start,
				CharEnd:   buf[len(buf)-1].start + len([]rune(buf[len(buf)-1].text)),
				TokenCnt:  tokSum,
			}
			pos++

			select {
			case out <- ch:
			case <-ctx.Done():
				return ctx.Err()
			}
			fresh = false

			if overlapTokens > 0 {
				var keep []fragment
				remain := overlapTokens
				for j := len(buf) - 1; j >= 0 && remain > 0; j-- {
					keep = append([]fragment{buf[j]}, keep...)
					remain -= buf[j].toks
				}
				buf = keep
				tokSum = 0
				for _, f := range buf {
					tokSum += f.toks
				}
			} else {
				buf = buf[:0]
				tokSum = 0
			}
			return nil
		}

		for frag := range frags {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			f := fragment{text: frag, start: cursor, toks: approxTokens(frag)}
			cursor += len([]rune(frag)) + 1

			buf = append(buf, f)
			tokSum += f.toks
			fresh = true

			if tokSum >= targetTokens {
				if err := flush(); err != nil {
					return err
				}
			}
		}

		// Emit the remaining tail, unless it is pure overlap already emitted.
		if fresh {
			return flush()
		}
		return nil
	})

	return out
}

// approxTokens is a cheap token estimator (~4 chars ≈ 1 token).
func approxTokens(s string) int {
	n := len([]rune(s))
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}
