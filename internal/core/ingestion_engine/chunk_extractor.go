package ingestion_engine

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"
)

// streamChunk groups incoming fragments into token-bounded chunks with optional overlap.
//
// frags:          upstream page-attributed fragments channel.
// targetTokens:   approximate tokens per chunk.
// overlapTokens:  tokens to retain from the end of the previous chunk as seed of the next (e.g., 50).
// out:            receive-only channel of chunk structs with Pos/Page/Text/TokenCnt.
func (i *DocumentIngestor) streamChunk(
	ctx context.Context,
	g *errgroup.Group,
	frags <-chan fragment,
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
			seeded int // fragments in buf carried over as overlap, not new content
		)

		// flush emits the current buffer as a chunk and prepares the buffer for
		// the next chunk, preserving overlapTokens from the tail if configured.
		flush := func(force bool) error {
			if tokSum == 0 && !force {
				return nil
			}
			texts := make([]string, len(buf))
			page := 1
			for j, f := range buf {
				texts[j] = f.Text
				if j == 0 {
					page = f.Page
				}
			}
			ch := chunk{Pos: pos, Page: page, Text: strings.Join(texts, "\n"), TokenCnt: tokSum}
			pos++

			// Emit the chunk to downstream; backpressure applies here.
			select {
			case out <- ch:
			case <-ctx.Done():
				return ctx.Err()
			}

			// Compute overlap: keep a tail whose token sum ≈ overlapTokens.
			if overlapTokens > 0 {
				keep := []fragment{}
				remain := overlapTokens
				for j := len(buf) - 1; j >= 0 && remain > 0; j-- {
					t := approxTokens(buf[j].Text)
					keep = append([]fragment{buf[j]}, keep...) // prepend to keep original order
					remain -= t
				}
				buf = keep

				// Recompute tokSum for the kept tail.
				tokSum = 0
				for _, f := range buf {
					tokSum += approxTokens(f.Text)
				}
			} else {
				buf = buf[:0]
				tokSum = 0
			}
			seeded = len(buf)
			return nil
		}

		for frag := range frags {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			// Accumulate fragment and its token estimate.
			t := approxTokens(frag.Text)
			buf = append(buf, frag)
			tokSum += t

			// If we've reached the target, emit a chunk.
			if tokSum >= targetTokens {
				if err := flush(false); err != nil {
					return err
				}
			}
		}

		// Emit the remaining tail, but not a buffer that is pure overlap
		// carry-over; that content already went out with the previous chunk.
		if len(buf) > seeded {
			return flush(false)
		}
		return nil
	})

	return out
}

// approxTokens is a cheap token estimator (~4 chars ≈ 1 token).
// Replace with a real tokenizer later to improve chunk boundaries.
func approxTokens(s string) int {
	n := len([]rune(s))
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}
