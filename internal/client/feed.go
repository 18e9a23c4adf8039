package client

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Pusher accepts document chunks. *push.Parser implements it.
type Pusher interface {
	Push(ctx context.Context, chunk []byte, last bool) error
}

// Feed reads r in pieces of at most size bytes and pushes every piece as it
// arrives, then finishes the document with an empty last push. It returns
// the number of bytes pushed.
func Feed(ctx context.Context, r io.Reader, p Pusher, size int) (int64, error) {
	if size <= 0 {
		return 0, fmt.Errorf("invalid chunk size %d", size)
	}

	buf := make([]byte, size)
	var total int64
	done := ctx.Done()

	for {
		select {
		case <-done:
			return total, ctx.Err()
		default:
		}

		n, err := r.Read(buf)
		if n > 0 {
			if perr := p.Push(ctx, buf[:n], false); perr != nil {
				return total, perr
			}
			total += int64(n)
		}

		switch {
		case errors.Is(err, io.EOF):
			log.Debugf("input exhausted after %d bytes", total)
			return total, p.Push(ctx, nil, true)
		case err != nil:
			return total, fmt.Errorf("failed to read input: %w", err)
		}
	}
}
