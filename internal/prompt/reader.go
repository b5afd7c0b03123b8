package prompt

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
)

// ReadLines pushes every non-blank line of r onto q until r is exhausted or
// ctx is done. ctx is only checked between lines; a read blocked on r is not
// interrupted.
func ReadLines(ctx context.Context, r io.Reader, q *Queue) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if q.Push(Prompt{Text: sc.Text()}) {
			slog.Debug("prompt: line queued", "pending", q.Len())
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("prompt: read lines: %w", err)
	}
	return nil
}
