package session

import (
	"bufio"
	"context"
	"io"
	"strings"
	"time"

	"marlin/internal/bus"
)

// StartInputProducer reads lines from r on its own goroutine and forwards
// them to the bus until r closes or ctx is cancelled. "/quit" and EOF both
// turn into a shutdown event.
func StartInputProducer(ctx context.Context, r io.Reader, b *bus.Bus) {
	go func() {
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}
			line := sc.Text()
			if strings.TrimSpace(line) == "/quit" {
				b.Submit(evShutdown{})
				return
			}
			b.Submit(evInputLine{Text: line})
		}
		b.Submit(evShutdown{})
	}()
}

// StartFetchTicker submits a fetch tick every interval until ctx is
// cancelled. Ticks are shed rather than queued when the bus is saturated; a
// dropped tick costs nothing because the next one reschedules the same
// fetches.
func StartFetchTicker(ctx context.Context, interval time.Duration, b *bus.Bus) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				b.TrySubmit(evTick{})
			}
		}
	}()
}
