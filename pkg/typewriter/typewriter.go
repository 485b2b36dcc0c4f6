// Package typewriter reveals a reply as a sequence of growing prefixes.
package typewriter

import (
	"context"
	"iter"
	"sync"
	"time"
	"unicode/utf8"
)

const (
	DefaultInterval = 15 * time.Millisecond
	DefaultStep     = 1
)

// Prefixes yields text[:k] for k = step, 2*step, ... counted in runes,
// always ending with the full text. Nothing is computed until iterated.
func Prefixes(text string, step int) iter.Seq[string] {
	if step <= 0 {
		step = DefaultStep
	}
	return func(yield func(string) bool) {
		if text == "" {
			return
		}
		n := 0
		for i := range text {
			if n > 0 && n%step == 0 {
				if !yield(text[:i]) {
					return
				}
			}
			n++
		}
		yield(text)
	}
}

// Frames returns how many prefixes Prefixes will yield.
func Frames(text string, step int) int {
	if step <= 0 {
		step = DefaultStep
	}
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + step - 1) / step
}

type Options struct {
	Interval time.Duration
	Step     int
}

// Reveal calls emit with each prefix, one per interval. It returns ctx.Err()
// if cancelled before the full text was emitted.
func Reveal(ctx context.Context, text string, opts Options, emit func(prefix string)) error {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	first := true
	for prefix := range Prefixes(text, opts.Step) {
		if !first {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		first = false
		emit(prefix)
	}
	return nil
}

// Revealer runs at most one reveal at a time; starting a new one cancels the
// previous one.
type Revealer struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Start begins revealing text in a goroutine and returns immediately.
func (r *Revealer) Start(ctx context.Context, text string, opts Options, emit func(prefix string)) {
	r.Stop()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.mu.Lock()
	r.cancel = cancel
	r.done = done
	r.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		_ = Reveal(ctx, text, opts, emit)
	}()
}

// Stop cancels the running reveal, if any, and waits for it to exit.
func (r *Revealer) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// Wait blocks until the running reveal finishes on its own or is stopped.
func (r *Revealer) Wait() {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done != nil {
		<-done
	}
}
