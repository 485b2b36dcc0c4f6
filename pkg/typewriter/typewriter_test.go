package typewriter

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPrefixes(t *testing.T) {
	require.Equal(t, []string{"h", "he", "hel", "hell", "hello"}, slices.Collect(Prefixes("hello", 1)))
	require.Equal(t, []string{"he", "hell", "hello"}, slices.Collect(Prefixes("hello", 2)))
	require.Equal(t, []string{"n", "ny", "nyu", "nyum", "nyumb", "nyumba"}, slices.Collect(Prefixes("nyumba", 0)))
	require.Equal(t, []string{"é", "éa"}, slices.Collect(Prefixes("éa", 1)))
	require.Empty(t, slices.Collect(Prefixes("", 1)))
	require.Equal(t, 3, Frames("hello", 2))
	require.Equal(t, 0, Frames("", 2))
}

func TestPrefixes_StopsEarly(t *testing.T) {
	var got []string
	for p := range Prefixes("abcdef", 1) {
		got = append(got, p)
		if len(got) == 2 {
			break
		}
	}
	require.Equal(t, []string{"a", "ab"}, got)
}

func TestReveal_EmitsAllFrames(t *testing.T) {
	var frames []string
	err := Reveal(context.Background(), "karibu", Options{Interval: time.Millisecond, Step: 2}, func(p string) {
		frames = append(frames, p)
	})
	require.NoError(t, err)
	require.Equal(t, []string{"ka", "kari", "karibu"}, frames)
}

func TestReveal_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var frames []string
	err := Reveal(ctx, "a long reply that will not finish", Options{Interval: time.Millisecond}, func(p string) {
		frames = append(frames, p)
		if len(frames) == 3 {
			cancel()
		}
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, frames, 3)
}

func TestRevealer_NewStartCancelsPrevious(t *testing.T) {
	var (
		mu   sync.Mutex
		last = map[string]string{}
	)
	record := func(key string) func(string) {
		return func(p string) {
			mu.Lock()
			last[key] = p
			mu.Unlock()
		}
	}

	var r Revealer
	r.Start(context.Background(), "first reply that is fairly long", Options{Interval: 20 * time.Millisecond}, record("first"))
	r.Start(context.Background(), "ok", Options{Interval: time.Millisecond}, record("second"))
	r.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "ok", last["second"])
	require.NotEqual(t, "first reply that is fairly long", last["first"])
	r.Stop()
}
