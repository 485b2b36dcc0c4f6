package webchat

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubConn struct {
	mu       sync.Mutex
	writes   int
	frames   []string
	blockCh  chan struct{}
	closedCh chan struct{}
}

func newStubConn(blockWrites bool) *stubConn {
	blockCh := make(chan struct{})
	if !blockWrites {
		close(blockCh)
	}
	return &stubConn{blockCh: blockCh, closedCh: make(chan struct{})}
}

func (s *stubConn) WriteMessage(_ int, data []byte) error {
	select {
	case <-s.closedCh:
		return errors.New("closed")
	case <-s.blockCh:
	}
	s.mu.Lock()
	s.writes++
	s.frames = append(s.frames, string(data))
	s.mu.Unlock()
	return nil
}

func (s *stubConn) written() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.frames...)
}

func (s *stubConn) closed() bool {
	select {
	case <-s.closedCh:
		return true
	default:
		return false
	}
}

func (s *stubConn) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.closedCh:
		return nil
	default:
		close(s.closedCh)
		return nil
	}
}

func (s *stubConn) SetWriteDeadline(_ time.Time) error {
	return nil
}

func TestConnectionPoolDropsOnFullBuffer(t *testing.T) {
	pool := NewConnectionPool("c1", 0, nil)
	pool.sendBuffer = 1
	pool.writeTimeout = 0

	conn := newStubConn(true)
	pool.Add(conn)

	pool.Broadcast([]byte("one"))
	pool.Broadcast([]byte("two"))
	pool.Broadcast([]byte("three"))

	require.Eventually(t, func() bool {
		return pool.Count() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestConnectionPoolBroadcastInOrder(t *testing.T) {
	pool := NewConnectionPool("c1", 0, nil)
	a, b := newStubConn(false), newStubConn(false)
	pool.Add(a)
	pool.Add(b)
	require.Equal(t, 2, pool.Count())

	for _, f := range []string{"one", "two", "three"} {
		pool.Broadcast([]byte(f))
	}
	for _, c := range []*stubConn{a, b} {
		require.Eventually(t, func() bool { return len(c.written()) == 3 }, time.Second, 5*time.Millisecond)
		require.Equal(t, []string{"one", "two", "three"}, c.written())
	}

	pool.SendToOne(a, []byte("only-a"))
	require.Eventually(t, func() bool { return len(a.written()) == 4 }, time.Second, 5*time.Millisecond)
	require.Len(t, b.written(), 3)
}

func TestConnectionPoolRemoveClosesAndFiresIdle(t *testing.T) {
	idle := make(chan struct{}, 1)
	pool := NewConnectionPool("c1", 20*time.Millisecond, func() { idle <- struct{}{} })
	conn := newStubConn(false)
	pool.Add(conn)
	pool.Remove(conn)

	require.True(t, conn.closed())
	require.True(t, pool.IsEmpty())
	select {
	case <-idle:
	case <-time.After(time.Second):
		t.Fatal("idle callback did not fire")
	}
}

func TestConnectionPoolAddCancelsIdle(t *testing.T) {
	fired := make(chan struct{}, 1)
	pool := NewConnectionPool("c1", 30*time.Millisecond, func() { fired <- struct{}{} })
	first := newStubConn(false)
	pool.Add(first)
	pool.Remove(first)
	pool.Add(newStubConn(false))

	select {
	case <-fired:
		t.Fatal("idle callback fired while a viewer is attached")
	case <-time.After(80 * time.Millisecond):
	}
	pool.CloseAll()
	require.Equal(t, 0, pool.Count())
}
