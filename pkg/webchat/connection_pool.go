package webchat

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	defaultSendBuffer   = 64
	defaultWriteTimeout = 5 * time.Second
)

// wsConn is the subset of *websocket.Conn the pool writes through.
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetWriteDeadline(t time.Time) error
}

type poolClient struct {
	conn wsConn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *poolClient) stop() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// ConnectionPool fans frames out to the websocket viewers of one conversation.
// Each connection has its own bounded send queue; a viewer that falls behind
// is dropped rather than stalling the others.
type ConnectionPool struct {
	convID       string
	mu           sync.Mutex
	clients      map[wsConn]*poolClient
	sendBuffer   int
	writeTimeout time.Duration
	idleTimer    *time.Timer
	idleTimeout  time.Duration
	onIdle       func()
}

func NewConnectionPool(convID string, idleTimeout time.Duration, onIdle func()) *ConnectionPool {
	return &ConnectionPool{
		convID:       convID,
		clients:      map[wsConn]*poolClient{},
		sendBuffer:   defaultSendBuffer,
		writeTimeout: defaultWriteTimeout,
		idleTimeout:  idleTimeout,
		onIdle:       onIdle,
	}
}

func (cp *ConnectionPool) Add(conn wsConn) {
	if cp == nil || conn == nil {
		return
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()
	if _, ok := cp.clients[conn]; ok {
		return
	}
	buf := cp.sendBuffer
	if buf <= 0 {
		buf = 1
	}
	c := &poolClient{conn: conn, send: make(chan []byte, buf), done: make(chan struct{})}
	cp.clients[conn] = c
	cp.stopIdleTimerLocked()
	go cp.writeLoop(c)
}

func (cp *ConnectionPool) Remove(conn wsConn) {
	if cp == nil || conn == nil {
		return
	}
	cp.mu.Lock()
	c, ok := cp.clients[conn]
	delete(cp.clients, conn)
	cp.scheduleIdleTimerLocked()
	cp.mu.Unlock()
	if ok {
		c.stop()
	} else {
		_ = conn.Close()
	}
}

func (cp *ConnectionPool) Broadcast(data []byte) {
	if cp == nil || len(data) == 0 {
		return
	}
	cp.mu.Lock()
	for conn, c := range cp.clients {
		if !enqueue(c, data) {
			log.Warn().Str("component", "webchat").Str("conv_id", cp.convID).Msg("ws send buffer full, dropping connection")
			delete(cp.clients, conn)
			c.stop()
		}
	}
	cp.scheduleIdleTimerLocked()
	cp.mu.Unlock()
}

func (cp *ConnectionPool) SendToOne(conn wsConn, data []byte) {
	if cp == nil || conn == nil || len(data) == 0 {
		return
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()
	c, ok := cp.clients[conn]
	if !ok {
		return
	}
	if !enqueue(c, data) {
		log.Warn().Str("component", "webchat").Str("conv_id", cp.convID).Msg("ws send buffer full, dropping connection")
		delete(cp.clients, conn)
		c.stop()
		cp.scheduleIdleTimerLocked()
	}
}

func enqueue(c *poolClient, data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (cp *ConnectionPool) writeLoop(c *poolClient) {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			if cp.writeTimeout > 0 {
				_ = c.conn.SetWriteDeadline(time.Now().Add(cp.writeTimeout))
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("component", "webchat").Str("conv_id", cp.convID).Msg("ws write failed, dropping connection")
				cp.drop(c)
				return
			}
		}
	}
}

func (cp *ConnectionPool) drop(c *poolClient) {
	cp.mu.Lock()
	if cur, ok := cp.clients[c.conn]; ok && cur == c {
		delete(cp.clients, c.conn)
		cp.scheduleIdleTimerLocked()
	}
	cp.mu.Unlock()
	c.stop()
}

func (cp *ConnectionPool) Count() int {
	if cp == nil {
		return 0
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return len(cp.clients)
}

func (cp *ConnectionPool) IsEmpty() bool {
	return cp.Count() == 0
}

func (cp *ConnectionPool) CloseAll() {
	if cp == nil {
		return
	}
	cp.mu.Lock()
	for conn, c := range cp.clients {
		delete(cp.clients, conn)
		c.stop()
	}
	cp.stopIdleTimerLocked()
	cp.mu.Unlock()
}

func (cp *ConnectionPool) stopIdleTimerLocked() {
	if cp.idleTimer != nil {
		cp.idleTimer.Stop()
		cp.idleTimer = nil
	}
}

func (cp *ConnectionPool) scheduleIdleTimerLocked() {
	if len(cp.clients) != 0 || cp.idleTimeout <= 0 || cp.onIdle == nil {
		cp.stopIdleTimerLocked()
		return
	}
	if cp.idleTimer != nil {
		return
	}
	cp.idleTimer = time.AfterFunc(cp.idleTimeout, cp.triggerIdle)
}

func (cp *ConnectionPool) triggerIdle() {
	var callback func()
	cp.mu.Lock()
	if len(cp.clients) == 0 {
		callback = cp.onIdle
	}
	cp.idleTimer = nil
	cp.mu.Unlock()
	if callback != nil {
		callback()
	}
}
