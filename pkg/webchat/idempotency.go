package webchat

import (
	"container/list"
	"net/http"
	"strings"
	"sync"
)

const defaultSendCacheSize = 32

func idempotencyKeyFromRequest(r *http.Request, body *SendMessageBody) string {
	var key string
	if r != nil {
		key = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
		if key == "" {
			key = strings.TrimSpace(r.Header.Get("X-Idempotency-Key"))
		}
	}
	if key == "" && body != nil {
		key = strings.TrimSpace(body.IdempotencyKey)
	}
	return key
}

// sendCache remembers recent message sends by idempotency key so a retried
// POST returns the first result instead of sending the text twice.
type sendCache struct {
	mu      sync.Mutex
	max     int
	order   *list.List
	entries map[string]*list.Element
	pending map[string]chan struct{}
}

type sendEntry struct {
	key  string
	resp SendMessageResponse
}

func newSendCache(max int) *sendCache {
	if max <= 0 {
		max = defaultSendCacheSize
	}
	return &sendCache{max: max, order: list.New(), entries: map[string]*list.Element{}, pending: map[string]chan struct{}{}}
}

// begin reports a cached response for key, or claims the key. A caller that
// claimed the key must call finish. A concurrent duplicate waits for the
// first send to finish.
func (c *sendCache) begin(key string) (SendMessageResponse, bool) {
	for {
		c.mu.Lock()
		if el, ok := c.entries[key]; ok {
			c.order.MoveToFront(el)
			resp := el.Value.(*sendEntry).resp
			c.mu.Unlock()
			return resp, true
		}
		wait, busy := c.pending[key]
		if !busy {
			c.pending[key] = make(chan struct{})
			c.mu.Unlock()
			return SendMessageResponse{}, false
		}
		c.mu.Unlock()
		<-wait
	}
}

// finish releases key; a successful response is cached.
func (c *sendCache) finish(key string, resp SendMessageResponse, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, exists := c.pending[key]; exists {
		close(ch)
		delete(c.pending, key)
	}
	if !ok {
		return
	}
	c.entries[key] = c.order.PushFront(&sendEntry{key: key, resp: resp})
	for c.order.Len() > c.max {
		last := c.order.Back()
		c.order.Remove(last)
		delete(c.entries, last.Value.(*sendEntry).key)
	}
}
