package session

import "sync"

// statusBufferSize bounds each subscriber's backlog; slow readers lose the
// oldest lines instead of blocking the controller.
const statusBufferSize = 16

// statusHub fans status lines out to websocket subscribers.
type statusHub struct {
	mu     sync.Mutex
	subs   map[chan string]struct{}
	last   string
	closed bool
}

func newStatusHub() *statusHub {
	return &statusHub{subs: make(map[chan string]struct{})}
}

func (h *statusHub) publish(status string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.last = status
	for ch := range h.subs {
		select {
		case ch <- status:
		default:
			// drop the oldest line to make room
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- status:
			default:
			}
		}
	}
}

// subscribe returns a channel that first receives the latest status (if any)
// and then every later one. The cancel func closes the channel.
func (h *statusHub) subscribe() (<-chan string, func()) {
	ch := make(chan string, statusBufferSize)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	if h.last != "" {
		ch <- h.last
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
		})
	}
}

func (h *statusHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}
