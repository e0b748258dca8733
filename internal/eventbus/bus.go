package eventbus

import (
	"log/slog"
	"strings"
	"sync"

	"pixsync/internal/logging"
	"pixsync/internal/protocol"
)

const subscriberBuffer = 64

// Bus is the in-process event fabric: polling, the push channel and the
// refresh coalescer all publish here with the same op vocabulary, so
// downstream consumers cannot tell push-derived updates from poll-derived
// ones.
type Bus struct {
	logger *slog.Logger

	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]chan protocol.Message
}

func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Bus{logger: logger, subs: map[string]map[int]chan protocol.Message{}}
}

// Subscribe returns a receive channel for one op and a cancel func. The
// channel is buffered; a subscriber that stops draining loses events rather
// than blocking publishers.
func (b *Bus) Subscribe(op string) (<-chan protocol.Message, func()) {
	op = strings.TrimSpace(op)
	ch := make(chan protocol.Message, subscriberBuffer)
	if b == nil || op == "" {
		close(ch)
		return ch, func() {}
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	byID := b.subs[op]
	if byID == nil {
		byID = map[int]chan protocol.Message{}
		b.subs[op] = byID
	}
	byID[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			// Close while holding the write lock so no Publish can be
			// mid-send on this channel.
			b.mu.Lock()
			if byID, ok := b.subs[op]; ok {
				delete(byID, id)
				if len(byID) == 0 {
					delete(b.subs, op)
				}
			}
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, cancel
}

// Publish fans the event out to every subscriber of its op, best-effort.
// Sends stay under the read lock to serialize with cancel's close; they are
// non-blocking, so the lock is never held on a full subscriber.
func (b *Bus) Publish(msg protocol.Message) {
	if b == nil || strings.TrimSpace(msg.Op) == "" {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[msg.Op] {
		select {
		case ch <- msg:
		default:
			b.logger.Warn("event dropped for slow subscriber", "op", msg.Op, "event_id", msg.ID)
		}
	}
}

func (b *Bus) subscriberCount(op string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[op])
}
