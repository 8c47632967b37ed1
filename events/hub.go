// Package events fans committed ledger events out to in-process subscribers.
package events

import (
	"github.com/sasha-s/go-deadlock"
	"go.uber.org/zap"

	"milestone-escrow/logger"
	"milestone-escrow/models"
)

// Publisher receives events after their transaction committed
type Publisher interface {
	Publish(evts ...*models.Event)
}

// Hub is a Publisher that copies every event to each subscriber channel.
// A subscriber whose buffer is full misses the event; the persisted log is
// the source of truth and can be replayed with Reader.Events.
type Hub struct {
	mutex  *deadlock.Mutex
	subs   map[uint64]chan *models.Event
	nextID uint64
	buffer int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		mutex:  &deadlock.Mutex{},
		subs:   make(map[uint64]chan *models.Event),
		buffer: buffer,
	}
}

func (h *Hub) Publish(evts ...*models.Event) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for _, e := range evts {
		logger.Logger.Info("event",
			zap.Uint64("seq", e.Seq),
			zap.String("kind", string(e.Kind)),
			zap.Uint64("project_id", e.ProjectID),
			zap.Uint64("dispute_id", e.DisputeID),
			zap.String("identity", e.Identity),
		)
		for id, ch := range h.subs {
			select {
			case ch <- e:
			default:
				logger.Logger.Warn("subscriber lagging, event dropped",
					zap.Uint64("subscriber", id), zap.Uint64("seq", e.Seq))
			}
		}
	}
}

// Subscribe registers a new subscriber. The returned cancel func closes the channel.
func (h *Hub) Subscribe() (<-chan *models.Event, func()) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.nextID++
	id := h.nextID
	ch := make(chan *models.Event, h.buffer)
	h.subs[id] = ch

	var once bool
	return ch, func() {
		h.mutex.Lock()
		defer h.mutex.Unlock()
		if once {
			return
		}
		once = true
		delete(h.subs, id)
		close(ch)
	}
}

// Subscribers returns the number of live subscriptions
func (h *Hub) Subscribers() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.subs)
}

// Discard is a Publisher that drops everything
type Discard struct{}

func (Discard) Publish(...*models.Event) {}
