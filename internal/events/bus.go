// Package events is the notification channel between the engine components
// and the UI shell. In-process subscribers get synchronous, in-registration-
// order delivery; connected TCP and WebSocket clients get a fire-and-forget
// JSON broadcast of the same events.
package events

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Subscriber func(Event)

type Bus struct {
	mu   sync.Mutex
	subs []Subscriber
	hub  *Hub
}

func NewBus(hub *Hub) *Bus {
	return &Bus{hub: hub}
}

// Subscribe registers an in-process consumer. Subscribers are invoked
// synchronously in registration order on every publish.
func (b *Bus) Subscribe(fn Subscriber) {
	b.mu.Lock()
	b.subs = append(b.subs, fn)
	b.mu.Unlock()
}

func (b *Bus) Publish(evt Event) {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}

	b.mu.Lock()
	subs := make([]Subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, fn := range subs {
		fn(evt)
	}

	if b.hub != nil {
		b.hub.Broadcast(evt)
	}
	log.Printf("[events] %s %s", evt.Type, evt.Message)
}

// PublishIdentityChanged is the common broadcast after any auth mutation.
func (b *Bus) PublishIdentityChanged(reason string) {
	b.Publish(Event{Type: IdentityChanged, Data: map[string]string{"reason": reason}})
}

// PublishCouponError surfaces a clip failure to the user with a fixed
// human-readable message.
func (b *Bus) PublishCouponError(offerID, message string) {
	b.Publish(Event{
		Type:    CouponError,
		Message: message,
		Data:    map[string]string{"offer_id": offerID},
	})
}
