// Package clipped owns the entitlement cache: the process-lifetime set of
// coupon ids the current identity has clipped, reconciled against the
// provider gateway.
package clipped

import (
	"context"
	"log"
	"sort"
	"sync"

	"github.com/tidwall/gjson"

	"couponhub/internal/events"
	"couponhub/internal/provider"
	"couponhub/pkg/models"
)

type State string

const (
	StateEmpty   State = "empty"
	StateLoading State = "loading"
	StateReady   State = "ready"
)

// SweepPolicy decides what happens to a clipped id whose verification
// call failed at the transport level. The provider positively reporting
// an offer gone always removes it.
type SweepPolicy string

const (
	// SweepRemoveOnFailure drops entries on any verification failure.
	// Precise visible list, but transient errors cause false removals.
	SweepRemoveOnFailure SweepPolicy = "remove"
	// SweepRetainOnTransient keeps entries whose verification failed
	// with a transport error and only removes positively-gone offers.
	SweepRetainOnTransient SweepPolicy = "retain"
)

type Cache struct {
	mu       sync.Mutex
	p        provider.Provider
	policy   SweepPolicy
	state    State
	loading  bool
	sweeping bool
	set      map[string]struct{}

	// gen is bumped on every identity change; mutations computed against
	// an older generation are dropped instead of applied.
	gen int
}

func NewCache(p provider.Provider, bus *events.Bus, policy SweepPolicy) *Cache {
	if policy == "" {
		policy = SweepRemoveOnFailure
	}
	c := &Cache{p: p, policy: policy, state: StateEmpty, set: make(map[string]struct{})}
	if bus != nil {
		bus.Subscribe(func(e events.Event) {
			if e.Type == events.IdentityChanged {
				c.Reset()
				go func() {
					c.Load(context.Background())
				}()
			}
		})
	}
	return c
}

// Reset empties the cache and invalidates any in-flight load or sweep.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.gen++
	c.set = make(map[string]struct{})
	c.state = StateEmpty
	c.mu.Unlock()
}

// Load replaces the local set with the server-reported clipped set. It
// soft-fails (false, no error) when the identity is not resolved or when
// another load is already in flight; browsing continues either way and a
// later clip attempt surfaces the real error.
func (c *Cache) Load(ctx context.Context) bool {
	c.mu.Lock()
	if c.loading {
		c.mu.Unlock()
		log.Printf("[clipped] load already in flight")
		return false
	}
	if !c.p.IsAuthenticated() {
		c.mu.Unlock()
		log.Printf("[clipped] load skipped: identity not resolved")
		return false
	}
	c.loading = true
	c.state = StateLoading
	gen := c.gen
	c.mu.Unlock()

	page, err := c.p.GetClippedCoupons(ctx, provider.ClippedQuery{Limit: 100, SortBy: "expires"})

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = false

	if err != nil {
		log.Printf("[clipped] load failed: %v", err)
		c.state = StateEmpty
		return false
	}
	if gen != c.gen {
		log.Printf("[clipped] discarding stale load result")
		return false
	}

	// full replace, never a merge
	c.set = make(map[string]struct{}, len(page.Items))
	for _, item := range page.Items {
		c.set[item.ID] = struct{}{}
	}
	c.state = StateReady
	log.Printf("[clipped] loaded %d clipped coupons", len(c.set))
	return true
}

// Clip activates the offer for the current identity. Clipping an id that
// is already a member is a no-op with zero network calls; otherwise the
// local set is only mutated after the gateway reports success.
func (c *Cache) Clip(ctx context.Context, offerID string) error {
	c.mu.Lock()
	if _, member := c.set[offerID]; member {
		c.mu.Unlock()
		return nil
	}
	gen := c.gen
	c.mu.Unlock()

	if _, err := c.p.ClipCoupon(ctx, offerID, ""); err != nil {
		// the gateway already published the user-facing notification
		return err
	}

	c.mu.Lock()
	if gen == c.gen {
		c.set[offerID] = struct{}{}
	}
	c.mu.Unlock()
	return nil
}

// IsClipped is a pure read; it never triggers a load.
func (c *Cache) IsClipped(offerID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.set[offerID]
	return ok
}

// Sweep verifies every member sequentially through the gateway and drops
// invalidated entries. Strictly one verification call at a time to bound
// request rate; O(n) remote calls per sweep is an accepted trade-off for
// small clipped sets. At most one sweep runs at a time; a call that finds
// one in flight returns immediately.
func (c *Cache) Sweep(ctx context.Context) error {
	c.mu.Lock()
	if c.sweeping {
		c.mu.Unlock()
		log.Printf("[clipped] sweep already in flight")
		return nil
	}
	c.sweeping = true
	gen := c.gen
	ids := make([]string, 0, len(c.set))
	for id := range c.set {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	sort.Strings(ids)

	remove := make([]string, 0)
	for _, id := range ids {
		coupon, err := c.p.GetCouponByID(ctx, id, "")
		if err != nil {
			if c.policy == SweepRetainOnTransient && provider.IsTransportFailure(err) {
				log.Printf("[clipped] sweep: retaining %s after transport failure: %v", id, err)
				continue
			}
			log.Printf("[clipped] sweep: removing %s after failed verification: %v", id, err)
			remove = append(remove, id)
			continue
		}
		if coupon == nil {
			remove = append(remove, id)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweeping = false
	if gen != c.gen {
		log.Printf("[clipped] discarding stale sweep result")
		return nil
	}
	for _, id := range remove {
		delete(c.set, id)
	}
	if len(remove) > 0 {
		log.Printf("[clipped] sweep removed %d invalidated coupons", len(remove))
	}
	return nil
}

// SyncPage reconciles drift from a freshly fetched catalog page: items the
// provider marks as clipped are unioned in. This path only ever adds.
func (c *Cache) SyncPage(items []models.Coupon) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, item := range items {
		if gjson.GetBytes(item.ProviderFields, "clipped").Bool() ||
			gjson.GetBytes(item.ProviderFields, "is_clipped").Bool() {
			c.set[item.ID] = struct{}{}
		}
	}
}

func (c *Cache) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// All returns the member ids in sorted order.
func (c *Cache) All() []string {
	c.mu.Lock()
	ids := make([]string, 0, len(c.set))
	for id := range c.set {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	sort.Strings(ids)
	return ids
}
