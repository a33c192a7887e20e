// Package revalidate implements stale-while-revalidate delivery on top of the
// disk cache: a GET with a caching policy first receives any cached body
// immediately, then the network result only when it differs from what was
// already delivered.
package revalidate

import (
	"bytes"
	"sync"
	"time"

	"github.com/respcache/respcache/internal/cache"
	"github.com/respcache/respcache/internal/expiration"
)

// State of a single request's coordinator.
type State int

const (
	StateIdle State = iota
	StateLookedUp
	StateAwaitingNetwork
	StateDelivered
)

func (s State) String() string {
	switch s {
	case StateLookedUp:
		return "looked-up"
	case StateAwaitingNetwork:
		return "awaiting-network"
	case StateDelivered:
		return "delivered"
	default:
		return "idle"
	}
}

// Store is the subset of cache.Store the coordinator needs.
type Store interface {
	Get(key string) (*cache.Cached, bool)
	Put(key string, body []byte, statusCode int, expiresAt *time.Time)
	Remove(key string)
}

// Coordinator drives one outstanding request. It is discarded once it reaches
// StateDelivered.
type Coordinator struct {
	store    Store
	resolver expiration.Resolver
	req      Request
	handlers []DeliverFunc

	mu       sync.Mutex
	state    State
	prior    []byte
	hasPrior bool
}

// NewCoordinator builds a coordinator in StateIdle. store may be nil, in which
// case the request behaves as uncached.
func NewCoordinator(store Store, req Request, handlers ...DeliverFunc) *Coordinator {
	return newCoordinator(store, expiration.NewResolver(), req, handlers)
}

func newCoordinator(store Store, resolver expiration.Resolver, req Request, handlers []DeliverFunc) *Coordinator {
	return &Coordinator{
		store:    store,
		resolver: resolver,
		req:      req,
		handlers: handlers,
	}
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// usesStore is false for non-GET requests and do-not-cache policies; those never
// read or write the store.
func (c *Coordinator) usesStore() bool {
	return c.store != nil && c.req.IsGet() && c.req.Policy.Caches()
}

// Dispatch performs the synchronous cache lookup and, on a hit, the immediate
// from-cache delivery. It must run before the network fetch starts.
func (c *Coordinator) Dispatch() {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return
	}

	var preview *Delivery
	if c.usesStore() {
		cached, ok := c.store.Get(c.req.URL)
		c.state = StateLookedUp
		if ok {
			c.prior = cached.Body
			c.hasPrior = true
			preview = &Delivery{
				StatusCode: cached.StatusCode,
				Body:       cached.Body,
				Source:     SourceFromCache,
				CachedAt:   cached.CachedAt,
			}
		}
	}
	c.state = StateAwaitingNetwork
	c.mu.Unlock()

	if preview != nil {
		c.deliver(*preview)
	}
}

// Complete handles the transport's terminal signal. It delivers at most once and
// only from StateAwaitingNetwork.
func (c *Coordinator) Complete(result Completion) {
	c.mu.Lock()
	if c.state != StateAwaitingNetwork {
		c.mu.Unlock()
		return
	}
	c.state = StateDelivered
	prior, hasPrior := c.prior, c.hasPrior
	c.prior = nil
	c.mu.Unlock()

	if !result.Succeeded() {
		err := result.Err
		if err == nil {
			err = ErrNoResponse
		}
		c.deliver(Delivery{Err: err})
		return
	}

	if !c.usesStore() {
		c.deliver(Delivery{StatusCode: result.StatusCode, Body: result.Body, Source: SourceNotCached})
		return
	}

	decision := c.resolver.Resolve(c.req.Policy, result.Headers)
	storing := decision.Store && isCacheableStatus(result.StatusCode) && result.Body != nil

	var out *Delivery
	switch {
	case !hasPrior:
		out = &Delivery{StatusCode: result.StatusCode, Body: result.Body, Source: SourceNotCached}
	case bytes.Equal(prior, result.Body):
		// caller already holds these bytes; the put below still advances cachedAt/expiresAt
	case !storing:
		// the fresh response replaces nothing: the prior entry is dropped below
		out = &Delivery{StatusCode: result.StatusCode, Body: result.Body, Source: SourceNotCached}
	default:
		out = &Delivery{StatusCode: result.StatusCode, Body: result.Body, Source: SourceUpdatedCache}
	}

	switch {
	case storing:
		c.store.Put(c.req.URL, result.Body, result.StatusCode, decision.ExpiresAt)
	case hasPrior:
		c.store.Remove(c.req.URL)
	}

	if out != nil {
		c.deliver(*out)
	}
}

// Cancel moves the coordinator to StateDelivered without delivering anything.
// A from-cache delivery that already happened is not retracted.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	c.state = StateDelivered
	c.prior = nil
	c.mu.Unlock()
}

func (c *Coordinator) deliver(d Delivery) {
	for _, handler := range c.handlers {
		if handler != nil {
			handler(d)
		}
	}
}

func isCacheableStatus(status int) bool {
	return status >= 200 && status < 300
}
