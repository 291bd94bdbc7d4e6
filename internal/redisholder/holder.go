package redisholder

import (
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// box keeps the stored concrete type stable: atomic.Value panics if the swap
// replaces a *redis.Client with a *redis.ClusterClient directly.
type box struct {
	cl redis.UniversalClient
}

// Holder hands out the current redis client and lets the health loop swap in
// a replacement without the rest of the app noticing.
type Holder struct {
	v atomic.Value // stores box
}

func NewHolder(initial redis.UniversalClient) *Holder {
	h := &Holder{}
	h.v.Store(box{cl: initial})
	return h
}

func (h *Holder) Get() redis.UniversalClient {
	b, _ := h.v.Load().(box)
	return b.cl
}

func (h *Holder) swap(newc redis.UniversalClient) (old redis.UniversalClient) {
	b, _ := h.v.Load().(box)
	h.v.Store(box{cl: newc})
	return b.cl
}

func (h *Holder) Close() error {
	if c := h.Get(); c != nil {
		return c.Close()
	}
	return nil
}
