// Package bus is a small keyed pub/sub used to fan out port lifecycle
// events. Delivery is serialized through a single worker so subscribers
// observe events in publish order.
package bus

import (
	"context"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

type Message[K comparable, M any] struct {
	Key     K
	Message M
}

type Publisher[K comparable, M any] func(ctx context.Context, key K, msg M)

type Bus[K comparable, M any] struct {
	log   *zap.Logger
	ready chan struct{}

	ch         chan Message[K, M]
	keySubs    *xsync.MapOf[K, map[chan Message[K, M]]struct{}]
	globalSubs *xsync.MapOf[chan Message[K, M], struct{}]
}

func NewBus[K comparable, M any](log *zap.Logger) *Bus[K, M] {
	return &Bus[K, M]{
		log:        log,
		ready:      make(chan struct{}),
		ch:         make(chan Message[K, M]),
		keySubs:    xsync.NewMapOf[K, map[chan Message[K, M]]struct{}](),
		globalSubs: xsync.NewMapOf[chan Message[K, M], struct{}](),
	}
}

func (b *Bus[K, M]) Start(ctx context.Context) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-b.ch:
				b.deliver(ctx, msg)
			}
		}
	}()
	close(b.ready)
	return nil
}

func (b *Bus[K, M]) Ready() <-chan struct{} {
	return b.ready
}

func (b *Bus[K, M]) Publish(ctx context.Context, key K, msg M) {
	select {
	case <-ctx.Done():
	case b.ch <- Message[K, M]{key, msg}:
	}
}

func (b *Bus[K, M]) deliver(ctx context.Context, msg Message[K, M]) {
	b.globalSubs.Range(func(sub chan Message[K, M], _ struct{}) bool {
		b.send(sub, msg)
		return ctx.Err() == nil
	})
	subs, ok := b.keySubs.Load(msg.Key)
	if !ok {
		return
	}
	for sub := range subs {
		b.send(sub, msg)
	}
}

// send never blocks the delivery worker: a subscriber that stopped draining
// its buffer loses messages instead of stalling everyone else.
func (b *Bus[K, M]) send(sub chan Message[K, M], msg Message[K, M]) {
	select {
	case sub <- msg:
	default:
		b.log.Warn("Dropping message, subscriber is not keeping up")
	}
}

// Subscribe returns a buffered channel of messages. Without keys it receives
// every message; with keys only matching ones. The subscription ends when
// ctx is cancelled; the channel is left open so the delivery worker never
// races a close, receivers must select on ctx themselves.
func (b *Bus[K, M]) Subscribe(ctx context.Context, keys ...K) <-chan Message[K, M] {
	ch := make(chan Message[K, M], 64)
	if len(keys) == 0 {
		b.globalSubs.Store(ch, struct{}{})
		go func() {
			<-ctx.Done()
			b.globalSubs.Delete(ch)
		}()
		return ch
	}
	for _, k := range keys {
		b.keySubs.Compute(k, func(val map[chan Message[K, M]]struct{}, ok bool) (map[chan Message[K, M]]struct{}, bool) {
			// the delivery worker iterates these maps without a lock, so
			// every mutation replaces the map instead of changing it
			next := make(map[chan Message[K, M]]struct{}, len(val)+1)
			for sub := range val {
				next[sub] = struct{}{}
			}
			next[ch] = struct{}{}
			return next, false
		})
	}
	go func() {
		<-ctx.Done()
		for _, k := range keys {
			b.keySubs.Compute(k, func(val map[chan Message[K, M]]struct{}, ok bool) (map[chan Message[K, M]]struct{}, bool) {
				if !ok {
					return nil, true
				}
				next := make(map[chan Message[K, M]]struct{}, len(val))
				for sub := range val {
					if sub != ch {
						next[sub] = struct{}{}
					}
				}
				return next, len(next) == 0
			})
		}
	}()
	return ch
}
