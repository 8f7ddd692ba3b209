// Package memdisco is an in-process Discovery double for tests:
// Announce on one Provider instance is visible to Watch on every
// other Provider sharing the same Bus, with no network involved.
package memdisco

import (
	"context"
	"sync"

	"github.com/ers-go/ers/discovery"
)

// Bus is the shared medium a set of in-process Providers announce on and
// watch. Create one Bus per simulated LAN segment in a test.
type Bus struct {
	mu        sync.Mutex
	watchers  []chan discovery.Event
	announced map[string]discovery.Event // name -> last announce, replayed to new watchers
}

// NewBus creates an empty shared medium.
func NewBus() *Bus {
	return &Bus{announced: make(map[string]discovery.Event)}
}

func (b *Bus) publish(ev discovery.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ev.Type == discovery.EventJoin {
		b.announced[ev.ServiceName] = ev
	} else {
		delete(b.announced, ev.ServiceName)
	}
	for _, ch := range b.watchers {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (b *Bus) subscribe() chan discovery.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan discovery.Event, 32)
	for _, ev := range b.announced {
		ch <- ev
	}
	b.watchers = append(b.watchers, ch)
	return ch
}

// Provider is one node's view of a shared Bus.
type Provider struct {
	bus  *Bus
	host string
}

// New returns a Provider announcing as host onto bus.
func New(bus *Bus, host string) *Provider {
	return &Provider{bus: bus, host: host}
}

func (p *Provider) Announce(ctx context.Context, name string, port int) (func(), error) {
	ev := discovery.Event{Type: discovery.EventJoin, ServiceName: name, Host: p.host, Port: port}
	p.bus.publish(ev)

	stopped := make(chan struct{})
	stop := func() {
		select {
		case <-stopped:
			return
		default:
			close(stopped)
		}
		p.bus.publish(discovery.Event{Type: discovery.EventLeave, ServiceName: name, Host: p.host, Port: port})
	}

	go func() {
		<-ctx.Done()
		stop()
	}()

	return stop, nil
}

func (p *Provider) Watch(ctx context.Context) (<-chan discovery.Event, error) {
	src := p.bus.subscribe()
	out := make(chan discovery.Event)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-src:
				if !ok {
					return
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
