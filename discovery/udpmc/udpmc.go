// Package udpmc implements LAN peer discovery with a small multicast UDP
// announce/listen protocol: a periodic heartbeat broadcast to a
// multicast group, carrying the announced service-name string, with an
// explicit "bye" packet on clean shutdown and a liveness timeout to
// cover an unclean one. See DESIGN.md for why this, rather than a
// DNS-SD library, backs LAN discovery.
package udpmc

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/ers-go/ers/discovery"
)

// DefaultGroup is the multicast group and port ERS nodes announce on.
// Chosen from the administratively-scoped block (RFC 2365) so it never
// collides with routed multicast traffic.
const DefaultGroup = "239.192.42.99:7846"

const (
	heartbeatInterval = 5 * time.Second
	peerTTL           = 3 * heartbeatInterval
)

type packet struct {
	Kind        string `json:"kind"` // "hello" or "bye"
	ServiceName string `json:"service_name"`
	Port        int    `json:"port"`
}

// Provider announces and watches over a single multicast group.
type Provider struct {
	group string
}

// New returns a Provider bound to group (host:port), typically
// DefaultGroup.
func New(group string) *Provider {
	if group == "" {
		group = DefaultGroup
	}
	return &Provider{group: group}
}

func (p *Provider) Announce(ctx context.Context, name string, port int) (func(), error) {
	addr, err := net.ResolveUDPAddr("udp4", p.group)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return nil, err
	}

	send := func(kind string) {
		data, _ := json.Marshal(packet{Kind: kind, ServiceName: name, Port: port})
		conn.Write(data)
	}

	send("hello")

	done := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			send("bye")
			conn.Close()
		})
	}

	ticker := time.NewTicker(heartbeatInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				send("hello")
			case <-done:
				return
			case <-ctx.Done():
				stop()
				return
			}
		}
	}()
	return stop, nil
}

func (p *Provider) Watch(ctx context.Context) (<-chan discovery.Event, error) {
	addr, err := net.ResolveUDPAddr("udp4", p.group)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenMulticastUDP("udp4", nil, addr)
	if err != nil {
		return nil, err
	}
	conn.SetReadBuffer(64 * 1024)

	out := make(chan discovery.Event)
	lastSeen := make(map[string]time.Time)
	var mu sync.Mutex
	var wg sync.WaitGroup

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		buf := make([]byte, 2048)
		for {
			n, src, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			var pkt packet
			if err := json.Unmarshal(buf[:n], &pkt); err != nil {
				continue
			}
			host, _, _ := net.SplitHostPort(src.String())

			ev := discovery.Event{ServiceName: pkt.ServiceName, Host: host, Port: pkt.Port}
			switch pkt.Kind {
			case "hello":
				mu.Lock()
				_, known := lastSeen[pkt.ServiceName]
				lastSeen[pkt.ServiceName] = time.Now()
				mu.Unlock()
				if known {
					continue // already live, no join event needed
				}
				ev.Type = discovery.EventJoin
			case "bye":
				mu.Lock()
				delete(lastSeen, pkt.ServiceName)
				mu.Unlock()
				ev.Type = discovery.EventLeave
			default:
				continue
			}

			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Sweep for peers that stopped sending heartbeats without a clean
	// "bye" (crash, network partition).
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				mu.Lock()
				for name, seen := range lastSeen {
					if time.Since(seen) > peerTTL {
						delete(lastSeen, name)
						select {
						case out <- discovery.Event{Type: discovery.EventLeave, ServiceName: name}:
						case <-ctx.Done():
							mu.Unlock()
							return
						}
					}
				}
				mu.Unlock()
			}
		}
	}()

	go func() {
		wg.Wait()
		close(out)
	}()

	return out, nil
}
