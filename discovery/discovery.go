// Package discovery defines the LAN peer-discovery contract. ERS never
// talks to a concrete discovery mechanism directly; it depends on this
// Provider interface, backed in production by discovery/udpmc (a
// minimal multicast announce/listen protocol) and in tests by
// discovery/memdisco (an in-process pub/sub fake).
package discovery

import "context"

// EventType distinguishes a peer joining from a peer leaving.
type EventType int

const (
	EventJoin EventType = iota
	EventLeave
)

// Event is one join/leave notification, carrying exactly the
// information the service name grammar encodes (daemon/servicename.go):
// the peer's host, the announced service name (from which prefix and
// kind are parsed), and port.
type Event struct {
	Type        EventType
	ServiceName string
	Host        string
	Port        int
}

// Provider announces this node's presence and watches for others.
type Provider interface {
	// Announce publishes name at the given port and returns a function
	// that withdraws the announcement. The context bounds how long the
	// announcement is refreshed for; canceling it is equivalent to
	// calling the returned stop function.
	Announce(ctx context.Context, name string, port int) (stop func(), err error)
	// Watch returns a channel of join/leave events for every other
	// ERS node on the LAN. The channel is closed when ctx is canceled.
	Watch(ctx context.Context) (<-chan Event, error)
}
