package replication

import "github.com/ers-go/ers/peer"

// Link is one desired replication relationship between this node and
// another peer; desiredTasks turns it into pull tasks from that peer.
type Link struct {
	Peer peer.Peer
}

// DesiredLinks applies the bridge-focus algorithm: when at least one
// bridge peer is known, contributors replicate only with bridges, never
// directly with each other, so a fleet of N contributors needs O(N)
// links through the bridges rather than O(N^2) full mesh. If no bridge
// is known, every peer falls back to a direct mesh so the system still
// functions without a dedicated bridge node. A bridge always links to
// every other peer it knows about, contributor or bridge, so it can
// aggregate.
func DesiredLinks(self peer.Peer, peers []peer.Peer) []Link {
	bridgesKnown := false
	for _, p := range peers {
		if p.URN == self.URN {
			continue
		}
		if p.Kind == peer.KindBridge {
			bridgesKnown = true
			break
		}
	}

	var links []Link
	for _, p := range peers {
		if p.URN == self.URN {
			continue
		}
		switch {
		case self.Kind == peer.KindBridge:
			links = append(links, Link{Peer: p})
		case p.Kind == peer.KindBridge:
			links = append(links, Link{Peer: p})
		case !bridgesKnown:
			links = append(links, Link{Peer: p})
		}
	}
	return links
}
