package replication

import (
	"fmt"
	"regexp"
	"strconv"
)

// Kind is the replication relationship a task represents, encoded in its
// task id. The four kinds are the ones the reconciliation algorithm
// produces plus the bridge-initiated push a bridge uses to seed a
// contributor directly rather than waiting to be pulled from.
type Kind string

const (
	// KindPullFromBridge pulls a bridge's cache into this node's cache,
	// always filtered by this node's current cache set.
	KindPullFromBridge Kind = "pull-from-bridge"
	// KindGetFromCacheOf pulls a contributor's cache into this node's
	// cache, used when no bridge is known.
	KindGetFromCacheOf Kind = "get-from-cache-of"
	// KindAutoGetFromPublicOf pulls a contributor's public documents into
	// this node's cache, used when no bridge is known.
	KindAutoGetFromPublicOf Kind = "auto-get-from-public-of"
	// KindAutoLocalTo is a bridge pushing into a contributor's cache
	// directly. Reserved for a bridge-initiated push path; the
	// reconciliation algorithm in controller.go only ever builds
	// pull tasks, so this kind is not currently emitted.
	KindAutoLocalTo Kind = "auto-local-to"
)

var taskIDPattern = regexp.MustCompile(`^ers-(.+?)-(pull-from-bridge|get-from-cache-of|auto-get-from-public-of|auto-local-to)-([^:]+):([0-9]+)$`)

// BuildTaskID constructs a deterministic replicator task id from this
// node's host, the relationship kind, and the peer endpoint, so a
// reconciliation pass can recognize a task it (or a prior instance of
// this daemon) already created without any side-channel bookkeeping.
func BuildTaskID(host string, kind Kind, peerHost string, peerPort int) string {
	return fmt.Sprintf("ers-%s-%s-%s:%d", host, kind, peerHost, peerPort)
}

// ParseTaskID reverses BuildTaskID. ok is false if id does not match the
// grammar (e.g. a task this daemon did not create).
func ParseTaskID(id string) (host string, kind Kind, peerHost string, peerPort int, ok bool) {
	m := taskIDPattern.FindStringSubmatch(id)
	if m == nil {
		return "", "", "", 0, false
	}
	port, err := strconv.Atoi(m[4])
	if err != nil {
		return "", "", "", 0, false
	}
	return m[1], Kind(m[2]), m[3], port, true
}
