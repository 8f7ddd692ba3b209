package daemon

import (
	"fmt"
	"regexp"

	"github.com/ers-go/ers/peer"
)

// serviceNamePattern matches "ERS on <host>(prefix=<p>,type=<t>)", the
// grammar this node's Discovery announcement carries and every peer
// parses on join, carrying both the database prefix and the
// contributor/bridge role without a secondary protocol exchange.
var serviceNamePattern = regexp.MustCompile(`^ERS on (.+)\(prefix=([^,]+),type=([^)]+)\)$`)

// BuildServiceName constructs the announced service name for this node.
func BuildServiceName(host, prefix string, kind peer.Kind) string {
	return fmt.Sprintf("ERS on %s(prefix=%s,type=%s)", host, prefix, kind)
}

// ParseServiceName recovers the host, database prefix and peer kind from
// an announced service name. ok is false if name does not match the
// grammar.
func ParseServiceName(name string) (host, prefix string, kind peer.Kind, ok bool) {
	m := serviceNamePattern.FindStringSubmatch(name)
	if m == nil {
		return "", "", "", false
	}
	return m[1], m[2], peer.Kind(m[3]), true
}
