package registry

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
)

// HostURN derives this node's identity URN. It prefers the configured
// value; failing that it falls back to an md5 fingerprint of the local
// hostname (urn:ers:host:<md5(hostname)>).
func HostURN(configured string) string {
	if configured != "" {
		return configured
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}
	sum := md5.Sum([]byte(hostname))
	return fmt.Sprintf("urn:ers:host:%s", hex.EncodeToString(sum[:]))
}
