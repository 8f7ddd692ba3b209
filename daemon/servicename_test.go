package daemon

import (
	"testing"

	"github.com/ers-go/ers/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildParseServiceNameRoundTrip(t *testing.T) {
	name := BuildServiceName("node-a.local", "ers", peer.KindBridge)
	host, prefix, kind, ok := ParseServiceName(name)
	require.True(t, ok)
	assert.Equal(t, "node-a.local", host)
	assert.Equal(t, "ers", prefix)
	assert.Equal(t, peer.KindBridge, kind)
}

func TestParseServiceNameRejectsGarbage(t *testing.T) {
	_, _, _, ok := ParseServiceName("not an ers service")
	assert.False(t, ok)
}
