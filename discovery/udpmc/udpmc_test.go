package udpmc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketRoundTrips(t *testing.T) {
	p := packet{Kind: "hello", ServiceName: "ERS on node-a(prefix=ers,type=contributor)", Port: 5984}
	data, err := json.Marshal(p)
	require.NoError(t, err)

	var back packet
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, p, back)
}

func TestNewDefaultsGroup(t *testing.T) {
	p := New("")
	assert.Equal(t, DefaultGroup, p.group)
}
