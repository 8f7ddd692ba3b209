package replication

import (
	"testing"

	"github.com/ers-go/ers/peer"
	"github.com/stretchr/testify/assert"
)

func TestDesiredLinksFallsBackToMeshWithoutBridge(t *testing.T) {
	self := peer.Peer{URN: "a", Kind: peer.KindContributor}
	others := []peer.Peer{
		{URN: "a", Kind: peer.KindContributor},
		{URN: "b", Kind: peer.KindContributor},
		{URN: "c", Kind: peer.KindContributor},
	}
	links := DesiredLinks(self, others)
	assert.Len(t, links, 2)
}

func TestDesiredLinksContributorOnlyLinksBridgesWhenPresent(t *testing.T) {
	self := peer.Peer{URN: "a", Kind: peer.KindContributor}
	others := []peer.Peer{
		{URN: "a", Kind: peer.KindContributor},
		{URN: "b", Kind: peer.KindContributor},
		{URN: "bridge", Kind: peer.KindBridge},
	}
	links := DesiredLinks(self, others)
	assert.Len(t, links, 1)
	assert.Equal(t, "bridge", links[0].Peer.URN)
}

func TestDesiredLinksBridgeLinksEveryone(t *testing.T) {
	self := peer.Peer{URN: "bridge", Kind: peer.KindBridge}
	others := []peer.Peer{
		{URN: "bridge", Kind: peer.KindBridge},
		{URN: "a", Kind: peer.KindContributor},
		{URN: "b", Kind: peer.KindContributor},
	}
	links := DesiredLinks(self, others)
	assert.Len(t, links, 2)
}
