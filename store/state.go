package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/ers-go/ers/docdb"
)

const stateDocID = "node-state"

// PeerState is the persisted record of one known peer, stored inside the
// node-state document.
type PeerState struct {
	URN   string `json:"urn"`
	Host  string `json:"host"`
	Port  int    `json:"port"`
	Kind  string `json:"kind"`
	Fixed bool   `json:"fixed"`
}

// LoadPeers reads the peer list from the state database, returning an
// empty slice (not an error) if no state document has been written yet.
func (s *Store) LoadPeers(ctx context.Context) ([]PeerState, error) {
	row, err := s.dbs[ScopeState].Get(ctx, stateDocID)
	if errors.Is(err, docdb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	raw, _ := row.Data["peers"].([]interface{})
	peers := make([]PeerState, 0, len(raw))
	for _, p := range raw {
		m, ok := p.(map[string]interface{})
		if !ok {
			continue
		}
		peers = append(peers, PeerState{
			URN:   str(m["urn"]),
			Host:  str(m["host"]),
			Port:  intOf(m["port"]),
			Kind:  str(m["kind"]),
			Fixed: boolOf(m["fixed"]),
		})
	}
	return peers, nil
}

// SavePeers overwrites the peer list in the state database.
func (s *Store) SavePeers(ctx context.Context, peers []PeerState) error {
	_, err := s.Put(ctx, ScopeState, stateDocID, func(current docdb.Row) (map[string]interface{}, error) {
		encoded := make([]interface{}, 0, len(peers))
		for _, p := range peers {
			encoded = append(encoded, map[string]interface{}{
				"urn": p.URN, "host": p.Host, "port": p.Port, "kind": p.Kind, "fixed": p.Fixed,
			})
		}
		return map[string]interface{}{"@id": stateDocID, "peers": encoded}, nil
	})
	if err != nil {
		return fmt.Errorf("store: save peers: %w", err)
	}
	return nil
}

func str(v interface{}) string  { s, _ := v.(string); return s }
func boolOf(v interface{}) bool { b, _ := v.(bool); return b }
func intOf(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}
