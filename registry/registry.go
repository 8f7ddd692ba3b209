// Package registry implements the Registry API (C4): the operations an
// ERS client actually calls -- get, persist, set, delete, search, cache
// management -- composed from the store layer (C2), the entity aggregate
// (C3), the peer registry (C5) and the federated query path (C7).
package registry

import (
	"context"
	"fmt"

	"github.com/ers-go/ers/docdb"
	"github.com/ers-go/ers/document"
	"github.com/ers-go/ers/entity"
	"github.com/ers-go/ers/federated"
	"github.com/ers-go/ers/peer"
	"github.com/ers-go/ers/store"
)

// Query is the subset of federated.Query the registry needs, narrowed so
// tests can supply a local-only registry with a nil Query.
type Query interface {
	GetEntity(ctx context.Context, peers []peer.Peer, id string) []federated.Result
	Search(ctx context.Context, peers []peer.Peer, property string, value interface{}) []federated.Result
}

// Registry is the top-level entry point into ERS's data operations.
type Registry struct {
	store *store.Store
	peers *peer.Registry
	query Query // nil means local-only, used in unit tests and single-node setups
	host  string
}

// New builds a Registry. query may be nil to disable federation (every
// operation then only consults the local store).
func New(s *store.Store, peers *peer.Registry, query Query, host string) *Registry {
	return &Registry{store: s, peers: peers, query: query, host: host}
}

// Peers returns every peer currently known, fixed or discovered,
// unioning the fixed configuration with whatever Discovery has found so
// far (peer.Registry already performs that union internally).
func (r *Registry) Peers() []peer.Peer {
	return r.peers.Snapshot()
}

// Get composes the aggregate for id from the local public, private and
// cache scopes, then -- unless localOnly -- fans a live fetch out to
// every known peer and folds their answers in as SourceRemote documents.
func (r *Registry) Get(ctx context.Context, id string, localOnly bool) (*entity.Entity, error) {
	e := entity.New(id)
	if err := r.loadLocal(ctx, e, id); err != nil {
		return nil, err
	}

	if localOnly || r.query == nil {
		return e, nil
	}

	results := r.query.GetEntity(ctx, r.peers.Snapshot(), id)
	for _, res := range results {
		if res.Err != nil || len(res.Docs) == 0 {
			continue
		}
		for _, d := range res.Docs {
			e.AddDocument(entity.SourceRemote, res.Peer.URN, d)
		}
	}
	return e, nil
}

// Tuples composes id's aggregate the same way Get does and flattens it
// via entity.Entity.Tuples, the scope-preserving view used to check
// round-trip and idempotence behavior against a write.
func (r *Registry) Tuples(ctx context.Context, id string, localOnly bool) ([]entity.Tuple, error) {
	e, err := r.Get(ctx, id, localOnly)
	if err != nil {
		return nil, err
	}
	return e.Tuples(), nil
}

func (r *Registry) loadLocal(ctx context.Context, e *entity.Entity, id string) error {
	for scope, source := range map[store.Scope]entity.Source{
		store.ScopePublic:  entity.SourcePublic,
		store.ScopePrivate: entity.SourcePrivate,
		store.ScopeCache:   entity.SourceCache,
	} {
		row, ok, err := r.store.ByEntity(ctx, scope, id)
		if err != nil {
			return fmt.Errorf("registry: get %s: %w", id, err)
		}
		if !ok {
			continue
		}
		doc := document.Document(row.Data)
		if doc.IsTombstone() {
			continue
		}
		e.AddDocument(source, r.host, doc)
	}
	return nil
}

// LocalDocuments returns id's constituent documents from this node's own
// public, private and cache scopes only -- what this node answers a
// peer's federated call with, never reaching out to other peers itself.
func (r *Registry) LocalDocuments(ctx context.Context, id string) ([]document.Document, error) {
	e := entity.New(id)
	if err := r.loadLocal(ctx, e, id); err != nil {
		return nil, err
	}
	return e.Documents(), nil
}

// Exists reports whether id has any locally stored (non-tombstoned)
// document in the public, private or cache scope.
func (r *Registry) Exists(ctx context.Context, id string) (bool, error) {
	e := entity.New(id)
	if err := r.loadLocal(ctx, e, id); err != nil {
		return false, err
	}
	return e.Exists(), nil
}

// Set writes a property value into id's owned document: the property is
// first deleted from both the public and private documents, then
// re-added to whichever scope private selects.
func (r *Registry) Set(ctx context.Context, id, property string, value interface{}, private bool) error {
	target := store.ScopePublic
	if private {
		target = store.ScopePrivate
	}
	other := store.ScopePrivate
	if private {
		other = store.ScopePublic
	}

	if err := r.deletePropertyInScope(ctx, other, id, property); err != nil {
		return err
	}

	_, err := r.store.Put(ctx, target, id, func(current docdb.Row) (map[string]interface{}, error) {
		var doc document.Document
		if current.Data != nil {
			doc = document.Document(current.Data).Clone()
		} else {
			doc = document.New(id, r.host)
		}
		doc.Delete(property)
		doc.Add(property, value)
		return doc, nil
	})
	if err != nil {
		return fmt.Errorf("registry: set %s %s: %w", id, property, err)
	}
	return nil
}

func (r *Registry) deletePropertyInScope(ctx context.Context, scope store.Scope, id, property string) error {
	row, ok, err := r.store.ByEntity(ctx, scope, id)
	if err != nil || !ok {
		return err
	}
	doc := document.Document(row.Data)
	if _, has := doc[property]; !has {
		return nil
	}
	_, err = r.store.Put(ctx, scope, row.ID, func(current docdb.Row) (map[string]interface{}, error) {
		d := document.Document(current.Data).Clone()
		d.Delete(property)
		return d, nil
	})
	return err
}

// DeleteValue removes a single property entirely from id's owned
// document, in whichever of public/private scope currently carries it.
func (r *Registry) DeleteValue(ctx context.Context, id, property string) error {
	if err := r.deletePropertyInScope(ctx, store.ScopePublic, id, property); err != nil {
		return err
	}
	return r.deletePropertyInScope(ctx, store.ScopePrivate, id, property)
}

// DeleteEntity tombstones id's documents in every locally owned scope
// (public and private); the cache scope is left untouched.
func (r *Registry) DeleteEntity(ctx context.Context, id string) error {
	for _, scope := range []store.Scope{store.ScopePublic, store.ScopePrivate} {
		row, ok, err := r.store.ByEntity(ctx, scope, id)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := r.store.Delete(ctx, scope, row.ID, row.Rev); err != nil {
			return fmt.Errorf("registry: delete %s from %s: %w", id, scope, err)
		}
	}
	return nil
}

// Search finds entity ids carrying property=value, consulting the local
// public and cache scopes and -- unless localOnly -- every known peer's
// public and cache scopes too (peer caches are searched by default).
func (r *Registry) Search(ctx context.Context, property string, value interface{}, localOnly bool) ([]string, error) {
	seen := make(map[string]bool)
	var ids []string

	for _, scope := range []store.Scope{store.ScopePublic, store.ScopeCache} {
		found, err := r.store.SearchByProperty(ctx, scope, property, value)
		if err != nil {
			return nil, err
		}
		for _, id := range found {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	if localOnly || r.query == nil {
		return ids, nil
	}

	results := r.query.Search(ctx, r.peers.Snapshot(), property, value)
	for _, res := range results {
		if res.Err != nil {
			continue
		}
		for _, d := range res.Docs {
			id := document.Document(d).ID()
			if id != "" && !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

// IsCached reports whether id has a document in the local cache scope.
func (r *Registry) IsCached(ctx context.Context, id string) (bool, error) {
	_, ok, err := r.store.ByEntity(ctx, store.ScopeCache, id)
	return ok, err
}

// Cache persists exactly the remote-scope documents currently attached
// to e into the local cache database. It never fetches documents that
// are not already loaded on the aggregate.
func (r *Registry) Cache(ctx context.Context, e *entity.Entity) error {
	_, docs := e.RemoteDocuments()
	for _, d := range docs {
		doc := d
		_, err := r.store.Put(ctx, store.ScopeCache, e.ID(), func(current docdb.Row) (map[string]interface{}, error) {
			merged := doc.Clone()
			if current.Rev != "" {
				merged["_rev"] = current.Rev
			}
			return merged, nil
		})
		if err != nil {
			return fmt.Errorf("registry: cache %s: %w", e.ID(), err)
		}
	}
	return nil
}

// Uncache removes id's document from the local cache scope, if any.
func (r *Registry) Uncache(ctx context.Context, id string) error {
	row, ok, err := r.store.ByEntity(ctx, store.ScopeCache, id)
	if err != nil || !ok {
		return err
	}
	return r.store.Delete(ctx, store.ScopeCache, row.ID, row.Rev)
}
