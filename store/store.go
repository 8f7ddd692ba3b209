// Package store implements the three-plus-one database layout (C2): the
// public, private and cache document scopes plus the state database that
// records this node's peer list. The registry reaches the databases
// through Store; the replication controller uses docdb.DB directly for
// the cache database and the replicator collection.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/ers-go/ers/docdb"
)

// Scope names the four database roles a Store manages.
type Scope string

const (
	ScopePublic  Scope = "public"
	ScopePrivate Scope = "private"
	ScopeCache   Scope = "cache"
	ScopeState   Scope = "state"
)

var allDataScopes = []Scope{ScopePublic, ScopePrivate, ScopeCache}

// Store owns the four named databases backing one ERS node. Database
// names are "<prefix>-<scope>", e.g. "ers-public", so several tenants can
// share a DocDB server by prefix, matching the prefix carried in the
// service name grammar (daemon/servicename.go).
type Store struct {
	db     docdb.DB
	prefix string

	dbs map[Scope]docdb.Database
}

// Open connects each of the four scoped databases, creating them (and
// installing the shared index views on the three data scopes) if they do
// not already exist.
func Open(ctx context.Context, db docdb.DB, prefix string) (*Store, error) {
	s := &Store{db: db, prefix: prefix, dbs: make(map[Scope]docdb.Database)}

	for _, scope := range append(append([]Scope{}, allDataScopes...), ScopeState) {
		d, err := db.EnsureDatabase(ctx, s.dbName(scope))
		if err != nil {
			return nil, fmt.Errorf("store: open %s: %w", scope, err)
		}
		s.dbs[scope] = d
	}

	for _, scope := range allDataScopes {
		if err := s.dbs[scope].EnsureDesignDoc(ctx, "index", indexViews); err != nil {
			return nil, fmt.Errorf("store: index %s: %w", scope, err)
		}
	}

	return s, nil
}

func (s *Store) dbName(scope Scope) string {
	return fmt.Sprintf("%s-%s", s.prefix, scope)
}

// Database returns the raw handle for a scope, for callers that need
// database-level operations like AllIDs.
func (s *Store) Database(scope Scope) docdb.Database {
	return s.dbs[scope]
}

// Get fetches a document by its store key ("_id") from one scope.
func (s *Store) Get(ctx context.Context, scope Scope, id string) (docdb.Row, error) {
	return s.dbs[scope].Get(ctx, id)
}

// Put writes a document into one scope, making up to four attempts in
// all: on a stale revision it re-reads the current one and tries again
// -- the bounded "local retry
// with read-modify-write" the error handling policy calls for on a
// StoreConflict. The caller's merge function recomputes the document
// body given the latest known row.
func (s *Store) Put(ctx context.Context, scope Scope, id string, merge func(current docdb.Row) (map[string]interface{}, error)) (string, error) {
	const maxAttempts = 4
	var rev string

	current, err := s.dbs[scope].Get(ctx, id)
	if err == nil {
		rev = current.Rev
	} else if !errors.Is(err, docdb.ErrNotFound) {
		return "", err
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		data, mergeErr := merge(current)
		if mergeErr != nil {
			return "", mergeErr
		}
		newRev, putErr := s.dbs[scope].Put(ctx, id, rev, data)
		if putErr == nil {
			return newRev, nil
		}
		lastErr = putErr
		if !errors.Is(putErr, docdb.ErrConflict) {
			return "", putErr
		}
		current, err = s.dbs[scope].Get(ctx, id)
		if err != nil {
			return "", err
		}
		rev = current.Rev
	}
	return "", fmt.Errorf("store: put %s after %d attempts: %w", id, maxAttempts, lastErr)
}

// Delete tombstones a document in one scope.
func (s *Store) Delete(ctx context.Context, scope Scope, id, rev string) error {
	return s.dbs[scope].Delete(ctx, id, rev)
}

// ByEntity looks up the document describing an entity id in one scope, if
// any exists there.
func (s *Store) ByEntity(ctx context.Context, scope Scope, entityID string) (docdb.Row, bool, error) {
	rows, err := s.dbs[scope].Query(ctx, "index", "by_entity", docdb.ViewQuery{Key: entityID, IncludeDocs: false})
	if err != nil {
		return docdb.Row{}, false, err
	}
	if len(rows) == 0 {
		return docdb.Row{}, false, nil
	}
	row, err := s.dbs[scope].Get(ctx, rows[0].ID)
	if err != nil {
		return docdb.Row{}, false, err
	}
	return row, true, nil
}

// SearchByProperty finds entity ids in one scope whose documents carry
// property=value.
func (s *Store) SearchByProperty(ctx context.Context, scope Scope, property string, value interface{}) ([]string, error) {
	rows, err := s.dbs[scope].Query(ctx, "index", "by_property_value", docdb.ViewQuery{Key: []interface{}{property, value}})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(rows))
	var ids []string
	for _, r := range rows {
		id, _ := r.Value.(string)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}
