package registry

import (
	"context"
	"testing"

	"github.com/ers-go/ers/docdb/memdb"
	"github.com/ers-go/ers/entity"
	"github.com/ers-go/ers/peer"
	"github.com/ers-go/ers/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	s, err := store.Open(context.Background(), memdb.New(), "ers")
	require.NoError(t, err)
	return New(s, peer.New(nil), nil, "node-a")
}

func TestSetThenGetLocalOnly(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	require.NoError(t, r.Set(ctx, "urn:ers:entity:1", "http://example.org/label", "Tim", false))

	e, err := r.Get(ctx, "urn:ers:entity:1", true)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"Tim"}, e.Get("http://example.org/label"))
}

func TestSetPrivateRemovesFromPublicFirst(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	require.NoError(t, r.Set(ctx, "urn:ers:entity:1", "p", "public-value", false))
	require.NoError(t, r.Set(ctx, "urn:ers:entity:1", "p", "private-value", true))

	e, err := r.Get(ctx, "urn:ers:entity:1", true)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"private-value"}, e.Get("p"))

	pubDoc, ok := e.Document(entity.SourcePublic)
	if ok {
		assert.Nil(t, pubDoc["p"])
	}
}

func TestDeleteEntityTombstonesBothScopes(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	require.NoError(t, r.Set(ctx, "urn:ers:entity:1", "p", "v", false))
	require.NoError(t, r.Set(ctx, "urn:ers:entity:1", "q", "w", true))
	require.NoError(t, r.DeleteEntity(ctx, "urn:ers:entity:1"))

	exists, err := r.Exists(ctx, "urn:ers:entity:1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSearchFindsByProperty(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	require.NoError(t, r.Set(ctx, "urn:ers:entity:1", "p", "v", false))

	ids, err := r.Search(ctx, "p", "v", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"urn:ers:entity:1"}, ids)
}

func TestTuplesBasicWriteRead(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	require.NoError(t, r.Set(ctx, "urn:ers:test", "rdf:type", "foaf:Agent", false))

	tuples, err := r.Tuples(ctx, "urn:ers:test", true)
	require.NoError(t, err)
	assert.Equal(t, []entity.Tuple{{Property: "rdf:type", Value: "foaf:Agent", Scope: entity.SourcePublic}}, tuples)

	exists, err := r.Exists(ctx, "urn:ers:test")
	require.NoError(t, err)
	assert.True(t, exists)

	cached, err := r.IsCached(ctx, "urn:ers:test")
	require.NoError(t, err)
	assert.False(t, cached)
}

func TestTuplesDeleteSemantics(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	require.NoError(t, r.Set(ctx, "urn:ers:test", "rdf:type", "foaf:Agent", false))
	require.NoError(t, r.Set(ctx, "urn:ers:test", "rdf:type", "foaf:Person", false))

	tuples, err := r.Tuples(ctx, "urn:ers:test", true)
	require.NoError(t, err)
	assert.Equal(t, []entity.Tuple{{Property: "rdf:type", Value: "foaf:Person", Scope: entity.SourcePublic}}, tuples)

	require.NoError(t, r.DeleteValue(ctx, "urn:ers:test", "rdf:type"))

	tuples, err = r.Tuples(ctx, "urn:ers:test", true)
	require.NoError(t, err)
	assert.Empty(t, tuples)
}

func TestCacheOnlyPersistsAlreadyLoadedRemoteDocuments(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	e, err := r.Get(ctx, "urn:ers:entity:1", true)
	require.NoError(t, err)
	require.NoError(t, r.Cache(ctx, e))

	cached, err := r.IsCached(ctx, "urn:ers:entity:1")
	require.NoError(t, err)
	assert.False(t, cached)
}
