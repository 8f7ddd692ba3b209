package memdb

import (
	"context"
	"errors"
	"testing"

	"github.com/ers-go/ers/docdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := New()
	db, err := c.EnsureDatabase(ctx, "ers-public")
	require.NoError(t, err)

	rev, err := db.Put(ctx, "urn:ers:entity:1", "", map[string]interface{}{"@id": "urn:ers:entity:1"})
	require.NoError(t, err)
	assert.NotEmpty(t, rev)

	row, err := db.Get(ctx, "urn:ers:entity:1")
	require.NoError(t, err)
	assert.Equal(t, rev, row.Rev)
}

func TestPutConflictOnStaleRevision(t *testing.T) {
	ctx := context.Background()
	c := New()
	db, _ := c.EnsureDatabase(ctx, "ers-public")
	_, err := db.Put(ctx, "x", "", map[string]interface{}{})
	require.NoError(t, err)

	_, err = db.Put(ctx, "x", "stale", map[string]interface{}{})
	assert.True(t, errors.Is(err, docdb.ErrConflict))
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	c := New()
	db, _ := c.EnsureDatabase(ctx, "ers-public")
	_, err := db.Get(ctx, "missing")
	assert.True(t, errors.Is(err, docdb.ErrNotFound))
}

func TestQueryByEntity(t *testing.T) {
	ctx := context.Background()
	c := New()
	db, _ := c.EnsureDatabase(ctx, "ers-public")
	require.NoError(t, db.EnsureDesignDoc(ctx, "index", map[string]docdb.View{"by_entity": {}}))
	_, err := db.Put(ctx, "urn:ers:entity:1", "", map[string]interface{}{"@id": "urn:ers:entity:1"})
	require.NoError(t, err)

	rows, err := db.Query(ctx, "index", "by_entity", docdb.ViewQuery{Key: "urn:ers:entity:1"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "urn:ers:entity:1", rows[0].Key)
}

func TestReplicatorTaskLifecycle(t *testing.T) {
	ctx := context.Background()
	c := New()
	repl, err := c.Replicator(ctx)
	require.NoError(t, err)

	require.NoError(t, repl.PutTask(ctx, docdb.ReplicatorTask{ID: "t1", Source: "a", Target: "b"}))
	tasks, err := repl.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	require.NoError(t, repl.RemoveTask(ctx, "t1"))
	tasks, err = repl.ListTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}
