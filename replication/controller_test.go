package replication

import (
	"context"
	"testing"

	"github.com/ers-go/ers/docdb"
	"github.com/ers-go/ers/docdb/memdb"
	"github.com/ers-go/ers/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileCreatesPullOnlyTasksForContributors(t *testing.T) {
	ctx := context.Background()
	db := memdb.New()
	c, err := NewController(db, Config{Prefix: "ers", Host: "node-a"})
	require.NoError(t, err)
	defer c.Close()

	self := peer.Peer{URN: "urn:ers:host:a", Host: "node-a", Kind: peer.KindContributor}
	other := peer.Peer{URN: "urn:ers:host:b", Host: "node-b", Port: 5984, Kind: peer.KindContributor}

	require.NoError(t, c.Reconcile(ctx, self, []peer.Peer{self, other}))

	repl, _ := db.Replicator(ctx)
	tasks, err := repl.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	byKind := make(map[Kind]docdb.ReplicatorTask, 2)
	for _, tk := range tasks {
		_, kind, _, _, ok := ParseTaskID(tk.ID)
		require.True(t, ok, "task id %q must match the grammar", tk.ID)
		byKind[kind] = tk
	}

	cacheTask, ok := byKind[KindGetFromCacheOf]
	require.True(t, ok, "expected a get-from-cache-of task")
	assert.Equal(t, "ers-cache", cacheTask.Target)
	assert.Contains(t, cacheTask.Source, "ers-cache")
	assert.Empty(t, cacheTask.DocIDs)

	publicTask, ok := byKind[KindAutoGetFromPublicOf]
	require.True(t, ok, "expected an auto-get-from-public-of task")
	assert.Equal(t, "ers-cache", publicTask.Target)
	assert.Contains(t, publicTask.Source, "ers-public")
	assert.Empty(t, publicTask.DocIDs)

	for _, tk := range tasks {
		assert.NotEqual(t, "ers-public", tk.Target, "local ers-public must never be a replication target")
	}
}

func TestReconcileBridgeLinkPullsOnlyBridgeCache(t *testing.T) {
	ctx := context.Background()
	db := memdb.New()
	c, err := NewController(db, Config{Prefix: "ers", Host: "node-a"})
	require.NoError(t, err)
	defer c.Close()

	self := peer.Peer{URN: "urn:ers:host:a", Host: "node-a", Kind: peer.KindContributor}
	bridge := peer.Peer{URN: "urn:ers:host:b", Host: "node-b", Port: 5984, Kind: peer.KindBridge}

	require.NoError(t, c.Reconcile(ctx, self, []peer.Peer{self, bridge}))

	repl, _ := db.Replicator(ctx)
	tasks, err := repl.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	_, kind, _, _, ok := ParseTaskID(tasks[0].ID)
	require.True(t, ok)
	assert.Equal(t, KindPullFromBridge, kind)
	assert.Equal(t, "ers-cache", tasks[0].Target)
	assert.Contains(t, tasks[0].Source, "ers-cache")
}

func TestReconcileBridgeSelfReplicatesUnrestricted(t *testing.T) {
	ctx := context.Background()
	db := memdb.New()
	c, err := NewController(db, Config{Prefix: "ers", Host: "node-a"})
	require.NoError(t, err)
	defer c.Close()

	self := peer.Peer{URN: "urn:ers:host:a", Host: "node-a", Kind: peer.KindBridge}
	other := peer.Peer{URN: "urn:ers:host:b", Host: "node-b", Port: 5984, Kind: peer.KindContributor}

	require.NoError(t, c.Reconcile(ctx, self, []peer.Peer{self, other}))

	repl, _ := db.Replicator(ctx)
	tasks, err := repl.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	for _, tk := range tasks {
		assert.Empty(t, tk.DocIDs, "a bridge aggregates everything, unrestricted")
	}
}

func TestReconcileRecreatesTaskWhenCachedSetChanges(t *testing.T) {
	ctx := context.Background()
	db := memdb.New()
	c, err := NewController(db, Config{Prefix: "ers", Host: "node-a"})
	require.NoError(t, err)
	defer c.Close()

	self := peer.Peer{URN: "urn:ers:host:a", Host: "node-a", Kind: peer.KindContributor}
	other := peer.Peer{URN: "urn:ers:host:b", Host: "node-b", Port: 5984, Kind: peer.KindContributor}

	require.NoError(t, c.Reconcile(ctx, self, []peer.Peer{self, other}))

	cacheDB, err := db.EnsureDatabase(ctx, "ers-cache")
	require.NoError(t, err)
	_, err = cacheDB.Put(ctx, "urn:ers:entity:widget", "", map[string]interface{}{"@id": "urn:ers:entity:widget"})
	require.NoError(t, err)

	require.NoError(t, c.Reconcile(ctx, self, []peer.Peer{self, other}))

	repl, _ := db.Replicator(ctx)
	tasks, err := repl.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	for _, tk := range tasks {
		assert.Contains(t, tk.DocIDs, "urn:ers:entity:widget")
	}
}

func TestReconcileRemovesStaleOwnedTasks(t *testing.T) {
	ctx := context.Background()
	db := memdb.New()
	c, err := NewController(db, Config{Prefix: "ers", Host: "node-a"})
	require.NoError(t, err)
	defer c.Close()

	self := peer.Peer{URN: "urn:ers:host:a", Host: "node-a", Kind: peer.KindContributor}
	other := peer.Peer{URN: "urn:ers:host:b", Host: "node-b", Port: 5984, Kind: peer.KindContributor}

	require.NoError(t, c.Reconcile(ctx, self, []peer.Peer{self, other}))
	require.NoError(t, c.Reconcile(ctx, self, []peer.Peer{self}))

	repl, _ := db.Replicator(ctx)
	tasks, err := repl.ListTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestReconcileIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := memdb.New()
	c, err := NewController(db, Config{Prefix: "ers", Host: "node-a"})
	require.NoError(t, err)
	defer c.Close()

	self := peer.Peer{URN: "urn:ers:host:a", Host: "node-a", Kind: peer.KindContributor}
	other := peer.Peer{URN: "urn:ers:host:b", Host: "node-b", Port: 5984, Kind: peer.KindContributor}

	require.NoError(t, c.Reconcile(ctx, self, []peer.Peer{self, other}))
	require.NoError(t, c.Reconcile(ctx, self, []peer.Peer{self, other}))

	repl, _ := db.Replicator(ctx)
	tasks, err := repl.ListTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}
