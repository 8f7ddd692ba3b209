// Package replication implements the replication controller (C6): it
// turns the current peer set into a desired set of DocDB replicator
// tasks (via the bridge-focus algorithm in links.go) and reconciles that
// desired set against whatever replicator tasks already exist, applying
// only the delta so stable links are left untouched.
package replication

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ers-go/ers/docdb"
	"github.com/ers-go/ers/metrics"
	"github.com/ers-go/ers/peer"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

var appliedBucket = []byte("applied-tasks")

// Controller owns the durable applied-task audit trail and drives
// Reconcile.
type Controller struct {
	db     docdb.DB
	prefix string
	host   string
	log    *logrus.Entry

	cache *bolt.DB // may be nil if no durable path was configured
}

// Config configures a Controller.
type Config struct {
	Prefix    string // database name prefix, e.g. "ers"
	Host      string // this node's identity, used to build task ids
	CachePath string // path to a bbolt file for the idempotence cache; empty disables persistence
	Log       *logrus.Entry
}

// NewController opens (creating if needed) the durable idempotence cache
// and returns a ready Controller.
func NewController(db docdb.DB, cfg Config) (*Controller, error) {
	c := &Controller{db: db, prefix: cfg.Prefix, host: cfg.Host, log: cfg.Log}
	if c.log == nil {
		c.log = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.CachePath != "" {
		bdb, err := bolt.Open(cfg.CachePath, 0o600, &bolt.Options{Timeout: 2 * time.Second})
		if err != nil {
			return nil, fmt.Errorf("replication: open idempotence cache: %w", err)
		}
		if err := bdb.Update(func(tx *bolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(appliedBucket)
			return err
		}); err != nil {
			return nil, fmt.Errorf("replication: init idempotence cache: %w", err)
		}
		c.cache = bdb
	}
	return c, nil
}

func (c *Controller) Close() error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Close()
}

// taskFingerprint captures everything about a task that, if changed,
// means the task must be tombstoned and recreated rather than left
// alone: its target and its doc_ids restriction. Source is deliberately
// excluded since a link's source only ever changes when the task id
// itself changes (it's keyed by peer host:port).
func taskFingerprint(t docdb.ReplicatorTask) string {
	ids := append([]string(nil), t.DocIDs...)
	sort.Strings(ids)
	return t.Target + "|" + strings.Join(ids, ",")
}

func (c *Controller) markApplied(id, fingerprint string) {
	if c.cache == nil {
		return
	}
	c.cache.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(appliedBucket).Put([]byte(id), []byte(fingerprint))
	})
}

func (c *Controller) forget(id string) {
	if c.cache == nil {
		return
	}
	c.cache.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(appliedBucket).Delete([]byte(id))
	})
}

func (c *Controller) dbName(scope string) string {
	return fmt.Sprintf("%s-%s", c.prefix, scope)
}

// currentCachedIDs lists the documents already held in this node's cache
// scope, the restriction set a non-bridge node applies to every pull it
// issues: it only ever asks peers to keep already-cached entities fresh,
// never to hand it the whole world. A cache database that doesn't exist
// yet (nothing has ever been cached) is an empty set, not an error.
func (c *Controller) currentCachedIDs(ctx context.Context) ([]string, error) {
	db, err := c.db.EnsureDatabase(ctx, c.dbName("cache"))
	if err != nil {
		return nil, fmt.Errorf("replication: current cache contents: %w", err)
	}
	return db.AllIDs(ctx)
}

// desiredTasks expands a set of Links into the concrete pull-only
// replicator tasks the bridge-focus algorithm calls for. Every task
// targets this node's cache scope -- public is never a replication
// target, and private never leaves the node. A link to a bridge pulls
// only the bridge's cache; a link to a contributor pulls both that
// contributor's cache and its public documents, since a contributor has
// no bridge to rely on for aggregation. A pull from a bridge is always
// restricted to what this node has already cached. Pulls from a
// contributor are unrestricted when this node is itself a bridge (it
// exists to aggregate everything) and restricted to the cached set
// otherwise.
func (c *Controller) desiredTasks(links []Link, self peer.Peer, cachedIDs []string) map[string]docdb.ReplicatorTask {
	restrict := self.Kind != peer.KindBridge

	out := make(map[string]docdb.ReplicatorTask, len(links)*2)
	for _, l := range links {
		var docIDs []string
		if restrict {
			docIDs = cachedIDs
		}

		if l.Peer.Kind == peer.KindBridge {
			id := BuildTaskID(c.host, KindPullFromBridge, l.Peer.Host, l.Peer.Port)
			out[id] = docdb.ReplicatorTask{
				ID:         id,
				Source:     fmt.Sprintf("%s/%s", l.Peer.BaseURL(), c.dbName("cache")),
				Target:     c.dbName("cache"),
				Continuous: true,
				DocIDs:     cachedIDs, // always restricted, regardless of self's kind
			}
			continue
		}

		cacheID := BuildTaskID(c.host, KindGetFromCacheOf, l.Peer.Host, l.Peer.Port)
		out[cacheID] = docdb.ReplicatorTask{
			ID:         cacheID,
			Source:     fmt.Sprintf("%s/%s", l.Peer.BaseURL(), c.dbName("cache")),
			Target:     c.dbName("cache"),
			Continuous: true,
			DocIDs:     docIDs,
		}

		publicID := BuildTaskID(c.host, KindAutoGetFromPublicOf, l.Peer.Host, l.Peer.Port)
		out[publicID] = docdb.ReplicatorTask{
			ID:         publicID,
			Source:     fmt.Sprintf("%s/%s", l.Peer.BaseURL(), c.dbName("public")),
			Target:     c.dbName("cache"),
			Continuous: true,
			DocIDs:     docIDs,
		}
	}
	return out
}

// Reconcile computes the desired replicator task set for self given the
// current peer snapshot and applies the delta: creates missing tasks,
// removes tasks this node owns (matching its own task-id grammar) that
// are no longer desired, and leaves everything else untouched -- a task
// already present with the same target and doc_ids is never re-submitted.
// A task present under both sets but with a changed doc_ids restriction is
// tombstoned and recreated rather than overwritten in place.
func (c *Controller) Reconcile(ctx context.Context, self peer.Peer, peers []peer.Peer) error {
	metrics.Reconciliations.Inc()

	cachedIDs, err := c.currentCachedIDs(ctx)
	if err != nil {
		return fmt.Errorf("replication: reconcile: %w", err)
	}
	desired := c.desiredTasks(DesiredLinks(self, peers), self, cachedIDs)

	repl, err := c.db.Replicator(ctx)
	if err != nil {
		return fmt.Errorf("replication: reconcile: %w", err)
	}
	existing, err := repl.ListTasks(ctx)
	if err != nil {
		return fmt.Errorf("replication: reconcile: %w", err)
	}

	existingOwned := make(map[string]docdb.ReplicatorTask)
	for _, t := range existing {
		if host, _, _, _, ok := ParseTaskID(t.ID); ok && host == c.host {
			existingOwned[t.ID] = t
		}
	}

	for id, task := range desired {
		fp := taskFingerprint(task)
		current, stillThere := existingOwned[id]
		if stillThere && taskFingerprint(current) == fp {
			// Present with identical target and doc_ids: untouched.
			continue
		}
		if stillThere {
			// Present but changed (doc_ids or target shifted): tombstone
			// before recreating rather than overwriting in place.
			if err := repl.RemoveTask(ctx, id); err != nil {
				c.log.WithError(err).WithField("task", id).Error("replication: failed to tombstone changed task")
				continue
			}
			c.forget(id)
		}
		if err := c.applyWithRetry(ctx, repl, task); err != nil {
			c.log.WithError(err).WithField("task", id).Error("replication: failed to apply task")
			continue
		}
		c.markApplied(id, fp)
		metrics.ReplicationTasksCreated.Inc()
	}

	for id := range existingOwned {
		if _, wanted := desired[id]; wanted {
			continue
		}
		if err := repl.RemoveTask(ctx, id); err != nil {
			c.log.WithError(err).WithField("task", id).Error("replication: failed to remove stale task")
			continue
		}
		c.forget(id)
		metrics.ReplicationTasksRemoved.Inc()
	}

	return nil
}

// applyWithRetry retries a single task write up to four times,
// refreshing nothing between attempts (PutTask is idempotent by id), per
// the error handling policy's "bounded per-document retry" requirement.
func (c *Controller) applyWithRetry(ctx context.Context, repl docdb.Replicator, task docdb.ReplicatorTask) error {
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	return backoff.Retry(func() error {
		return repl.PutTask(ctx, task)
	}, backoff.WithContext(b, ctx))
}
