// Package memdb is an in-memory docdb.DB used as the DocDB test double
// throughout the registry's unit tests: no network, deterministic.
package memdb

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/ers-go/ers/docdb"
)

// Client is an in-memory docdb.DB.
type Client struct {
	mu   sync.Mutex
	dbs  map[string]*database
	repl *replicator
}

// New returns an empty in-memory DocDB.
func New() *Client {
	return &Client{
		dbs:  make(map[string]*database),
		repl: newReplicator(),
	}
}

func (c *Client) Database(ctx context.Context, name string) (docdb.Database, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	db, ok := c.dbs[name]
	if !ok {
		return nil, fmt.Errorf("memdb: database %q: %w", name, docdb.ErrNotFound)
	}
	return db, nil
}

func (c *Client) EnsureDatabase(ctx context.Context, name string) (docdb.Database, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	db, ok := c.dbs[name]
	if !ok {
		db = newDatabase()
		c.dbs[name] = db
	}
	return db, nil
}

func (c *Client) Replicator(ctx context.Context) (docdb.Replicator, error) {
	return c.repl, nil
}

func (c *Client) Ping(ctx context.Context) error { return nil }
func (c *Client) Close() error                   { return nil }

// database is a single in-memory collection of documents.
type database struct {
	mu      sync.Mutex
	docs    map[string]docdb.Row
	seq     int
	designs map[string]map[string]docdb.View
}

func newDatabase() *database {
	return &database{
		docs:    make(map[string]docdb.Row),
		designs: make(map[string]map[string]docdb.View),
	}
}

func (d *database) nextRev(prior string) string {
	d.seq++
	return strconv.Itoa(d.seq) + "-" + prior
}

func (d *database) Get(ctx context.Context, id string) (docdb.Row, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	row, ok := d.docs[id]
	if !ok {
		return docdb.Row{}, fmt.Errorf("memdb: %s: %w", id, docdb.ErrNotFound)
	}
	return cloneRow(row), nil
}

func (d *database) Put(ctx context.Context, id, rev string, data map[string]interface{}) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	existing, ok := d.docs[id]
	if ok && existing.Rev != rev {
		return "", fmt.Errorf("memdb: %s: %w", id, docdb.ErrConflict)
	}
	if !ok && rev != "" {
		return "", fmt.Errorf("memdb: %s: %w", id, docdb.ErrConflict)
	}
	newRev := d.nextRev(rev)
	d.docs[id] = docdb.Row{ID: id, Rev: newRev, Data: cloneData(data)}
	return newRev, nil
}

func (d *database) Delete(ctx context.Context, id, rev string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	existing, ok := d.docs[id]
	if !ok {
		return fmt.Errorf("memdb: %s: %w", id, docdb.ErrNotFound)
	}
	if existing.Rev != rev {
		return fmt.Errorf("memdb: %s: %w", id, docdb.ErrConflict)
	}
	newRev := d.nextRev(rev)
	d.docs[id] = docdb.Row{ID: id, Rev: newRev, Data: map[string]interface{}{"_deleted": true, "_id": id}}
	return nil
}

func (d *database) BulkPut(ctx context.Context, rows []docdb.Row) ([]docdb.BulkResult, error) {
	results := make([]docdb.BulkResult, 0, len(rows))
	for _, r := range rows {
		newRev, err := d.Put(ctx, r.ID, r.Rev, r.Data)
		if err != nil {
			results = append(results, docdb.BulkResult{ID: r.ID, OK: false, Error: err})
			continue
		}
		results = append(results, docdb.BulkResult{ID: r.ID, Rev: newRev, OK: true})
	}
	return results, nil
}

func (d *database) EnsureDesignDoc(ctx context.Context, name string, views map[string]docdb.View) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.designs[name] = views
	return nil
}

// Query evaluates the named view against the current document set. memdb
// only supports the two view shapes the registry actually uses
// (by_entity, by_property_value) via the viewFuncs registry below, since
// there is no JS engine here to run arbitrary map functions.
func (d *database) Query(ctx context.Context, design, view string, q docdb.ViewQuery) ([]docdb.ViewRow, error) {
	d.mu.Lock()
	docsCopy := make([]docdb.Row, 0, len(d.docs))
	for _, row := range d.docs {
		docsCopy = append(docsCopy, cloneRow(row))
	}
	d.mu.Unlock()

	fn, ok := viewFuncs[view]
	if !ok {
		return nil, fmt.Errorf("memdb: unknown view %s/%s", design, view)
	}

	var rows []docdb.ViewRow
	for _, row := range docsCopy {
		if deleted, _ := row.Data["_deleted"].(bool); deleted {
			continue
		}
		rows = append(rows, fn(row)...)
	}

	rows = filterByKey(rows, q)
	sort.Slice(rows, func(i, j int) bool { return fmt.Sprint(rows[i].Key) < fmt.Sprint(rows[j].Key) })
	if q.Descending {
		for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
	}
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	return rows, nil
}

func (d *database) AllIDs(ctx context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]string, 0, len(d.docs))
	for id, row := range d.docs {
		if deleted, _ := row.Data["_deleted"].(bool); deleted {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// viewFuncs mimics the two MapReduce views installed by store.Open.
var viewFuncs = map[string]func(docdb.Row) []docdb.ViewRow{
	"by_entity": func(row docdb.Row) []docdb.ViewRow {
		id, _ := row.Data["@id"].(string)
		if id == "" {
			return nil
		}
		return []docdb.ViewRow{{ID: row.ID, Key: id, Value: row.Rev}}
	},
	"by_property_value": func(row docdb.Row) []docdb.ViewRow {
		var out []docdb.ViewRow
		for k, v := range row.Data {
			if k == "" || k[0] == '_' || k[0] == '@' {
				continue
			}
			values, ok := v.([]interface{})
			if !ok {
				values = []interface{}{v}
			}
			for _, val := range values {
				out = append(out, docdb.ViewRow{ID: row.ID, Key: []interface{}{k, val}, Value: row.Data["@id"]})
			}
		}
		return out
	},
}

func filterByKey(rows []docdb.ViewRow, q docdb.ViewQuery) []docdb.ViewRow {
	if q.Key == nil {
		return rows
	}
	var out []docdb.ViewRow
	for _, r := range rows {
		if fmt.Sprint(r.Key) == fmt.Sprint(q.Key) {
			out = append(out, r)
		}
	}
	return out
}

func cloneRow(r docdb.Row) docdb.Row {
	return docdb.Row{ID: r.ID, Rev: r.Rev, Data: cloneData(r.Data)}
}

func cloneData(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type replicator struct {
	mu    sync.Mutex
	tasks map[string]docdb.ReplicatorTask
}

func newReplicator() *replicator {
	return &replicator{tasks: make(map[string]docdb.ReplicatorTask)}
}

func (r *replicator) ListTasks(ctx context.Context) ([]docdb.ReplicatorTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]docdb.ReplicatorTask, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *replicator) PutTask(ctx context.Context, t docdb.ReplicatorTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[t.ID] = t
	return nil
}

func (r *replicator) RemoveTask(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, id)
	return nil
}
