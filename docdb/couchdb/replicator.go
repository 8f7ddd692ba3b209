package couchdb

import (
	"context"

	"github.com/ers-go/ers/docdb"
)

// replicator stores one document per task in the "_replicator" database,
// the same collection CouchDB's own native replicator watches -- a
// ReplicatorTask document here both drives this registry's bookkeeping
// and, written in CouchDB's native replication-document shape, could be
// picked up by CouchDB itself. ERS only ever reads back what it wrote.
type replicator struct {
	db *database
}

func (r *replicator) ListTasks(ctx context.Context) ([]docdb.ReplicatorTask, error) {
	ids, err := r.db.AllIDs(ctx)
	if err != nil {
		return nil, err
	}
	tasks := make([]docdb.ReplicatorTask, 0, len(ids))
	for _, id := range ids {
		row, err := r.db.Get(ctx, id)
		if err != nil {
			continue
		}
		tasks = append(tasks, taskFromDoc(row))
	}
	return tasks, nil
}

func (r *replicator) PutTask(ctx context.Context, t docdb.ReplicatorTask) error {
	existing, err := r.db.Get(ctx, t.ID)
	rev := ""
	if err == nil {
		rev = existing.Rev
	}
	_, err = r.db.Put(ctx, t.ID, rev, taskToDoc(t))
	return err
}

func (r *replicator) RemoveTask(ctx context.Context, id string) error {
	existing, err := r.db.Get(ctx, id)
	if err != nil {
		return err
	}
	return r.db.Delete(ctx, id, existing.Rev)
}

func taskToDoc(t docdb.ReplicatorTask) map[string]interface{} {
	doc := map[string]interface{}{
		"source":     t.Source,
		"target":     t.Target,
		"continuous": t.Continuous,
	}
	if t.Filter != "" {
		doc["filter"] = t.Filter
	}
	if len(t.DocIDs) > 0 {
		ids := make([]interface{}, len(t.DocIDs))
		for i, id := range t.DocIDs {
			ids[i] = id
		}
		doc["doc_ids"] = ids
	}
	return doc
}

func taskFromDoc(row docdb.Row) docdb.ReplicatorTask {
	t := docdb.ReplicatorTask{ID: row.ID}
	t.Source, _ = row.Data["source"].(string)
	t.Target, _ = row.Data["target"].(string)
	t.Continuous, _ = row.Data["continuous"].(bool)
	t.Filter, _ = row.Data["filter"].(string)
	if raw, ok := row.Data["doc_ids"].([]interface{}); ok {
		ids := make([]string, 0, len(raw))
		for _, v := range raw {
			if s, ok := v.(string); ok {
				ids = append(ids, s)
			}
		}
		t.DocIDs = ids
	}
	return t
}
