package couchdb

import (
	"context"
	"fmt"

	"github.com/ers-go/ers/docdb"
	kivik "github.com/go-kivik/kivik/v4"
)

type database struct {
	db *kivik.DB
}

// Get fetches a document, classifying a
// kivik.HTTPStatus(row.Err()) == http.StatusNotFound response via the
// shared classify helper.
func (d *database) Get(ctx context.Context, id string) (docdb.Row, error) {
	row := d.db.Get(ctx, id)
	var data map[string]interface{}
	if err := row.ScanDoc(&data); err != nil {
		return docdb.Row{}, classify(err)
	}
	rev, _ := data["_rev"].(string)
	return docdb.Row{ID: id, Rev: rev, Data: data}, nil
}

func (d *database) Put(ctx context.Context, id, rev string, data map[string]interface{}) (string, error) {
	doc := make(map[string]interface{}, len(data)+1)
	for k, v := range data {
		doc[k] = v
	}
	doc["_id"] = id
	if rev != "" {
		doc["_rev"] = rev
	} else {
		delete(doc, "_rev")
	}
	newRev, err := d.db.Put(ctx, id, doc)
	if err != nil {
		return "", classify(err)
	}
	return newRev, nil
}

func (d *database) Delete(ctx context.Context, id, rev string) error {
	_, err := d.db.Delete(ctx, id, rev)
	if err != nil {
		return classify(err)
	}
	return nil
}

// AllIDs uses AllDocs without include_docs since only ids are needed here.
func (d *database) AllIDs(ctx context.Context) ([]string, error) {
	rows := d.db.AllDocs(ctx)
	defer rows.Close()

	var ids []string
	for rows.Next() {
		id := rows.ID()
		if len(id) >= 8 && id[:8] == "_design/" {
			continue
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return ids, nil
}

func (d *database) BulkPut(ctx context.Context, rowsIn []docdb.Row) ([]docdb.BulkResult, error) {
	docs := make([]interface{}, 0, len(rowsIn))
	for _, r := range rowsIn {
		doc := make(map[string]interface{}, len(r.Data)+2)
		for k, v := range r.Data {
			doc[k] = v
		}
		doc["_id"] = r.ID
		if r.Rev != "" {
			doc["_rev"] = r.Rev
		}
		docs = append(docs, doc)
	}

	results, err := d.db.BulkDocs(ctx, docs)
	if err != nil {
		return nil, classify(err)
	}
	defer results.Close()

	out := make([]docdb.BulkResult, 0, len(rowsIn))
	for results.Next() {
		res := docdb.BulkResult{ID: results.ID(), Rev: results.Rev()}
		if err := results.UpdateErr(); err != nil {
			res.OK = false
			res.Error = classify(err)
		} else {
			res.OK = true
		}
		out = append(out, res)
	}
	return out, nil
}

// EnsureDesignDoc installs or updates a design document's views: fetch
// the current revision if any, then Put the merged document.
func (d *database) EnsureDesignDoc(ctx context.Context, name string, views map[string]docdb.View) error {
	id := "_design/" + name
	viewsMap := make(map[string]interface{}, len(views))
	for vname, v := range views {
		spec := map[string]interface{}{"map": v.Map}
		if v.Reduce != "" {
			spec["reduce"] = v.Reduce
		}
		viewsMap[vname] = spec
	}

	doc := map[string]interface{}{
		"_id":   id,
		"views": viewsMap,
	}

	row := d.db.Get(ctx, id)
	var existing map[string]interface{}
	if err := row.ScanDoc(&existing); err == nil {
		if rev, ok := existing["_rev"].(string); ok {
			doc["_rev"] = rev
		}
	}

	if _, err := d.db.Put(ctx, id, doc); err != nil {
		return classify(err)
	}
	return nil
}

// Query evaluates a view, translating docdb.ViewQuery into kivik query
// options.
func (d *database) Query(ctx context.Context, design, view string, q docdb.ViewQuery) ([]docdb.ViewRow, error) {
	opts := kivik.Params(map[string]interface{}{})
	if q.Key != nil {
		opts = append(opts, kivik.Param("key", q.Key))
	}
	if q.StartKey != nil {
		opts = append(opts, kivik.Param("start_key", q.StartKey))
	}
	if q.EndKey != nil {
		opts = append(opts, kivik.Param("end_key", q.EndKey))
	}
	if q.IncludeDocs {
		opts = append(opts, kivik.Param("include_docs", true))
	}
	if q.Limit > 0 {
		opts = append(opts, kivik.Param("limit", q.Limit))
	}
	if q.Descending {
		opts = append(opts, kivik.Param("descending", true))
	}

	path := fmt.Sprintf("_design/%s/_view/%s", design, view)
	rows := d.db.Query(ctx, path, opts...)
	defer rows.Close()

	var out []docdb.ViewRow
	for rows.Next() {
		var key, value interface{}
		if err := rows.ScanKey(&key); err != nil {
			return nil, classify(err)
		}
		if err := rows.ScanValue(&value); err != nil {
			return nil, classify(err)
		}
		out = append(out, docdb.ViewRow{ID: rows.ID(), Key: key, Value: value})
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}
