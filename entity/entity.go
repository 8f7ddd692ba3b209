// Package entity implements the in-memory entity aggregate (C3): the
// composition of every document describing one entity id, drawn from the
// local public and private scopes, zero or more locally cached remote
// documents, and zero or more documents fetched live from other peers
// during a federated query.
package entity

import (
	"fmt"

	"github.com/ers-go/ers/document"
)

// Source tags where a constituent document of an Entity came from.
type Source string

const (
	SourcePublic  Source = "public"
	SourcePrivate Source = "private"
	SourceCache   Source = "cache"
	SourceRemote  Source = "remote"
)

// taggedDoc pairs a document with the scope it was loaded from.
type taggedDoc struct {
	source Source
	peer   string // non-empty for SourceRemote/SourceCache: which peer it came from
	doc    document.Document
}

// Entity is the composed view of one identifier across scopes. At most
// one public and one private document is held; any number of cache and
// remote documents may be attached.
type Entity struct {
	id   string
	docs []taggedDoc
}

// New creates an empty aggregate for id.
func New(id string) *Entity {
	return &Entity{id: id}
}

// ID returns the entity identifier this aggregate describes.
func (e *Entity) ID() string { return e.id }

// AddDocument attaches a constituent document under the given source. At
// most one public and one private document may be attached; a second
// call with the same exclusive source replaces the prior one.
func (e *Entity) AddDocument(source Source, peer string, doc document.Document) {
	if source == SourcePublic || source == SourcePrivate {
		for i, td := range e.docs {
			if td.source == source {
				e.docs[i] = taggedDoc{source: source, peer: peer, doc: doc}
				return
			}
		}
	}
	e.docs = append(e.docs, taggedDoc{source: source, peer: peer, doc: doc})
}

// Document returns the document attached under source, if any (only
// meaningful for Public/Private; Cache/Remote may have several).
func (e *Entity) Document(source Source) (document.Document, bool) {
	for _, td := range e.docs {
		if td.source == source {
			return td.doc, true
		}
	}
	return nil, false
}

// Documents returns every constituent document in canonical iteration
// order: public, then private, then cache, then remote, so a public
// value always "wins" a display tie-break over a cached copy of the
// same property.
func (e *Entity) Documents() []document.Document {
	out := make([]document.Document, 0, len(e.docs))
	for _, source := range []Source{SourcePublic, SourcePrivate, SourceCache, SourceRemote} {
		for _, td := range e.docs {
			if td.source == source {
				out = append(out, td.doc)
			}
		}
	}
	return out
}

// RemoteDocuments returns the documents currently attached with
// SourceCache or SourceRemote, tagged with their origin peer -- exactly
// the set Cache() persists, and nothing more (Open Question (a):
// caching never reaches out for documents the aggregate hasn't already
// loaded).
func (e *Entity) RemoteDocuments() (peers []string, docs []document.Document) {
	for _, td := range e.docs {
		if td.source == SourceCache || td.source == SourceRemote {
			peers = append(peers, td.peer)
			docs = append(docs, td.doc)
		}
	}
	return peers, docs
}

// Properties unions every property across every constituent document, in
// canonical source order, de-duplicating identical literal values.
func (e *Entity) Properties() map[string][]interface{} {
	out := make(map[string][]interface{})
	seen := make(map[string]map[string]bool)

	for _, doc := range e.Documents() {
		for prop, values := range doc.Properties() {
			if seen[prop] == nil {
				seen[prop] = make(map[string]bool)
			}
			for _, v := range values {
				key := literalKey(v)
				if seen[prop][key] {
					continue
				}
				seen[prop][key] = true
				out[prop] = append(out[prop], v)
			}
		}
	}
	return out
}

// Get returns the union of values recorded for a single property.
func (e *Entity) Get(property string) []interface{} {
	return e.Properties()[property]
}

// Tuple is one (property, decoded value, scope) triple yielded by Tuples.
type Tuple struct {
	Property string
	Value    interface{}
	Scope    Source
}

// Tuples yields one Tuple per property/value pair found across all four
// slots, in source order: public, private, cache, remote. Unlike
// Properties and Get, scope is preserved and nothing is deduplicated --
// the same literal attached under two different scopes yields two
// distinct tuples, and a property repeated within one document (Document
// values permit duplicates) yields one tuple per occurrence.
func (e *Entity) Tuples() []Tuple {
	var out []Tuple
	for _, source := range []Source{SourcePublic, SourcePrivate, SourceCache, SourceRemote} {
		for _, td := range e.docs {
			if td.source != source {
				continue
			}
			for prop, values := range td.doc.Properties() {
				for _, v := range values {
					out = append(out, Tuple{Property: prop, Value: document.Decode(v), Scope: source})
				}
			}
		}
	}
	return out
}

// Exists reports whether any constituent document is attached at all.
func (e *Entity) Exists() bool {
	return len(e.docs) > 0
}

func literalKey(v interface{}) string {
	if m, ok := v.(map[string]interface{}); ok {
		t, _ := m["@type"].(string)
		val, _ := m["@value"].(string)
		return t + "\x00" + val
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
