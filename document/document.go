// Package document implements the ERS document model: the flat, JSON-LD
// flavored key/value shape shared by every document stored in any of the
// three scoped databases (public, private, cache) plus remote documents
// pulled in over federated queries.
package document

import (
	"encoding/hex"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Reserved key prefixes. Keys starting with "_" are owned by the
// underlying DocDB (id, revision, tombstone marker). Keys starting with
// "@" are ERS metadata. Everything else is an application property.
const (
	KeyID      = "@id"
	KeyOwner   = "@owner"
	KeyContext = "@context"

	dbKeyID      = "_id"
	dbKeyRev     = "_rev"
	dbKeyDeleted = "_deleted"
)

// Document is the in-memory representation of a single stored document.
type Document map[string]interface{}

// New returns an empty document addressed at id, owned by owner.
func New(id, owner string) Document {
	return Document{
		KeyID:    id,
		KeyOwner: owner,
	}
}

// ID returns the entity identifier this document describes.
func (d Document) ID() string {
	v, _ := d[KeyID].(string)
	return v
}

// Owner returns the scope owner recorded in the document, if any.
func (d Document) Owner() string {
	v, _ := d[KeyOwner].(string)
	return v
}

// DocID returns the underlying store identifier ("_id"), which may differ
// from the entity identifier once a document has been persisted.
func (d Document) DocID() string {
	v, _ := d[dbKeyID].(string)
	return v
}

// Rev returns the current revision token, empty if the document has never
// been persisted.
func (d Document) Rev() string {
	v, _ := d[dbKeyRev].(string)
	return v
}

// SetRev stamps the document with a revision token, as returned by a
// successful store write.
func (d Document) SetRev(rev string) {
	d[dbKeyRev] = rev
}

// IsTombstone reports whether this document marks its entity as deleted.
func (d Document) IsTombstone() bool {
	v, _ := d[dbKeyDeleted].(bool)
	return v
}

// IsReserved reports whether key is DocDB- or ERS-owned rather than an
// application property.
func IsReserved(key string) bool {
	return strings.HasPrefix(key, "_") || strings.HasPrefix(key, "@")
}

// Properties returns the application-level property/value pairs, skipping
// reserved keys. Scalar values are promoted to single-element sequences so
// callers always iterate a slice.
func (d Document) Properties() map[string][]interface{} {
	out := make(map[string][]interface{}, len(d))
	for k, v := range d {
		if IsReserved(k) {
			continue
		}
		out[k] = asSequence(v)
	}
	return out
}

// Get returns all values recorded for a property, or nil if absent.
func (d Document) Get(property string) []interface{} {
	v, ok := d[property]
	if !ok {
		return nil
	}
	return asSequence(v)
}

// Add records value under the named property: an absent property stores
// it as a scalar, and a second value promotes the scalar to a sequence.
// Properties are ordered sequences of literals; duplicates are permitted
// and always appended.
func (d Document) Add(property string, value interface{}) {
	if IsReserved(property) {
		return
	}
	if _, ok := d[property]; !ok {
		d[property] = Encode(value)
		return
	}
	existing := asSequence(d[property])
	d[property] = append(existing, Encode(value))
}

// Delete removes a property entirely from the document.
func (d Document) Delete(property string) {
	delete(d, property)
}

// Tombstone turns d into a minimal deletion marker, retaining @id and
// @owner alongside the bare {_id,_rev,_deleted} so a replica can route
// the tombstone to the correct scope without a second fetch.
func (d Document) Tombstone() Document {
	t := Document{
		dbKeyID:      d[dbKeyID],
		dbKeyDeleted: true,
		KeyID:        d[KeyID],
		KeyOwner:     d[KeyOwner],
	}
	if rev := d.Rev(); rev != "" {
		t[dbKeyRev] = rev
	}
	return t
}

// Clone deep-copies a document's top-level property slices so callers can
// mutate the copy without affecting the original (used when composing
// entity aggregates from cached/remote documents).
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		if seq, ok := v.([]interface{}); ok {
			cp := make([]interface{}, len(seq))
			copy(cp, seq)
			out[k] = cp
			continue
		}
		out[k] = v
	}
	return out
}

func asSequence(v interface{}) []interface{} {
	switch t := v.(type) {
	case nil:
		return nil
	case []interface{}:
		return t
	default:
		return []interface{}{t}
	}
}

// Encode converts a Go value into its document-literal representation.
// []byte values are hex-encoded and tagged xsd:hexBinary so they survive a
// JSON round trip without corruption; every other value passes through
// unchanged.
func Encode(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return map[string]interface{}{
			"@type":  "xsd:hexBinary",
			"@value": hex.EncodeToString(b),
		}
	}
	return v
}

// Decode reverses Encode, recovering a []byte from a tagged literal. Any
// other shape is returned unchanged.
func Decode(v interface{}) interface{} {
	m, ok := v.(map[string]interface{})
	if !ok {
		return v
	}
	if m["@type"] != "xsd:hexBinary" {
		return v
	}
	s, _ := m["@value"].(string)
	b, err := hex.DecodeString(s)
	if err != nil {
		return v
	}
	return b
}

// Marshal serializes a document to JSON using the jsoniter codec so the
// wire format matches what CouchDB's view engine expects.
func Marshal(d Document) ([]byte, error) {
	return json.Marshal(d)
}

// Unmarshal parses JSON into a Document.
func Unmarshal(data []byte) (Document, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	return d, nil
}
