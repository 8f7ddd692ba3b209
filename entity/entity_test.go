package entity

import (
	"testing"

	"github.com/ers-go/ers/document"
	"github.com/stretchr/testify/assert"
)

func TestPropertiesUnionAcrossScopesDeduplicates(t *testing.T) {
	e := New("urn:ers:entity:1")

	pub := document.New("urn:ers:entity:1", "node-a")
	pub.Add("http://example.org/label", "Tim")
	e.AddDocument(SourcePublic, "", pub)

	cache := document.New("urn:ers:entity:1", "node-b")
	cache.Add("http://example.org/label", "Tim")
	cache.Add("http://example.org/nick", "TimBL")
	e.AddDocument(SourceCache, "node-b", cache)

	labels := e.Get("http://example.org/label")
	assert.Len(t, labels, 1)

	nicks := e.Get("http://example.org/nick")
	assert.Equal(t, []interface{}{"TimBL"}, nicks)
}

func TestAddDocumentReplacesExclusiveSource(t *testing.T) {
	e := New("urn:ers:entity:1")
	d1 := document.New("urn:ers:entity:1", "node-a")
	d1.Add("p", "v1")
	e.AddDocument(SourcePublic, "", d1)

	d2 := document.New("urn:ers:entity:1", "node-a")
	d2.Add("p", "v2")
	e.AddDocument(SourcePublic, "", d2)

	doc, ok := e.Document(SourcePublic)
	assert.True(t, ok)
	assert.Equal(t, []interface{}{"v2"}, doc.Get("p"))
}

func TestRemoteDocumentsOnlyIncludesCacheAndRemote(t *testing.T) {
	e := New("urn:ers:entity:1")
	e.AddDocument(SourcePublic, "", document.New("urn:ers:entity:1", "node-a"))
	e.AddDocument(SourceRemote, "node-c", document.New("urn:ers:entity:1", "node-c"))

	peers, docs := e.RemoteDocuments()
	assert.Equal(t, []string{"node-c"}, peers)
	assert.Len(t, docs, 1)
}

func TestTuplesPreservesScopeAcrossSlots(t *testing.T) {
	e := New("urn:ers:entity:1")

	pub := document.New("urn:ers:entity:1", "node-a")
	pub.Add("http://example.org/label", "Tim")
	e.AddDocument(SourcePublic, "", pub)

	cache := document.New("urn:ers:entity:1", "node-b")
	cache.Add("http://example.org/label", "Tim")
	e.AddDocument(SourceCache, "node-b", cache)

	tuples := e.Tuples()
	assert.Len(t, tuples, 2)
	assert.Equal(t, Tuple{Property: "http://example.org/label", Value: "Tim", Scope: SourcePublic}, tuples[0])
	assert.Equal(t, Tuple{Property: "http://example.org/label", Value: "Tim", Scope: SourceCache}, tuples[1])
}

func TestTuplesEmptyForUnknownEntity(t *testing.T) {
	e := New("urn:ers:entity:1")
	assert.Empty(t, e.Tuples())
}

func TestExists(t *testing.T) {
	e := New("urn:ers:entity:1")
	assert.False(t, e.Exists())
	e.AddDocument(SourcePublic, "", document.New("urn:ers:entity:1", "node-a"))
	assert.True(t, e.Exists())
}
