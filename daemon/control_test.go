package daemon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ers-go/ers/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControlHealthAndPeers(t *testing.T) {
	d := newTestDaemon(t)
	d.peers.Join(peer.Peer{URN: "urn:ers:host:b", Host: "node-b", Port: 5984, Kind: peer.KindContributor})

	srv := newControlServer(":0", d)
	e := srv.Handler

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "node-a")

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/control/peers", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "node-b")
}

func TestControlRefreshAndShutdownAccepted(t *testing.T) {
	d := newTestDaemon(t)
	srv := newControlServer(":0", d)
	e := srv.Handler

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/control/refresh", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/control/shutdown", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	select {
	case <-d.shutdown:
	default:
		t.Fatal("expected a pending shutdown request")
	}
}

func TestFederationGetEntityNotFound(t *testing.T) {
	d := newTestDaemon(t)
	srv := newControlServer(":0", d)
	e := srv.Handler

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/federation/entities/urn:ers:entity:missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFederationGetEntityFound(t *testing.T) {
	d := newTestDaemon(t)
	require.NoError(t, d.reg.Set(context.Background(), "urn:ers:entity:widget", "name", "widget", false))

	srv := newControlServer(":0", d)
	e := srv.Handler

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/federation/entities/urn:ers:entity:widget", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "widget")
}

func TestFederationSearchRequiresProperty(t *testing.T) {
	d := newTestDaemon(t)
	srv := newControlServer(":0", d)
	e := srv.Handler

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/federation/search", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
