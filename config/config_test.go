package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ers.ini")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeTempConfig(t, `
[node]
host = node-a.local
prefix = ers
port = 5984
kind = contributor
fixed_peers = node-b.local:5984:contributor,node-c.local:5984:bridge

[couchdb]
url = http://127.0.0.1:5984

[log]
level = debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "node-a.local", cfg.Node.Host)
	assert.Equal(t, "debug", cfg.Log.Level)
	require.Len(t, cfg.Node.FixedPeers, 2)
	assert.Equal(t, "bridge", cfg.Node.FixedPeers[1].Kind)
}

func TestLoadReadsPIDFilePath(t *testing.T) {
	path := writeTempConfig(t, `
[node]
port = 5984
kind = contributor
pid_file = /var/run/ersd.pid

[couchdb]
url = http://127.0.0.1:5984
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/run/ersd.pid", cfg.Node.PIDFile)
}

func TestLoadMapsPIDFileNoneToDisabled(t *testing.T) {
	path := writeTempConfig(t, `
[node]
port = 5984
kind = contributor
pid_file = none

[couchdb]
url = http://127.0.0.1:5984
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.Node.PIDFile)
}

func TestLoadRejectsMissingCouchDBURL(t *testing.T) {
	path := writeTempConfig(t, `
[node]
port = 5984
kind = contributor
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsBadKind(t *testing.T) {
	path := writeTempConfig(t, `
[node]
port = 5984
kind = bogus

[couchdb]
url = http://127.0.0.1:5984
`)
	_, err := Load(path)
	assert.Error(t, err)
}
