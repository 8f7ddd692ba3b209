// Package couchdb is the production docdb.DB backend, built on
// github.com/go-kivik/kivik/v4: a client construction and
// kivik.HTTPStatus(err) == http.StatusNotFound / http.StatusConflict
// error-classification idiom generalized from one fixed database to the
// registry's multi-database, view-query, bulk-apply and
// replicator-task needs.
package couchdb

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ers-go/ers/docdb"
	kivik "github.com/go-kivik/kivik/v4"
	_ "github.com/go-kivik/kivik/v4/couchdb" // registers the "couch" driver
)

// Config holds the connection parameters the registry needs.
type Config struct {
	URL      string
	Username string
	Password string
}

// Client is a kivik-backed docdb.DB.
type Client struct {
	client *kivik.Client
}

// Dial connects to a CouchDB server. It does not verify connectivity;
// call Ping to do that (the daemon's connect-with-retry loop does so).
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	dsn := cfg.URL
	if cfg.Username != "" {
		dsn = withCredentials(cfg.URL, cfg.Username, cfg.Password)
	}
	client, err := kivik.New("couch", dsn)
	if err != nil {
		return nil, fmt.Errorf("couchdb: dial: %w", err)
	}
	return &Client{client: client}, nil
}

// withCredentials embeds a username/password into the DSN's userinfo,
// the form kivik's couch driver expects basic-auth credentials in.
func withCredentials(rawURL, user, pass string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.User = url.UserPassword(user, pass)
	return u.String()
}

func (c *Client) Ping(ctx context.Context) error {
	if !c.client.IsDocDB() {
		return fmt.Errorf("couchdb: %w", docdb.ErrUnavailable)
	}
	if _, err := c.client.AllDBs(ctx); err != nil {
		return fmt.Errorf("couchdb: ping: %w", docdb.ErrUnavailable)
	}
	return nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Database(ctx context.Context, name string) (docdb.Database, error) {
	db := c.client.DB(name)
	if err := db.Err(); err != nil {
		return nil, classify(err)
	}
	exists, err := c.client.DBExists(ctx, name)
	if err != nil {
		return nil, classify(err)
	}
	if !exists {
		return nil, fmt.Errorf("couchdb: database %q: %w", name, docdb.ErrNotFound)
	}
	return &database{db: db}, nil
}

func (c *Client) EnsureDatabase(ctx context.Context, name string) (docdb.Database, error) {
	exists, err := c.client.DBExists(ctx, name)
	if err != nil {
		return nil, classify(err)
	}
	if !exists {
		if err := c.client.CreateDB(ctx, name); err != nil {
			return nil, classify(err)
		}
	}
	db := c.client.DB(name)
	if err := db.Err(); err != nil {
		return nil, classify(err)
	}
	return &database{db: db}, nil
}

// Replicator opens the well-known "_replicator" database used by
// CouchDB's native replicator, bootstrapping it like any other system
// database on first connect.
func (c *Client) Replicator(ctx context.Context) (docdb.Replicator, error) {
	db, err := c.EnsureDatabase(ctx, "_replicator")
	if err != nil {
		return nil, err
	}
	return &replicator{db: db.(*database)}, nil
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	switch kivik.HTTPStatus(err) {
	case http.StatusNotFound:
		return fmt.Errorf("couchdb: %w", docdb.ErrNotFound)
	case http.StatusConflict:
		return fmt.Errorf("couchdb: %w", docdb.ErrConflict)
	case 0:
		return fmt.Errorf("couchdb: %w: %v", docdb.ErrUnavailable, err)
	default:
		return err
	}
}
