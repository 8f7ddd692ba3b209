package federated

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ers-go/ers/document"
	"github.com/ers-go/ers/peer"
)

// HTTPClient calls another node's daemon control surface
// (daemon/control.go) over plain HTTP, the LAN-local transport every
// example in this corpus's HTTP-serving packages uses for inter-service
// calls.
type HTTPClient struct {
	http *http.Client
}

// NewHTTPClient builds an HTTP-based PeerClient.
func NewHTTPClient(client *http.Client) *HTTPClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPClient{http: client}
}

// controlURL is the address of a peer's daemon control surface, which
// cli/root.go serves one port above the peer's DocDB port.
func controlURL(p peer.Peer) string {
	return fmt.Sprintf("http://%s:%d", p.Host, p.Port+1)
}

func (c *HTTPClient) GetEntity(ctx context.Context, p peer.Peer, id string) ([]document.Document, error) {
	u := fmt.Sprintf("%s/federation/entities/%s", controlURL(p), url.PathEscape(id))
	return c.fetchDocs(ctx, u)
}

func (c *HTTPClient) Search(ctx context.Context, p peer.Peer, property string, value interface{}) ([]document.Document, error) {
	q := url.Values{}
	q.Set("property", property)
	q.Set("value", fmt.Sprint(value))
	u := fmt.Sprintf("%s/federation/search?%s", controlURL(p), q.Encode())
	return c.fetchDocs(ctx, u)
}

func (c *HTTPClient) fetchDocs(ctx context.Context, url string) ([]document.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPeerUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrPeerUnreachable, resp.StatusCode)
	}

	var docs []document.Document
	if err := json.NewDecoder(resp.Body).Decode(&docs); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrPeerUnreachable, err)
	}
	return docs, nil
}
