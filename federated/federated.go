// Package federated implements the federated query path (C7): fanning a
// get-entity or search-by-property call out to every known peer in
// parallel, bounded by a worker pool and per-call timeout, merging
// whatever comes back with local results. No partial streaming: callers
// block until every peer has answered or timed out.
package federated

import (
	"context"
	"errors"
	"time"

	"github.com/ers-go/ers/document"
	"github.com/ers-go/ers/metrics"
	"github.com/ers-go/ers/peer"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Sentinel errors surfaced to callers via errors.Is.
var (
	ErrPeerUnreachable = errors.New("federated: peer unreachable")
	ErrPeerTimeout     = errors.New("federated: peer timed out")
)

// PeerClient is the per-peer RPC surface a concrete transport (HTTP, in
// this repo) must implement.
type PeerClient interface {
	GetEntity(ctx context.Context, p peer.Peer, id string) ([]document.Document, error)
	Search(ctx context.Context, p peer.Peer, property string, value interface{}) ([]document.Document, error)
}

// Result pairs a peer with whatever it returned, or the error it failed
// with.
type Result struct {
	Peer peer.Peer
	Docs []document.Document
	Err  error
}

// Query fans a single logical call out across peers.
type Query struct {
	client      PeerClient
	timeout     time.Duration
	concurrency int
	limiter     *rate.Limiter
	health      *healthTracker
	log         *logrus.Entry
}

// Config configures a Query dispatcher.
type Config struct {
	Client         PeerClient
	Timeout        time.Duration // per-peer call deadline, defaults to 300ms
	Concurrency    int           // worker pool bound, defaults to 8
	CallsPerSecond float64       // aggregate outbound rate limit, defaults to 50
	Log            *logrus.Entry
}

// New builds a Query dispatcher.
func New(cfg Config) *Query {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 300 * time.Millisecond
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 8
	}
	rps := cfg.CallsPerSecond
	if rps <= 0 {
		rps = 50
	}
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Query{
		client:      cfg.Client,
		timeout:     timeout,
		concurrency: concurrency,
		limiter:     rate.NewLimiter(rate.Limit(rps), concurrency),
		health:      newHealthTracker(),
		log:         log,
	}
}

// GetEntity fetches one entity's documents from every given peer,
// skipping peers the health tracker judges likely to time out this round
// (a probabilistic skip proportional to how often that peer has recently
// timed out -- this never permanently excludes a peer, it only thins out
// calls to one that's been flaky).
func (q *Query) GetEntity(ctx context.Context, peers []peer.Peer, id string) []Result {
	return q.fanOut(ctx, peers, func(ctx context.Context, p peer.Peer) ([]document.Document, error) {
		return q.client.GetEntity(ctx, p, id)
	})
}

// Search fans a property/value search out to every peer.
func (q *Query) Search(ctx context.Context, peers []peer.Peer, property string, value interface{}) []Result {
	return q.fanOut(ctx, peers, func(ctx context.Context, p peer.Peer) ([]document.Document, error) {
		return q.client.Search(ctx, p, property, value)
	})
}

func (q *Query) fanOut(ctx context.Context, peers []peer.Peer, call func(context.Context, peer.Peer) ([]document.Document, error)) []Result {
	results := make([]Result, len(peers))
	g, gctx := errgroup.WithContext(context.Background())
	g.SetLimit(q.concurrency)

	for i, p := range peers {
		i, p := i, p
		if q.health.shouldSkip(p.URN) {
			results[i] = Result{Peer: p, Err: ErrPeerUnreachable}
			metrics.FederatedCalls.WithLabelValues(p.URN, "skipped").Inc()
			continue
		}
		g.Go(func() error {
			if err := q.limiter.Wait(gctx); err != nil {
				results[i] = Result{Peer: p, Err: err}
				return nil
			}
			callCtx, cancel := context.WithTimeout(gctx, q.timeout)
			defer cancel()

			docs, err := call(callCtx, p)
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					err = ErrPeerTimeout
					q.health.recordTimeout(p.URN)
					metrics.FederatedTimeouts.WithLabelValues(p.URN).Inc()
					metrics.FederatedCalls.WithLabelValues(p.URN, "timeout").Inc()
				} else {
					// Other error classes (connection refused, DNS
					// failure, a 5xx) are logged but never drive the
					// timeout counter -- only an actual timeout does.
					q.log.WithError(err).WithField("peer", p.URN).Warn("federated: peer call failed")
					metrics.FederatedCalls.WithLabelValues(p.URN, "error").Inc()
				}
				results[i] = Result{Peer: p, Err: err}
				return nil
			}
			q.health.recordSuccess(p.URN)
			metrics.FederatedCalls.WithLabelValues(p.URN, "ok").Inc()
			results[i] = Result{Peer: p, Docs: docs}
			return nil
		})
	}
	// g.Wait only ever returns nil: per-peer failures are captured into
	// results rather than aborting the whole fan-out, so one bad peer
	// never blocks the others' answers.
	_ = g.Wait()

	return results
}
