package daemon

import (
	"net/http"

	"github.com/ers-go/ers/metrics"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// newControlServer builds the daemon's HTTP control surface: operator
// endpoints under /control, Prometheus scraping at /metrics, and the
// federation endpoints other nodes' federated.HTTPClient calls.
func newControlServer(addr string, d *Daemon) *http.Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "host": d.cfg.Host})
	})

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))

	control := e.Group("/control")
	control.POST("/refresh", d.handleRefresh)
	control.POST("/shutdown", d.handleShutdown)
	control.GET("/peers", d.handlePeers)

	fed := e.Group("/federation")
	fed.GET("/entities/:id", d.handleFederationGetEntity)
	fed.GET("/search", d.handleFederationSearch)

	return &http.Server{Addr: addr, Handler: e}
}

// handleRefresh triggers an out-of-band reconciliation pass, for
// operators who don't want to wait for the next cron tick or Discovery
// event after a manual peer-list edit.
func (d *Daemon) handleRefresh(c echo.Context) error {
	d.TriggerReconcile(c.Request().Context())
	return c.NoContent(http.StatusAccepted)
}

// handleShutdown asks the daemon to begin graceful shutdown, the HTTP
// equivalent of sending SIGTERM.
func (d *Daemon) handleShutdown(c echo.Context) error {
	d.RequestShutdown()
	return c.NoContent(http.StatusAccepted)
}

func (d *Daemon) handlePeers(c echo.Context) error {
	return c.JSON(http.StatusOK, d.peers.Snapshot())
}

// handleFederationGetEntity answers a peer's federated.HTTPClient
// GetEntity call with this node's own local documents for id -- it never
// fans back out to other peers, which would turn a bounded fan-out into
// an unbounded one.
func (d *Daemon) handleFederationGetEntity(c echo.Context) error {
	id := c.Param("id")
	docs, err := d.reg.LocalDocuments(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if len(docs) == 0 {
		return c.NoContent(http.StatusNotFound)
	}
	return c.JSON(http.StatusOK, docs)
}

// handleFederationSearch answers a peer's federated.HTTPClient Search
// call: every locally known entity id carrying property=value, expanded
// back out to the documents those ids resolve to so the caller can
// extract an id via document.Document.ID.
func (d *Daemon) handleFederationSearch(c echo.Context) error {
	property := c.QueryParam("property")
	value := c.QueryParam("value")
	if property == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "property is required"})
	}

	ctx := c.Request().Context()
	ids, err := d.reg.Search(ctx, property, value, true)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	var docs []interface{}
	for _, id := range ids {
		found, err := d.reg.LocalDocuments(ctx, id)
		if err != nil {
			continue
		}
		for _, fd := range found {
			docs = append(docs, fd)
		}
	}
	return c.JSON(http.StatusOK, docs)
}
