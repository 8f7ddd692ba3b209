// Package cli provides the ers daemon's command-line interface:
// configuration loading, service wiring and graceful startup, following
// the same cobra+viper command structure the rest of this corpus uses
// for its service entry points.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/ers-go/ers/config"
	"github.com/ers-go/ers/daemon"
	"github.com/ers-go/ers/discovery/udpmc"
	"github.com/ers-go/ers/docdb"
	"github.com/ers-go/ers/docdb/couchdb"
	"github.com/ers-go/ers/federated"
	"github.com/ers-go/ers/logging"
	"github.com/ers-go/ers/peer"
	"github.com/ers-go/ers/registry"
	"github.com/spf13/cobra"
)

var cfgFile string

// RootCmd is the ers daemon's entry point.
var RootCmd = &cobra.Command{
	Use:   "ersd",
	Short: "a peer-to-peer entity registry daemon",
	Long: `ersd runs one node of a peer-to-peer entity registry: documents are
stored across public, private and cache scopes backed by CouchDB, replicated
to other nodes found on the LAN (fixed by configuration or discovered over
multicast), and exposed through a federated query API that fans a lookup out
to every known peer.`,
}

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "/etc/ers/ers.ini", "path to the INI configuration file")
	RootCmd.AddCommand(serveCmd, resetCmd, versionCmd)
}

// Execute runs the root command, the sole call main.go makes.
func Execute() error {
	return RootCmd.Execute()
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "start the ers daemon",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	host := registry.HostURN(cfg.Node.Host)
	logger := logging.New(logging.Config{Level: cfg.Log.Level, JSON: cfg.Log.JSON})
	log := logging.Entry(logger, "ersd").WithField("host", host)

	ctx := context.Background()
	db, err := daemon.Connect(ctx, func(ctx context.Context) (docdb.DB, error) {
		return couchdb.Dial(ctx, couchdb.Config{URL: cfg.CouchDB.URL, Username: cfg.CouchDB.Username, Password: cfg.CouchDB.Password})
	}, cfg.CouchDB.Tries)
	if err != nil {
		log.WithError(err).Error("could not reach couchdb")
		return err
	}

	var fixed []peer.Peer
	for _, fp := range cfg.Node.FixedPeers {
		fixed = append(fixed, peer.Peer{
			URN:    fmt.Sprintf("urn:ers:host:%s", fp.Host),
			Host:   fp.Host,
			Port:   fp.Port,
			Prefix: cfg.Node.Prefix,
			Kind:   peer.Kind(fp.Kind),
			Fixed:  true,
		})
	}

	query := federated.New(federated.Config{
		Client: federated.NewHTTPClient(nil),
		Log:    log.WithField("subsystem", "federated"),
	})

	d, err := daemon.New(db, daemon.Config{
		Host:           host,
		Prefix:         cfg.Node.Prefix,
		Port:           cfg.Node.Port,
		Kind:           peer.Kind(cfg.Node.Kind),
		PIDFile:        cfg.Node.PIDFile,
		FixedPeers:     fixed,
		DocDBDialTries: cfg.CouchDB.Tries,
		Discovery:      udpmc.New(""),
		Query:          query,
		Log:            log,
	})
	if err != nil {
		return err
	}

	return d.Run(ctx, fmt.Sprintf(":%d", cfg.Node.Port+1))
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "remove this node's pid file, for recovering from an unclean shutdown",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if cfg.Node.PIDFile == "" {
			return nil
		}
		if err := os.Remove(cfg.Node.PIDFile); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print the ersd version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("ersd (development build)")
	},
}
