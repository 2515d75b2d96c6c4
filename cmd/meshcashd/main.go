// meshcashd runs a DHT server node: it stores and serves spend records
// for the network and acts as a bootstrap point for wallets and auditors.
//
// Usage:
//
//	meshcashd [-port 4689] [-seeds <multiaddr,...>]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/meshcash/meshcash/config"
	"github.com/meshcash/meshcash/internal/log"
	"github.com/meshcash/meshcash/internal/meshnet"
	"github.com/meshcash/meshcash/pkg/spend"
)

func main() {
	var (
		listen   = flag.String("listen", "0.0.0.0", "listen address")
		port     = flag.Int("port", 4689, "listen port")
		seeds    = flag.String("seeds", "", "comma-separated seed multiaddrs")
		dataDir  = flag.String("datadir", defaultDataDir(), "data directory for the node identity")
		logLevel = flag.String("log-level", "info", "log level (debug, info, warn, error)")
		jsonLogs = flag.Bool("log-json", false, "JSON log output")
		logFile  = flag.String("log-file", "", "also write JSON logs to this file")
	)
	flag.Parse()

	if err := log.Init(*logLevel, *jsonLogs, *logFile); err != nil {
		fatal(err)
	}

	cfg := meshnet.Config{
		ListenAddr: *listen,
		Port:       *port,
		DHTServer:  true,
		NetworkID:  config.NetworkID,
		DataDir:    *dataDir,
	}
	if *seeds != "" {
		cfg.Seeds = strings.Split(*seeds, ",")
	}

	node := meshnet.New(cfg)
	if err := node.Start(); err != nil {
		fatal(err)
	}
	for _, a := range node.Addrs() {
		fmt.Println(a)
	}

	// Seed the genesis record so a fresh network has its root reachable.
	// Best-effort: with no peers yet the put fails and a later node or
	// wallet write will carry it instead.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	store := meshnet.NewStore(node)
	if err := store.Put(ctx, spend.GenesisAddress(), spend.Genesis()); err != nil {
		log.Net.Warn().Err(err).Msg("genesis record publish failed")
	}
	cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	node.Stop()
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".meshcash"
	}
	return home + "/.meshcash/node"
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
