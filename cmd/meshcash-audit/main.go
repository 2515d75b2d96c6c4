// meshcash-audit crawls the spend DAG from a target address and reports
// the classification of every reachable record.
//
// Usage:
//
//	meshcash-audit [flags]                      Audit from genesis
//	meshcash-audit -target <address hex>        Audit from an address
//	meshcash-audit -seeds <multiaddr,...>       Audit over the DHT
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/meshcash/meshcash/config"
	"github.com/meshcash/meshcash/internal/dag"
	"github.com/meshcash/meshcash/internal/log"
	"github.com/meshcash/meshcash/internal/meshnet"
	"github.com/meshcash/meshcash/internal/spendstore"
	"github.com/meshcash/meshcash/internal/storage"
	"github.com/meshcash/meshcash/pkg/spend"
	"github.com/meshcash/meshcash/pkg/types"
)

func main() {
	var (
		target      = flag.String("target", "", "spend address to audit (hex, default: genesis)")
		dataDir     = flag.String("datadir", defaultDataDir(), "data directory with a local spend store")
		seeds       = flag.String("seeds", "", "comma-separated seed multiaddrs; audits over the DHT instead of the local store")
		port        = flag.Int("port", 0, "listen port for DHT mode (0 = random)")
		concurrency = flag.Int("concurrency", dag.DefaultConcurrency, "max in-flight record fetches")
		timeout     = flag.Duration("timeout", 10*time.Minute, "overall crawl timeout")
		verbose     = flag.Bool("v", false, "print every address and its status")
		logLevel    = flag.String("log-level", "warn", "log level (debug, info, warn, error)")
		jsonLogs    = flag.Bool("log-json", false, "JSON log output")
	)
	flag.Parse()

	if err := log.Init(*logLevel, *jsonLogs, ""); err != nil {
		fatal(err)
	}

	addr := spend.GenesisAddress()
	if *target != "" {
		parsed, err := types.ParseSpendAddress(*target)
		if err != nil {
			fatal(fmt.Errorf("bad target: %w", err))
		}
		addr = parsed
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store, closeStore, err := openStore(*dataDir, *seeds, *port)
	if err != nil {
		fatal(err)
	}
	defer closeStore()

	crawler := dag.NewCrawler(store, dag.Config{Concurrency: *concurrency}, log.Dag)
	start := time.Now()
	g, err := crawler.Crawl(ctx, addr)
	if err != nil {
		fatal(fmt.Errorf("crawl: %w", err))
	}

	report(g, addr, time.Since(start), *verbose)
	if g.Status(addr) != dag.StatusValid {
		os.Exit(1)
	}
}

// openStore picks the record source: the DHT when seeds are given, the
// local badger store otherwise.
func openStore(dataDir, seeds string, port int) (spendstore.Store, func(), error) {
	if seeds != "" {
		node := meshnet.New(meshnet.Config{
			ListenAddr: "0.0.0.0",
			Port:       port,
			Seeds:      strings.Split(seeds, ","),
			NetworkID:  config.NetworkID,
		})
		if err := node.Start(); err != nil {
			return nil, nil, fmt.Errorf("start network node: %w", err)
		}
		return meshnet.NewStore(node), func() { node.Stop() }, nil
	}

	db, err := storage.NewBadger(dataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open spend store: %w", err)
	}
	return spendstore.NewLocal(db), func() { db.Close() }, nil
}

func report(g *dag.Dag, target types.SpendAddress, elapsed time.Duration, verbose bool) {
	summary := g.Summary()
	fmt.Printf("target   %s\n", target)
	fmt.Printf("status   %s\n", g.Status(target))
	fmt.Printf("elapsed  %s\n", elapsed.Round(time.Millisecond))
	for _, st := range []dag.Status{dag.StatusValid, dag.StatusBurnt, dag.StatusIncomplete, dag.StatusInvalid} {
		if n := summary[st]; n > 0 {
			fmt.Printf("%-10s %d\n", st, n)
		}
	}

	if !verbose {
		return
	}
	statuses := g.Statuses()
	addrs := make([]string, 0, len(statuses))
	byHex := make(map[string]dag.Status, len(statuses))
	for a, st := range statuses {
		addrs = append(addrs, a.String())
		byHex[a.String()] = st
	}
	sort.Strings(addrs)
	for _, a := range addrs {
		fmt.Printf("%s  %s\n", a, byHex[a])
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".meshcash"
	}
	return home + "/.meshcash/spends"
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
