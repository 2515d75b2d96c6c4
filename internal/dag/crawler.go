package dag

import (
	"context"
	"sync"
	"time"

	"github.com/meshcash/meshcash/internal/spendstore"
	"github.com/meshcash/meshcash/pkg/spend"
	"github.com/meshcash/meshcash/pkg/types"
	"github.com/rs/zerolog"
)

// Crawler defaults. The DAG fans out widely near genesis, so fetches run
// concurrently but bounded.
const (
	DefaultConcurrency  = 16
	DefaultMaxRetries   = 3
	DefaultRetryBackoff = 250 * time.Millisecond
)

// Config tunes a Crawler. Zero values select the defaults.
type Config struct {
	// Concurrency bounds the number of in-flight fetches.
	Concurrency int

	// MaxRetries is the per-address retry budget for failed fetches.
	MaxRetries int

	// RetryBackoff is the initial backoff delay; it doubles per retry.
	RetryBackoff time.Duration
}

// Crawler fetches a spend's full ancestry through a Store and audits it.
type Crawler struct {
	store spendstore.Store
	cfg   Config
	log   zerolog.Logger
}

// NewCrawler creates a crawler over the given store.
func NewCrawler(store spendstore.Store, cfg Config, logger zerolog.Logger) *Crawler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}
	return &Crawler{store: store, cfg: cfg, log: logger}
}

// Crawl fetches the record(s) at target and every ancestor back to
// genesis, then classifies each address. Fetch failures mark single
// branches Incomplete rather than failing the audit; only a context
// cancellation or a corrupt (cyclic) ledger aborts it.
//
// The crawl is idempotent: against the same storage state it yields the
// same classification.
func (c *Crawler) Crawl(ctx context.Context, target types.SpendAddress) (*Dag, error) {
	d := newDag(target)
	visited := make(map[types.SpendAddress]bool)
	frontier := []types.SpendAddress{target}

	start := time.Now()
	generation := 0
	sem := make(chan struct{}, c.cfg.Concurrency)

	for len(frontier) > 0 {
		var (
			mu   sync.Mutex
			next []types.SpendAddress
			wg   sync.WaitGroup
		)

		for _, addr := range frontier {
			if visited[addr] {
				continue
			}
			visited[addr] = true

			// The embedded genesis record is the trusted root; it is
			// never fetched, so every ancestor path can terminate even
			// on a store that does not hold it.
			if addr == spend.GenesisAddress() {
				d.insert(addr, spend.Genesis())
				continue
			}

			wg.Add(1)
			go func(addr types.SpendAddress) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()

				records, err := c.fetch(ctx, addr)
				if err != nil {
					c.log.Debug().
						Stringer("address", addr).
						Err(err).
						Msg("branch incomplete after retries")
					d.markMissing(addr, err)
					return
				}

				mu.Lock()
				defer mu.Unlock()
				for i := range records {
					d.insert(addr, &records[i])
					for _, anc := range records[i].Spend.Ancestors {
						next = append(next, anc.SpendAddress())
					}
				}
			}(addr)
		}

		wg.Wait()
		if err := ctx.Err(); err != nil {
			return d, err
		}
		frontier = next
		generation++
	}

	if err := d.classify(); err != nil {
		return d, err
	}

	c.log.Info().
		Stringer("target", target).
		Int("addresses", len(visited)).
		Int("generations", generation).
		Dur("elapsed", time.Since(start)).
		Msg("audit finished")
	return d, nil
}

// fetch retrieves the records at one address with bounded
// retry-with-backoff. Absence is retried too: on a distributed store a
// record may simply not have propagated yet.
func (c *Crawler) fetch(ctx context.Context, addr types.SpendAddress) ([]spend.SignedSpend, error) {
	backoff := c.cfg.RetryBackoff
	var lastErr error

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		records, err := c.store.Get(ctx, addr)
		if err == nil {
			return records, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
