// Package crawl wires the evaluator driver, the visited set, the work
// pool, the output sink, and the status channel into the discovery and
// description pipelines. It is the crawl's top-level orchestrator.
package crawl

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/nixtract/nixtract/internal/bootstrap"
	"github.com/nixtract/nixtract/internal/derivation"
	"github.com/nixtract/nixtract/internal/nixeval"
	"github.com/nixtract/nixtract/internal/sink"
	"github.com/nixtract/nixtract/internal/status"
	"github.com/nixtract/nixtract/internal/visited"
	"github.com/nixtract/nixtract/internal/workpool"
)

// Config configures one crawl run.
type Config struct {
	FlakeRef      string
	System        string
	AttributeRoot string // if non-empty, skip the Finder and seed this path directly
	RuntimeOnly   bool
	Offline       bool
	NWorkers      int
	Allowlist     *bootstrap.Allowlist // nil treated as "skip nothing"
}

// Driver is the subset of *nixeval.Driver the crawl pipelines need. It is
// an interface so tests can supply a fake evaluator in place of actually
// spawning nix.
type Driver interface {
	RunFinder(ctx context.Context, onBatch func([]derivation.FoundDrv)) ([]error, error)
	Describe(ctx context.Context, attrPath string) (*derivation.Record, error)
}

// Crawler runs a single extraction over a flake and emits one
// derivation.Record per discovered attribute path to its Sink.
type Crawler struct {
	cfg      Config
	driver   Driver
	closer   io.Closer // non-nil only when New (not NewWithDriver) constructed the driver
	visited  *visited.Set
	sink     *sink.Sink
	reporter *status.Reporter
}

// New builds a Crawler backed by a real nixeval.Driver. Call Close when
// done to release the driver's temporary evaluation program directory.
func New(cfg Config, sk *sink.Sink, reporter *status.Reporter) (*Crawler, error) {
	driver, err := nixeval.New(nixeval.Config{
		FlakeRef:    cfg.FlakeRef,
		System:      cfg.System,
		RuntimeOnly: cfg.RuntimeOnly,
		Offline:     cfg.Offline,
		InputMode:   nixeval.GeneralizedInputs,
	})
	if err != nil {
		return nil, err
	}
	c := NewWithDriver(cfg, driver, sk, reporter)
	c.closer = driver
	return c, nil
}

// NewWithDriver builds a Crawler around a caller-supplied Driver, bypassing
// subprocess evaluation entirely. Primarily for tests.
func NewWithDriver(cfg Config, driver Driver, sk *sink.Sink, reporter *status.Reporter) *Crawler {
	return &Crawler{
		cfg:      cfg,
		driver:   driver,
		visited:  visited.New(),
		sink:     sk,
		reporter: reporter,
	}
}

// Close releases the crawler's evaluator driver resources, if any.
func (c *Crawler) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

// Run executes the full crawl: start the work pool draining, seed the
// frontier (via the Finder, or directly from AttributeRoot) concurrently
// with that drain, then wait for both to finish before closing out. The
// Finder's reader task and the pool's describer workers run concurrently:
// each batch read off the Finder's stderr is submitted as soon as it is
// parsed, while earlier batches are being described. It returns
// only a fatal startup error; a per-node evaluation or parse failure is
// reported on the status channel instead of aborting the run.
func (c *Crawler) Run(ctx context.Context) error {
	log.Printf("[%s] starting crawl (system=%s)", c.cfg.FlakeRef, c.cfg.System)
	pool := workpool.New(c.cfg.NWorkers, c.describeHandler)

	// Hold the pool open while the frontier is being seeded: without this,
	// a pool whose workers start before the first Submit lands could see
	// "nothing pending, nobody working" and terminate before discovery
	// gets a chance to enqueue anything.
	pool.Hold()

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		pool.RunUntilDrained(ctx)
	}()

	var seedErr error
	if c.cfg.AttributeRoot != "" {
		if c.visited.TryInsert(c.cfg.AttributeRoot) {
			c.reporter.Emit(status.Event{Kind: status.Queued, AttributePath: c.cfg.AttributeRoot})
			pool.Submit(c.cfg.AttributeRoot)
		}
	} else {
		seedErr = c.runDiscovery(ctx, pool)
	}
	pool.Release()

	<-drained

	log.Printf("[%s] crawl drained, %d attribute path(s) visited", c.cfg.FlakeRef, c.visited.Len())
	c.reporter.Emit(status.Event{Kind: status.Drained})
	return seedErr
}

// runDiscovery is the discovery pipeline: run the Finder, submitting each
// batch of entries it streams back as soon as it arrives (concurrently
// with the pool already describing earlier batches), rather than waiting
// for the Finder to exit before any work is submitted.
func (c *Crawler) runDiscovery(ctx context.Context, pool *workpool.Pool) error {
	warnings, err := c.driver.RunFinder(ctx, func(batch []derivation.FoundDrv) {
		for _, entry := range batch {
			if c.visited.TryInsert(entry.AttributePath) {
				c.reporter.Emit(status.Event{Kind: status.Queued, AttributePath: entry.AttributePath})
				pool.Submit(entry.AttributePath)
			}
		}
	})
	for _, w := range warnings {
		c.reporter.Emit(status.Event{Kind: status.Failed, Err: w})
	}
	c.reporter.Emit(status.Event{Kind: status.FinderDone})
	if err != nil {
		return fmt.Errorf("finder: %w", err)
	}
	return nil
}

// describeHandler invokes the Describer for one attribute path, enqueues
// its newly-seen edges, and hands the record to the sink. A per-node
// failure is reported on the status channel and otherwise swallowed: one
// bad node must not poison the crawl.
func (c *Crawler) describeHandler(ctx context.Context, path string, h workpool.Handle) {
	c.reporter.Emit(status.Event{Kind: status.Started, AttributePath: path})

	record, err := c.driver.Describe(ctx, path)
	if err != nil {
		log.Printf("[%s] describe failed: %v", path, err)
		c.reporter.Emit(status.Event{Kind: status.Failed, AttributePath: path, Err: err})
		return
	}

	for _, edge := range record.BuildInputs {
		if edge.AttributePath == "" {
			continue
		}
		if c.cfg.Allowlist.Skip(edge.AttributePath) {
			c.reporter.Emit(status.Event{Kind: status.Skipped, AttributePath: edge.AttributePath})
			continue
		}
		if c.visited.TryInsert(edge.AttributePath) {
			c.reporter.Emit(status.Event{Kind: status.Queued, AttributePath: edge.AttributePath})
			h.Submit(edge.AttributePath)
		}
	}

	c.sink.Submit(*record)
	c.reporter.Emit(status.Event{Kind: status.Described, AttributePath: path})
}
