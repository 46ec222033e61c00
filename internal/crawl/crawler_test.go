package crawl

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/nixtract/nixtract/internal/bootstrap"
	"github.com/nixtract/nixtract/internal/derivation"
	"github.com/nixtract/nixtract/internal/sink"
	"github.com/nixtract/nixtract/internal/status"
)

// fakeDriver is a hand-wired stand-in for nixeval.Driver: a map of canned
// per-path records plus a canned Finder result, with no subprocess
// involved.
type fakeDriver struct {
	found       []derivation.FoundDrv
	findErr     error
	records     map[string]*derivation.Record
	describeErr map[string]error

	mu    sync.Mutex
	calls map[string]int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		records:     make(map[string]*derivation.Record),
		describeErr: make(map[string]error),
		calls:       make(map[string]int),
	}
}

func (f *fakeDriver) RunFinder(ctx context.Context, onBatch func([]derivation.FoundDrv)) ([]error, error) {
	if len(f.found) > 0 {
		onBatch(f.found)
	}
	return nil, f.findErr
}

func (f *fakeDriver) Describe(ctx context.Context, attrPath string) (*derivation.Record, error) {
	f.mu.Lock()
	f.calls[attrPath]++
	f.mu.Unlock()

	if err, ok := f.describeErr[attrPath]; ok {
		return nil, err
	}
	r, ok := f.records[attrPath]
	if !ok {
		return nil, fmt.Errorf("fakeDriver: no record registered for %q", attrPath)
	}
	return r, nil
}

func collectSink(t *testing.T) (*sink.Sink, func() []derivation.Record) {
	t.Helper()
	s := sink.New(16, false)
	var buf recordBuffer
	s.Run(&buf)
	return s, func() []derivation.Record {
		if err := s.Close(); err != nil {
			t.Fatalf("sink Close: %v", err)
		}
		return buf.parse(t)
	}
}

func TestDiamondDependencyEmittedOnce(t *testing.T) {
	// A depends on B and C; both depend on D. D must be described exactly
	// once and referenced by both B and C.
	drv := newFakeDriver()
	drv.found = []derivation.FoundDrv{{AttributePath: "A"}}
	drv.records["A"] = &derivation.Record{
		AttributePath: "A", Name: "a",
		BuildInputs: []derivation.BuildInputEdge{
			{AttributePath: "B", BuildInputType: derivation.BuildInput},
			{AttributePath: "C", BuildInputType: derivation.BuildInput},
		},
	}
	drv.records["B"] = &derivation.Record{
		AttributePath: "B", Name: "b",
		BuildInputs: []derivation.BuildInputEdge{{AttributePath: "D", BuildInputType: derivation.BuildInput}},
	}
	drv.records["C"] = &derivation.Record{
		AttributePath: "C", Name: "c",
		BuildInputs: []derivation.BuildInputEdge{{AttributePath: "D", BuildInputType: derivation.BuildInput}},
	}
	drv.records["D"] = &derivation.Record{AttributePath: "D", Name: "d"}

	s, drain := collectSink(t)
	reporter := status.NewReporter(64)
	c := NewWithDriver(Config{NWorkers: 3}, drv, s, reporter)

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	records := drain()
	reporter.Close()

	if len(records) != 4 {
		t.Fatalf("got %d records, want 4", len(records))
	}
	drv.mu.Lock()
	if drv.calls["D"] != 1 {
		t.Errorf("D described %d times, want 1", drv.calls["D"])
	}
	drv.mu.Unlock()
}

func TestFailureContainment(t *testing.T) {
	// One node's description fails; the rest of the crawl must still
	// complete and emit its records.
	drv := newFakeDriver()
	drv.found = []derivation.FoundDrv{{AttributePath: "good"}, {AttributePath: "bad"}}
	drv.records["good"] = &derivation.Record{AttributePath: "good", Name: "good-1.0"}
	drv.describeErr["bad"] = fmt.Errorf("eval: boom")

	s, drain := collectSink(t)
	reporter := status.NewReporter(64)
	c := NewWithDriver(Config{NWorkers: 2}, drv, s, reporter)

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run should not propagate a per-node failure: %v", err)
	}
	records := drain()
	reporter.Close()

	var failed bool
	for e := range reporter.Events() {
		if e.Kind == status.Failed && e.AttributePath == "bad" {
			failed = true
		}
	}
	if !failed {
		t.Error("expected a Failed status event for \"bad\"")
	}
	if len(records) != 1 || records[0].AttributePath != "good" {
		t.Fatalf("expected exactly one record for \"good\", got %+v", records)
	}
}

func TestAllowlistPrunesEdge(t *testing.T) {
	drv := newFakeDriver()
	drv.found = []derivation.FoundDrv{{AttributePath: "pkg"}}
	drv.records["pkg"] = &derivation.Record{
		AttributePath: "pkg", Name: "pkg-1.0",
		BuildInputs: []derivation.BuildInputEdge{
			{AttributePath: "bootstrapTools.gcc", BuildInputType: derivation.NativeBuildInput},
		},
	}

	allow := mustAllowlist(t, []string{"bootstrapTools"})
	s, drain := collectSink(t)
	reporter := status.NewReporter(64)
	c := NewWithDriver(Config{NWorkers: 1, Allowlist: allow}, drv, s, reporter)

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	records := drain()
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1 (bootstrapTools.gcc must not be described)", len(records))
	}
	drv.mu.Lock()
	if _, called := drv.calls["bootstrapTools.gcc"]; called {
		t.Error("bootstrapTools.gcc should never reach the describer")
	}
	drv.mu.Unlock()
}

func TestAttributeRootSkipsFinder(t *testing.T) {
	drv := newFakeDriver()
	drv.findErr = fmt.Errorf("finder should never run when AttributeRoot is set")
	drv.records["some.pkg"] = &derivation.Record{AttributePath: "some.pkg", Name: "some-pkg-1.0"}

	s, drain := collectSink(t)
	reporter := status.NewReporter(64)
	c := NewWithDriver(Config{NWorkers: 1, AttributeRoot: "some.pkg"}, drv, s, reporter)

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	records := drain()
	if len(records) != 1 || records[0].AttributePath != "some.pkg" {
		t.Fatalf("got %+v, want one record for some.pkg", records)
	}
}

func TestEmptyFlakeEmitsNothing(t *testing.T) {
	drv := newFakeDriver() // found is nil
	s, drain := collectSink(t)
	reporter := status.NewReporter(64)
	c := NewWithDriver(Config{NWorkers: 2}, drv, s, reporter)

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if records := drain(); len(records) != 0 {
		t.Fatalf("got %d records, want 0", len(records))
	}
}

func mustAllowlist(t *testing.T, prefixes []string) *bootstrap.Allowlist {
	t.Helper()
	dir := t.TempDir()
	path := dir + "/allow.yaml"
	contents := "skip_prefixes:\n"
	for _, p := range prefixes {
		contents += "  - " + p + "\n"
	}
	if err := writeFile(path, contents); err != nil {
		t.Fatal(err)
	}
	a, err := bootstrap.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	return a
}
