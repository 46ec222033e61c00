package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nixtract/nixtract/internal/bootstrap"
	"github.com/nixtract/nixtract/internal/crawl"
	"github.com/nixtract/nixtract/internal/progresstui"
	"github.com/nixtract/nixtract/internal/sink"
	"github.com/nixtract/nixtract/internal/status"
)

// Global config. This is the CLI boundary: everything below just wires
// flags into a crawl.Config and hands off.
var (
	flakeRef      string
	attributeRoot string
	system        string
	runtimeOnly   bool
	offline       bool
	nWorkers      int
	outputPath    string
	pretty        bool
	allowlistPath string
	tui           bool
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Printf("received interrupt, draining...")
		cancel()
	}()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nixtract",
		Short: "Extract the derivation graph reachable from a Nix flake",
		Long: `nixtract walks a flake's package attribute tree and every
build-input edge reachable from it, emitting one JSON object per
discovered derivation to stdout (or a file), so downstream tools can
reconstruct the full dependency graph.`,
		RunE: runExtract,
	}

	cmd.Flags().StringVarP(&flakeRef, "flake", "f", "nixpkgs", "Flake reference to extract")
	cmd.Flags().StringVar(&attributeRoot, "attr", "", "Attribute path to start from (skips the top-level finder)")
	// Nix names the host architecture differently from Go's GOARCH.
	hostArch := runtime.GOARCH
	switch hostArch {
	case "amd64":
		hostArch = "x86_64"
	case "arm64":
		hostArch = "aarch64"
	}
	cmd.Flags().StringVarP(&system, "system", "s", hostArch+"-"+runtime.GOOS, "Target system triple")
	cmd.Flags().BoolVar(&runtimeOnly, "runtime-only", false, "Follow only runtime build-input edges")
	cmd.Flags().BoolVar(&offline, "offline", false, "Pass --offline through to the nix subprocess")
	cmd.Flags().IntVarP(&nWorkers, "workers", "w", 0, "Number of crawl workers (0 = number of CPUs)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "Pretty-print each JSON line")
	cmd.Flags().StringVar(&allowlistPath, "bootstrap-allowlist", "", "YAML file of attribute-path prefixes to prune")
	cmd.Flags().BoolVar(&tui, "tui", false, "Show a live progress view while crawling")

	return cmd
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	allow, err := bootstrap.Load(allowlistPath)
	if err != nil {
		return fmt.Errorf("loading bootstrap allowlist: %w", err)
	}

	out := os.Stdout
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("opening output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	sk := sink.New(256, pretty)
	sk.Run(out)

	reporter := status.NewReporter(256)

	c, err := crawl.New(crawl.Config{
		FlakeRef:      flakeRef,
		System:        system,
		AttributeRoot: attributeRoot,
		RuntimeOnly:   runtimeOnly,
		Offline:       offline,
		NWorkers:      nWorkers,
		Allowlist:     allow,
	}, sk, reporter)
	if err != nil {
		return err
	}
	defer c.Close()

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- c.Run(ctx)
	}()

	if tui {
		if err := progresstui.Run(progresstui.Config{FlakeRef: flakeRef, System: system}, reporter.Events()); err != nil {
			fmt.Fprintf(os.Stderr, "progress view error: %v\n", err)
		}
	}

	runErr := <-runErrCh
	reporter.Close()

	if sinkErr := sk.Close(); sinkErr != nil {
		return fmt.Errorf("output sink: %w", sinkErr)
	}
	return runErr
}
