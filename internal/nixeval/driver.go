// Package nixeval is the evaluator driver: it spawns the Nix binary to run
// the two evaluator programs embedded under progs/ and turns their
// stdout/stderr discipline into Go values.
package nixeval

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/nixtract/nixtract/internal/derivation"
)

const tracePrefix = "trace: "

// parseTraceLine extracts the FoundDrv entries from one line of Finder
// stderr output, if it carries the "trace: <json>" prefix the Finder uses
// for signal. Lines without the prefix (other Nix evaluator chatter) yield
// no entries and no warning. A line with the prefix but malformed JSON
// yields a Parse warning — the Finder's contract is per-line recoverable,
// not per-run fatal.
func parseTraceLine(line string) (entries []derivation.FoundDrv, warning error) {
	payload, ok := strings.CutPrefix(line, tracePrefix)
	if !ok {
		return nil, nil
	}
	var batch struct {
		FoundDrvs []derivation.FoundDrv `json:"foundDrvs"`
	}
	if err := json.Unmarshal([]byte(payload), &batch); err != nil {
		return nil, parseErr("", fmt.Errorf("malformed trace line %q: %w", payload, err))
	}
	return batch.FoundDrvs, nil
}

// InputMode selects which generation of dependency-edge discovery the
// Describer performs, per the open question in the core design notes: the
// richer "every derivation-valued attribute" behavior is preferred, with
// the fixed buildInputs/propagatedBuildInputs/nativeBuildInputs triad kept
// as an explicit fallback.
type InputMode int

const (
	GeneralizedInputs InputMode = iota
	FixedInputs
)

// Config holds the inputs every subprocess invocation shares.
type Config struct {
	NixBin      string // defaults to "nix" resolved via PATH
	FlakeRef    string
	System      string
	RuntimeOnly bool
	Offline     bool
	InputMode   InputMode
}

// Driver runs the Finder and Describer evaluator programs as subprocesses
// of the configured Nix binary, shelling out to "nix eval": the Finder's
// stderr is read line by line through a pipe, the Describer's stdout and
// stderr are captured into buffers.
type Driver struct {
	cfg     Config
	progDir string
}

// New resolves the Nix binary and materializes the embedded evaluator
// programs into a private temporary directory scoped to the driver's
// lifetime.
func New(cfg Config) (*Driver, error) {
	if cfg.NixBin == "" {
		nixBin, err := exec.LookPath("nix")
		if err != nil {
			return nil, spawnErr(fmt.Errorf("nix not found in PATH: %w", err))
		}
		cfg.NixBin = nixBin
	}
	if cfg.FlakeRef == "" {
		cfg.FlakeRef = "nixpkgs"
	}

	dir, err := os.MkdirTemp("", "nixtract-progs-*")
	if err != nil {
		return nil, spawnErr(fmt.Errorf("creating eval program dir: %w", err))
	}
	if err := materialize(dir); err != nil {
		os.RemoveAll(dir)
		return nil, spawnErr(err)
	}

	return &Driver{cfg: cfg, progDir: dir}, nil
}

// Close removes the driver's temporary program directory and the
// evaluator programs written into it.
func (d *Driver) Close() error {
	return os.RemoveAll(d.progDir)
}

// baseArgs returns the flake/command-set flags every invocation carries.
func (d *Driver) baseArgs(program string) []string {
	args := []string{
		"eval", "--json", "--impure", "--file", program,
		"--extra-experimental-features", "nix-command flakes",
	}
	if d.cfg.Offline {
		args = append(args, "--offline")
	}
	return args
}

func (d *Driver) env(extra map[string]string) []string {
	env := append(os.Environ(),
		"TARGET_FLAKE_REF="+d.cfg.FlakeRef,
		"TARGET_SYSTEM="+d.cfg.System,
	)
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}

// RunFinder spawns the Finder program and invokes onBatch with each
// FoundDrv batch as it is parsed off the stderr trace stream — the reader
// task runs concurrently with whatever the caller does with each batch
// (typically submitting it to the work pool), rather than accumulating the
// whole walk in memory before any description can begin. stdout is
// discarded; all signal is on stderr, per the Finder's contract.
//
// A malformed trace line is skipped with the parse error recorded in
// warnings rather than aborting the whole walk.
func (d *Driver) RunFinder(ctx context.Context, onBatch func([]derivation.FoundDrv)) (warnings []error, err error) {
	path := filepath.Join(d.progDir, finderProgram)
	cmd := exec.CommandContext(ctx, d.cfg.NixBin, d.baseArgs(path)...)
	cmd.Dir = d.progDir
	cmd.Env = d.env(nil)

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, spawnErr(err)
	}
	cmd.Stdout = nil

	var stderrTail bytes.Buffer
	if err := cmd.Start(); err != nil {
		return nil, spawnErr(err)
	}

	scanner := bufio.NewScanner(stderrPipe)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		stderrTail.WriteString(line)
		stderrTail.WriteByte('\n')

		entries, warning := parseTraceLine(line)
		if warning != nil {
			warnings = append(warnings, warning)
			continue
		}
		if len(entries) > 0 {
			onBatch(entries)
		}
	}

	waitErr := cmd.Wait()
	if waitErr != nil {
		return warnings, evalErr("", tail(stderrTail.String()), waitErr)
	}
	return warnings, nil
}

// Describe spawns the Describer program for a single attribute path and
// returns its parsed record.
func (d *Driver) Describe(ctx context.Context, attrPath string) (*derivation.Record, error) {
	path := filepath.Join(d.progDir, describerProgram)
	cmd := exec.CommandContext(ctx, d.cfg.NixBin, d.baseArgs(path)...)
	cmd.Dir = d.progDir

	extra := map[string]string{
		"TARGET_ATTRIBUTE_PATH": attrPath,
		"RUNTIME_ONLY":          boolEnv(d.cfg.RuntimeOnly),
		"GENERALIZED_INPUTS":    boolEnv(d.cfg.InputMode == GeneralizedInputs),
	}
	cmd.Env = d.env(extra)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, evalErr(attrPath, tail(stderr.String()), err)
	}

	var record derivation.Record
	if err := json.Unmarshal(stdout.Bytes(), &record); err != nil {
		return nil, parseErr(attrPath, err)
	}
	return &record, nil
}

func boolEnv(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// tail keeps the last few lines of captured stderr for error context,
// without unboundedly growing error messages on chatty evaluators.
func tail(s string) string {
	const maxLines = 20
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) <= maxLines {
		return s
	}
	return strings.Join(lines[len(lines)-maxLines:], "\n")
}
