package nixeval

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// progsFS embeds the two evaluator programs and their shared library so
// the tool is self-contained: no separate install step materializes them.
//
//go:embed progs/*.nix
var progsFS embed.FS

const (
	finderProgram    = "finder.nix"
	describerProgram = "describer.nix"
	libProgram       = "lib.nix"
)

// materialize writes the embedded evaluator programs into dir, which the
// caller owns and is responsible for removing once the run completes.
func materialize(dir string) error {
	entries, err := fs.ReadDir(progsFS, "progs")
	if err != nil {
		return fmt.Errorf("reading embedded eval programs: %w", err)
	}
	for _, entry := range entries {
		data, err := fs.ReadFile(progsFS, filepath.Join("progs", entry.Name()))
		if err != nil {
			return fmt.Errorf("reading embedded %s: %w", entry.Name(), err)
		}
		if err := os.WriteFile(filepath.Join(dir, entry.Name()), data, 0o444); err != nil {
			return fmt.Errorf("writing %s: %w", entry.Name(), err)
		}
	}
	return nil
}
