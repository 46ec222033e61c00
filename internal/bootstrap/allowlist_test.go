package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEmptySkipsNothing(t *testing.T) {
	a := Empty()
	for _, p := range []string{"", "hello", "bootstrapTools.gcc"} {
		if a.Skip(p) {
			t.Errorf("Empty().Skip(%q) = true, want false", p)
		}
	}
}

func TestNilReceiverSkipsNothing(t *testing.T) {
	var a *Allowlist
	if a.Skip("bootstrapTools.gcc") {
		t.Fatal("nil *Allowlist should skip nothing")
	}
}

func TestSkipExactAndDescendant(t *testing.T) {
	a := &Allowlist{prefixes: []string{"bootstrapTools", "stdenv.cc.bintools"}}

	tests := []struct {
		path string
		want bool
	}{
		{"bootstrapTools", true},
		{"bootstrapTools.gcc", true},
		{"bootstrapToolsSibling", false}, // prefix match must be dotted, not a raw string prefix
		{"stdenv.cc.bintools.wrapper", true},
		{"stdenv.cc", false},
		{"unrelated", false},
	}
	for _, tt := range tests {
		if got := a.Skip(tt.path); got != tt.want {
			t.Errorf("Skip(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	a, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load of a missing file should not error: %v", err)
	}
	if a.Skip("anything") {
		t.Fatal("missing allowlist file should skip nothing")
	}
}

func TestLoadParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "allowlist.yaml")
	contents := "skip_prefixes:\n  - bootstrapTools\n  - pkgsStatic.bootstrapTools\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	a, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !a.Skip("bootstrapTools.gcc") {
		t.Error("expected bootstrapTools.gcc to be skipped")
	}
	if !a.Skip("pkgsStatic.bootstrapTools.gcc") {
		t.Error("expected pkgsStatic.bootstrapTools.gcc to be skipped")
	}
	if a.Skip("hello") {
		t.Error("did not expect hello to be skipped")
	}
}
