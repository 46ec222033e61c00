// Package derivation holds the data model shared by the evaluator driver,
// the crawl pipelines, and the output sink: the shape of a discovered Nix
// derivation and the edges between them.
package derivation

// AttributePath addresses a value within a flake's attribute tree, e.g.
// "haskellPackages.hello". The empty string denotes the flake's package
// root. It is the identity used for deduplication across a run.
type AttributePath = string

// OutputPath is an absolute Nix store path produced by realizing a
// derivation, e.g. "/nix/store/<hash>-<name>". Compared by byte equality.
type OutputPath = string

// BuildInputType classifies an inbound dependency edge.
type BuildInputType string

const (
	BuildInput           BuildInputType = "build_input"
	PropagatedBuildInput BuildInputType = "propagated_build_input"
	NativeBuildInput     BuildInputType = "native_build_input"
)

// ParsedName is a derivation name split on the package manager's
// "<pname>-<version>" convention.
type ParsedName struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// License is a single SPDX/full-name pair. Nixpkgs license metadata is
// normalized to a list of these: a scalar license becomes a singleton list,
// absence becomes an empty (or null) list.
type License struct {
	SPDXID   string `json:"spdx_id,omitempty"`
	FullName string `json:"full_name,omitempty"`
}

// NixpkgsMetadata carries the subset of a derivation's meta attribute set
// that downstream graph consumers care about.
type NixpkgsMetadata struct {
	Pname       *string   `json:"pname"`
	Version     *string   `json:"version"`
	Description *string   `json:"description"`
	Homepage    *string   `json:"homepage"`
	Broken      bool      `json:"broken,omitempty"`
	Licenses    []License `json:"licenses,omitempty"`
}

// Source identifies a derivation whose src is a known git reference.
type Source struct {
	GitRepoURL string `json:"git_repo_url"`
	Rev        string `json:"rev"`
}

// Output is one named output of a (possibly multi-output) derivation.
type Output struct {
	Name       string  `json:"name"`
	OutputPath *string `json:"output_path"`
}

// BuildInputEdge is one inbound dependency edge discovered while describing
// a derivation.
type BuildInputEdge struct {
	BuildInputType BuildInputType `json:"build_input_type"`
	AttributePath  AttributePath  `json:"attribute_path"`
	OutputPath     *string        `json:"output_path"`
}

// Record is the DerivationRecord emitted on the output sink: one JSON line
// per discovered derivation.
type Record struct {
	Name            string           `json:"name"`
	ParsedName      ParsedName       `json:"parsed_name"`
	AttributePath   AttributePath    `json:"attribute_path"`
	DerivationPath  *string          `json:"derivation_path"`
	OutputPath      *string          `json:"output_path"`
	Outputs         []Output         `json:"outputs"`
	NixpkgsMetadata NixpkgsMetadata  `json:"nixpkgs_metadata"`
	Src             *Source          `json:"src"`
	BuildInputs     []BuildInputEdge `json:"build_inputs"`
}

// FoundDrv is one entry the Finder reports on its trace stream: a
// derivation (or one output of a multi-output derivation) reachable from
// the flake's package tree.
type FoundDrv struct {
	AttributePath  AttributePath `json:"attributePath"`
	DerivationPath *string       `json:"derivationPath"`
	OutputPath     *string       `json:"outputPath"`
}
