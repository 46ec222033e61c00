package nixeval

import "fmt"

// Kind classifies a driver-level failure per the error taxonomy in the
// core's error-handling design: Spawn and Eval are process-level, Parse is
// a malformed payload.
type Kind string

const (
	KindSpawn Kind = "spawn"
	KindEval  Kind = "eval"
	KindParse Kind = "parse"
)

// Error wraps a driver failure with enough context for the crawl pipelines
// to decide whether it's fatal (Spawn, at startup) or local (Eval/Parse,
// per-node).
type Error struct {
	Kind          Kind
	AttributePath string // empty when not applicable (e.g. the Finder)
	Stderr        string // captured stderr tail, when available
	Err           error
}

func (e *Error) Error() string {
	if e.AttributePath != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.AttributePath, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func spawnErr(err error) error {
	return &Error{Kind: KindSpawn, Err: err}
}

func evalErr(attrPath string, stderr string, err error) error {
	return &Error{Kind: KindEval, AttributePath: attrPath, Stderr: stderr, Err: err}
}

func parseErr(attrPath string, err error) error {
	return &Error{Kind: KindParse, AttributePath: attrPath, Err: err}
}
