package crawl

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"sync"
	"testing"

	"github.com/nixtract/nixtract/internal/derivation"
)

// recordBuffer is a concurrency-safe io.Writer the sink's drain goroutine
// writes JSONL into, so tests can parse it back out once the sink closes.
type recordBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (r *recordBuffer) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Write(p)
}

func (r *recordBuffer) parse(t *testing.T) []derivation.Record {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()

	var records []derivation.Record
	scanner := bufio.NewScanner(&r.buf)
	for scanner.Scan() {
		var rec derivation.Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("invalid JSONL line %q: %v", scanner.Text(), err)
		}
		records = append(records, rec)
	}
	return records
}

func writeFile(path, contents string) error {
	return os.WriteFile(path, []byte(contents), 0o644)
}
