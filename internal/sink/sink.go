// Package sink implements the crawl's single-writer output: a bounded
// channel of completed records drained by one goroutine that owns the
// destination writer, so workers never touch output directly. Each record
// gets its own json.Marshal call rather than a shared stateful encoder, so
// pretty-printing (when asked for) is applied per record. Compact output is
// one line per record; pretty output spans several indented lines per
// record.
package sink

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/nixtract/nixtract/internal/derivation"
)

// Sink is the sole writer to a crawl's output. Workers call Submit; the
// sink's Run goroutine drains submissions and writes one JSON document per
// record, in completion order. Completion order is non-deterministic
// across runs, but each record is still written as a single unit.
type Sink struct {
	records chan derivation.Record
	pretty  bool

	wg   sync.WaitGroup
	once sync.Once

	mu      sync.Mutex
	writeErr error
}

// New creates a Sink; the writer is given to Run. buffer bounds how many completed
// records may queue up before Submit blocks the calling worker.
func New(buffer int, pretty bool) *Sink {
	return &Sink{
		records: make(chan derivation.Record, buffer),
		pretty:  pretty,
	}
}

// Submit hands a completed record to the sink. Blocks if the buffer is
// full; this is one of the few points a worker may block on.
func (s *Sink) Submit(r derivation.Record) {
	s.records <- r
}

// Run drains records into w until Close is called and the buffer empties,
// then flushes. It starts its own drain goroutine and returns at once; the
// caller waits on Close for that goroutine to finish. A write error stops further writes but does not
// panic — it is surfaced from Close.
func (s *Sink) Run(w io.Writer) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		bw := bufio.NewWriter(w)
		defer bw.Flush()

		for r := range s.records {
			line, err := s.encodeLine(r)
			if err != nil {
				s.setErr(fmt.Errorf("encoding record %s: %w", r.AttributePath, err))
				continue
			}
			if _, err := bw.WriteString(line); err != nil {
				s.setErr(fmt.Errorf("writing record %s: %w", r.AttributePath, err))
			}
		}
	}()
}

// encodeLine renders r as one LF-terminated JSON document. Without pretty
// it is a single line; with pretty it is indented over several lines, but
// still emitted as a single sink write.
func (s *Sink) encodeLine(r derivation.Record) (string, error) {
	if !s.pretty {
		data, err := json.Marshal(r)
		if err != nil {
			return "", err
		}
		return string(data) + "\n", nil
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data) + "\n", nil
}

func (s *Sink) setErr(err error) {
	s.mu.Lock()
	if s.writeErr == nil {
		s.writeErr = err
	}
	s.mu.Unlock()
}

// Close signals that no more records will be submitted, then waits for the
// drain goroutine to flush and exit. Returns the first write error
// encountered, if any.
func (s *Sink) Close() error {
	s.once.Do(func() { close(s.records) })
	s.wg.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeErr
}
