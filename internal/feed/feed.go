// Package feed supplies scraped fragments to the run loop. The crawl layer
// itself lives outside this repository; the JSONL reader here replays its
// output (one envelope per line) so a run can be driven from a file.
package feed

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"

	"github.com/consumer-puls/insights-scraper/internal/model"
)

// Request outcomes as reported by the crawl layer.
const (
	OutcomeOK      = "ok"
	OutcomeDenied  = "denied"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// Envelope is one unit of scraped work: the fragment payload plus the
// routing metadata the counters need. Done marks the fragment that
// completes its product. An empty Outcome means ok.
type Envelope struct {
	ProductID   string         `json:"productId"`
	Label       string         `json:"label"`
	Category    string         `json:"category"`
	Subcategory string         `json:"subcategory"`
	Outcome     string         `json:"outcome,omitempty"`
	Fragment    model.Fragment `json:"fragment"`
	Done        bool           `json:"done"`
}

// Source streams envelopes to the run loop.
type Source interface {
	Next(ctx context.Context) (*Envelope, error)
	Close() error
}

// JSONL reads envelopes line by line from a file.
type JSONL struct {
	f       *os.File
	scanner *bufio.Scanner
	line    int
}

// OpenJSONL opens the fragment file at path.
func OpenJSONL(path string) (*JSONL, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "feed: open")
	}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	return &JSONL{f: f, scanner: scanner}, nil
}

// Next returns the next envelope, io.EOF at end of input. Blank lines are
// skipped; a malformed line is an error carrying its line number so the
// caller can decide to skip or abort.
func (j *JSONL) Next(ctx context.Context) (*Envelope, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !j.scanner.Scan() {
			if err := j.scanner.Err(); err != nil {
				return nil, eris.Wrap(err, "feed: read")
			}
			return nil, io.EOF
		}
		j.line++

		raw := j.scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, eris.Wrapf(err, "feed: line %d", j.line)
		}
		return &env, nil
	}
}

func (j *JSONL) Close() error {
	return j.f.Close()
}
