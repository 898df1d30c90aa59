package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/alitto/pond"
)

// ErrDuplicateTitle is returned by ExtractAll when two decks would write the
// same <title>.json.
var ErrDuplicateTitle = errors.New("extractor: duplicate deck title")

var errNotRun = errors.New("extractor: extraction did not complete")

// Result is the outcome of one deck in a batch.
type Result struct {
	Deck     string
	JSONPath string
	Err      error
}

// ExtractAll extracts every deck into outputDir on a pool of workers. Each
// deck is still read and written by a single goroutine. Results come back in
// input order. Decks that have not started when ctx is done report ctx.Err().
func (e *Extractor) ExtractAll(ctx context.Context, decks []string, outputDir string, workers int) ([]Result, error) {
	seen := make(map[string]string, len(decks))
	for _, d := range decks {
		title := DeckTitle(d)
		if prev, ok := seen[title]; ok {
			return nil, fmt.Errorf("%w: %q from %s and %s", ErrDuplicateTitle, title, prev, d)
		}
		seen[title] = d
	}

	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(decks) && len(decks) > 0 {
		workers = len(decks)
	}

	results := make([]Result, len(decks))
	for i, d := range decks {
		results[i] = Result{Deck: d, Err: errNotRun}
	}
	if len(decks) == 0 {
		return results, nil
	}

	panicHandler := func(p interface{}) {
		slog.Error("extraction task panicked", "panic", p)
	}
	pool := pond.New(workers, len(decks), pond.MinWorkers(workers), pond.PanicHandler(panicHandler))

	for i := range decks {
		pool.Submit(func() {
			r := &results[i]
			if err := ctx.Err(); err != nil {
				r.Err = err
				return
			}
			r.JSONPath, r.Err = e.Extract(r.Deck, outputDir)
			if r.Err != nil {
				slog.Warn("deck extraction failed", "deck", r.Deck, "error", r.Err)
			}
		})
	}
	pool.StopAndWait()

	return results, nil
}

// ExtractAll runs a batch with a default Extractor.
func ExtractAll(ctx context.Context, decks []string, outputDir string, workers int) ([]Result, error) {
	return New().ExtractAll(ctx, decks, outputDir, workers)
}
