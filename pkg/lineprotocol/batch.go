package lineprotocol

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// minLinesPerChunk keeps small inputs from paying goroutine overhead.
const minLinesPerChunk = 256

// ParseLinesConcurrent is ParseLines spread over up to workers goroutines
// (GOMAXPROCS when workers <= 0). Lines have no shared state, so the results
// are identical to ParseLines, in the same order. The only error returned is
// the context's, when it is cancelled before every chunk has been parsed.
func ParseLinesConcurrent(ctx context.Context, text string, workers int) ([]Result, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	inputs := splitInput(text)
	results := make([]Result, len(inputs))
	if len(inputs) <= minLinesPerChunk || workers == 1 {
		for i, in := range inputs {
			results[i] = parseNumbered(in)
		}
		return results, nil
	}

	chunk := (len(inputs) + workers - 1) / workers
	if chunk < minLinesPerChunk {
		chunk = minLinesPerChunk
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < len(inputs); start += chunk {
		end := min(start+chunk, len(inputs))
		g.Go(func() error {
			// Each goroutine owns results[start:end]; no locking needed
			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				results[i] = parseNumbered(inputs[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
