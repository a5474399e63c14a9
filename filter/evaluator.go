package filter

import (
	"context"
	"runtime"
	"sync"

	"github.com/s0up4200/cupid/cupid"
)

// EvaluatorOption configures an evaluator
type EvaluatorOption func(*ConcurrentEvaluator)

// WithWorkers sets the number of worker goroutines. Zero keeps the
// default of one per CPU.
func WithWorkers(workers int) EvaluatorOption {
	return func(e *ConcurrentEvaluator) {
		if workers > 0 {
			e.workerCount = workers
		}
	}
}

// WithBatchSize sets the chunk size below which users are evaluated inline
func WithBatchSize(size int) EvaluatorOption {
	return func(e *ConcurrentEvaluator) {
		if size > 0 {
			e.batchSize = size
		}
	}
}

// ConcurrentEvaluator evaluates filters over users on a worker pool
type ConcurrentEvaluator struct {
	workerCount int
	batchSize   int
	pool        WorkerPool
}

// BatchResult is the outcome of one named filter in EvaluateBatch
type BatchResult struct {
	FilterName string
	Matches    []cupid.User
	Error      error
}

// NewConcurrentEvaluator creates a new concurrent evaluator
func NewConcurrentEvaluator(opts ...EvaluatorOption) *ConcurrentEvaluator {
	e := &ConcurrentEvaluator{
		workerCount: runtime.GOMAXPROCS(0),
		batchSize:   100,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.pool = NewWorkerPool(e.workerCount)

	return e
}

// Evaluate returns the users matching filter, in their original order. The
// first evaluation error aborts the run.
func (e *ConcurrentEvaluator) Evaluate(ctx context.Context, filter CompiledFilter, users []cupid.User) ([]cupid.User, error) {
	if len(users) == 0 {
		return []cupid.User{}, nil
	}

	if len(users) < e.batchSize {
		return evaluateSequential(filter, users)
	}

	return e.evaluateConcurrent(ctx, filter, users)
}

// EvaluateBatch evaluates several filters against the same users. Filters
// that fail are reported in the result with their error.
func (e *ConcurrentEvaluator) EvaluateBatch(ctx context.Context, filters map[string]CompiledFilter, users []cupid.User) (map[string]BatchResult, error) {
	results := make(map[string]BatchResult, len(filters))
	if len(filters) == 0 {
		return results, nil
	}

	resultChan := make(chan BatchResult, len(filters))

	var wg sync.WaitGroup
	for name, filter := range filters {
		wg.Add(1)
		err := e.pool.Submit(func() {
			defer wg.Done()

			if err := ctx.Err(); err != nil {
				resultChan <- BatchResult{FilterName: name, Error: err}
				return
			}

			// evaluated inline: nesting submissions could starve the pool
			matches, err := evaluateSequential(filter, users)
			resultChan <- BatchResult{
				FilterName: name,
				Matches:    matches,
				Error:      err,
			}
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return nil, err
		}
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	for result := range resultChan {
		results[result.FilterName] = result
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func evaluateSequential(filter CompiledFilter, users []cupid.User) ([]cupid.User, error) {
	matches := make([]cupid.User, 0, len(users))
	for _, user := range users {
		ok, err := filter.Match(user)
		if err != nil {
			return nil, err
		}
		if ok {
			matches = append(matches, user)
		}
	}
	return matches, nil
}

func (e *ConcurrentEvaluator) evaluateConcurrent(ctx context.Context, filter CompiledFilter, users []cupid.User) ([]cupid.User, error) {
	chunkSize := max(len(users)/e.workerCount, e.batchSize)

	type chunkResult struct {
		matches []cupid.User
		order   int
		err     error
	}

	chunks := (len(users) + chunkSize - 1) / chunkSize
	resultChan := make(chan chunkResult, chunks)
	var wg sync.WaitGroup

	for index := range chunks {
		start := index * chunkSize
		chunk := users[start:min(start+chunkSize, len(users))]

		wg.Add(1)
		err := e.pool.Submit(func() {
			defer wg.Done()

			if err := ctx.Err(); err != nil {
				resultChan <- chunkResult{order: index, err: err}
				return
			}

			matches, err := evaluateSequential(filter, chunk)
			resultChan <- chunkResult{matches: matches, order: index, err: err}
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return nil, err
		}
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	ordered := make([][]cupid.User, chunks)
	var firstErr error
	for result := range resultChan {
		if result.err != nil && firstErr == nil {
			firstErr = result.err
		}
		ordered[result.order] = result.matches
	}
	if firstErr != nil {
		return nil, firstErr
	}

	total := 0
	for _, m := range ordered {
		total += len(m)
	}
	all := make([]cupid.User, 0, total)
	for _, m := range ordered {
		all = append(all, m...)
	}
	return all, nil
}

// Stop stops the evaluator's worker pool
func (e *ConcurrentEvaluator) Stop(ctx context.Context) error {
	return e.pool.Stop(ctx)
}
