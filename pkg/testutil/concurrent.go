package testutil

import (
	"errors"
	"sync"
	"sync/atomic"

	dErrors "cidledger/pkg/domain-errors"
	"cidledger/pkg/platform/sentinel"
)

// ConcurrentResult counts outcomes of a RunConcurrent call by error class.
type ConcurrentResult struct {
	Successes int32
	Conflicts int32
	NotFounds int32
	Errors    int32
	// Unexpected holds the errors counted in Errors, for failure messages.
	Unexpected []error
}

func (r *ConcurrentResult) Total() int32 {
	return r.Successes + r.Conflicts + r.NotFounds + r.Errors
}

// RunConcurrent starts n goroutines, releases them together to maximise
// contention on the code under test, and classifies what each returned.
// Store sentinels and domain codes are both recognised.
func RunConcurrent(n int, fn func(idx int) error) *ConcurrentResult {
	var (
		wg                              sync.WaitGroup
		mu                              sync.Mutex
		successes, conflicts, notFounds atomic.Int32
		result                          ConcurrentResult
	)
	start := make(chan struct{})

	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := fn(i)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, sentinel.ErrConflict), dErrors.HasCode(err, dErrors.CodeConflict):
				conflicts.Add(1)
			case errors.Is(err, sentinel.ErrNotFound), dErrors.HasCode(err, dErrors.CodeNotFound):
				notFounds.Add(1)
			default:
				mu.Lock()
				result.Unexpected = append(result.Unexpected, err)
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	result.Successes = successes.Load()
	result.Conflicts = conflicts.Load()
	result.NotFounds = notFounds.Load()
	result.Errors = int32(len(result.Unexpected))
	return &result
}
