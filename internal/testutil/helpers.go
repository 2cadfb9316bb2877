package testutil

import (
	"fmt"
	"testing"

	"golang.org/x/sync/errgroup"
)

// RunConcurrent calls fn from n goroutines and waits for all of them.
// The first error or recovered panic fails the test.
func RunConcurrent(t *testing.T, n int, fn func(workerID int) error) {
	t.Helper()

	var g errgroup.Group

	for i := 0; i < n; i++ {
		i := i
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("worker %d panicked: %v", i, r)
				}
			}()

			return fn(i)
		})
	}

	if err := g.Wait(); err != nil {
		t.Error(err)
	}
}

// AssertNoRaces runs fn concurrently so `go test -race` can see shared
// state between callers, such as one suppression engine used by many runs.
func AssertNoRaces(t *testing.T, fn func() error, iterations int) {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping race detection test in short mode")
	}

	RunConcurrent(t, iterations, func(int) error {
		return fn()
	})
}
