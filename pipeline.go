package marionette

import "sync"

// task calls fn for every index of [0, n), in contiguous chunks spread over at most workers goroutines
func task(workers, n int, fn func(i int)) {
	if n == 0 {
		return
	}
	workers = max(1, min(workers, n))
	chunk := (n + workers - 1) / workers

	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		wg.Go(func() {
			for i := start; i < end; i++ {
				fn(i)
			}
		})
	}
	wg.Wait()
}
