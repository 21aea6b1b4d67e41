package num

import (
	"golang.org/x/sync/errgroup"
)

// split n items between up to threads workers and call fn for each range
func parallel(threads, n int, fn func(worker, start, end int)) {
	if threads > n {
		threads = n
	}
	if threads <= 1 {
		fn(0, 0, n)
		return
	}
	chunk := (n + threads - 1) / threads
	var g errgroup.Group
	for w := 0; w < threads; w++ {
		start, end := w*chunk, min((w+1)*chunk, n)
		if start >= end {
			break
		}
		worker := w
		g.Go(func() error {
			fn(worker, start, end)
			return nil
		})
	}
	g.Wait()
}

// per worker scratch buffers, must be sized before starting the workers
type scratch [][]float32

func (s *scratch) resize(workers, size int) {
	for len(*s) < workers {
		*s = append(*s, nil)
	}
	for i := range *s {
		if len((*s)[i]) < size {
			(*s)[i] = make([]float32, size)
		}
	}
}

func (s scratch) get(worker, size int) []float32 {
	return s[worker][:size]
}

func clear32(d []float32) {
	for i := range d {
		d[i] = 0
	}
}
