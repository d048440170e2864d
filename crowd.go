package marionette

import (
	"errors"
	"fmt"
	"slices"
)

const DEFAULT_WORKERS = 1

var (
	ErrFrameCount        = errors.New("marionette: one frame per skeleton")
	ErrDuplicateSkeleton = errors.New("marionette: skeleton added twice")
)

// Crowd updates many avatars. Each skeleton runs its whole frame on one goroutine, the skeletons
// are spread over Workers goroutines. A skeleton must appear only once.
type Crowd struct {
	Skeletons []*Skeleton
	Workers   int
}

// Add adds a skeleton to the crowd. A nil or already added skeleton is ignored.
func (c *Crowd) Add(skeleton *Skeleton) {
	if skeleton == nil || slices.Contains(c.Skeletons, skeleton) {
		return
	}
	c.Skeletons = append(c.Skeletons, skeleton)
}

// Remove removes a skeleton from the crowd
func (c *Crowd) Remove(skeleton *Skeleton) {
	if k := slices.Index(c.Skeletons, skeleton); k != -1 {
		c.Skeletons = slices.Delete(c.Skeletons, k, k+1)
	}
}

// Update runs one frame of every skeleton, frames[i] driving Skeletons[i]
func (c *Crowd) Update(frames []Frame) ([]Result, error) {
	if len(frames) != len(c.Skeletons) {
		return nil, fmt.Errorf("%w: %d frames for %d skeletons", ErrFrameCount, len(frames), len(c.Skeletons))
	}
	// two workers must never share a tree
	seen := make(map[*Skeleton]struct{}, len(c.Skeletons))
	for i, s := range c.Skeletons {
		if _, ok := seen[s]; ok {
			return nil, fmt.Errorf("%w: at %d", ErrDuplicateSkeleton, i)
		}
		seen[s] = struct{}{}
	}
	c.Workers = max(DEFAULT_WORKERS, c.Workers)

	results := make([]Result, len(frames))
	task(c.Workers, len(frames), func(i int) {
		results[i] = c.Skeletons[i].Update(frames[i])
	})

	return results, nil
}
