package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs returns a generator producing prefix-0001, prefix-0002, ...
// An empty prefix selects "run".
func SequentialIDs(prefix string) func() string {
	if prefix == "" {
		prefix = "run"
	}
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%04d", prefix, n)
	}
}

// FixedID returns a generator that always yields id.
func FixedID(id string) func() string {
	return func() string { return id }
}
