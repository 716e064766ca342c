package testutil

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeClock(t *testing.T) {
	c := NewFakeClock(time.Time{}, time.Second)

	first := c.Now()
	second := c.Now()
	assert.Equal(t, Epoch, first)
	assert.Equal(t, time.Second, second.Sub(first))

	c.Reset()
	assert.Equal(t, Epoch, c.Now())
}

func TestSequentialIDs(t *testing.T) {
	next := SequentialIDs("")
	assert.Equal(t, "run-0001", next())
	assert.Equal(t, "run-0002", next())

	other := SequentialIDs("scenario")
	assert.Equal(t, "scenario-0001", other())
}

func TestSequentialIDs_Concurrent(t *testing.T) {
	next := SequentialIDs("run")
	seen := make(map[string]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := next()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 50)
}

func TestFixedID(t *testing.T) {
	gen := FixedID("run-fixed")
	assert.Equal(t, "run-fixed", gen())
	assert.Equal(t, "run-fixed", gen())
}

func TestWriteTree(t *testing.T) {
	dir := WriteTree(t, map[string]string{
		"scenarios/a.yaml": "name: a\n",
		"main.swift":       "print(1)\n",
	})
	data, err := os.ReadFile(filepath.Join(dir, "scenarios", "a.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "name: a\n", string(data))
	assert.FileExists(t, filepath.Join(dir, "main.swift"))
}
