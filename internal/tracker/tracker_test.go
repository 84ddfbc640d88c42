package tracker

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClaim_GrantsUnseen(t *testing.T) {
	tr := New()
	granted := tr.Claim([]string{"a", "b", "c"})
	assert.Equal(t, []string{"a", "b", "c"}, granted)
}

func TestClaim_SkipsInFlight(t *testing.T) {
	tr := New()
	tr.Claim([]string{"a", "b"})
	granted := tr.Claim([]string{"a", "b", "c"})
	assert.Equal(t, []string{"c"}, granted)
}

func TestClaim_SkipsDone(t *testing.T) {
	tr := New()
	tr.Claim([]string{"a"})
	tr.Release([]string{"a"})
	assert.Empty(t, tr.Claim([]string{"a"}))
}

func TestRelease_MovesToDone(t *testing.T) {
	tr := New()
	tr.Claim([]string{"a"})
	tr.Release([]string{"a"})
	assert.False(t, tr.InFlight([]string{"a"}))
	assert.Empty(t, tr.Claim([]string{"a"}))
}

func TestInFlight(t *testing.T) {
	tr := New()
	tr.Claim([]string{"a"})
	assert.True(t, tr.InFlight([]string{"a", "b"}))
	assert.False(t, tr.InFlight([]string{"b"}))
}

func TestClaim_AtMostOnceUnderConcurrency(t *testing.T) {
	tr := New()
	ids := []string{"p1", "p2", "p3", "p4", "p5"}

	var mu sync.Mutex
	counts := make(map[string]int)
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			granted := tr.Claim(ids)
			mu.Lock()
			for _, id := range granted {
				counts[id]++
			}
			mu.Unlock()
			tr.Release(granted)
		}()
	}
	wg.Wait()

	for id, n := range counts {
		assert.Equal(t, 1, n, "provider %s claimed more than once", id)
	}
}
