package utils

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()
	var (
		wg      sync.WaitGroup
		active  int
		maxSeen int
		counter sync.Mutex
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			km.ExecuteWithMutex("result/london", func() {
				counter.Lock()
				active++
				if active > maxSeen {
					maxSeen = active
				}
				counter.Unlock()

				counter.Lock()
				active--
				counter.Unlock()
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, km.len())
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	km := NewKeyedMutex()
	unlockA := km.Lock("a")

	done := make(chan struct{})
	go func() {
		km.ExecuteWithMutex("b", func() {})
		close(done)
	}()
	<-done

	assert.Equal(t, 1, km.len())
	unlockA()
	assert.Equal(t, 0, km.len())
}
