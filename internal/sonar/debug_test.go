package sonar

import (
	"io"
	"sync"
	"testing"
)

func TestSetLogWriters_ConcurrentWithLogging(t *testing.T) {
	defer SetLogWriters(nil, nil, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			SetLogWriters(io.Discard, io.Discard, io.Discard)
			SetLogWriters(nil, nil, nil)
		}
	}()

	for i := 0; i < 200; i++ {
		opsf("ops %d", i)
		diagf("diag %d", i)
		tracef("trace %d", i)
	}
	wg.Wait()
}
