package globaltime

import (
	"sync"
	"time"
)

var (
	mu      sync.RWMutex
	nowFunc = time.Now
)

func Now() time.Time {
	mu.RLock()
	defer mu.RUnlock()
	return nowFunc()
}

func UTC() time.Time {
	return Now().UTC()
}

// SetMockTime pins the clock for tests.
func SetMockTime(t time.Time) {
	mu.Lock()
	defer mu.Unlock()
	nowFunc = func() time.Time { return t }
}

// Reset restores the real clock after a test that used SetMockTime.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	nowFunc = time.Now
}
