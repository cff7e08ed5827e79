package testing

import "testing"

// SkipIfShort skips container-backed tests under -short
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
}

// Concurrently runs fn n times on separate goroutines released at once and
// waits for all of them
func Concurrently(n int, fn func(i int)) {
	start := make(chan struct{})
	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer func() { done <- struct{}{} }()
			<-start
			fn(i)
		}(i)
	}
	close(start)
	for i := 0; i < n; i++ {
		<-done
	}
}
