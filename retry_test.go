package profiles

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadBackoffDoubles(t *testing.T) {
	var seen []time.Duration
	b := newLoadBackoff(100*time.Millisecond, 0, func(d time.Duration) { seen = append(seen, d) })

	for n := 1; n <= 12; n++ {
		d, stop := b.Next()
		assert.False(t, stop, "retry %d must not stop", n)
		// Nth retry waits 0.1s * 2^(N-1).
		assert.Equal(t, 100*time.Millisecond*time.Duration(1<<(n-1)), d, "retry %d", n)
	}
	assert.Len(t, seen, 12)
}

func TestLoadBackoffNeverStops(t *testing.T) {
	b := newLoadBackoff(time.Millisecond, 0, nil)
	for i := 0; i < 200; i++ {
		d, stop := b.Next()
		assert.False(t, stop)
		assert.Greater(t, d, time.Duration(0))
	}
}

func TestLoadBackoffCapped(t *testing.T) {
	b := newLoadBackoff(100*time.Millisecond, 300*time.Millisecond, nil)
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond, 300 * time.Millisecond}
	for _, w := range want {
		d, _ := b.Next()
		assert.Equal(t, w, d)
	}
}
