package reviews

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewCache(10, time.Hour)

	want := &ProfessorReview{ID: "p1", Name: "Teresa Leyk", Rating: 4.2}
	c.Put(ctx, "p1", want)

	got, ok := c.Get(ctx, "p1")
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestCacheMiss(t *testing.T) {
	c := NewCache(10, time.Hour)

	_, ok := c.Get(context.Background(), "absent")
	assert.False(t, ok)
}

func TestCacheCapacityEvictsLRU(t *testing.T) {
	ctx := context.Background()
	const max = 5
	c := NewCache(max, time.Hour)

	for i := 0; i < max+1; i++ {
		id := fmt.Sprintf("p%d", i)
		c.Put(ctx, id, &ProfessorReview{ID: id})
	}

	assert.Equal(t, max, c.Len())

	_, ok := c.Get(ctx, "p0")
	assert.False(t, ok, "least-recently-used entry should be evicted")

	for i := 1; i <= max; i++ {
		_, ok := c.Get(ctx, fmt.Sprintf("p%d", i))
		assert.True(t, ok)
	}
}

func TestCacheGetPromotesToMRU(t *testing.T) {
	ctx := context.Background()
	c := NewCache(2, time.Hour)

	c.Put(ctx, "a", &ProfessorReview{ID: "a"})
	c.Put(ctx, "b", &ProfessorReview{ID: "b"})

	// Touch "a" so "b" becomes the eviction candidate.
	_, ok := c.Get(ctx, "a")
	require.True(t, ok)

	c.Put(ctx, "c", &ProfessorReview{ID: "c"})

	_, ok = c.Get(ctx, "a")
	assert.True(t, ok)
	_, ok = c.Get(ctx, "b")
	assert.False(t, ok)
}

func TestCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewCache(10, time.Hour)

	now := time.Now()
	c.now = func() time.Time { return now }

	c.Put(ctx, "p1", &ProfessorReview{ID: "p1"})

	// Just inside the TTL.
	c.now = func() time.Time { return now.Add(time.Hour) }
	_, ok := c.Get(ctx, "p1")
	assert.True(t, ok)

	// Any moment past the TTL treats the entry as absent and deletes it.
	c.now = func() time.Time { return now.Add(time.Hour + time.Nanosecond) }
	_, ok = c.Get(ctx, "p1")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCacheOverwriteResetsAgeAndPromotes(t *testing.T) {
	ctx := context.Background()
	c := NewCache(2, time.Hour)

	now := time.Now()
	c.now = func() time.Time { return now }

	c.Put(ctx, "a", &ProfessorReview{ID: "a", Rating: 1.0})
	c.Put(ctx, "b", &ProfessorReview{ID: "b"})

	// Overwrite "a" near the end of its life; the age resets.
	c.now = func() time.Time { return now.Add(59 * time.Minute) }
	c.Put(ctx, "a", &ProfessorReview{ID: "a", Rating: 2.0})

	c.now = func() time.Time { return now.Add(118 * time.Minute) }
	got, ok := c.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, 2.0, got.Rating)

	// The overwrite also counted as an access, so "b" is evicted first.
	c.now = func() time.Time { return now }
	c.Put(ctx, "c", &ProfessorReview{ID: "c"})
	_, ok = c.Get(ctx, "b")
	assert.False(t, ok)
}

func TestCacheIdempotentReads(t *testing.T) {
	ctx := context.Background()
	c := NewCache(3, time.Hour)

	c.Put(ctx, "a", &ProfessorReview{ID: "a"})
	c.Put(ctx, "b", &ProfessorReview{ID: "b"})
	c.Put(ctx, "c", &ProfessorReview{ID: "c"})

	first, ok := c.Get(ctx, "b")
	require.True(t, ok)
	second, ok := c.Get(ctx, "b")
	require.True(t, ok)
	assert.Equal(t, first, second)

	// Eviction order relative to the other keys is unchanged: "a" is
	// still the oldest.
	c.Put(ctx, "d", &ProfessorReview{ID: "d"})
	_, ok = c.Get(ctx, "a")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "c")
	assert.True(t, ok)
}

func TestCacheConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	c := NewCache(50, time.Hour)

	done := make(chan struct{})
	for g := 0; g < 8; g++ {
		go func(g int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 200; i++ {
				id := fmt.Sprintf("p%d", (g*7+i)%100)
				c.Put(ctx, id, &ProfessorReview{ID: id})
				c.Get(ctx, id)
			}
		}(g)
	}
	for g := 0; g < 8; g++ {
		<-done
	}

	assert.LessOrEqual(t, c.Len(), 50)
}
