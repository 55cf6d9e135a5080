package cache

import (
	"sync"
	"testing"

	"github.com/estate360/positioner/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkerCache_NewMarkerCache(t *testing.T) {
	cache := NewMarkerCache()

	require.NotNil(t, cache)
	assert.NotNil(t, cache.markers)
	assert.Equal(t, 0, cache.Len())
}

func TestMarkerCache_SetAndGet(t *testing.T) {
	cache := NewMarkerCache()

	cache.Set("property:42", core.PropertyMarker{PropertyID: "42", Title: "Loft"})

	got, ok := cache.Get("property:42")
	require.True(t, ok, "expected to find property:42")
	assert.Equal(t, "42", got.PropertyID)
	assert.Equal(t, "Loft", got.Title)
}

func TestMarkerCache_Get_NotFound(t *testing.T) {
	cache := NewMarkerCache()

	_, ok := cache.Get("nonexistent")
	assert.False(t, ok, "expected not to find nonexistent marker")
}

func TestMarkerCache_Delete(t *testing.T) {
	cache := NewMarkerCache()

	cache.Set("property:1", core.PropertyMarker{PropertyID: "1"})
	cache.Set("property:2", core.PropertyMarker{PropertyID: "2"})

	cache.Delete("property:1")

	_, ok := cache.Get("property:1")
	assert.False(t, ok, "expected not to find property:1 after delete")

	_, ok = cache.Get("property:2")
	assert.True(t, ok, "expected property:2 to still exist")
}

func TestMarkerCache_Delete_NonExistent(t *testing.T) {
	cache := NewMarkerCache()
	cache.Delete("nonexistent")
	assert.Equal(t, 0, cache.Len())
}

func TestMarkerCache_IDsSorted(t *testing.T) {
	cache := NewMarkerCache()
	cache.Set("property:b", core.PropertyMarker{})
	cache.Set("property:a", core.PropertyMarker{})
	cache.Set("property:c", core.PropertyMarker{})

	assert.Equal(t, []string{"property:a", "property:b", "property:c"}, cache.IDs())
}

func TestMarkerCache_Reset(t *testing.T) {
	cache := NewMarkerCache()

	cache.Set("property:1", core.PropertyMarker{})
	cache.Set("property:2", core.PropertyMarker{})

	cache.Reset()

	assert.Equal(t, 0, cache.Len())
	assert.Empty(t, cache.IDs())
}

func TestMarkerCache_Concurrent(t *testing.T) {
	cache := NewMarkerCache()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			cache.Set("property:x", core.PropertyMarker{Title: "x"})
		}(i)
		go func() {
			defer wg.Done()
			cache.Get("property:x")
		}()
	}
	wg.Wait()

	_, ok := cache.Get("property:x")
	assert.True(t, ok)
}
