package receiver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestWaterfallKeepsMostRecentInOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 20).Draw(t, "capacity")
		n := rapid.IntRange(0, 100).Draw(t, "n")

		w := NewWaterfall(capacity)
		for i := 0; i < n; i++ {
			w.Push([]float32{float32(i)})
		}

		kept := n
		if kept > capacity {
			kept = capacity
		}
		rows := w.Rows()
		assert.Len(t, rows, kept)
		assert.Equal(t, kept, w.Len())
		for j, row := range rows {
			assert.Equal(t, float32(n-kept+j), row[0])
		}
	})
}

func TestWaterfallWrapStartsAfterLastOverwrite(t *testing.T) {
	w := NewWaterfall(3)
	for i := 0; i < 5; i++ {
		w.Push([]float32{float32(i)})
	}
	// slots hold [3 4 2]; the last write went to slot 1
	assert.Equal(t, [][]float32{{2}, {3}, {4}}, w.Rows())
	assert.Equal(t, [][]float32{{3}, {4}}, w.Latest(2))
	assert.Len(t, w.Latest(10), 3)
}

func TestWaterfallMinimumCapacity(t *testing.T) {
	w := NewWaterfall(0)
	assert.Equal(t, 1, w.Cap())
	w.Push([]float32{1})
	w.Push([]float32{2})
	assert.Equal(t, [][]float32{{2}}, w.Rows())
}
