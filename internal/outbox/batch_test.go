package outbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBatchKeyIsStable(t *testing.T) {
	records := []Record{
		{ID: "food-1", Kind: kindFood, Revision: 1},
		{ID: "wt-1", Kind: kindWeight, Revision: 1},
	}

	a := NewBatch(records)
	b := NewBatch(records)
	assert.Equal(t, a.Key, b.Key)
	assert.Len(t, a.Key, 36)

	records[0].Revision = 2
	c := NewBatch(records)
	assert.NotEqual(t, a.Key, c.Key, "a new revision is a new batch")
}

func TestChunk(t *testing.T) {
	records := make([]Record, 5)
	for i := range records {
		records[i] = Record{ID: string(rune('a' + i)), Kind: kindFood, Revision: 1}
	}

	tests := []struct {
		name  string
		size  int
		sizes []int
	}{
		{"unbounded", 0, []int{5}},
		{"larger than input", 10, []int{5}},
		{"even split", 1, []int{1, 1, 1, 1, 1}},
		{"remainder", 2, []int{2, 2, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batches := Chunk(records, tt.size)
			require.Len(t, batches, len(tt.sizes))
			for i, n := range tt.sizes {
				assert.Len(t, batches[i].Records, n)
			}
		})
	}

	assert.Nil(t, Chunk(nil, 2))
}
