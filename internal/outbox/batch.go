package outbox

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Batch is one push of pending records. Key is derived from the exact record
// versions so a retried push carries the same idempotency key.
type Batch struct {
	Key     string   `json:"key"`
	Records []Record `json:"records"`
}

// NewBatch builds a batch for records
func NewBatch(records []Record) Batch {
	var b strings.Builder
	for _, r := range records {
		b.WriteString(string(r.Kind))
		b.WriteByte('/')
		b.WriteString(r.ID)
		b.WriteByte('@')
		b.WriteString(strconv.FormatInt(r.Revision, 10))
		b.WriteByte('\n')
	}

	return Batch{
		Key:     uuid.NewSHA1(uuid.NameSpaceOID, []byte(b.String())).String(),
		Records: records,
	}
}

// Chunk splits records into batches of at most size records. A size of zero
// or less yields a single batch.
func Chunk(records []Record, size int) []Batch {
	if len(records) == 0 {
		return nil
	}
	if size <= 0 || size >= len(records) {
		return []Batch{NewBatch(records)}
	}

	batches := make([]Batch, 0, (len(records)+size-1)/size)
	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		batches = append(batches, NewBatch(records[start:end]))
	}
	return batches
}
