package pipeline

import (
	"github.com/oklog/ulid/v2"
)

// generateULID returns a new job or document ID. Entropy is monotonic within
// a millisecond, so IDs from one process sort by creation order.
func generateULID() string {
	return ulid.Make().String()
}
