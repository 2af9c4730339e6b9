package smartbatch

import "fmt"

// Chunk partitions items into consecutive runs of size elements; the final
// run is shorter when the length is not a multiple. The runs are subslices
// of the input, not copies, so callers must not append through them.
// Concatenating the runs reproduces the input exactly. A size below one is
// a configuration error; an empty input yields no runs.
func Chunk[T any](items []T, size int) ([][]T, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: chunk size must be at least 1, got %d", ErrConfiguration, size)
	}
	if len(items) == 0 {
		return nil, nil
	}

	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks, nil
}
