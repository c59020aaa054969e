package rag

// DefaultChunkSize is the maximum chunk length in characters.
const DefaultChunkSize = 800

// Chunk splits text into contiguous, non-overlapping pieces of at most size
// characters (Unicode code points). Boundaries are purely positional and may
// fall mid-word; joining the chunks reproduces text exactly.
func Chunk(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if text == "" {
		return nil
	}

	chunks := make([]string, 0, len(text)/size+1)
	start, count := 0, 0
	for i := range text {
		if count == size {
			chunks = append(chunks, text[start:i])
			start, count = i, 0
		}
		count++
	}
	return append(chunks, text[start:])
}
