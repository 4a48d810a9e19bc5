package chunks

import (
	"strings"

	"github.com/forPelevin/ytscribe/internal/types"
)

const DefaultGroupSize = 10

// Build partitions sentences into consecutive groups of groupSize. The last
// group holds the remainder. Each chunk's text is its sentences joined by a
// single space.
func Build(sentences []string, groupSize int) []types.Chunk {
	if groupSize <= 0 {
		groupSize = DefaultGroupSize
	}
	out := make([]types.Chunk, 0, (len(sentences)+groupSize-1)/groupSize)
	for i := 0; i < len(sentences); i += groupSize {
		end := min(i+groupSize, len(sentences))
		group := sentences[i:end:end]
		out = append(out, types.Chunk{
			Index:     len(out),
			Sentences: group,
			Text:      strings.Join(group, " "),
		})
	}
	return out
}
