package workspace

import "strings"

// Chunking defaults: overlapping word windows sized so neighboring chunks
// share enough context for retrieval without duplicating whole documents.
const (
	// DefaultChunkWords is the target window size in words.
	DefaultChunkWords = 800

	// DefaultChunkOverlap is the fraction of each window shared with the
	// next one.
	DefaultChunkOverlap = 0.15

	// MinChunkWords is the smallest standalone chunk; a shorter tail is
	// folded into the previous window instead.
	MinChunkWords = 50
)

// ChunkSpan is one window of a chunked document, ordered by Index.
type ChunkSpan struct {
	Index     int
	Content   string
	WordCount int
}

// ChunkWords splits content into overlapping word windows. The zero values
// of targetWords and overlap select the package defaults. Chunk indexes are
// 0-based and dense.
func ChunkWords(content string, targetWords int, overlap float64) []ChunkSpan {
	if targetWords <= 0 {
		targetWords = DefaultChunkWords
	}
	if overlap <= 0 || overlap >= 1 {
		overlap = DefaultChunkOverlap
	}
	words := strings.Fields(content)
	if len(words) == 0 {
		return nil
	}
	if len(words) <= targetWords {
		return []ChunkSpan{{Index: 0, Content: strings.Join(words, " "), WordCount: len(words)}}
	}

	step := targetWords - int(float64(targetWords)*overlap)
	if step < 1 {
		step = 1
	}

	var spans []ChunkSpan
	for start := 0; start < len(words); start += step {
		end := start + targetWords
		if end > len(words) {
			end = len(words)
		}
		window := words[start:end]
		if len(window) < MinChunkWords && len(spans) > 0 {
			// Fold a short tail into the previous window rather than
			// emitting a fragment too small to retrieve on its own.
			prev := &spans[len(spans)-1]
			prevStart := (len(spans) - 1) * step
			merged := words[prevStart:]
			prev.Content = strings.Join(merged, " ")
			prev.WordCount = len(merged)
			break
		}
		spans = append(spans, ChunkSpan{
			Index:     len(spans),
			Content:   strings.Join(window, " "),
			WordCount: len(window),
		})
		if end == len(words) {
			break
		}
	}
	return spans
}
