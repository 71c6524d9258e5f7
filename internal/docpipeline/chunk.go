package docpipeline

import "github.com/google/uuid"

// chunkWindow is the fixed chunk size in bytes, per spec.md §4.7 step 6.
const chunkWindow = 1000

// Position is a byte-offset span within a document's extracted text.
type Position struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// ChunkHeader is the value stored under chunks[docId:startOffset].
type ChunkHeader struct {
	ID       string   `json:"id"`
	Position Position `json:"position"`
}

// splitChunks windows text into fixed 1000-byte spans, snapping each
// interior boundary backward to the nearest UTF-8 rune start so that no
// chunk splits a multi-byte code point — the original Rust implementation
// is a pure byte-offset split (original_source's chunk_markdown) and spec.md
// §9 flags this as a redesign: implementations should snap to code-point
// boundaries.
func splitChunks(text string) []ChunkHeader {
	var chunks []ChunkHeader
	start := 0
	n := len(text)
	for start < n {
		end := start + chunkWindow
		if end > n {
			end = n
		} else {
			end = snapToRuneBoundary(text, end)
			if end <= start {
				end = start + chunkWindow
				if end > n {
					end = n
				}
			}
		}
		chunks = append(chunks, ChunkHeader{
			ID:       uuid.NewString(),
			Position: Position{Start: start, End: end},
		})
		start = end
	}
	return chunks
}

// snapToRuneBoundary walks backward from offset until it lands on a byte
// that is not a UTF-8 continuation byte (0b10xxxxxx).
func snapToRuneBoundary(text string, offset int) int {
	for offset > 0 && offset < len(text) && isContinuationByte(text[offset]) {
		offset--
	}
	return offset
}

func isContinuationByte(b byte) bool {
	return b&0xC0 == 0x80
}
