// Package chunker derives retrieval chunks from content blocks.
package chunker

import (
	"github.com/dgallion1/docblocks/internal/doctree"
)

// Metadata keys attached to every chunk.
const (
	KeyPageNumber  = "page_number"
	KeyCoordinates = "coordinates_on_page"
	KeyFontStyles  = "font_styles"
	KeyFontSize    = "font_size"
	KeyContentType = "content_type"
	KeyImageSize   = "image_size"
	KeyBlockType   = "block_type"
)

var contentPrefix = map[doctree.ContentType]string{
	doctree.ContentHeading:    "Section: ",
	doctree.ContentSubHeading: "Subsection: ",
	doctree.ContentListItem:   "List item: ",
	doctree.ContentFootnote:   "Note: ",
}

// Emit derives the chunk for one block. It reports false for blocks that are
// never indexed: unknown records and images whose caption failed.
// Repeated calls on the same block return equal chunks.
func Emit(b doctree.ContentBlock) (doctree.Chunk, bool) {
	switch v := b.(type) {
	case *doctree.TextBlock:
		return textChunk(v), true
	case *doctree.ImageBlock:
		if v.CaptionErr != nil {
			return doctree.Chunk{}, false
		}
		return imageChunk(v), true
	default:
		return doctree.Chunk{}, false
	}
}

func baseMetadata(b doctree.Base, blockType string) map[string]any {
	return map[string]any{
		KeyPageNumber:  b.Page,
		KeyCoordinates: b.Coordinates(),
		KeyBlockType:   blockType,
	}
}

func textChunk(b *doctree.TextBlock) doctree.Chunk {
	md := baseMetadata(b.Base, b.Kind())
	md[KeyFontStyles] = b.FontStyles.Sorted()
	md[KeyContentType] = string(b.ContentType)
	// A mixed-size block has no single size to report.
	if b.FontSize != doctree.MixedFontSize {
		md[KeyFontSize] = b.FontSize
	}
	return doctree.Chunk{
		Content:  contentPrefix[b.ContentType] + b.Text,
		Metadata: md,
	}
}

func imageChunk(b *doctree.ImageBlock) doctree.Chunk {
	md := baseMetadata(b.Base, b.Kind())
	md[KeyImageSize] = b.Size
	return doctree.Chunk{
		Content:  "Image description: " + b.Caption,
		Metadata: md,
	}
}

// EmitAll emits every page's blocks in page order, then block order, skipping
// blocks Emit rejects.
func EmitAll(pages [][]doctree.ContentBlock) []doctree.Chunk {
	var chunks []doctree.Chunk
	for _, blocks := range pages {
		for _, b := range blocks {
			if c, ok := Emit(b); ok {
				chunks = append(chunks, c)
			}
		}
	}
	return chunks
}

// DefaultBatchTokens is the batch limit used when none is configured.
const DefaultBatchTokens = 4000

// Batch splits chunks into consecutive groups whose estimated token total
// stays under maxTokens. A chunk larger than the limit gets a batch of its own.
func Batch(chunks []doctree.Chunk, maxTokens int) [][]doctree.Chunk {
	if maxTokens <= 0 {
		maxTokens = DefaultBatchTokens
	}
	var (
		batches [][]doctree.Chunk
		current []doctree.Chunk
		tokens  int
	)
	for _, c := range chunks {
		n := EstimateTokens(c.Content)
		if len(current) > 0 && tokens+n > maxTokens {
			batches = append(batches, current)
			current, tokens = nil, 0
		}
		current = append(current, c)
		tokens += n
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}
