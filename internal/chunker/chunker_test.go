package chunker

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/dgallion1/docblocks/internal/doctree"
)

func textBlock(ct doctree.ContentType, size int, styles ...doctree.Style) *doctree.TextBlock {
	return &doctree.TextBlock{
		Base:        doctree.NewBase(doctree.BBox{10, 20, 110, 40}, 0, 3, 2),
		Text:        "Quarterly results",
		FontSize:    size,
		FontStyles:  doctree.NewStyleSet(styles...),
		ContentType: ct,
	}
}

func TestEmit_TextTemplates(t *testing.T) {
	cases := map[doctree.ContentType]string{
		doctree.ContentHeading:    "Section: Quarterly results",
		doctree.ContentSubHeading: "Subsection: Quarterly results",
		doctree.ContentListItem:   "List item: Quarterly results",
		doctree.ContentFootnote:   "Note: Quarterly results",
		doctree.ContentBodyText:   "Quarterly results",
		doctree.ContentOther:      "Quarterly results",
		doctree.ContentMixed:      "Quarterly results",
	}
	for ct, want := range cases {
		c, ok := Emit(textBlock(ct, 12, doctree.StylePlain))
		if !ok {
			t.Fatalf("%s: expected chunk", ct)
		}
		if c.Content != want {
			t.Errorf("%s: expected %q, got %q", ct, want, c.Content)
		}
	}
}

func TestEmit_TextMetadata(t *testing.T) {
	c, _ := Emit(textBlock(doctree.ContentHeading, 18, doctree.StyleItalic, doctree.StyleBold))

	want := map[string]any{
		KeyPageNumber:  2,
		KeyCoordinates: []float64{10, 20, 110, 40},
		KeyFontStyles:  []string{"bold", "italic"},
		KeyContentType: "heading",
		KeyBlockType:   "text",
		KeyFontSize:    18,
	}
	if !reflect.DeepEqual(c.Metadata, want) {
		t.Errorf("expected metadata %v, got %v", want, c.Metadata)
	}
}

func TestEmit_MixedSizeOmitsFontSize(t *testing.T) {
	c, _ := Emit(textBlock(doctree.ContentMixed, doctree.MixedFontSize, doctree.StylePlain))
	if _, ok := c.Metadata[KeyFontSize]; ok {
		t.Errorf("expected no font_size key, got %v", c.Metadata[KeyFontSize])
	}
}

func TestEmit_Image(t *testing.T) {
	base := doctree.NewBase(doctree.BBox{0, 0, 50, 40}, 1, 2, 1)
	img := &doctree.ImageBlock{Base: base, Caption: "a cat sitting on a table", Size: base.Width * base.Height}

	c, ok := Emit(img)
	if !ok {
		t.Fatal("expected chunk for captioned image")
	}
	if c.Content != "Image description: a cat sitting on a table" {
		t.Errorf("unexpected content %q", c.Content)
	}
	want := map[string]any{
		KeyPageNumber:  1,
		KeyCoordinates: []float64{0, 0, 50, 40},
		KeyImageSize:   2000.0,
		KeyBlockType:   "image",
	}
	if !reflect.DeepEqual(c.Metadata, want) {
		t.Errorf("expected metadata %v, got %v", want, c.Metadata)
	}
}

func TestEmit_SkipsUnknownAndFailedCaptions(t *testing.T) {
	if _, ok := Emit(&doctree.UnknownBlock{}); ok {
		t.Error("expected unknown block to be skipped")
	}
	if _, ok := Emit(&doctree.ImageBlock{CaptionErr: errors.New("model offline")}); ok {
		t.Error("expected failed caption to be skipped")
	}
}

func TestEmit_Idempotent(t *testing.T) {
	blocks := []doctree.ContentBlock{
		textBlock(doctree.ContentFootnote, 8, doctree.StylePlain, doctree.StyleItalic),
		&doctree.ImageBlock{Base: doctree.NewBase(doctree.BBox{1, 2, 3, 4}, 0, 1, 1), Caption: "chart"},
	}
	for _, b := range blocks {
		first, _ := Emit(b)
		second, _ := Emit(b)
		if !reflect.DeepEqual(first, second) {
			t.Errorf("expected identical chunks, got %v and %v", first, second)
		}
		// Mutating one result must not leak into the next.
		first.Metadata[KeyPageNumber] = 99
		third, _ := Emit(b)
		if !reflect.DeepEqual(second, third) {
			t.Errorf("expected emit to return fresh metadata, got %v", third)
		}
	}
}

func TestEmitAll_Order(t *testing.T) {
	pages := [][]doctree.ContentBlock{
		{
			&doctree.TextBlock{Text: "one", ContentType: doctree.ContentBodyText, FontStyles: doctree.NewStyleSet()},
			&doctree.UnknownBlock{},
			&doctree.TextBlock{Text: "two", ContentType: doctree.ContentBodyText, FontStyles: doctree.NewStyleSet()},
		},
		{},
		{
			&doctree.ImageBlock{Caption: "three"},
		},
	}
	chunks := EmitAll(pages)
	var got []string
	for _, c := range chunks {
		got = append(got, c.Content)
	}
	want := []string{"one", "two", "Image description: three"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestBatch_RespectsTokenLimit(t *testing.T) {
	var chunks []doctree.Chunk
	for range 10 {
		chunks = append(chunks, doctree.Chunk{Content: strings.Repeat("word ", 30)}) // 39 tokens
	}
	batches := Batch(chunks, 100)

	total := 0
	for i, b := range batches {
		tokens := 0
		for _, c := range b {
			tokens += EstimateTokens(c.Content)
		}
		if tokens > 100 {
			t.Errorf("batch %d has %d tokens, over limit", i, tokens)
		}
		total += len(b)
	}
	if total != 10 {
		t.Errorf("expected all 10 chunks batched, got %d", total)
	}
	if len(batches) != 5 {
		t.Errorf("expected 5 batches of 2, got %d", len(batches))
	}
}

func TestBatch_OversizedChunkAlone(t *testing.T) {
	chunks := []doctree.Chunk{
		{Content: "small"},
		{Content: strings.Repeat("huge ", 500)},
		{Content: "small again"},
	}
	batches := Batch(chunks, 50)
	if len(batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(batches))
	}
	if len(batches[1]) != 1 {
		t.Errorf("expected oversized chunk alone, got %d chunks", len(batches[1]))
	}
}

func TestEstimateTokens(t *testing.T) {
	cases := map[string]int{
		"":                0,
		"   ":             1,
		"one":             1,
		"one two three":   3,
		"a b c d e f g h": 10,
	}
	for in, want := range cases {
		if got := EstimateTokens(in); got != want {
			t.Errorf("EstimateTokens(%q): expected %d, got %d", in, want, got)
		}
	}
}
