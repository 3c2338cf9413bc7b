package parser

import (
	"bytes"
	"strings"
	"testing"

	"github.com/dgallion1/docblocks/internal/doctree"
)

const sampleMarkdown = `# Quarterly Report

Intro with **bold words** and *italic*.

- first bullet
- second bullet

1. step one
2. step two

![chart](data:image/png;base64,iVBORw0KGgo=)

![remote](https://example.com/a.png)

    code line
`

func TestMarkdownDecoder_Blocks(t *testing.T) {
	doc, err := (&MarkdownDecoder{}).Decode(strings.NewReader(sampleMarkdown), "docs/report.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Title != "report" {
		t.Errorf("expected title from filename, got %q", doc.Title)
	}
	if len(doc.Pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(doc.Pages))
	}
	recs := pageRecords(t, doc.Pages[0])
	if len(recs) != 9 {
		t.Fatalf("expected 9 blocks, got %d", len(recs))
	}

	heading := spans(recs[0])
	if len(heading) != 1 || heading[0].Text != "Quarterly Report" || heading[0].Size != 24 || heading[0].Flags != doctree.FlagBold {
		t.Errorf("unexpected heading spans: %+v", heading)
	}

	para := spans(recs[1])
	wantText := []string{"Intro with", "bold words", "and", "italic", "."}
	wantFlags := []int{0, doctree.FlagBold, 0, doctree.FlagItalic, 0}
	if len(para) != len(wantText) {
		t.Fatalf("expected %d paragraph spans, got %+v", len(wantText), para)
	}
	for i, s := range para {
		if s.Text != wantText[i] || s.Flags != wantFlags[i] || s.Size != bodySize {
			t.Errorf("span %d: expected %q flags %d, got %+v", i, wantText[i], wantFlags[i], s)
		}
	}

	for i, want := range []string{"• first bullet", "• second bullet", "1. step one", "2. step two"} {
		if got := blockText(recs[2+i]); got != want {
			t.Errorf("list block %d: expected %q, got %q", i, want, got)
		}
	}

	img, ok := recs[6].(doctree.ImageRecord)
	if !ok {
		t.Fatalf("expected image record, got %T", recs[6])
	}
	if !bytes.Equal(img.Image, []byte("\x89PNG\r\n\x1a\n")) {
		t.Errorf("unexpected image bytes: %q", img.Image)
	}
	if !near(img.BBox[2]-img.BBox[0], 200) || !near(img.BBox[3]-img.BBox[1], 150) {
		t.Errorf("expected default 200x150 box, got %v", img.BBox)
	}

	if _, ok := recs[7].(doctree.UnknownRecord); !ok {
		t.Errorf("expected remote image to be unknown, got %T", recs[7])
	}

	code := spans(recs[8])
	if len(code) != 1 || code[0].Text != "code line" || code[0].Size != codeSize {
		t.Errorf("unexpected code spans: %+v", code)
	}
}

func TestMarkdownDecoder_ReadingOrder(t *testing.T) {
	doc, err := (&MarkdownDecoder{}).Decode(strings.NewReader(sampleMarkdown), "r.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	blocks := doc.Pages[0].Blocks
	for i := 1; i < len(blocks); i++ {
		if blocks[i].BBox[1] < blocks[i-1].BBox[3] {
			t.Errorf("block %d starts above block %d", i, i-1)
		}
	}
}

func TestMarkdownDecoder_HeadingLevels(t *testing.T) {
	src := "# One\n\n## Two\n\n### Three\n\n###### Six\n"
	doc, err := (&MarkdownDecoder{}).Decode(strings.NewReader(src), "h.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	recs := pageRecords(t, doc.Pages[0])
	want := []float64{24, 20, 16, 13}
	if len(recs) != len(want) {
		t.Fatalf("expected %d blocks, got %d", len(want), len(recs))
	}
	for i, r := range recs {
		if s := spans(r); s[0].Size != want[i] {
			t.Errorf("heading %d: expected size %v, got %v", i, want[i], s[0].Size)
		}
	}
}

func TestMarkdownDecoder_SpillsPages(t *testing.T) {
	var src strings.Builder
	for range 120 {
		src.WriteString("A short paragraph that fills the page.\n\n")
	}
	doc, err := (&MarkdownDecoder{}).Decode(strings.NewReader(src.String()), "long.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(doc.Pages) < 2 {
		t.Fatalf("expected several pages, got %d", len(doc.Pages))
	}
	total := 0
	for _, p := range doc.Pages {
		total += len(p.Blocks)
	}
	if total != 120 {
		t.Errorf("expected 120 blocks, got %d", total)
	}
}
