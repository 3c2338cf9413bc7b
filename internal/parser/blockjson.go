package parser

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dgallion1/docblocks/internal/doctree"
)

// BlockJSONDecoder accepts block records that another tool (a MuPDF
// get_text("dict") dump, for instance) has already decoded:
//
//	{"title": "...", "pages": [{"number": 1, "blocks": [
//	  {"bbox": [x0,y0,x1,y1], "number": 0, "lines": [{"spans": [{"text": "...", "size": 12, "flags": 0}]}]},
//	  {"bbox": [...], "number": 1, "image": "<base64>"}
//	]}]}
//
// Record order is trusted as reading order. Missing keys are preserved so
// that malformed text records surface as structural errors downstream.
type BlockJSONDecoder struct{}

type wireDocument struct {
	Title string     `json:"title"`
	Pages []wirePage `json:"pages"`
}

type wirePage struct {
	Number int         `json:"number"`
	Blocks []wireBlock `json:"blocks"`
}

type wireBlock struct {
	BBox   []float64   `json:"bbox"`
	Number *int        `json:"number"`
	Index  *int        `json:"index"`
	Lines  *[]wireLine `json:"lines"`
	Image  *[]byte     `json:"image"`
}

type wireLine struct {
	Spans *[]wireSpan `json:"spans"`
}

type wireSpan struct {
	Text  *string  `json:"text"`
	Size  *float64 `json:"size"`
	Flags int      `json:"flags"`
}

func (d *BlockJSONDecoder) Decode(r io.Reader, filename string) (*doctree.Document, error) {
	var wd wireDocument
	dec := json.NewDecoder(r)
	if err := dec.Decode(&wd); err != nil {
		return nil, fmt.Errorf("decode block json: %w", err)
	}

	doc := &doctree.Document{Title: wd.Title}
	if doc.Title == "" {
		doc.Title = titleFromFilename(filename)
	}
	for pi, wp := range wd.Pages {
		page := doctree.Page{Number: wp.Number}
		if page.Number <= 0 {
			page.Number = pi + 1
		}
		for bi, wb := range wp.Blocks {
			page.Blocks = append(page.Blocks, wb.raw(bi))
		}
		doc.Pages = append(doc.Pages, page)
	}
	return doc, nil
}

func (wb wireBlock) raw(position int) doctree.RawBlock {
	rb := doctree.RawBlock{Index: position, Image: wb.Image}
	copy(rb.BBox[:], wb.BBox)
	switch {
	case wb.Number != nil:
		rb.Index = *wb.Number
	case wb.Index != nil:
		rb.Index = *wb.Index
	}
	if wb.Lines == nil {
		return rb
	}

	lines := make([]doctree.RawLine, 0, len(*wb.Lines))
	for _, wl := range *wb.Lines {
		if wl.Spans == nil {
			lines = append(lines, doctree.RawLine{})
			continue
		}
		spans := make([]doctree.RawSpan, 0, len(*wl.Spans))
		for _, ws := range *wl.Spans {
			rs := doctree.RawSpan{Size: ws.Size, Flags: ws.Flags}
			if ws.Text != nil {
				text := doctree.CleanText(*ws.Text)
				rs.Text = &text
			}
			spans = append(spans, rs)
		}
		lines = append(lines, doctree.RawLine{Spans: &spans})
	}
	rb.Lines = &lines
	return rb
}
