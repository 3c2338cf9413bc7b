package parser

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/fumiama/go-docx"

	"github.com/dgallion1/docblocks/internal/doctree"
)

// emuPerPoint converts drawing extents (English Metric Units) to points.
const emuPerPoint = 12700

// DOCXDecoder reads .docx run properties: w:sz (half-points) gives the span
// size and w:b / w:i the style flags. Paragraphs styled HeadingN without an
// explicit size fall back to the heading size table. Inline pictures become
// image blocks.
type DOCXDecoder struct{}

func (d *DOCXDecoder) Decode(r io.Reader, filename string) (*doctree.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read docx: %w", err)
	}
	doc, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("parse docx: %w", err)
	}

	targets := make(map[string]string)
	doc.RangeRelationships(func(rel *docx.Relationship) error {
		targets[rel.ID] = rel.Target
		return nil
	})

	f := newFlow(titleFromFilename(filename))
	for _, item := range doc.Document.Body.Items {
		para, ok := item.(*docx.Paragraph)
		if !ok {
			continue
		}
		defSize, defFlags := bodySize, 0
		if level := docxHeadingLevel(para); level > 0 {
			defSize, defFlags = headingSize(level), doctree.FlagBold
		}

		var b spanBuilder
		var pictures []*docx.WPInline
		for _, child := range para.Children {
			switch c := child.(type) {
			case *docx.Run:
				pictures = append(pictures, docxRun(c, &b, defSize, defFlags)...)
			case *docx.Hyperlink:
				pictures = append(pictures, docxRun(&c.Run, &b, defSize, defFlags)...)
			}
		}
		if l, ok := b.line(); ok {
			f.text(l)
		}
		for _, pic := range pictures {
			data, w, h := docxPicture(doc, targets, pic)
			if data == nil {
				f.unknown(h)
				continue
			}
			f.image(data, w, h)
		}
	}
	return f.finish(), nil
}

// docxRun appends the run's text and returns any inline pictures it holds.
func docxRun(run *docx.Run, b *spanBuilder, defSize float64, defFlags int) []*docx.WPInline {
	size, flags := defSize, defFlags
	if rp := run.RunProperties; rp != nil {
		if rp.Size != nil {
			if half, err := strconv.ParseFloat(rp.Size.Val, 64); err == nil && half > 0 {
				size = half / 2
			}
		}
		if rp.Bold != nil {
			flags |= doctree.FlagBold
		}
		if rp.Italic != nil {
			flags |= doctree.FlagItalic
		}
	}

	var pictures []*docx.WPInline
	for _, rc := range run.Children {
		switch c := rc.(type) {
		case *docx.Text:
			b.add(c.Text, size, flags)
		case *docx.Tab, *docx.BarterRabbet:
			b.add(" ", size, flags)
		case *docx.Drawing:
			if c.Inline != nil {
				pictures = append(pictures, c.Inline)
			}
		}
	}
	return pictures
}

// docxPicture resolves an inline drawing to its media bytes and extent in
// points. Data is nil when the relationship or media entry is missing.
func docxPicture(doc *docx.Docx, targets map[string]string, pic *docx.WPInline) ([]byte, float64, float64) {
	var w, h float64
	if pic.Extent != nil {
		w, h = float64(pic.Extent.CX)/emuPerPoint, float64(pic.Extent.CY)/emuPerPoint
	}
	if h <= 0 {
		h = bodySize * lineLead
	}
	g := pic.Graphic
	if g == nil || g.GraphicData == nil || g.GraphicData.Pic == nil || g.GraphicData.Pic.BlipFill == nil {
		return nil, w, h
	}
	target, ok := targets[g.GraphicData.Pic.BlipFill.Blip.Embed]
	if !ok {
		return nil, w, h
	}
	m := doc.Media(path.Base(target))
	if m == nil || len(m.Data) == 0 {
		return nil, w, h
	}
	return m.Data, w, h
}

func docxHeadingLevel(para *docx.Paragraph) int {
	if para.Properties == nil || para.Properties.Style == nil {
		return 0
	}
	style := strings.ToLower(strings.ReplaceAll(para.Properties.Style.Val, " ", ""))
	if rest, ok := strings.CutPrefix(style, "heading"); ok {
		if level, err := strconv.Atoi(rest); err == nil && level >= 1 && level <= 6 {
			return level
		}
	}
	if style == "title" {
		return 1
	}
	return 0
}
