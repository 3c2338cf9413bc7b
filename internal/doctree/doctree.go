// Package doctree holds the document model shared by decoders, the block
// builder and the chunk emitter.
package doctree

import (
	"encoding/json"
	"math"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Style is a span style tag.
type Style string

const (
	StylePlain   Style = "plain"
	StyleItalic  Style = "italic"
	StyleBold    Style = "bold"
	StyleUnknown Style = "unknown"
)

// StyleOf maps span flag bits to a style tag. Only the italic and bold bits
// are considered; both set at once is reported as unknown.
func StyleOf(flags int) Style {
	italic := flags&FlagItalic != 0
	bold := flags&FlagBold != 0
	switch {
	case italic && bold:
		return StyleUnknown
	case bold:
		return StyleBold
	case italic:
		return StyleItalic
	default:
		return StylePlain
	}
}

// StyleSet is an unordered set of style tags.
type StyleSet map[Style]struct{}

// NewStyleSet returns a set holding the given styles.
func NewStyleSet(styles ...Style) StyleSet {
	s := make(StyleSet, len(styles))
	for _, st := range styles {
		s[st] = struct{}{}
	}
	return s
}

func (s StyleSet) Add(st Style) { s[st] = struct{}{} }

func (s StyleSet) Has(st Style) bool {
	_, ok := s[st]
	return ok
}

// Sorted returns the style tags in lexical order.
func (s StyleSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for st := range s {
		out = append(out, string(st))
	}
	sort.Strings(out)
	return out
}

func (s StyleSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// ContentType is the semantic role of a text block.
type ContentType string

const (
	ContentHeading    ContentType = "heading"
	ContentSubHeading ContentType = "sub_heading"
	ContentBodyText   ContentType = "body_text"
	ContentFootnote   ContentType = "footnote"
	ContentOther      ContentType = "other"
	ContentListItem   ContentType = "list_item"
	ContentMixed      ContentType = "mixed_content"
)

// MixedFontSize marks a text block whose spans use more than one size.
const MixedFontSize = -1

// Position is a block's 1-based place among all blocks on its page.
type Position struct {
	Index int `json:"index"`
	Total int `json:"total"`
}

// Base carries the geometry shared by every content block.
type Base struct {
	X0       float64  `json:"x0"`
	Y0       float64  `json:"y0"`
	X1       float64  `json:"x1"`
	Y1       float64  `json:"y1"`
	Width    float64  `json:"width"`
	Height   float64  `json:"height"`
	Position Position `json:"page_position"`
	Page     int      `json:"page"`
}

// NewBase rounds the box to two decimals and derives width and height.
func NewBase(bbox BBox, index, total, page int) Base {
	b := Base{
		X0:       Round2(bbox[0]),
		Y0:       Round2(bbox[1]),
		X1:       Round2(bbox[2]),
		Y1:       Round2(bbox[3]),
		Position: Position{Index: index + 1, Total: total},
		Page:     page,
	}
	b.Width = Round2(b.X1 - b.X0)
	b.Height = Round2(b.Y1 - b.Y0)
	return b
}

// Coordinates returns [x0, y0, x1, y1].
func (b Base) Coordinates() []float64 {
	return []float64{b.X0, b.Y0, b.X1, b.Y1}
}

// ContentBlock is one typed unit of page content.
type ContentBlock interface {
	Geometry() Base
	Kind() string
}

// TextBlock is a classified run of text.
type TextBlock struct {
	Base
	Text        string      `json:"text"`
	FontSize    int         `json:"font_size"`
	FontStyles  StyleSet    `json:"font_styles"`
	ContentType ContentType `json:"content_type"`
}

// ImageBlock is an embedded raster with its caption. CaptionErr is set when
// the captioner failed for this image.
type ImageBlock struct {
	Base
	Caption    string  `json:"caption"`
	Size       float64 `json:"size"`
	CaptionErr error   `json:"-"`
}

// UnknownBlock keeps the page position of a record that is neither text nor image.
type UnknownBlock struct {
	Base
}

func (b *TextBlock) Geometry() Base    { return b.Base }
func (b *ImageBlock) Geometry() Base   { return b.Base }
func (b *UnknownBlock) Geometry() Base { return b.Base }

func (b *TextBlock) Kind() string    { return "text" }
func (b *ImageBlock) Kind() string   { return "image" }
func (b *UnknownBlock) Kind() string { return "unknown" }

// Chunk is a retrieval-ready unit. Metadata values are flat primitives or
// flat lists of primitives.
type Chunk struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// CleanText NFC-normalizes decoder text so composed and decomposed forms
// count and compare the same.
func CleanText(s string) string {
	return norm.NFC.String(strings.ToValidUTF8(s, ""))
}
