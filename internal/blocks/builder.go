// Package blocks turns decoded page records into typed, classified content blocks.
package blocks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/docblocks/internal/caption"
	"github.com/dgallion1/docblocks/internal/classify"
	"github.com/dgallion1/docblocks/internal/doctree"
	"github.com/dgallion1/docblocks/internal/fontprofile"
)

// Builder builds content blocks for one document at a time. The profile
// passed to BuildPage must already be final.
type Builder struct {
	// Captioner describes image records. Nil means every image fails with
	// caption.ErrNoCaptioner.
	Captioner caption.Captioner
	Log       *slog.Logger
}

func (b *Builder) logger() *slog.Logger {
	if b.Log != nil {
		return b.Log
	}
	return slog.Default()
}

func (b *Builder) captioner() caption.Captioner {
	if b.Captioner != nil {
		return b.Captioner
	}
	return caption.Unavailable()
}

// BuildPage converts the records of one page, in the order given, into content
// blocks. A malformed text record aborts the page with a *doctree.StructuralError;
// caption failures and unknown records do not.
func (b *Builder) BuildPage(ctx context.Context, raws []doctree.RawBlock, page int, p fontprofile.Profile) ([]doctree.ContentBlock, error) {
	log := b.logger().With("page", page)
	total := len(raws)
	out := make([]doctree.ContentBlock, 0, total)

	for _, raw := range raws {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := raw.Record()
		if err != nil {
			var se *doctree.StructuralError
			if errors.As(err, &se) {
				se.Page = page
			}
			return nil, err
		}

		switch r := rec.(type) {
		case doctree.TextRecord:
			out = append(out, textBlock(r, page, total, p))
		case doctree.ImageRecord:
			out = append(out, b.imageBlock(ctx, r, page, total, log))
		case doctree.UnknownRecord:
			log.Warn("unrecognized block record, skipping", "index", r.Index)
			out = append(out, &doctree.UnknownBlock{Base: doctree.NewBase(r.BBox, r.Index, total, page)})
		}
	}
	return out, nil
}

func textBlock(r doctree.TextRecord, page, total int, p fontprofile.Profile) *doctree.TextBlock {
	var parts []string
	styles := doctree.NewStyleSet()
	size, seen := 0, false
	for _, line := range r.Lines {
		for _, span := range line.Spans {
			parts = append(parts, span.Text)
			styles.Add(span.Style())
			s := int(span.Size)
			switch {
			case !seen:
				size, seen = s, true
			case s != size:
				size = doctree.MixedFontSize
			}
		}
	}
	text := strings.TrimSpace(strings.Join(parts, " "))

	return &doctree.TextBlock{
		Base:        doctree.NewBase(r.BBox, r.Index, total, page),
		Text:        text,
		FontSize:    size,
		FontStyles:  styles,
		ContentType: classify.Classify(text, styles, size, p),
	}
}

func (b *Builder) imageBlock(ctx context.Context, r doctree.ImageRecord, page, total int, log *slog.Logger) *doctree.ImageBlock {
	base := doctree.NewBase(r.BBox, r.Index, total, page)
	ib := &doctree.ImageBlock{Base: base, Size: base.Width * base.Height}

	text, err := b.captioner().Caption(ctx, r.Image)
	if err != nil {
		ib.CaptionErr = &caption.Error{Page: page, Block: r.Index, Err: err}
		log.Error("caption failed", "index", r.Index, "bytes", len(r.Image), "error", err)
		return ib
	}
	ib.Caption = text
	return ib
}

// BuildDocument builds every page of doc. Pages run concurrently on up to
// workers goroutines and the result keeps page order. The first structural
// error cancels the remaining pages and no partial result is returned.
func (b *Builder) BuildDocument(ctx context.Context, doc *doctree.Document, p fontprofile.Profile, workers int) ([][]doctree.ContentBlock, error) {
	if workers <= 0 {
		workers = 1
	}
	pages := make([][]doctree.ContentBlock, len(doc.Pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, pg := range doc.Pages {
		g.Go(func() error {
			built, err := b.BuildPage(gctx, pg.Blocks, pg.Number, p)
			if err != nil {
				return fmt.Errorf("page %d: %w", pg.Number, err)
			}
			pages[i] = built
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pages, nil
}

// Summary counts block kinds across built pages.
type Summary struct {
	Pages           int `json:"pages"`
	Blocks          int `json:"blocks"`
	TextBlocks      int `json:"text_blocks"`
	ImageBlocks     int `json:"image_blocks"`
	UnknownBlocks   int `json:"unknown_blocks"`
	CaptionFailures int `json:"caption_failures"`
}

func Summarize(pages [][]doctree.ContentBlock) Summary {
	s := Summary{Pages: len(pages)}
	for _, blocks := range pages {
		for _, blk := range blocks {
			s.Blocks++
			switch v := blk.(type) {
			case *doctree.TextBlock:
				s.TextBlocks++
			case *doctree.ImageBlock:
				s.ImageBlocks++
				if v.CaptionErr != nil {
					s.CaptionFailures++
				}
			case *doctree.UnknownBlock:
				s.UnknownBlocks++
			}
		}
	}
	return s
}
