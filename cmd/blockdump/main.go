// Command blockdump decodes a document locally and prints its font profile and
// content blocks, or its chunks as JSON lines.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/dgallion1/docblocks/internal/blocks"
	"github.com/dgallion1/docblocks/internal/caption"
	"github.com/dgallion1/docblocks/internal/chunker"
	"github.com/dgallion1/docblocks/internal/doctree"
	"github.com/dgallion1/docblocks/internal/fontprofile"
	"github.com/dgallion1/docblocks/internal/parser"
	"github.com/dgallion1/docblocks/internal/pipeline"
)

type options struct {
	chunks       bool
	captionURL   string
	captionModel string
	captionKey   string
	width        int
	workers      int
	pdftotext    bool
	verbose      bool
}

func main() {
	var opts options
	flag.BoolVar(&opts.chunks, "chunks", false, "print chunks as JSON lines instead of blocks")
	flag.StringVar(&opts.captionURL, "caption-url", "", "OpenAI-compatible vision endpoint for image captions")
	flag.StringVar(&opts.captionModel, "caption-model", "llava", "vision model name")
	flag.StringVar(&opts.captionKey, "caption-key", os.Getenv("CAPTION_API_KEY"), "vision endpoint API key")
	flag.IntVar(&opts.width, "width", 100, "truncate block text to this many columns")
	flag.IntVar(&opts.workers, "workers", 4, "pages built concurrently")
	flag.BoolVar(&opts.pdftotext, "pdftotext", true, "fall back to pdftotext for PDFs without a text layer")
	flag.BoolVar(&opts.verbose, "v", false, "log pipeline warnings to stderr")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: blockdump [flags] <file>\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	if err := run(context.Background(), flag.Arg(0), opts, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "blockdump:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, path string, opts options, out io.Writer) error {
	level := slog.LevelError
	if opts.verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	dec, err := parser.ForFile(path, parser.Options{PDFFallbackPdftotext: opts.pdftotext})
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	doc, err := dec.Decode(f, path)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	profile, err := fontprofile.Analyze(doc)
	if err != nil && !errors.Is(err, fontprofile.ErrEmptyDocument) {
		return fmt.Errorf("profile: %w", err)
	}

	builder := blocks.Builder{Captioner: newCaptioner(opts, log), Log: log}
	pages, err := builder.BuildDocument(ctx, doc, profile, opts.workers)
	if err != nil {
		return fmt.Errorf("build: %w", err)
	}

	if opts.chunks {
		enc := json.NewEncoder(out)
		for _, c := range chunker.EmitAll(pages) {
			if err := enc.Encode(c); err != nil {
				return err
			}
		}
		return nil
	}

	fmt.Fprintf(out, "%s (%d pages)\n\n", doc.Title, len(doc.Pages))
	printProfile(out, profile)
	for i, page := range pages {
		fmt.Fprintf(out, "\n-- page %d --\n", i+1)
		for _, b := range page {
			fmt.Fprintln(out, describe(b, opts.width))
		}
	}
	s := blocks.Summarize(pages)
	fmt.Fprintf(out, "\n%d blocks: %d text, %d image (%d uncaptioned), %d unknown\n",
		s.Blocks, s.TextBlocks, s.ImageBlocks, s.CaptionFailures, s.UnknownBlocks)
	return nil
}

func newCaptioner(opts options, log *slog.Logger) caption.Captioner {
	if opts.captionURL == "" {
		return caption.Unavailable()
	}
	vc := caption.NewVisionClient(opts.captionURL, opts.captionKey, opts.captionModel, 2*time.Minute)
	return caption.Lazy(func() (caption.Captioner, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := vc.CheckModel(ctx); err != nil {
			return nil, err
		}
		return caption.Serial(pipeline.RetryCaptioner(vc, log)), nil
	})
}

func printProfile(out io.Writer, p fontprofile.Profile) {
	if p.Len() == 0 {
		fmt.Fprintln(out, "no text")
		return
	}
	fmt.Fprintln(out, "size  freq%   role")
	for _, size := range p.Sizes() {
		e, _ := p.Entry(size)
		marker := ""
		if size == p.BodySize() {
			marker = " *"
		}
		fmt.Fprintf(out, "%4d  %6.2f  %s%s\n", size, e.Frequency, e.Role, marker)
	}
}

// describe renders one block as a single line no wider than width columns.
func describe(b doctree.ContentBlock, width int) string {
	g := b.Geometry()
	head := fmt.Sprintf("[%d/%d] %-7s (%.0f,%.0f %.0fx%.0f)", g.Position.Index, g.Position.Total, b.Kind(), g.X0, g.Y0, g.Width, g.Height)

	var body string
	switch v := b.(type) {
	case *doctree.TextBlock:
		size := fmt.Sprint(v.FontSize)
		if v.FontSize == doctree.MixedFontSize {
			size = "mixed"
		}
		body = fmt.Sprintf("%s %s %v: %s", v.ContentType, size, v.FontStyles.Sorted(), oneLine(v.Text))
	case *doctree.ImageBlock:
		if v.CaptionErr != nil {
			body = "caption failed: " + v.CaptionErr.Error()
		} else {
			body = oneLine(v.Caption)
		}
	}

	line := head
	if body != "" {
		line += " " + body
	}
	if width > 0 {
		line = runewidth.Truncate(line, width, "…")
	}
	return line
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
