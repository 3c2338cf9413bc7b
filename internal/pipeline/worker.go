package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgallion1/docblocks/internal/blocks"
	"github.com/dgallion1/docblocks/internal/caption"
	"github.com/dgallion1/docblocks/internal/chunker"
	"github.com/dgallion1/docblocks/internal/config"
	"github.com/dgallion1/docblocks/internal/doctree"
	"github.com/dgallion1/docblocks/internal/fontprofile"
	"github.com/dgallion1/docblocks/internal/parser"
)

// Indexer receives emitted chunks. *index.Client implements it.
type Indexer interface {
	PutChunks(ctx context.Context, docID, title string, chunks []doctree.Chunk) (int, error)
	DeleteDocument(ctx context.Context, docID string) error
}

// Worker processes a single document job.
type Worker struct {
	captioners CaptionerFactory
	index      Indexer
	jobs       *JobStore
	log        *slog.Logger

	pageWorkers    int
	allowImageOnly bool
	parserOpts     parser.Options
}

// NewWorker builds a worker. ix may be nil to skip indexing; jobs may be nil
// to skip duplicate detection.
func NewWorker(cfg config.Config, captioners CaptionerFactory, ix Indexer, jobs *JobStore, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		captioners:     captioners,
		index:          ix,
		jobs:           jobs,
		log:            log,
		pageWorkers:    cfg.PageWorkers,
		allowImageOnly: cfg.AllowImageOnly,
		parserOpts:     parser.Options{PDFFallbackPdftotext: cfg.PDFFallbackPdftotext},
	}
}

// Process runs the full ingest pipeline for a job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "doc_id", job.DocID)
	defer job.SetFileData(nil)

	res := job.Result()
	res.Clear()

	// Phase 1: Decode
	job.SetStatus(StatusDecoding, "decoding")
	dec, err := parser.ForFile(job.Filename, w.parserOpts)
	if err != nil {
		w.fail(job, log, "decoding", err)
		return
	}
	doc, err := dec.Decode(bytes.NewReader(job.FileData()), job.Filename)
	if err != nil {
		w.fail(job, log, "decoding", err)
		return
	}
	if job.Title != "" {
		doc.Title = job.Title
	}
	job.SetPages(len(doc.Pages))
	log.Info("decoded document", "pages", len(doc.Pages), "title", doc.Title)

	// Phase 1.5: Dedup check on the decoded text
	hashInput := []byte(documentText(doc))
	if len(hashInput) == 0 {
		hashInput = job.FileData()
	}
	job.setContentHash(ContentHashHex(hashInput))
	if w.jobs != nil {
		if dup := w.jobs.FindByHash(job.ContentHash, job.ID); dup != nil {
			log.Info("duplicate document, skipping", "existing_job_id", dup.ID)
			job.markDuplicate(dup.ID)
			return
		}
	}

	// Phase 2: Profile
	job.SetStatus(StatusProfiling, "profiling")
	profile, err := fontprofile.Analyze(doc)
	switch {
	case errors.Is(err, fontprofile.ErrEmptyDocument) && w.allowImageOnly:
		log.Info("document has no text, continuing with an empty profile")
	case err != nil:
		w.fail(job, log, "profiling", err)
		return
	}
	if err := res.SetProfile(profile); err != nil {
		w.fail(job, log, "profiling", err)
		return
	}

	// Phase 3: Build blocks
	job.SetStatus(StatusBuilding, "building")
	var captioner caption.Captioner
	if w.captioners != nil {
		captioner = w.captioners()
	}
	builder := blocks.Builder{Captioner: captioner, Log: log}
	pages, err := builder.BuildDocument(ctx, doc, profile, w.pageWorkers)
	if err != nil {
		res.Clear()
		w.fail(job, log, "building", err)
		return
	}
	summary := blocks.Summarize(pages)
	job.SetBlockSummary(summary)
	if err := res.SetBlocks(pages); err != nil {
		w.fail(job, log, "building", err)
		return
	}
	log.Info("built blocks", "blocks", summary.Blocks, "unknown", summary.UnknownBlocks, "caption_failures", summary.CaptionFailures)

	// Phase 4: Chunk
	job.SetStatus(StatusChunking, "chunking")
	chunks := chunker.EmitAll(pages)
	if err := res.SetChunks(chunks); err != nil {
		w.fail(job, log, "chunking", err)
		return
	}
	job.SetChunks(len(chunks))
	if len(chunks) == 0 {
		log.Warn("no chunks produced")
		job.AddError("no extractable content")
		job.SetStatus(StatusFailed, "chunking")
		return
	}

	hadErrors := false
	if summary.CaptionFailures > 0 {
		job.AddError(fmt.Sprintf("%d image(s) could not be captioned", summary.CaptionFailures))
		hadErrors = true
	}

	// Phase 5: Index
	if w.index != nil {
		job.SetStatus(StatusIndexing, "indexing")
		indexed, err := w.indexChunks(ctx, job, doc.Title, chunks, log)
		if err != nil {
			log.Error("index failed", "indexed", indexed, "error", err)
			job.AddError(fmt.Sprintf("indexing: %s", err))
			if indexed == 0 {
				job.SetStatus(StatusFailed, "indexing")
				return
			}
			hadErrors = true
		}
		log.Info("indexed chunks", "indexed", indexed, "total", len(chunks))
	}

	if hadErrors {
		job.SetStatus(StatusPartial, "done")
	} else {
		job.SetStatus(StatusCompleted, "done")
	}
}

// indexChunks pushes chunks, resuming after the last accepted batch when a
// retryable error interrupts the upload.
func (w *Worker) indexChunks(ctx context.Context, job *Job, title string, chunks []doctree.Chunk, log *slog.Logger) (int, error) {
	indexed := 0
	for attempt := 0; ; attempt++ {
		n, err := w.index.PutChunks(ctx, job.DocID, title, chunks[indexed:])
		indexed += n
		job.AddIndexed(n)
		if err == nil {
			return indexed, nil
		}
		if !IsRetryable(err) || attempt+1 >= MaxRetries {
			return indexed, err
		}
		log.Warn("retryable index error", "attempt", attempt, "indexed", indexed, "error", err)
		if err := sleepCtx(ctx, backoff(attempt)); err != nil {
			return indexed, err
		}
	}
}

func (w *Worker) fail(job *Job, log *slog.Logger, phase string, err error) {
	log.Error(phase+" failed", "error", err)
	job.AddError(fmt.Sprintf("%s: %s", phase, err))
	job.SetStatus(StatusFailed, phase)
}

// documentText joins every span of every well-formed text record for hashing.
func documentText(doc *doctree.Document) string {
	var sb strings.Builder
	for _, page := range doc.Pages {
		for _, raw := range page.Blocks {
			rec, err := raw.Record()
			if err != nil {
				continue
			}
			tr, ok := rec.(doctree.TextRecord)
			if !ok {
				continue
			}
			for _, line := range tr.Lines {
				for _, span := range line.Spans {
					if sb.Len() > 0 {
						sb.WriteString("\n")
					}
					sb.WriteString(span.Text)
				}
			}
		}
	}
	return sb.String()
}
