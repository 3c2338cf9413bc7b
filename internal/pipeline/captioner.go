package pipeline

import (
	"context"
	"log/slog"

	"github.com/dgallion1/docblocks/internal/caption"
	"github.com/dgallion1/docblocks/internal/config"
)

// CaptionerFactory returns the captioner handle for one document.
type CaptionerFactory func() caption.Captioner

// Static returns a factory that hands out c for every document.
func Static(c caption.Captioner) CaptionerFactory {
	return func() caption.Captioner { return c }
}

// NewCaptionerFactory builds per-document captioners over one shared vision
// client. The client is checked lazily, on a document's first image, and
// the check result is kept for the rest of that document. Requests from all
// documents go through a single serial gate with retries. With captioning
// disabled every image fails with caption.ErrNoCaptioner and Stats is nil.
func NewCaptionerFactory(cfg config.Config, log *slog.Logger) (CaptionerFactory, *caption.Stats) {
	if log == nil {
		log = slog.Default()
	}
	if !cfg.CaptionEnabled {
		return Static(caption.Unavailable()), nil
	}

	vc := caption.NewVisionClient(cfg.CaptionBaseURL, cfg.CaptionAPIKey, cfg.CaptionModel, cfg.CaptionTimeout)
	shared := caption.Serial(RetryCaptioner(vc, log))

	factory := func() caption.Captioner {
		return caption.Lazy(func() (caption.Captioner, error) {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.CaptionTimeout)
			defer cancel()
			if err := vc.CheckModel(ctx); err != nil {
				log.Error("vision captioner unavailable", "model", vc.Model(), "error", err)
				return nil, err
			}
			return shared, nil
		})
	}
	return factory, vc.Stats
}
