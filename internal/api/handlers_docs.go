package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/docblocks/internal/doctree"
	"github.com/dgallion1/docblocks/internal/pipeline"
)

// jobResult resolves the job named in the URL, writing a 404 when it is gone.
func (s *Server) jobResult(w http.ResponseWriter, r *http.Request) (*pipeline.Job, *pipeline.Result, bool) {
	job := s.orchestrator.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return nil, nil, false
	}
	return job, job.Result(), true
}

// notReady answers 409 with the job's status while a stage has not run yet.
func notReady(w http.ResponseWriter, job *pipeline.Job, what string) {
	snap := job.Snapshot()
	writeJSON(w, http.StatusConflict, map[string]any{
		"error":        what + " not available",
		"status":       snap.Status,
		"result_state": snap.State,
	})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	job, res, ok := s.jobResult(w, r)
	if !ok {
		return
	}
	profile, ok := res.Profile()
	if !ok {
		notReady(w, job, "profile")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":    job.ID,
		"body_size": profile.BodySize(),
		"sizes":     profile.Entries(),
	})
}

type blockView struct {
	Kind         string               `json:"kind"`
	Block        doctree.ContentBlock `json:"block"`
	CaptionError string               `json:"caption_error,omitempty"`
}

func (s *Server) handleBlocks(w http.ResponseWriter, r *http.Request) {
	job, res, ok := s.jobResult(w, r)
	if !ok {
		return
	}
	pages, ok := res.Blocks()
	if !ok {
		notReady(w, job, "blocks")
		return
	}

	out := make([][]blockView, len(pages))
	for i, blocks := range pages {
		out[i] = make([]blockView, 0, len(blocks))
		for _, b := range blocks {
			v := blockView{Kind: b.Kind(), Block: b}
			if ib, ok := b.(*doctree.ImageBlock); ok && ib.CaptionErr != nil {
				v.CaptionError = ib.CaptionErr.Error()
			}
			out[i] = append(out[i], v)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"job_id": job.ID, "pages": out})
}

func (s *Server) handleChunks(w http.ResponseWriter, r *http.Request) {
	job, res, ok := s.jobResult(w, r)
	if !ok {
		return
	}
	chunks, ok := res.Chunks()
	if !ok {
		notReady(w, job, "chunks")
		return
	}
	if chunks == nil {
		chunks = []doctree.Chunk{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"job_id": job.ID, "doc_id": job.DocID, "chunks": chunks})
}

// handleDelete clears the job's result and removes its chunks from the index.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	err := s.orchestrator.DeleteJob(r.Context(), jobID)
	switch {
	case errors.Is(err, pipeline.ErrJobNotFound):
		jsonError(w, "job not found", http.StatusNotFound)
		return
	case err != nil:
		s.log.Error("delete failed", "job_id", jobID, "error", err)
		jsonError(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job_id": jobID, "deleted": true})
}
