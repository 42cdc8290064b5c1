package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jonathan/resume-optimizer/internal/artifacts"
	"github.com/jonathan/resume-optimizer/internal/pipeline"
	"github.com/jonathan/resume-optimizer/internal/types"
)

// ArtifactInfo describes one artifact slot.
type ArtifactInfo struct {
	Name       string     `json:"name"`
	Exists     bool       `json:"exists"`
	Stage      string     `json:"stage,omitempty"`
	Kind       string     `json:"kind,omitempty"`
	Checksum   string     `json:"checksum,omitempty"`
	ProducedAt *time.Time `json:"produced_at,omitempty"`
}

// RunResponse is returned when a run completes.
type RunResponse struct {
	RunID       string         `json:"run_id"`
	Fingerprint string         `json:"fingerprint"`
	Artifacts   []ArtifactInfo `json:"artifacts"`
	DurationMs  int64          `json:"duration_ms"`
}

func infoFor(a artifacts.Artifact) ArtifactInfo {
	produced := a.ProducedAt
	return ArtifactInfo{
		Name:       a.Name,
		Exists:     true,
		Stage:      a.Stage,
		Kind:       string(a.Kind),
		Checksum:   a.Checksum,
		ProducedAt: &produced,
	}
}

func newRunResponse(res *pipeline.Result) RunResponse {
	out := RunResponse{
		RunID:       res.RunID.String(),
		Fingerprint: res.Fingerprint,
		Artifacts:   make([]ArtifactInfo, 0, len(res.Artifacts)),
		DurationMs:  res.Duration.Milliseconds(),
	}
	for _, a := range res.Artifacts {
		out.Artifacts = append(out.Artifacts, infoFor(a))
	}
	return out
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRun runs the pipeline synchronously.
// Multipart fields: resume (file), job_url, company, and optional api_key,
// search_api_key, search_cx.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if !s.acquire() {
		s.errorResponse(w, ErrBusy)
		return
	}
	defer s.release()

	in, creds, err := s.parseRunRequest(w, r)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	res, err := s.execute(r.Context(), in, creds, nil)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, newRunResponse(res))
}

// handleRunStream runs the pipeline and streams progress as Server-Sent Events.
func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request) {
	if !s.acquire() {
		s.errorResponse(w, ErrBusy)
		return
	}
	defer s.release()

	in, creds, err := s.parseRunRequest(w, r)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	res, err := s.execute(r.Context(), in, creds, func(ev pipeline.ProgressEvent) {
		if err := sse.WriteEvent(EventProgress, ev); err != nil {
			s.log.Debug("failed to stream progress", "error", err)
		}
	})
	if err != nil {
		sse.WriteError(errorBody(err))
		return
	}
	sse.WriteComplete(newRunResponse(res))
}

// handleCurrentRun reports whether a run is in progress.
func (s *Server) handleCurrentRun(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	status := s.current
	s.mu.Unlock()
	s.jsonResponse(w, http.StatusOK, status)
}

// handleListArtifacts reports which of the five artifacts exist.
func (s *Server) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	list := make([]ArtifactInfo, 0, len(artifacts.Names))
	complete := true
	for _, name := range artifacts.Names {
		a, err := s.store.Get(r.Context(), name)
		if errors.Is(err, artifacts.ErrNotFound) {
			list = append(list, ArtifactInfo{Name: name})
			complete = false
			continue
		}
		if err != nil {
			s.errorResponse(w, err)
			return
		}
		list = append(list, infoFor(*a))
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"artifacts": list,
		"complete":  complete,
	})
}

// handleGetArtifact returns one artifact's content.
func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !artifacts.IsKnown(name) {
		s.errorResponse(w, fmt.Errorf("%w: unknown artifact %q", artifacts.ErrNotFound, name))
		return
	}

	a, err := s.store.Get(r.Context(), name)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	contentType := "text/markdown; charset=utf-8"
	if a.Kind == artifacts.KindJSON {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Artifact-Stage", a.Stage)
	w.Header().Set("X-Artifact-Checksum", a.Checksum)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(a.Content); err != nil {
		s.log.Debug("failed to write artifact", "name", name, "error", err)
	}
}

// handleClearArtifacts removes every artifact and tears down the knowledge index.
func (s *Server) handleClearArtifacts(w http.ResponseWriter, r *http.Request) {
	if !s.acquire() {
		s.errorResponse(w, ErrBusy)
		return
	}
	defer s.release()

	if err := s.store.ClearAll(r.Context()); err != nil {
		s.errorResponse(w, err)
		return
	}
	if err := s.index.Dispose(); err != nil {
		s.log.Warn("knowledge index teardown incomplete", "error", err)
	}
	s.metrics.ObserveDispose()
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// parseRunRequest reads the multipart run form. Missing fields are left
// empty for the pipeline's input validation to report together.
func (s *Server) parseRunRequest(w http.ResponseWriter, r *http.Request) (types.RunInputs, types.Credentials, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		return types.RunInputs{}, types.Credentials{}, &ErrValidation{Field: "form", Message: err.Error()}
	}

	in := types.RunInputs{
		JobURL:      r.FormValue("job_url"),
		CompanyName: r.FormValue("company"),
	}

	file, header, err := r.FormFile("resume")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		// reported by input validation
	case err != nil:
		return in, types.Credentials{}, &ErrValidation{Field: "resume", Message: err.Error()}
	default:
		defer file.Close()
		in.Document, err = io.ReadAll(file)
		if err != nil {
			return in, types.Credentials{}, &ErrValidation{Field: "resume", Message: err.Error()}
		}
		in.DocumentName = header.Filename
	}

	creds := s.creds
	if v := r.FormValue("api_key"); v != "" {
		creds.ReasoningAPIKey = v
	}
	if v := r.FormValue("search_api_key"); v != "" {
		creds.SearchAPIKey = v
	}
	if v := r.FormValue("search_cx"); v != "" {
		creds.SearchEngineID = v
	}
	return in, creds, nil
}

// execute runs a fresh orchestrator over the shared store and index.
func (s *Server) execute(ctx context.Context, in types.RunInputs, creds types.Credentials, onProgress pipeline.ProgressCallback) (*pipeline.Result, error) {
	s.mu.Lock()
	s.current.Company = in.CompanyName
	s.mu.Unlock()

	orch, err := pipeline.New(pipeline.Options{
		Store:   s.store,
		Index:   s.index,
		Runner:  s.runner,
		Metrics: s.metrics,
		Tracker: s.tracker,
		Logger:  s.log,
		OnProgress: func(ev pipeline.ProgressEvent) {
			s.mu.Lock()
			s.current.RunID = ev.RunID
			s.current.Stage = ev.Stage
			s.current.Status = string(ev.Status)
			s.mu.Unlock()
			if onProgress != nil {
				onProgress(ev)
			}
		},
	})
	if err != nil {
		return nil, err
	}
	return orch.Run(ctx, in, creds)
}

// acquire claims the processing guard. It returns false while another run
// or clear is in progress.
func (s *Server) acquire() bool {
	if !s.busy.CompareAndSwap(false, true) {
		return false
	}
	now := time.Now().UTC()
	s.mu.Lock()
	s.current = RunStatus{Processing: true, StartedAt: &now}
	s.mu.Unlock()
	return true
}

func (s *Server) release() {
	s.mu.Lock()
	s.current = RunStatus{}
	s.mu.Unlock()
	s.busy.Store(false)
}
