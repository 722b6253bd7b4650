// Package pipeline coordinates one note ingestion: validate, transcribe,
// synthesize, persist, then best-effort report rendering.
package pipeline

import (
	"context"
	"fmt"

	"fieldnotes/internal/domain"
	"fieldnotes/internal/logger"
	"fieldnotes/internal/note"
	"fieldnotes/internal/storage"
	"fieldnotes/internal/transcribe"
)

// Renderer produces the optional PDF artifact for a persisted note.
type Renderer interface {
	Render(n domain.Note, projectName string) ([]byte, error)
}

// Pipeline stages, in execution order. A StageError names the stage that
// failed so callers can tell "we had a transcript but could not save it"
// from "we never got a transcript".
const (
	StageValidate   = "validate"
	StageTranscribe = "transcribe"
	StagePersist    = "persist"
	StageReport     = "report"
)

// StageError wraps a failure with the pipeline stage it occurred in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Request is one unit of ingestion work. Media is already staged by the
// intake layer; the coordinator owns discarding it on any pre-persist
// failure.
type Request struct {
	ProjectID        string
	Media            *storage.MediaBundle
	ClientTranscript string
	ClientDuration   *float64
	WantReport       bool
}

// Result is the two-outcome ingestion response: the durably stored note,
// plus an independent report outcome. ReportErr set means the note exists
// but rendering failed; that is a warning, never a pipeline failure.
type Result struct {
	Note        domain.Note
	ProjectName string
	Report      []byte
	ReportErr   error
}

type Coordinator struct {
	store   *storage.Store
	backend transcribe.Backend
	reports Renderer
	log     *logger.Logger
}

func NewCoordinator(store *storage.Store, backend transcribe.Backend, reports Renderer, log *logger.Logger) *Coordinator {
	return &Coordinator{
		store:   store,
		backend: backend,
		reports: reports,
		log:     log.WithModule("pipeline"),
	}
}

// Ingest drives the stages for one request. Caller cancellation is honored
// up to the persist commit; once the note is appended it survives
// cancellation and any later failure.
func (c *Coordinator) Ingest(ctx context.Context, req Request) (*Result, error) {
	project, err := c.store.Get(req.ProjectID)
	if err != nil {
		c.discard(req.Media)
		return nil, &StageError{Stage: StageValidate, Err: err}
	}
	if req.Media == nil || req.Media.AudioPath == "" {
		c.discard(req.Media)
		return nil, &StageError{Stage: StageValidate, Err: &storage.ValidationError{Field: "audio", Message: "audio required"}}
	}

	// The external call may block for minutes; no project lock is held here.
	res, err := transcribe.Transcribe(ctx, c.backend, req.Media.AudioPath, req.ClientTranscript, req.ClientDuration)
	if err != nil {
		c.discard(req.Media)
		return nil, &StageError{Stage: StageTranscribe, Err: err}
	}

	if err := ctx.Err(); err != nil {
		c.discard(req.Media)
		return nil, &StageError{Stage: StageTranscribe, Err: err}
	}

	n := note.Synthesize(res, req.Media.AudioPath, req.Media.ImagePaths)

	if _, err := c.store.AppendNote(req.ProjectID, n); err != nil {
		c.discard(req.Media)
		return nil, &StageError{Stage: StagePersist, Err: err}
	}

	c.log.WithField("project", req.ProjectID).WithField("note", n.ID).Info("note persisted")

	result := &Result{Note: n, ProjectName: project.Name}
	if req.WantReport {
		artifact, err := c.reports.Render(n, project.Name)
		if err != nil {
			c.log.WithField("note", n.ID).WithError(err).Warn("report rendering failed, note kept")
			result.ReportErr = err
		} else {
			result.Report = artifact
		}
	}

	return result, nil
}

func (c *Coordinator) discard(media *storage.MediaBundle) {
	if media != nil {
		media.Discard()
	}
}
