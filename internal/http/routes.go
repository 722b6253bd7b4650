package http

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"fieldnotes/internal/config"
	"fieldnotes/internal/export"
	"fieldnotes/internal/logger"
	"fieldnotes/internal/pipeline"
	"fieldnotes/internal/report"
	"fieldnotes/internal/storage"
	"fieldnotes/internal/transcribe"
)

type API struct {
	files       *storage.FileManager
	store       *storage.Store
	coordinator *pipeline.Coordinator
	reports     *report.Generator
	signer      *shareSigner
	log         *logger.Logger
}

func NewAPI(cfg config.Config, fm *storage.FileManager, store *storage.Store, coordinator *pipeline.Coordinator, reports *report.Generator, log *logger.Logger) *API {
	return &API{
		files:       fm,
		store:       store,
		coordinator: coordinator,
		reports:     reports,
		signer:      newShareSigner(cfg),
		log:         log.WithModule("http"),
	}
}

func registerRoutes(r *gin.Engine, api *API) {
	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/health", api.handleHealth)

		apiGroup.POST("/projects", api.handleCreateProject)
		apiGroup.GET("/projects", api.handleListProjects)
		apiGroup.GET("/projects/:id", api.handleGetProject)
		apiGroup.PATCH("/projects/:id", api.handleUpdateProject)
		apiGroup.DELETE("/projects/:id", api.handleDeleteProject)

		apiGroup.GET("/projects/:id/stats", api.handleProjectStats)
		apiGroup.GET("/stats", api.handleGlobalStats)
		apiGroup.GET("/projects/:id/export", api.handleExportProject)

		apiGroup.POST("/projects/:id/notes", api.handleIngestNote)
		apiGroup.GET("/projects/:id/notes/:noteId", api.handleGetNote)
		apiGroup.PATCH("/projects/:id/notes/:noteId", api.handleUpdateNote)
		apiGroup.DELETE("/projects/:id/notes/:noteId", api.handleDeleteNote)
		apiGroup.GET("/projects/:id/notes/:noteId/pdf", api.handleNotePDF)
		apiGroup.POST("/projects/:id/notes/:noteId/share", api.handleShareReport)
	}

	r.GET("/reports/:id/:noteId", api.handleSharedReport)
}

func (a *API) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (a *API) handleCreateProject(c *gin.Context) {
	var payload struct {
		Name        string `json:"name" binding:"required"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	project, err := a.store.Create(strings.TrimSpace(payload.Name), payload.Description)
	if err != nil {
		respondError(c, errorStatus(err), err)
		return
	}

	c.JSON(http.StatusCreated, project)
}

func (a *API) handleListProjects(c *gin.Context) {
	c.JSON(http.StatusOK, a.store.List())
}

func (a *API) handleGetProject(c *gin.Context) {
	project, err := a.store.Get(c.Param("id"))
	if err != nil {
		respondError(c, errorStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, project)
}

func (a *API) handleUpdateProject(c *gin.Context) {
	var payload struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	project, err := a.store.Update(c.Param("id"), storage.ProjectUpdate{
		Name:        payload.Name,
		Description: payload.Description,
	})
	if err != nil {
		respondError(c, errorStatus(err), err)
		return
	}

	c.JSON(http.StatusOK, project)
}

func (a *API) handleDeleteProject(c *gin.Context) {
	projectID := c.Param("id")
	project, err := a.store.Get(projectID)
	if err != nil {
		respondError(c, errorStatus(err), err)
		return
	}

	if err := a.store.Delete(projectID); err != nil {
		respondError(c, errorStatus(err), err)
		return
	}

	for _, note := range project.Notes {
		a.files.RemoveMedia(note.AudioPath, note.ImagePaths)
		_ = os.Remove(a.files.PDFPath(note.ID))
	}

	c.Status(http.StatusNoContent)
}

func (a *API) handleProjectStats(c *gin.Context) {
	stats, err := a.store.Stats(c.Param("id"))
	if err != nil {
		respondError(c, errorStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (a *API) handleGlobalStats(c *gin.Context) {
	c.JSON(http.StatusOK, a.store.GlobalStats())
}

func (a *API) handleExportProject(c *gin.Context) {
	project, err := a.store.Get(c.Param("id"))
	if err != nil {
		respondError(c, errorStatus(err), err)
		return
	}

	stats, err := a.store.Stats(project.ID)
	if err != nil {
		respondError(c, errorStatus(err), err)
		return
	}

	workbook, err := export.Workbook(project, stats)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+project.ID+`.xlsx"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", workbook)
}

// handleIngestNote runs the full pipeline for one captured note: stage the
// media, transcribe (or accept the client transcript), synthesize, persist,
// and optionally attach a PDF report to the response.
func (a *API) handleIngestNote(c *gin.Context) {
	projectID := c.Param("id")

	// Existence check before any bytes are staged.
	if _, err := a.store.Get(projectID); err != nil {
		respondIngestError(c, err)
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		respondIngestError(c, &storage.ValidationError{Field: "body", Message: "invalid multipart payload"})
		return
	}

	media, err := a.files.CollectUpload(form)
	if err != nil {
		respondIngestError(c, err)
		return
	}

	var clientDuration *float64
	if raw := c.PostForm("duration"); raw != "" {
		seconds, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			media.Discard()
			respondIngestError(c, &storage.ValidationError{Field: "duration", Message: "invalid duration"})
			return
		}
		clientDuration = &seconds
	}

	result, err := a.coordinator.Ingest(c.Request.Context(), pipeline.Request{
		ProjectID:        projectID,
		Media:            media,
		ClientTranscript: c.PostForm("transcript"),
		ClientDuration:   clientDuration,
		WantReport:       c.PostForm("report") == "true",
	})
	if err != nil {
		respondIngestError(c, err)
		return
	}

	resp := gin.H{"ok": true, "note": result.Note}
	if result.Report != nil {
		resp["reportBase64"] = base64.StdEncoding.EncodeToString(result.Report)
	}
	if result.ReportErr != nil {
		resp["reportError"] = result.ReportErr.Error()
	}

	c.JSON(http.StatusCreated, resp)
}

func (a *API) handleGetNote(c *gin.Context) {
	note, err := a.store.GetNote(c.Param("id"), c.Param("noteId"))
	if err != nil {
		respondError(c, errorStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, note)
}

func (a *API) handleUpdateNote(c *gin.Context) {
	var payload struct {
		Transcription *string `json:"transcription"`
		Summary       *string `json:"summary"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	note, err := a.store.UpdateNote(c.Param("id"), c.Param("noteId"), storage.NoteUpdate{
		Transcription: payload.Transcription,
		Summary:       payload.Summary,
	})
	if err != nil {
		respondError(c, errorStatus(err), err)
		return
	}

	c.JSON(http.StatusOK, note)
}

func (a *API) handleDeleteNote(c *gin.Context) {
	projectID := c.Param("id")
	noteID := c.Param("noteId")

	note, err := a.store.GetNote(projectID, noteID)
	if err != nil {
		respondError(c, errorStatus(err), err)
		return
	}

	if _, err := a.store.RemoveNote(projectID, noteID); err != nil {
		respondError(c, errorStatus(err), err)
		return
	}

	a.files.RemoveMedia(note.AudioPath, note.ImagePaths)
	_ = os.Remove(a.files.PDFPath(noteID))

	c.Status(http.StatusNoContent)
}

// handleNotePDF renders the report on demand. Same note, same project name,
// same bytes; the rendered copy is cached next to the other artifacts.
func (a *API) handleNotePDF(c *gin.Context) {
	artifact, err := a.renderNotePDF(c.Param("id"), c.Param("noteId"))
	if err != nil {
		respondError(c, errorStatus(err), err)
		return
	}
	c.Data(http.StatusOK, "application/pdf", artifact)
}

func (a *API) handleShareReport(c *gin.Context) {
	projectID := c.Param("id")
	noteID := c.Param("noteId")

	if _, err := a.store.GetNote(projectID, noteID); err != nil {
		respondError(c, errorStatus(err), err)
		return
	}

	url, expiresAt := a.signer.Generate(projectID, noteID)
	c.JSON(http.StatusOK, gin.H{"url": url, "expiresAt": expiresAt.UTC()})
}

func (a *API) handleSharedReport(c *gin.Context) {
	expiresParam := c.Query("exp")
	signature := c.Query("sig")
	if expiresParam == "" || signature == "" {
		respondMessage(c, http.StatusBadRequest, "missing signature")
		return
	}

	expires, err := strconv.ParseInt(expiresParam, 10, 64)
	if err != nil {
		respondMessage(c, http.StatusBadRequest, "invalid expiration")
		return
	}
	if expires < time.Now().Unix() {
		respondMessage(c, http.StatusGone, "link expired")
		return
	}
	if !a.signer.Validate(c.Request.URL.Path, expires, signature) {
		respondMessage(c, http.StatusForbidden, "invalid signature")
		return
	}

	artifact, err := a.renderNotePDF(c.Param("id"), c.Param("noteId"))
	if err != nil {
		respondError(c, errorStatus(err), err)
		return
	}
	c.Data(http.StatusOK, "application/pdf", artifact)
}

func (a *API) renderNotePDF(projectID, noteID string) ([]byte, error) {
	note, err := a.store.GetNote(projectID, noteID)
	if err != nil {
		return nil, err
	}
	project, err := a.store.Get(projectID)
	if err != nil {
		return nil, err
	}

	artifact, err := a.reports.Render(note, project.Name)
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(a.files.PDFPath(noteID), artifact, 0o644); err != nil {
		a.log.WithField("note", noteID).WithError(err).Warn("caching report failed")
	}
	return artifact, nil
}

// statusClientClosedRequest is the nginx convention for a caller that went
// away before the response was written.
const statusClientClosedRequest = 499

// errorStatus maps the error taxonomy onto HTTP statuses: validation 400,
// unknown project/note 404, timeouts 504, caller cancellation 499, other
// transcription failures 502, everything else (persistence included) 500.
func errorStatus(err error) int {
	var validationErr *storage.ValidationError
	var processErr *transcribe.ProcessError
	var malformedErr *transcribe.MalformedResultError
	var failedErr *transcribe.FailedError

	switch {
	case errors.As(err, &validationErr), errors.Is(err, storage.ErrInvalidName):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrProjectNotFound), errors.Is(err, storage.ErrNoteNotFound):
		return http.StatusNotFound
	case errors.Is(err, transcribe.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	case errors.As(err, &processErr), errors.As(err, &malformedErr), errors.As(err, &failedErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondIngestError(c *gin.Context, err error) {
	c.JSON(errorStatus(err), gin.H{"ok": false, "error": err.Error()})
}

func respondError(c *gin.Context, status int, err error) {
	respondMessage(c, status, err.Error())
}

func respondMessage(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}
