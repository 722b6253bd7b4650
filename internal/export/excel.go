// Package export writes a project workbook: one sheet listing its notes,
// one with the derived statistics.
package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"fieldnotes/internal/domain"
)

const (
	notesSheet = "Notes"
	statsSheet = "Stats"
)

// Workbook renders the project and its stats as XLSX bytes.
func Workbook(project domain.Project, stats domain.Stats) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName(f.GetSheetName(0), notesSheet)

	header := []any{"ID", "Timestamp", "Summary", "Language", "Duration (s)", "Words", "Images"}
	if err := f.SetSheetRow(notesSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	for i, note := range project.Notes {
		duration := any("")
		if note.Duration != nil {
			duration = *note.Duration
		}
		row := []any{
			note.ID,
			note.Timestamp,
			note.Summary,
			note.Language,
			duration,
			len(strings.Fields(note.Transcription)),
			len(note.ImagePaths),
		}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(notesSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write note row: %w", err)
		}
	}

	if _, err := f.NewSheet(statsSheet); err != nil {
		return nil, fmt.Errorf("create stats sheet: %w", err)
	}

	statRows := [][]any{
		{"Project", project.Name},
		{"Total notes", stats.TotalNotes},
		{"Audio notes", stats.AudioNotes},
		{"Image notes", stats.ImageNotes},
		{"Transcribed notes", stats.TranscribedNotes},
		{"Total words", stats.TotalWords},
		{"Total duration (s)", stats.TotalDuration},
	}
	for i, row := range statRows {
		cell := fmt.Sprintf("A%d", i+1)
		if err := f.SetSheetRow(statsSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write stats row: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
