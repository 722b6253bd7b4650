// Package report renders one note into a PDF artifact. Rendering is
// best-effort from the pipeline's point of view: a persisted note never
// depends on it.
package report

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf/v2"

	"fieldnotes/internal/domain"
	"fieldnotes/internal/logger"
)

const (
	imagesPerRow = 2
	imageWidth   = 90.0
	imageHeight  = 60.0
	imageGap     = 5.0
	pageBottom   = 280.0
)

type Generator struct {
	log *logger.Logger
}

func NewGenerator(log *logger.Logger) *Generator {
	return &Generator{log: log.WithModule("report")}
}

// Render produces the PDF bytes for a note. Output is deterministic for a
// given note and project name: sections appear in fixed order and the
// document creation date is pinned to the note timestamp.
func (g *Generator) Render(n domain.Note, projectName string) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Note %s", n.ID), false)
	pdf.SetAuthor("fieldnotes", false)
	created := noteCreationTime(n)
	pdf.SetCreationDate(created)
	pdf.SetModificationDate(created)
	pdf.AddPage()

	title := strings.TrimSpace(projectName)
	if title == "" {
		title = "Untitled project"
	}

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Note %s - %s", n.ID, n.Timestamp))
	pdf.Ln(10)

	writeSection(pdf, "Transcription", n.Transcription, "(no transcription)")
	pdf.Ln(6)
	writeSection(pdf, "Summary", n.Summary, "(no summary)")

	if len(n.Insights) > 0 {
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "B", 14)
		pdf.Cell(0, 8, "Insights")
		pdf.Ln(10)
		pdf.SetFont("Helvetica", "", 12)
		for _, insight := range n.Insights {
			pdf.MultiCell(0, 6, fmt.Sprintf("- %s", insight), "", "L", false)
		}
	}

	g.writeImages(pdf, n.ImagePaths)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSection(pdf *gofpdf.Fpdf, title, content, placeholder string) {
	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 8, title)
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 12)
	text := strings.TrimSpace(content)
	if text == "" {
		text = placeholder
	}
	pdf.MultiCell(0, 6, text, "", "L", false)
}

// writeImages lays out photos two per row, starting a fresh page when
// vertical space runs out. Images that cannot be decoded are skipped with a
// diagnostic, never a render failure.
func (g *Generator) writeImages(pdf *gofpdf.Fpdf, paths []string) {
	if len(paths) == 0 {
		return
	}

	pdf.Ln(8)
	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 8, "Photos")
	pdf.Ln(10)

	left, _, _, _ := pdf.GetMargins()
	col := 0
	y := pdf.GetY()

	for _, path := range paths {
		imageType, err := probeImage(path)
		if err != nil {
			g.log.WithField("image", path).WithError(err).Warn("skipping unreadable image")
			continue
		}

		if y+imageHeight > pageBottom {
			pdf.AddPage()
			y = pdf.GetY()
			col = 0
		}

		x := left + float64(col)*(imageWidth+imageGap)
		opts := gofpdf.ImageOptions{ImageType: imageType, ReadDpi: true}
		pdf.ImageOptions(path, x, y, imageWidth, imageHeight, false, opts, 0, "")

		col++
		if col == imagesPerRow {
			col = 0
			y += imageHeight + imageGap
			pdf.SetY(y)
		}
	}

	if col != 0 {
		pdf.SetY(y + imageHeight + imageGap)
	}
}

// probeImage validates the file decodes as an image before handing it to
// gofpdf, whose error state would otherwise poison the whole document.
func probeImage(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	_, format, err := image.DecodeConfig(file)
	if err != nil {
		return "", err
	}

	switch format {
	case "png":
		return "PNG", nil
	case "jpeg":
		return "JPG", nil
	default:
		return "", fmt.Errorf("unsupported image format %s", format)
	}
}

func noteCreationTime(n domain.Note) time.Time {
	if ts, err := time.Parse(time.RFC3339, n.Timestamp); err == nil {
		return ts
	}
	return time.Unix(0, 0).UTC()
}
