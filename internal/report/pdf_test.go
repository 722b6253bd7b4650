package report

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"fieldnotes/internal/domain"
	"fieldnotes/internal/logger"
)

func sampleNote() domain.Note {
	duration := 13
	return domain.Note{
		ID:            "note-1",
		Timestamp:     "2026-02-01T12:00:00Z",
		Transcription: "foundation poured on the north side today",
		Summary:       "foundation poured on the north side today",
		Language:      "en",
		Duration:      &duration,
		Insights:      []string{"Duration: 13s", "Language: en", "Confidence: 93%"},
	}
}

func writeTestPNG(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: uint8(40 * x), G: uint8(40 * y), B: 128, A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "photo.png")
	file, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(file, img))
	require.NoError(t, file.Close())
	return path
}

func TestRenderProducesPDF(t *testing.T) {
	gen := NewGenerator(logger.New())

	artifact, err := gen.Render(sampleNote(), "Site A")
	require.NoError(t, err)
	require.True(t, len(artifact) > 4)
	require.Equal(t, "%PDF", string(artifact[:4]))
}

func TestRenderIsDeterministic(t *testing.T) {
	gen := NewGenerator(logger.New())
	n := sampleNote()

	first, err := gen.Render(n, "Site A")
	require.NoError(t, err)
	second, err := gen.Render(n, "Site A")
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestRenderEmptyNoteUsesPlaceholders(t *testing.T) {
	gen := NewGenerator(logger.New())

	artifact, err := gen.Render(domain.Note{ID: "bare", Timestamp: "not-a-timestamp"}, "")
	require.NoError(t, err)
	require.Equal(t, "%PDF", string(artifact[:4]))
}

func TestRenderEmbedsImages(t *testing.T) {
	gen := NewGenerator(logger.New())
	n := sampleNote()
	n.ImagePaths = []string{writeTestPNG(t)}

	withImage, err := gen.Render(n, "Site A")
	require.NoError(t, err)

	bare, err := gen.Render(sampleNote(), "Site A")
	require.NoError(t, err)
	require.Greater(t, len(withImage), len(bare))
}

func TestRenderSkipsUnreadableImages(t *testing.T) {
	gen := NewGenerator(logger.New())

	corrupt := filepath.Join(t.TempDir(), "corrupt.png")
	require.NoError(t, os.WriteFile(corrupt, []byte("definitely not a png"), 0o644))

	n := sampleNote()
	n.ImagePaths = []string{corrupt, filepath.Join(t.TempDir(), "missing.jpg")}

	artifact, err := gen.Render(n, "Site A")
	require.NoError(t, err)
	require.Equal(t, "%PDF", string(artifact[:4]))
}
