package storage

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ValidationError names the offending upload field. User-fixable input
// problems only; anything else comes back as a plain error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

const (
	audioField  = "audio"
	imagesField = "images"
)

var mimeExtensionFallback = map[string]string{
	"audio/mpeg":  ".mp3",
	"audio/mp3":   ".mp3",
	"audio/mp4":   ".m4a",
	"audio/x-m4a": ".m4a",
	"audio/wav":   ".wav",
	"audio/x-wav": ".wav",
	"audio/webm":  ".webm",
	"audio/ogg":   ".ogg",
	"image/jpeg":  ".jpg",
	"image/png":   ".png",
}

// FileManager stages uploaded media under the data directory and hands out
// paths as opaque handles.
type FileManager struct {
	baseDir        string
	audioDir       string
	imageDir       string
	pdfDir         string
	maxUploadBytes int64
	maxImages      int
}

func NewFileManager(baseDir string, maxUploadBytes int64, maxImages int) (*FileManager, error) {
	fm := &FileManager{
		baseDir:        baseDir,
		audioDir:       filepath.Join(baseDir, "audio"),
		imageDir:       filepath.Join(baseDir, "images"),
		pdfDir:         filepath.Join(baseDir, "pdf"),
		maxUploadBytes: maxUploadBytes,
		maxImages:      maxImages,
	}

	for _, dir := range []string{fm.baseDir, fm.audioDir, fm.imageDir, fm.pdfDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir %s: %w", dir, err)
		}
	}

	return fm, nil
}

// MediaBundle holds the staged handles for one ingestion request. The caller
// owns cleanup: Discard removes the staged files when a downstream stage
// fails before the note is persisted.
type MediaBundle struct {
	AudioPath  string
	ImagePaths []string
}

func (b *MediaBundle) Discard() {
	if b == nil {
		return
	}
	if b.AudioPath != "" {
		_ = os.Remove(b.AudioPath)
	}
	for _, path := range b.ImagePaths {
		_ = os.Remove(path)
	}
}

// CollectUpload extracts exactly one audio part and up to maxImages image
// parts from a parsed multipart form, validates declared media kinds and
// per-item size, and stages the bytes. Any file part outside the known
// fields is rejected.
func (fm *FileManager) CollectUpload(form *multipart.Form) (*MediaBundle, error) {
	if form == nil {
		return nil, &ValidationError{Field: audioField, Message: "audio required"}
	}

	for field := range form.File {
		if field != audioField && field != imagesField {
			return nil, &ValidationError{Field: field, Message: "unexpected field"}
		}
	}

	audioParts := form.File[audioField]
	if len(audioParts) == 0 {
		return nil, &ValidationError{Field: audioField, Message: "audio required"}
	}
	if len(audioParts) > 1 {
		return nil, &ValidationError{Field: audioField, Message: "unexpected field"}
	}

	imageParts := form.File[imagesField]
	if len(imageParts) > fm.maxImages {
		return nil, &ValidationError{Field: imagesField, Message: "too many images"}
	}

	bundle := &MediaBundle{}

	audioPath, err := fm.saveUpload(audioParts[0], fm.audioDir, audioKind)
	if err != nil {
		return nil, err
	}
	bundle.AudioPath = audioPath

	for _, header := range imageParts {
		imagePath, err := fm.saveUpload(header, fm.imageDir, imageKind)
		if err != nil {
			bundle.Discard()
			return nil, err
		}
		bundle.ImagePaths = append(bundle.ImagePaths, imagePath)
	}

	return bundle, nil
}

type mediaKind int

const (
	audioKind mediaKind = iota
	imageKind
)

func (k mediaKind) accepts(contentType string) bool {
	switch k {
	case audioKind:
		// Browsers record into video containers (video/mp4, video/webm)
		// even for audio-only captures.
		return strings.HasPrefix(contentType, "audio/") || strings.HasPrefix(contentType, "video/")
	case imageKind:
		return strings.HasPrefix(contentType, "image/")
	}
	return false
}

func (fm *FileManager) saveUpload(header *multipart.FileHeader, dir string, kind mediaKind) (string, error) {
	field := audioField
	if kind == imageKind {
		field = imagesField
	}

	if fm.maxUploadBytes > 0 && header.Size > fm.maxUploadBytes {
		return "", &ValidationError{Field: field, Message: "file too large"}
	}

	contentType := strings.ToLower(header.Header.Get("Content-Type"))
	if contentType != "" && contentType != "application/octet-stream" && !kind.accepts(contentType) {
		return "", &ValidationError{Field: field, Message: "wrong media kind"}
	}

	file, err := header.Open()
	if err != nil {
		return "", fmt.Errorf("open uploaded %s: %w", field, err)
	}
	defer file.Close()

	ext := normalizeExtension(header.Filename)
	if ext == "" {
		ext = fallbackExtension(contentType)
	}
	if ext == "" {
		ext = ".bin"
	}

	path := filepath.Join(dir, uuid.NewString()+ext)
	if err := fm.writeWithLimit(path, file, field); err != nil {
		return "", err
	}
	return path, nil
}

// PDFPath is where an on-demand report for the given note is cached.
func (fm *FileManager) PDFPath(noteID string) string {
	return filepath.Join(fm.pdfDir, fmt.Sprintf("%s.pdf", noteID))
}

// RemoveMedia deletes the stored media of a persisted note.
func (fm *FileManager) RemoveMedia(audioPath string, imagePaths []string) {
	if audioPath != "" {
		_ = os.Remove(audioPath)
	}
	for _, path := range imagePaths {
		_ = os.Remove(path)
	}
}

// writeWithLimit streams the upload to disk, enforcing the size ceiling even
// when the multipart header lies about the size.
func (fm *FileManager) writeWithLimit(path string, file multipart.File, field string) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create staged file: %w", err)
	}

	cleanup := func(err error) error {
		out.Close()
		os.Remove(path)
		return err
	}

	total := int64(0)
	buf := make([]byte, 32*1024)
	for {
		n, err := file.Read(buf)
		if n > 0 {
			total += int64(n)
			if fm.maxUploadBytes > 0 && total > fm.maxUploadBytes {
				return cleanup(&ValidationError{Field: field, Message: "file too large"})
			}
			if _, werr := out.Write(buf[:n]); werr != nil {
				return cleanup(fmt.Errorf("write staged file: %w", werr))
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return cleanup(fmt.Errorf("read upload: %w", err))
		}
	}

	if err := out.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("close staged file: %w", err)
	}
	return nil
}

func normalizeExtension(filename string) string {
	ext := strings.ToLower(strings.TrimSpace(filepath.Ext(filename)))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func fallbackExtension(contentType string) string {
	if ext, ok := mimeExtensionFallback[contentType]; ok {
		return ext
	}
	exts, err := mime.ExtensionsByType(contentType)
	if err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}
