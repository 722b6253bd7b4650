// Package note derives persisted note fields from a transcription result.
// Pure transformation: no IO, no side effects beyond id/timestamp minting.
package note

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"fieldnotes/internal/domain"
	"fieldnotes/internal/transcribe"
)

const (
	summaryTokenLimit = 10
	emptySummary      = "Audio note recorded"
	fallbackInsight   = "Transcribed in fallback mode"
)

// Synthesize builds a Note from a transcription result and the staged media
// handles. Summary is always non-empty; duration is rounded to whole
// seconds or left absent; insights come in fixed order (duration, language,
// confidence) with an optional provenance entry for fallback transcription.
func Synthesize(res transcribe.Result, audioPath string, imagePaths []string) domain.Note {
	n := domain.Note{
		ID:            uuid.NewString(),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		AudioPath:     audioPath,
		ImagePaths:    imagePaths,
		Transcription: res.Text,
		Summary:       summarize(res.Text),
		Language:      languageOrUnknown(res.Language),
		Insights:      insights(res),
	}

	if res.Duration != nil {
		rounded := int(math.Round(*res.Duration))
		n.Duration = &rounded
	}

	return n
}

func summarize(text string) string {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return emptySummary
	}
	if len(tokens) <= summaryTokenLimit {
		return strings.Join(tokens, " ")
	}
	return strings.Join(tokens[:summaryTokenLimit], " ") + "..."
}

func insights(res transcribe.Result) []string {
	duration := 0
	if res.Duration != nil {
		duration = int(math.Round(*res.Duration))
	}
	confidence := int(math.Round(res.LanguageProbability * 100))

	out := []string{
		fmt.Sprintf("Duration: %ds", duration),
		fmt.Sprintf("Language: %s", languageOrUnknown(res.Language)),
		fmt.Sprintf("Confidence: %d%%", confidence),
	}
	if res.Fallback {
		out = append(out, fallbackInsight)
	}
	return out
}

func languageOrUnknown(code string) string {
	if code == "" {
		return "unknown"
	}
	return code
}
