package note

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fieldnotes/internal/transcribe"
)

func floatPtr(v float64) *float64 { return &v }

func TestSynthesizeSummaryShortText(t *testing.T) {
	res := transcribe.Result{
		Text:                "hello world this is a test",
		Language:            "en",
		LanguageProbability: 1.0,
	}

	n := Synthesize(res, "audio.webm", nil)

	require.Equal(t, "hello world this is a test", n.Summary)
	require.NotContains(t, n.Summary, "...")
	require.Equal(t, "en", n.Language)
}

func TestSynthesizeSummaryTruncation(t *testing.T) {
	res := transcribe.Result{
		Text: "one two three four five six seven eight nine ten eleven twelve",
	}

	n := Synthesize(res, "", nil)

	require.Equal(t, "one two three four five six seven eight nine ten...", n.Summary)
	require.Len(t, strings.Fields(strings.TrimSuffix(n.Summary, "...")), 10)
}

func TestSynthesizeEmptyTextFallsBack(t *testing.T) {
	n := Synthesize(transcribe.Result{Text: ""}, "audio.webm", nil)

	require.Equal(t, "Audio note recorded", n.Summary)
	require.Equal(t, "", n.Transcription)
}

func TestSynthesizeCollapsesWhitespace(t *testing.T) {
	n := Synthesize(transcribe.Result{Text: "  spaced \t out\nwords  "}, "", nil)

	require.Equal(t, "spaced out words", n.Summary)
}

func TestSynthesizeInsightsOrder(t *testing.T) {
	res := transcribe.Result{
		Text:                "some transcript text",
		Language:            "fr",
		LanguageProbability: 0.874,
		Duration:            floatPtr(12.6),
	}

	n := Synthesize(res, "", nil)

	require.Len(t, n.Insights, 3)
	require.Equal(t, "Duration: 13s", n.Insights[0])
	require.Equal(t, "Language: fr", n.Insights[1])
	require.Equal(t, "Confidence: 87%", n.Insights[2])
}

func TestSynthesizeInsightsUnknownLanguageAndNoDuration(t *testing.T) {
	n := Synthesize(transcribe.Result{Text: "words"}, "", nil)

	require.Equal(t, "Duration: 0s", n.Insights[0])
	require.Equal(t, "Language: unknown", n.Insights[1])
	require.Equal(t, "Confidence: 0%", n.Insights[2])
	require.Equal(t, "unknown", n.Language)
	require.Nil(t, n.Duration)
}

func TestSynthesizeFallbackProvenance(t *testing.T) {
	n := Synthesize(transcribe.Result{Text: "words", Fallback: true}, "", nil)

	require.Len(t, n.Insights, 4)
	require.Equal(t, "Transcribed in fallback mode", n.Insights[3])
}

func TestSynthesizeDurationRounded(t *testing.T) {
	n := Synthesize(transcribe.Result{Text: "x", Duration: floatPtr(41.4)}, "", nil)

	require.NotNil(t, n.Duration)
	require.Equal(t, 41, *n.Duration)
}

func TestSynthesizeIdentityFields(t *testing.T) {
	first := Synthesize(transcribe.Result{Text: "x"}, "a.webm", []string{"1.jpg"})
	second := Synthesize(transcribe.Result{Text: "x"}, "a.webm", []string{"1.jpg"})

	require.NotEmpty(t, first.ID)
	require.NotEqual(t, first.ID, second.ID)

	ts, err := time.Parse(time.RFC3339, first.Timestamp)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().UTC(), ts, time.Minute)

	require.Equal(t, "a.webm", first.AudioPath)
	require.Equal(t, []string{"1.jpg"}, first.ImagePaths)
}
