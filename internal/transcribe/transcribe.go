// Package transcribe invokes an external speech-to-text capability.
//
// Backends:
//   - whisper: local subprocess emitting one JSON result on stdout (default)
//   - remote: HTTP transcription service, publish + poll
//
// A non-empty client-supplied transcript bypasses the backend entirely.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fieldnotes/internal/config"
	"fieldnotes/internal/logger"
)

// Result is the structured outcome of a successful transcription. Duration
// and LanguageProbability pass through unrounded; rounding is the note
// synthesizer's concern.
type Result struct {
	Text                string
	Language            string
	LanguageProbability float64
	Duration            *float64
	// Fallback marks results produced by a degraded transcription mode so
	// synthesis can record provenance.
	Fallback bool
}

// Backend converts stored audio to a Result.
type Backend interface {
	Transcribe(ctx context.Context, audioPath string) (Result, error)
}

// ErrTimeout indicates the external capability exceeded the hard wall-clock
// limit and was terminated.
var ErrTimeout = errors.New("transcription timed out")

// ProcessError is a failure of the external capability itself: non-zero
// exit, transport failure, or unusable service response. Stderr carries the
// captured diagnostics.
type ProcessError struct {
	Stderr string
	Err    error
}

func (e *ProcessError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("transcription process failed: %v: %s", e.Err, e.Stderr)
	}
	return fmt.Sprintf("transcription process failed: %v", e.Err)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// MalformedResultError indicates the capability exited cleanly but its
// output could not be parsed.
type MalformedResultError struct {
	Output string
	Err    error
}

func (e *MalformedResultError) Error() string {
	return fmt.Sprintf("malformed transcription result: %v", e.Err)
}

func (e *MalformedResultError) Unwrap() error { return e.Err }

// FailedError indicates the capability completed and reported failure.
type FailedError struct {
	Reason string
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("transcription failed: %s", e.Reason)
}

// NewBackend builds the configured backend.
func NewBackend(cfg config.TranscriberConfig, log *logger.Logger) (Backend, error) {
	switch cfg.Backend {
	case "whisper", "":
		return NewWhisperBackend(cfg.Command, cfg.Timeout, log), nil
	case "remote":
		if cfg.RemoteURL == "" {
			return nil, errors.New("remote transcriber selected but no URL configured")
		}
		return NewRemoteBackend(cfg.RemoteURL, cfg.Timeout, log), nil
	default:
		return nil, fmt.Errorf("unknown transcriber backend %q (supported: whisper, remote)", cfg.Backend)
	}
}

// Transcribe is the adapter entry point. A non-empty client transcript
// short-circuits to a synthetic success without an external call.
func Transcribe(ctx context.Context, backend Backend, audioPath, clientTranscript string, clientDuration *float64) (Result, error) {
	if text := strings.TrimSpace(clientTranscript); text != "" {
		return Result{
			Text:                text,
			Language:            "en",
			LanguageProbability: 1.0,
			Duration:            clientDuration,
		}, nil
	}
	return backend.Transcribe(ctx, audioPath)
}
