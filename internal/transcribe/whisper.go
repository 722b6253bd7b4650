package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os/exec"
	"strings"
	"time"

	"fieldnotes/internal/logger"
)

// whisperPayload is the single JSON object the subprocess prints on stdout.
// Exit code 0 with success:true is the only success path.
type whisperPayload struct {
	Success             bool     `json:"success"`
	Text                string   `json:"text"`
	Language            string   `json:"language"`
	LanguageProbability float64  `json:"language_probability"`
	Duration            *float64 `json:"duration"`
	Error               string   `json:"error"`
}

// WhisperBackend runs a local transcription command (faster-whisper wrapper
// script) with the audio path appended as the final argument. Diagnostics
// arrive on stderr; the structured result on stdout.
type WhisperBackend struct {
	command []string
	timeout time.Duration
	log     *logger.Logger
}

func NewWhisperBackend(command []string, timeout time.Duration, log *logger.Logger) *WhisperBackend {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &WhisperBackend{command: command, timeout: timeout, log: log.WithModule("transcribe")}
}

func (w *WhisperBackend) Transcribe(ctx context.Context, audioPath string) (Result, error) {
	if len(w.command) == 0 {
		return Result{}, &ProcessError{Err: errNoCommand}
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	args := make([]string, 0, len(w.command))
	args = append(args, w.command[1:]...)
	args = append(args, audioPath)

	cmd := exec.CommandContext(ctx, w.command[0], args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// If the killed process ignores the signal, give up on its pipes after
	// a grace period instead of blocking Wait forever.
	cmd.WaitDelay = 5 * time.Second

	start := time.Now()
	runErr := cmd.Run()

	switch {
	case ctx.Err() == context.DeadlineExceeded:
		w.log.WithField("audio", audioPath).WithField("elapsed", time.Since(start).String()).
			Warn("transcription exceeded time limit, process killed")
		return Result{}, ErrTimeout
	case ctx.Err() != nil:
		// Caller cancellation, not a timeout.
		return Result{}, ctx.Err()
	case runErr != nil:
		// The helper's failure path prints the structured result and exits
		// non-zero; a parsable reported failure carries more than the exit
		// status does.
		var failed whisperPayload
		if json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &failed) == nil &&
			!failed.Success && failed.Error != "" {
			return Result{}, &FailedError{Reason: failed.Error}
		}
		return Result{}, &ProcessError{Stderr: strings.TrimSpace(stderr.String()), Err: runErr}
	}

	var payload whisperPayload
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &payload); err != nil {
		return Result{}, &MalformedResultError{Output: stdout.String(), Err: err}
	}

	if !payload.Success {
		reason := payload.Error
		if reason == "" {
			reason = "unknown reason"
		}
		return Result{}, &FailedError{Reason: reason}
	}

	w.log.WithField("language", payload.Language).WithField("elapsed", time.Since(start).String()).
		Debug("transcription complete")

	return Result{
		Text:                strings.TrimSpace(payload.Text),
		Language:            payload.Language,
		LanguageProbability: payload.LanguageProbability,
		Duration:            payload.Duration,
	}, nil
}

var errNoCommand = errors.New("transcriber command not configured")
