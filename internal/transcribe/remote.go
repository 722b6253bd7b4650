package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"fieldnotes/internal/logger"
)

const remotePollInterval = 1500 * time.Millisecond

type publishResponse struct {
	Code   int    `json:"code"`
	Reason string `json:"reason,omitempty"`
	Data   struct {
		MediaID       string `json:"mediaId"`
		Status        string `json:"status"`
		TranscriptURL string `json:"transcriptUrl"`
	} `json:"data"`
}

type statusResponse struct {
	Code   int    `json:"code"`
	Reason string `json:"reason,omitempty"`
	Data   struct {
		Status              string   `json:"status"`
		Language            string   `json:"language"`
		LanguageProbability float64  `json:"languageProbability"`
		Duration            *float64 `json:"duration"`
		TranscriptURL       string   `json:"transcriptUrl"`
	} `json:"data"`
}

// RemoteBackend publishes the audio to an HTTP transcription service, polls
// until the job settles, and downloads the transcript text. Results are
// marked Fallback so notes record the degraded provenance.
type RemoteBackend struct {
	host    string
	timeout time.Duration
	client  *http.Client
	log     *logger.Logger
}

func NewRemoteBackend(host string, timeout time.Duration, log *logger.Logger) *RemoteBackend {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &RemoteBackend{
		host:    strings.TrimRight(host, "/"),
		timeout: timeout,
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     log.WithModule("transcribe.remote"),
	}
}

func (r *RemoteBackend) Transcribe(ctx context.Context, audioPath string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	mediaID, readyURL, err := r.publish(ctx, audioPath)
	if err != nil {
		return Result{}, err
	}

	status := statusResponse{}
	if readyURL != "" {
		status.Data.TranscriptURL = readyURL
	} else {
		status, err = r.poll(ctx, mediaID)
		if err != nil {
			return Result{}, err
		}
	}

	text, err := r.download(ctx, status.Data.TranscriptURL)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Text:                strings.TrimSpace(text),
		Language:            status.Data.Language,
		LanguageProbability: status.Data.LanguageProbability,
		Duration:            status.Data.Duration,
		Fallback:            true,
	}, nil
}

func (r *RemoteBackend) publish(ctx context.Context, audioPath string) (string, string, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return "", "", &ProcessError{Err: fmt.Errorf("open audio: %w", err)}
	}
	defer file.Close()

	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	part, err := w.CreateFormFile("audio", filepath.Base(audioPath))
	if err != nil {
		return "", "", &ProcessError{Err: err}
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", "", &ProcessError{Err: fmt.Errorf("copy audio: %w", err)}
	}
	_ = w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.host+"/transcribe", &b)
	if err != nil {
		return "", "", &ProcessError{Err: err}
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var resp publishResponse
	if err := r.doJSON(req, &resp); err != nil {
		return "", "", err
	}
	if resp.Code != 200 {
		return "", "", &FailedError{Reason: fmt.Sprintf("publish rejected: code=%d reason=%s", resp.Code, resp.Reason)}
	}
	if resp.Data.TranscriptURL != "" && strings.EqualFold(resp.Data.Status, "success") {
		return "", resp.Data.TranscriptURL, nil
	}
	return resp.Data.MediaID, "", nil
}

func (r *RemoteBackend) poll(ctx context.Context, mediaID string) (statusResponse, error) {
	endpoint, _ := url.Parse(r.host + "/getstatus")
	q := endpoint.Query()
	q.Set("mediaId", mediaID)
	endpoint.RawQuery = q.Encode()

	ticker := time.NewTicker(remotePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return statusResponse{}, ErrTimeout
			}
			return statusResponse{}, ctx.Err()
		case <-ticker.C:
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
		if err != nil {
			return statusResponse{}, &ProcessError{Err: err}
		}

		var status statusResponse
		if err := r.doJSON(req, &status); err != nil {
			r.log.WithError(err).Warn("status poll failed, retrying")
			continue
		}

		switch strings.ToLower(status.Data.Status) {
		case "success":
			return status, nil
		case "queued", "processing":
			continue
		case "failed":
			return statusResponse{}, &FailedError{Reason: status.Reason}
		default:
			return statusResponse{}, &MalformedResultError{
				Output: status.Data.Status,
				Err:    fmt.Errorf("unknown job status %q", status.Data.Status),
			}
		}
	}
}

func (r *RemoteBackend) download(ctx context.Context, transcriptURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, transcriptURL, nil)
	if err != nil {
		return "", &ProcessError{Err: err}
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", &ProcessError{Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return "", &ProcessError{Stderr: string(body), Err: fmt.Errorf("download status %d", resp.StatusCode)}
	}
	return string(body), nil
}

// doJSON sends the request with exponential backoff on transport and 5xx
// errors, decoding the body into target.
func (r *RemoteBackend) doJSON(req *http.Request, target any) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 12 * time.Second

	var lastErr error
	op := func() error {
		attempt := req.Clone(req.Context())
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return backoff.Permanent(err)
			}
			attempt.Body = body
		}

		resp, err := r.client.Do(attempt)
		if err != nil {
			lastErr = &ProcessError{Err: err}
			return err
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			lastErr = &ProcessError{Stderr: string(body), Err: fmt.Errorf("server status %d", resp.StatusCode)}
			return lastErr
		}
		if err := json.Unmarshal(body, target); err != nil {
			lastErr = &MalformedResultError{Output: string(body), Err: err}
			return backoff.Permanent(lastErr)
		}
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(bo, req.Context())); err != nil {
		if lastErr != nil {
			return lastErr
		}
		return err
	}
	return nil
}
