package http

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"

	"fieldnotes/internal/config"
)

// shareSigner mints and validates expiring HMAC-signed report links so a
// note's PDF can be fetched without hitting the authenticated API.
type shareSigner struct {
	secret  string
	baseURL string
	ttl     time.Duration
}

func newShareSigner(cfg config.Config) *shareSigner {
	return &shareSigner{
		secret:  cfg.ShareSecret,
		baseURL: cfg.BaseURL,
		ttl:     cfg.ShareTTL,
	}
}

func (s *shareSigner) Generate(projectID, noteID string) (string, time.Time) {
	expiresAt := time.Now().Add(s.ttl)
	path := fmt.Sprintf("/reports/%s/%s", projectID, noteID)
	signature := s.compute(path, expiresAt.Unix())
	return fmt.Sprintf("%s%s?exp=%d&sig=%s", s.baseURL, path, expiresAt.Unix(), signature), expiresAt
}

func (s *shareSigner) Validate(path string, expiresAt int64, signature string) bool {
	expected := s.compute(path, expiresAt)
	return hmac.Equal([]byte(signature), []byte(expected))
}

func (s *shareSigner) compute(path string, expiresAt int64) string {
	h := hmac.New(sha256.New, []byte(s.secret))
	h.Write([]byte(fmt.Sprintf("%s:%d", path, expiresAt)))
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(h.Sum(nil))
}
