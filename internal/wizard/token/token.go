// Package token issues and locates the resume capability token. The token is
// a bearer credential for exactly one draft, so it comes from a
// cryptographically secure source and is generated once per draft lifetime,
// never rotated: rotation would break outstanding resume links.
package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"advisory-apply/internal/models"
)

// ByteLength is the entropy of a resume token before hex encoding.
const ByteLength = 32

// HexLength is the fixed encoded length.
const HexLength = ByteLength * 2

// MetadataReader is the slice of the local cache adapter this service needs.
type MetadataReader interface {
	Read(ctx context.Context, clientID string) (*models.LocalDraftMetadata, error)
}

// Service hands out one stable token per drafting session even though
// several independent paths (autosave, explicit save, final submit) each
// need it. It never persists anything itself; callers store the token they
// obtain.
type Service struct {
	mu      sync.Mutex
	current string
	meta    MetadataReader
}

func NewService(meta MetadataReader) *Service {
	return &Service{meta: meta}
}

// Generate returns a fresh token: 32 bytes of cryptographically secure
// randomness as fixed-length hex.
func (s *Service) Generate() (string, error) {
	buf := make([]byte, ByteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate resume token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Locate returns, in priority order: the token already held by this session,
// the token recorded in local metadata, or "" when neither exists and the
// caller should Generate.
func (s *Service) Locate(ctx context.Context, clientID string) (string, error) {
	s.mu.Lock()
	current := s.current
	s.mu.Unlock()
	if current != "" {
		return current, nil
	}

	if s.meta != nil {
		meta, err := s.meta.Read(ctx, clientID)
		if err != nil {
			return "", err
		}
		if meta != nil && meta.ResumeToken != "" {
			return meta.ResumeToken, nil
		}
	}
	return "", nil
}

// SetCurrent pins the session token so every later save path reuses it.
func (s *Service) SetCurrent(tok string) {
	s.mu.Lock()
	s.current = tok
	s.mu.Unlock()
}

// Current returns the pinned session token, if any.
func (s *Service) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Reset clears the pinned token, on submission or an explicit start-over.
func (s *Service) Reset() {
	s.mu.Lock()
	s.current = ""
	s.mu.Unlock()
}
