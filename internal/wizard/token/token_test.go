// internal/wizard/token/token_test.go
package token

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"advisory-apply/internal/models"
)

type fakeMetadata struct {
	meta *models.LocalDraftMetadata
	err  error
}

func (f *fakeMetadata) Read(ctx context.Context, clientID string) (*models.LocalDraftMetadata, error) {
	return f.meta, f.err
}

var hexToken = regexp.MustCompile(`^[0-9a-f]+$`)

func TestService_Generate(t *testing.T) {
	svc := NewService(nil)

	tok, err := svc.Generate()
	require.NoError(t, err)
	assert.Len(t, tok, HexLength)
	assert.True(t, hexToken.MatchString(tok))
}

func TestService_GenerateIsUnique(t *testing.T) {
	svc := NewService(nil)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok, err := svc.Generate()
		require.NoError(t, err)
		assert.False(t, seen[tok], "token repeated")
		seen[tok] = true
	}
}

func TestService_LocatePrefersSessionToken(t *testing.T) {
	svc := NewService(&fakeMetadata{meta: &models.LocalDraftMetadata{ResumeToken: "from-cache"}})
	svc.SetCurrent("pinned")

	tok, err := svc.Locate(context.Background(), "client-1")
	require.NoError(t, err)
	assert.Equal(t, "pinned", tok)
}

func TestService_LocateFallsBackToMetadata(t *testing.T) {
	svc := NewService(&fakeMetadata{meta: &models.LocalDraftMetadata{ResumeToken: "from-cache"}})

	tok, err := svc.Locate(context.Background(), "client-1")
	require.NoError(t, err)
	assert.Equal(t, "from-cache", tok)
}

func TestService_LocateEmptyWhenNothingKnown(t *testing.T) {
	tests := []struct {
		name string
		meta MetadataReader
	}{
		{"no reader", nil},
		{"no record", &fakeMetadata{}},
		{"record without token", &fakeMetadata{meta: &models.LocalDraftMetadata{CurrentStep: 3}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.meta)
			tok, err := svc.Locate(context.Background(), "client-1")
			require.NoError(t, err)
			assert.Empty(t, tok)
		})
	}
}

func TestService_LocatePropagatesReadError(t *testing.T) {
	svc := NewService(&fakeMetadata{err: errors.New("redis down")})

	_, err := svc.Locate(context.Background(), "client-1")
	assert.Error(t, err)
}

func TestService_ResetClearsSessionToken(t *testing.T) {
	svc := NewService(nil)
	svc.SetCurrent("pinned")
	require.Equal(t, "pinned", svc.Current())

	svc.Reset()
	assert.Empty(t, svc.Current())

	tok, err := svc.Locate(context.Background(), "client-1")
	require.NoError(t, err)
	assert.Empty(t, tok)
}
