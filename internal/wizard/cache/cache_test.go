// internal/wizard/cache/cache_test.go
package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"advisory-apply/internal/common/logger"
	"advisory-apply/internal/models"
)

func newTestAdapter(t *testing.T) (*Adapter, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(rdb, 0, logger.NewTestLogger(t)), mr
}

func testMetadata() *models.LocalDraftMetadata {
	return &models.LocalDraftMetadata{
		DraftID:        "draft-001",
		ResumeToken:    "a1b2c3",
		CurrentStep:    4,
		CompletedSteps: []int{1, 2, 3},
		LastSaved:      time.Now().UTC().Truncate(time.Second),
		AdvisorID:      "adv-42",
	}
}

func TestAdapter_WriteReadRoundTrip(t *testing.T) {
	adapter, _ := newTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, adapter.Write(ctx, "client-1", testMetadata()))

	got, err := adapter.Read(ctx, "client-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "draft-001", got.DraftID)
	assert.Equal(t, "a1b2c3", got.ResumeToken)
	assert.Equal(t, 4, got.CurrentStep)
	assert.Equal(t, []int{1, 2, 3}, got.CompletedSteps)
}

func TestAdapter_ReadMissingSlot(t *testing.T) {
	adapter, _ := newTestAdapter(t)

	got, err := adapter.Read(context.Background(), "never-seen")

	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestAdapter_CorruptSlotIsDiscarded(t *testing.T) {
	adapter, mr := newTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("apply:draft:client-1", "{not json"))

	got, err := adapter.Read(ctx, "client-1")
	assert.NoError(t, err)
	assert.Nil(t, got)

	// The corrupt record must be gone, not left to fail again.
	assert.False(t, mr.Exists("apply:draft:client-1"))
}

func TestAdapter_Clear(t *testing.T) {
	adapter, mr := newTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, adapter.Write(ctx, "client-1", testMetadata()))
	require.NoError(t, adapter.Clear(ctx, "client-1"))

	assert.False(t, mr.Exists("apply:draft:client-1"))

	got, err := adapter.Read(ctx, "client-1")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestAdapter_SlotsAreIsolatedPerClient(t *testing.T) {
	adapter, _ := newTestAdapter(t)
	ctx := context.Background()

	metaA := testMetadata()
	metaB := testMetadata()
	metaB.DraftID = "draft-002"
	metaB.ResumeToken = "d4e5f6"

	require.NoError(t, adapter.Write(ctx, "client-a", metaA))
	require.NoError(t, adapter.Write(ctx, "client-b", metaB))

	gotA, err := adapter.Read(ctx, "client-a")
	require.NoError(t, err)
	gotB, err := adapter.Read(ctx, "client-b")
	require.NoError(t, err)

	assert.Equal(t, "draft-001", gotA.DraftID)
	assert.Equal(t, "draft-002", gotB.DraftID)
}

func TestAdapter_ReadPropagatesRedisFailure(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	adapter := New(rdb, 0, logger.NewTestLogger(t))

	mock.ExpectGet("apply:draft:client-1").SetErr(errors.New("connection refused"))

	_, err := adapter.Read(context.Background(), "client-1")

	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_WritePropagatesRedisFailure(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	adapter := New(rdb, 0, logger.NewTestLogger(t))

	mock.Regexp().ExpectSet("apply:draft:client-1", `.+`, 0).SetErr(errors.New("connection refused"))

	err := adapter.Write(context.Background(), "client-1", testMetadata())

	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_TTLApplied(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	adapter := New(rdb, 30*time.Minute, logger.NewTestLogger(t))

	require.NoError(t, adapter.Write(context.Background(), "client-1", testMetadata()))
	assert.Equal(t, 30*time.Minute, mr.TTL("apply:draft:client-1"))
}
