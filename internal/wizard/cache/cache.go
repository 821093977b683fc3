// Package cache is the local draft metadata adapter: one slot per client
// holding the non-sensitive LocalDraftMetadata record. Corrupt or foreign
// data in the slot is discarded, never propagated.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"advisory-apply/internal/common/logger"
	"advisory-apply/internal/models"
)

const keyPrefix = "apply:draft:"

type Adapter struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

// New creates the adapter. ttl 0 means the slot has no expiry; it is removed
// only by Clear after a confirmed submission or an explicit "start fresh".
func New(rdb *redis.Client, ttl time.Duration, log logger.Logger) *Adapter {
	return &Adapter{
		rdb:    rdb,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "draft-cache"}),
	}
}

func slotKey(clientID string) string {
	return keyPrefix + clientID
}

// Read deserializes the stored record. A missing slot returns (nil, nil). A
// malformed record is cleared and reported as absent so stale or foreign
// data can never crash the wizard.
func (a *Adapter) Read(ctx context.Context, clientID string) (*models.LocalDraftMetadata, error) {
	raw, err := a.rdb.Get(ctx, slotKey(clientID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var meta models.LocalDraftMetadata
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		a.logger.Warn("discarding corrupt draft metadata", map[string]interface{}{
			"clientId": clientID,
			"error":    err.Error(),
		})
		_ = a.rdb.Del(ctx, slotKey(clientID)).Err()
		return nil, nil
	}
	return &meta, nil
}

// Write serializes and overwrites the single slot.
func (a *Adapter) Write(ctx context.Context, clientID string, meta *models.LocalDraftMetadata) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return a.rdb.Set(ctx, slotKey(clientID), raw, a.ttl).Err()
}

// Clear removes the slot.
func (a *Adapter) Clear(ctx context.Context, clientID string) error {
	return a.rdb.Del(ctx, slotKey(clientID)).Err()
}
