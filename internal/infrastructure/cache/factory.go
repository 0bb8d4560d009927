package cache

import (
	"github.com/erp/rostersync/internal/domain/shared"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewIdempotencyStore returns a Redis-backed store when a client is given,
// otherwise an in-memory one. Redis keys are namespaced by contextID: every
// context must apply each replicated event once, so contexts must not share
// their seen sets.
func NewIdempotencyStore(client redis.UniversalClient, contextID string, logger *zap.Logger) shared.IdempotencyStore {
	if client != nil {
		logger.Info("Using Redis idempotency store", zap.String("context_id", contextID))
		return NewRedisIdempotencyStore(client, defaultIdempotencyPrefix+contextID+":")
	}
	logger.Info("Using in-memory idempotency store")
	return NewInMemoryIdempotencyStore(0)
}
