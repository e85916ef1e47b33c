package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"chartbot/internal/models"
	"chartbot/internal/observability"
)

// Predictor is the wrapped prediction source.
type Predictor interface {
	Predict(ctx context.Context, query string) (models.VisualizationIntent, error)
}

// CachedPredictor answers repeated queries from a cache and collapses
// concurrent identical queries into a single upstream call.
type CachedPredictor struct {
	next   Predictor
	cache  Client
	ttl    time.Duration
	group  singleflight.Group
	logger *observability.Logger
}

// NewCachedPredictor wraps next.
func NewCachedPredictor(next Predictor, cache Client, ttl time.Duration, logger *observability.Logger) *CachedPredictor {
	return &CachedPredictor{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: logger.WithOperation("predict_cache"),
	}
}

// Predict returns a cached intent or asks the wrapped predictor. Cache
// failures are logged and otherwise ignored.
func (p *CachedPredictor) Predict(ctx context.Context, query string) (models.VisualizationIntent, error) {
	key := cacheKey(query)

	if data, err := p.cache.Get(ctx, key); err == nil {
		var intent models.VisualizationIntent
		if err := json.Unmarshal(data, &intent); err == nil {
			p.logger.Debug().Str("key", key).Msg("prediction cache hit")
			return intent, nil
		}
		p.logger.Warn().Str("key", key).Msg("dropping undecodable cache entry")
		_ = p.cache.Delete(ctx, key)
	} else if !errors.Is(err, ErrCacheMiss) {
		p.logger.Warn().Err(err).Msg("prediction cache read failed")
	}

	// The shared call outlives any single caller; each caller waits on its
	// own context instead.
	detached := context.WithoutCancel(ctx)
	ch := p.group.DoChan(key, func() (interface{}, error) {
		intent, err := p.next.Predict(detached, query)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(intent); err == nil {
			if err := p.cache.Set(detached, key, data, p.ttl); err != nil {
				p.logger.Warn().Err(err).Msg("prediction cache write failed")
			}
		}
		return intent, nil
	})

	select {
	case <-ctx.Done():
		return models.VisualizationIntent{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return models.VisualizationIntent{}, res.Err
		}
		if res.Shared {
			p.logger.Debug().Str("key", key).Msg("joined in-flight prediction")
		}
		return res.Val.(models.VisualizationIntent), nil
	}
}

// cacheKey folds case and surrounding space so trivially different
// spellings of a query share an entry.
func cacheKey(query string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(query))))
	return "predict:" + hex.EncodeToString(sum[:])
}
