package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/ManuelReschke/subscription-engine/app/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	planCatalogKey        = "billing:plans:v1"
	DefaultPlanCatalogTTL = 5 * time.Minute
	planLoadTimeout       = 5 * time.Second
)

// PlanLister loads the full plan catalog ordered by price.
type PlanLister interface {
	ListPlans(ctx context.Context) ([]models.SubscriptionPlan, error)
}

// PlanCatalog is a read-through cache in front of the plan table. Concurrent
// misses share one database load.
type PlanCatalog struct {
	source PlanLister
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
	group  singleflight.Group
}

// NewPlanCatalog creates a catalog. A nil client disables caching.
func NewPlanCatalog(source PlanLister, client *redis.Client, ttl time.Duration, log zerolog.Logger) *PlanCatalog {
	if ttl <= 0 {
		ttl = DefaultPlanCatalogTTL
	}
	return &PlanCatalog{source: source, client: client, ttl: ttl, log: log}
}

// List returns all plans, or only those offered on platform when it is set.
func (c *PlanCatalog) List(ctx context.Context, platform string) ([]models.SubscriptionPlan, error) {
	plans, err := c.all(ctx)
	if err != nil {
		return nil, err
	}
	platform = strings.TrimSpace(platform)
	if platform == "" {
		return plans, nil
	}
	out := make([]models.SubscriptionPlan, 0, len(plans))
	for i := range plans {
		if plans[i].AvailableOn(platform) {
			out = append(out, plans[i])
		}
	}
	return out, nil
}

// Invalidate drops the cached catalog.
func (c *PlanCatalog) Invalidate(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	return Delete(ctx, c.client, planCatalogKey)
}

func (c *PlanCatalog) all(ctx context.Context) ([]models.SubscriptionPlan, error) {
	if c.client != nil {
		raw, err := Get(ctx, c.client, planCatalogKey)
		switch {
		case err == nil:
			var plans []models.SubscriptionPlan
			if jsonErr := json.Unmarshal([]byte(raw), &plans); jsonErr == nil {
				return plans, nil
			}
			c.log.Warn().Str("key", planCatalogKey).Msg("discarding malformed cached plan catalog")
		case !errors.Is(err, redis.Nil):
			c.log.Warn().Err(err).Msg("plan catalog cache read failed")
		}
	}

	v, err, _ := c.group.Do(planCatalogKey, func() (interface{}, error) {
		// Shared by every waiting caller, so it must outlive the first one.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), planLoadTimeout)
		defer cancel()

		plans, err := c.source.ListPlans(ctx)
		if err != nil {
			return nil, err
		}
		if c.client != nil {
			if raw, err := json.Marshal(plans); err == nil {
				if err := Set(ctx, c.client, planCatalogKey, raw, c.ttl); err != nil {
					c.log.Warn().Err(err).Msg("plan catalog cache write failed")
				}
			}
		}
		return plans, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.SubscriptionPlan), nil
}
