// Package app wires application components and startup helpers.
//
// It provides dependency injection and application initialization.
// The package coordinates between different layers and provides
// a clean application bootstrap process.
package app

import (
	"context"
	"fmt"

	"github.com/feedpipeline/feedsvc/internal/adapter/dbpool"
	"github.com/feedpipeline/feedsvc/internal/adapter/feedcache"
	"github.com/feedpipeline/feedsvc/internal/adapter/olap"
)

// BuildReadinessChecks returns three readiness checks: olap, oltp, and redis.
func BuildReadinessChecks(olapClient *olap.Client, oltp *dbpool.Pool, cache *feedcache.Cache) (
	func(ctx context.Context) error,
	func(ctx context.Context) error,
	func(ctx context.Context) error,
) {
	olapCheck := func(ctx context.Context) error {
		if olapClient == nil {
			return fmt.Errorf("olap not configured")
		}
		return olapClient.HealthCheck(ctx)
	}
	oltpCheck := func(ctx context.Context) error {
		if oltp == nil {
			return fmt.Errorf("oltp not configured")
		}
		return oltp.Ping(ctx)
	}
	redisCheck := func(ctx context.Context) error {
		if cache == nil {
			return fmt.Errorf("redis not configured")
		}
		return cache.Ping(ctx)
	}
	return olapCheck, oltpCheck, redisCheck
}
