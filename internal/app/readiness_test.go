package app

import (
	"context"
	"testing"
)

func TestBuildReadinessChecks_NilDependenciesFail(t *testing.T) {
	olapCheck, oltpCheck, redisCheck := BuildReadinessChecks(nil, nil, nil)

	if err := olapCheck(context.Background()); err == nil {
		t.Error("expected error for unconfigured olap client")
	}
	if err := oltpCheck(context.Background()); err == nil {
		t.Error("expected error for unconfigured oltp pool")
	}
	if err := redisCheck(context.Background()); err == nil {
		t.Error("expected error for unconfigured redis cache")
	}
}
