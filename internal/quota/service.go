package quota

import (
	"context"
	"errors"

	plandomain "github.com/FESP32/clientela-pro-sub001/internal/plan/domain"
	"github.com/bwmarrin/snowflake"
)

// Service is the quota guard. CheckQuota is an idempotent read with no side
// effects; callers must block creation entirely on a deny.
type Service interface {
	// CheckQuota reports whether the owner may create one more unit of the
	// kind under their effective plan. A deny is ErrQuotaExceeded and is
	// confirmed against a fresh plan resolution, never a cached one.
	CheckQuota(ctx context.Context, ownerID snowflake.ID, kind plandomain.ResourceKind) error

	// EffectivePlan resolves the owner's plan: the active unexpired
	// subscription's plan when one exists, else the free fallback.
	EffectivePlan(ctx context.Context, ownerID snowflake.ID) (plandomain.Plan, error)
}

var (
	ErrInvalidOwner = errors.New("invalid_owner")
	ErrInvalidKind  = errors.New("invalid_kind")

	// ErrQuotaExceeded drives an upgrade prompt, not a generic failure.
	ErrQuotaExceeded = errors.New("quota_exceeded")

	// ErrMissingFreePlan is a configuration error and fatal at bootstrap.
	ErrMissingFreePlan = errors.New("missing_free_plan")
)
