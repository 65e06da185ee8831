package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type RecordRequest struct {
	IntentID   snowflake.ID
	UnitID     snowflake.ID
	TenantID   snowflake.ID
	CustomerID snowflake.ID
	RecordedAt time.Time
}

// Service writes punch entries. Record is the secondary write performed after
// a stamp intent is consumed; it is not atomic with the status transition.
type Service interface {
	Record(ctx context.Context, req RecordRequest) error
	CountByCustomer(ctx context.Context, tenantID, unitID, customerID snowflake.ID) (int64, error)
}

var (
	ErrInvalidIntent   = errors.New("invalid_intent")
	ErrInvalidUnit     = errors.New("invalid_unit")
	ErrInvalidTenant   = errors.New("invalid_tenant")
	ErrInvalidCustomer = errors.New("invalid_customer")
	ErrDuplicateEntry  = errors.New("duplicate_entry")
)
