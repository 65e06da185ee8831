package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/FESP32/clientela-pro-sub001/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
)

type CreateRequest struct {
	UnitID     string     `json:"unit_id"`
	Quantity   int        `json:"quantity"`
	CustomerID string     `json:"customer_id,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Note       string     `json:"note,omitempty"`
}

type ConsumeRequest struct {
	IntentID string `json:"intent_id"`
}

type FinalizeRequest struct {
	IntentID string `json:"intent_id"`
}

type CancelRequest struct {
	IntentID string `json:"intent_id"`
}

type ListRequest struct {
	UnitID     string `form:"unit_id"`
	Kind       string `form:"kind"`
	Status     string `form:"status"`
	CustomerID string `form:"customer_id"`
	PageToken  string `form:"page_token"`
	PageSize   int32  `form:"page_size"`
}

type Response struct {
	ID          string     `json:"id"`
	UnitID      string     `json:"unit_id"`
	TenantID    string     `json:"tenant_id"`
	Kind        Kind       `json:"kind"`
	CustomerID  string     `json:"customer_id,omitempty"`
	Note        string     `json:"note,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Status      Status     `json:"status"`
	ConsumedBy  string     `json:"consumed_by,omitempty"`
	ConsumedAt  *time.Time `json:"consumed_at,omitempty"`
	FinalizedAt *time.Time `json:"finalized_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type ListResponse struct {
	Intents  []Response          `json:"intents"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

// Service is the redemption state machine, shared across the stamp, gift and
// referral verticals. Issuer-side calls take the acting user plus the tenant
// threaded through the context; Consume is the single customer-side call.
type Service interface {
	Create(ctx context.Context, userID snowflake.ID, req CreateRequest) ([]Response, error)
	Consume(ctx context.Context, customerID snowflake.ID, req ConsumeRequest) (*Response, error)
	Finalize(ctx context.Context, userID snowflake.ID, req FinalizeRequest) (*Response, error)
	Cancel(ctx context.Context, userID snowflake.ID, req CancelRequest) (*Response, error)
	GetByID(ctx context.Context, userID snowflake.ID, id string) (*Response, error)
	List(ctx context.Context, userID snowflake.ID, req ListRequest) (ListResponse, error)
}

var (
	ErrInvalidTenant   = errors.New("invalid_tenant")
	ErrInvalidUnit     = errors.New("invalid_unit")
	ErrInvalidQuantity = errors.New("invalid_quantity")
	ErrInvalidCustomer = errors.New("invalid_customer")
	ErrInvalidID       = errors.New("invalid_id")
	ErrInvalidKind     = errors.New("invalid_kind")
	ErrNotFound        = errors.New("not_found")

	// ErrAlreadyProcessed reports a lost status guard or an intent already
	// past the requested transition. Callers must re-read before retrying.
	ErrAlreadyProcessed = errors.New("already_processed")

	// ErrIntentExpired marks a pending intent whose expiry has passed; it
	// can never leave pending.
	ErrIntentExpired = errors.New("intent_expired")

	// ErrNotAssignee rejects consumption by anyone but the pre-assigned
	// customer.
	ErrNotAssignee = errors.New("not_assignee")

	ErrUnitNotRedeemable = errors.New("unit_not_redeemable")
)

// ParseID parses a caller-supplied identifier.
func ParseID(raw string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(raw))
}
