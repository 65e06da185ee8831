package domain

import (
	"context"
	"errors"
	"time"

	plandomain "github.com/FESP32/clientela-pro-sub001/internal/plan/domain"
	"github.com/FESP32/clientela-pro-sub001/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
)

type CreateUnitRequest struct {
	Kind      string         `json:"kind"`
	Name      string         `json:"name"`
	ValidFrom *time.Time     `json:"valid_from,omitempty"`
	ValidTo   *time.Time     `json:"valid_to,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type UpdateStatusRequest struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type ListRequest struct {
	Kind      string `form:"kind"`
	Status    string `form:"status"`
	PageToken string `form:"page_token"`
	PageSize  int32  `form:"page_size"`
}

type Response struct {
	ID        string                  `json:"id"`
	TenantID  string                  `json:"tenant_id"`
	Kind      plandomain.ResourceKind `json:"kind"`
	Name      string                  `json:"name"`
	Status    UnitStatus              `json:"status"`
	ValidFrom *time.Time              `json:"valid_from,omitempty"`
	ValidTo   *time.Time              `json:"valid_to,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
	UpdatedAt time.Time               `json:"updated_at"`
}

type ListResponse struct {
	Units    []Response          `json:"units"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

// Service manages redeemable units. Every call is scoped by the acting user
// and the tenant threaded through the context.
type Service interface {
	Create(ctx context.Context, userID snowflake.ID, req CreateUnitRequest) (*Response, error)
	UpdateStatus(ctx context.Context, userID snowflake.ID, req UpdateStatusRequest) (*Response, error)
	GetByID(ctx context.Context, userID snowflake.ID, id string) (*Response, error)
	List(ctx context.Context, userID snowflake.ID, req ListRequest) (ListResponse, error)
	Delete(ctx context.Context, userID snowflake.ID, id string) error
}

var (
	ErrInvalidTenant   = errors.New("invalid_tenant")
	ErrInvalidKind     = errors.New("invalid_kind")
	ErrInvalidName     = errors.New("invalid_name")
	ErrInvalidStatus   = errors.New("invalid_status")
	ErrInvalidID       = errors.New("invalid_id")
	ErrInvalidValidity = errors.New("invalid_validity_window")
	ErrNotFound        = errors.New("not_found")
)
