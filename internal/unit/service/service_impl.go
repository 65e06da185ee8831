package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/FESP32/clientela-pro-sub001/internal/authorization"
	"github.com/FESP32/clientela-pro-sub001/internal/clock"
	"github.com/FESP32/clientela-pro-sub001/internal/events"
	plandomain "github.com/FESP32/clientela-pro-sub001/internal/plan/domain"
	"github.com/FESP32/clientela-pro-sub001/internal/quota"
	tenantdomain "github.com/FESP32/clientela-pro-sub001/internal/tenant/domain"
	"github.com/FESP32/clientela-pro-sub001/internal/tenantcontext"
	unitdomain "github.com/FESP32/clientela-pro-sub001/internal/unit/domain"
	"github.com/FESP32/clientela-pro-sub001/pkg/db/option"
	"github.com/FESP32/clientela-pro-sub001/pkg/db/pagination"
	"github.com/FESP32/clientela-pro-sub001/pkg/repository"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	QuotaSvc quota.Service
	AuthSvc  authorization.Service
	Outbox   *events.Outbox `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	store    repository.Repository[unitdomain.RedeemableUnit]
	quotaSvc quota.Service
	authSvc  authorization.Service
	outbox   *events.Outbox
}

func NewService(p Params) unitdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("unit.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		store:    repository.ProvideStore[unitdomain.RedeemableUnit](p.DB),
		quotaSvc: p.QuotaSvc,
		authSvc:  p.AuthSvc,
		outbox:   p.Outbox,
	}
}

// Create mints a redeemable unit under the acting tenant. The quota is
// charged to the tenant's owner, so units created by staff still count
// against the owner's plan across all their businesses.
func (s *Service) Create(ctx context.Context, userID snowflake.ID, req unitdomain.CreateUnitRequest) (*unitdomain.Response, error) {
	tenantID, ok := tenantcontext.TenantIDFromContext(ctx)
	if !ok {
		return nil, unitdomain.ErrInvalidTenant
	}
	if err := s.authSvc.Authorize(ctx, userID, tenantID, authorization.ObjectUnit, authorization.ActionCreate); err != nil {
		return nil, err
	}

	kind := plandomain.ResourceKind(strings.ToLower(strings.TrimSpace(req.Kind)))
	if !kind.Valid() || kind == plandomain.ResourceTenant {
		return nil, unitdomain.ErrInvalidKind
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, unitdomain.ErrInvalidName
	}
	if req.ValidFrom != nil && req.ValidTo != nil && !req.ValidTo.After(*req.ValidFrom) {
		return nil, unitdomain.ErrInvalidValidity
	}

	var tenant tenantdomain.Tenant
	if err := s.db.WithContext(ctx).Where("id = ?", tenantID).First(&tenant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, unitdomain.ErrInvalidTenant
		}
		return nil, err
	}

	if err := s.quotaSvc.CheckQuota(ctx, tenant.OwnerID, kind); err != nil {
		if errors.Is(err, quota.ErrQuotaExceeded) {
			s.publishQuotaDenied(ctx, tenantID, tenant.OwnerID, kind)
		}
		return nil, err
	}

	now := s.clock.Now()
	unit := unitdomain.RedeemableUnit{
		ID:        s.genID.Generate(),
		TenantID:  tenantID,
		Kind:      kind,
		Name:      name,
		Status:    unitdomain.UnitStatusActive,
		ValidFrom: req.ValidFrom,
		ValidTo:   req.ValidTo,
		CreatedBy: userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.Metadata != nil {
		unit.Metadata = datatypes.JSONMap(req.Metadata)
	}

	if err := s.store.Create(ctx, &unit); err != nil {
		return nil, err
	}

	resp := toResponse(&unit)
	return &resp, nil
}

// UpdateStatus moves a unit between active, inactive and finished. A finished
// unit stays finished.
func (s *Service) UpdateStatus(ctx context.Context, userID snowflake.ID, req unitdomain.UpdateStatusRequest) (*unitdomain.Response, error) {
	tenantID, ok := tenantcontext.TenantIDFromContext(ctx)
	if !ok {
		return nil, unitdomain.ErrInvalidTenant
	}
	if err := s.authSvc.Authorize(ctx, userID, tenantID, authorization.ObjectUnit, authorization.ActionUpdate); err != nil {
		return nil, err
	}

	id, err := snowflake.ParseString(strings.TrimSpace(req.ID))
	if err != nil || id == 0 {
		return nil, unitdomain.ErrInvalidID
	}

	status := unitdomain.UnitStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	switch status {
	case unitdomain.UnitStatusActive, unitdomain.UnitStatusInactive, unitdomain.UnitStatusFinished:
	default:
		return nil, unitdomain.ErrInvalidStatus
	}

	unit, err := s.findScoped(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if unit.Status == unitdomain.UnitStatusFinished && status != unitdomain.UnitStatusFinished {
		return nil, unitdomain.ErrInvalidStatus
	}

	now := s.clock.Now()
	result := s.db.WithContext(ctx).Exec(
		`UPDATE redeemable_units
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND tenant_id = ? AND status <> ?`,
		status, now, id, tenantID, unitdomain.UnitStatusFinished,
	)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 && status != unit.Status {
		return nil, unitdomain.ErrInvalidStatus
	}

	unit.Status = status
	unit.UpdatedAt = now
	resp := toResponse(unit)
	return &resp, nil
}

func (s *Service) GetByID(ctx context.Context, userID snowflake.ID, id string) (*unitdomain.Response, error) {
	tenantID, ok := tenantcontext.TenantIDFromContext(ctx)
	if !ok {
		return nil, unitdomain.ErrInvalidTenant
	}
	if err := s.authSvc.Authorize(ctx, userID, tenantID, authorization.ObjectUnit, authorization.ActionRead); err != nil {
		return nil, err
	}

	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || parsed == 0 {
		return nil, unitdomain.ErrInvalidID
	}

	unit, err := s.findScoped(ctx, tenantID, parsed)
	if err != nil {
		return nil, err
	}
	resp := toResponse(unit)
	return &resp, nil
}

func (s *Service) List(ctx context.Context, userID snowflake.ID, req unitdomain.ListRequest) (unitdomain.ListResponse, error) {
	tenantID, ok := tenantcontext.TenantIDFromContext(ctx)
	if !ok {
		return unitdomain.ListResponse{}, unitdomain.ErrInvalidTenant
	}
	if err := s.authSvc.Authorize(ctx, userID, tenantID, authorization.ObjectUnit, authorization.ActionRead); err != nil {
		return unitdomain.ListResponse{}, err
	}

	filter := &unitdomain.RedeemableUnit{TenantID: tenantID}
	if strings.TrimSpace(req.Kind) != "" {
		kind := plandomain.ResourceKind(strings.ToLower(strings.TrimSpace(req.Kind)))
		if !kind.Valid() || kind == plandomain.ResourceTenant {
			return unitdomain.ListResponse{}, unitdomain.ErrInvalidKind
		}
		filter.Kind = kind
	}
	if strings.TrimSpace(req.Status) != "" {
		filter.Status = unitdomain.UnitStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	units, err := s.store.Find(ctx, filter,
		option.ApplyPagination(pagination.Pagination{
			PageToken: req.PageToken,
			PageSize:  int(pageSize),
		}),
		option.WithSortBy(option.QuerySortBy{Allow: map[string]bool{"created_at": true}}),
	)
	if err != nil {
		return unitdomain.ListResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(units, pageSize, func(record *unitdomain.RedeemableUnit) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        record.ID.String(),
			CreatedAt: record.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(units) > int(pageSize) {
		units = units[:pageSize]
	}

	responses := make([]unitdomain.Response, 0, len(units))
	for _, unit := range units {
		if unit == nil {
			continue
		}
		responses = append(responses, toResponse(unit))
	}

	resp := unitdomain.ListResponse{Units: responses}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

// Delete removes a unit and every intent and punch entry hanging off it.
func (s *Service) Delete(ctx context.Context, userID snowflake.ID, id string) error {
	tenantID, ok := tenantcontext.TenantIDFromContext(ctx)
	if !ok {
		return unitdomain.ErrInvalidTenant
	}
	if err := s.authSvc.Authorize(ctx, userID, tenantID, authorization.ObjectUnit, authorization.ActionDelete); err != nil {
		return err
	}

	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || parsed == 0 {
		return unitdomain.ErrInvalidID
	}
	if _, err := s.findScoped(ctx, tenantID, parsed); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		queries := []string{
			`DELETE FROM punch_entries WHERE unit_id = ? AND tenant_id = ?`,
			`DELETE FROM intents WHERE unit_id = ? AND tenant_id = ?`,
			`DELETE FROM redeemable_units WHERE id = ? AND tenant_id = ?`,
		}
		for _, query := range queries {
			if err := tx.Exec(query, parsed, tenantID).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// publishQuotaDenied records the deny in the outbox so billing can surface an
// upgrade prompt. Repeated denies each get a row; the creation itself is
// already blocked, so a failed publish only costs the signal.
func (s *Service) publishQuotaDenied(ctx context.Context, tenantID, ownerID snowflake.ID, kind plandomain.ResourceKind) {
	if s.outbox == nil {
		return
	}
	err := s.outbox.Publish(ctx, events.Event{
		TenantID: tenantID,
		Type:     events.EventQuotaDenied,
		Payload: map[string]any{
			"owner_id": ownerID.String(),
			"kind":     string(kind),
		},
	})
	if err != nil {
		s.log.Warn("publish quota denied event",
			zap.String("tenant_id", tenantID.String()),
			zap.String("owner_id", ownerID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) findScoped(ctx context.Context, tenantID, id snowflake.ID) (*unitdomain.RedeemableUnit, error) {
	unit, err := s.store.FindOne(ctx, &unitdomain.RedeemableUnit{ID: id, TenantID: tenantID})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, unitdomain.ErrNotFound
		}
		return nil, err
	}
	return unit, nil
}

func toResponse(unit *unitdomain.RedeemableUnit) unitdomain.Response {
	return unitdomain.Response{
		ID:        unit.ID.String(),
		TenantID:  unit.TenantID.String(),
		Kind:      unit.Kind,
		Name:      unit.Name,
		Status:    unit.Status,
		ValidFrom: unit.ValidFrom,
		ValidTo:   unit.ValidTo,
		CreatedAt: unit.CreatedAt,
		UpdatedAt: unit.UpdatedAt,
	}
}
