package service

import (
	"context"
	"errors"

	punchdomain "github.com/FESP32/clientela-pro-sub001/internal/punchledger/domain"
	"github.com/FESP32/clientela-pro-sub001/pkg/repository"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
	store repository.Repository[punchdomain.PunchEntry]
}

func NewService(p Params) punchdomain.Service {
	return &Service{
		log:   p.Log.Named("punchledger.service"),
		genID: p.GenID,
		store: repository.ProvideStore[punchdomain.PunchEntry](p.DB),
	}
}

func (s *Service) Record(ctx context.Context, req punchdomain.RecordRequest) error {
	if req.IntentID == 0 {
		return punchdomain.ErrInvalidIntent
	}
	if req.UnitID == 0 {
		return punchdomain.ErrInvalidUnit
	}
	if req.TenantID == 0 {
		return punchdomain.ErrInvalidTenant
	}
	if req.CustomerID == 0 {
		return punchdomain.ErrInvalidCustomer
	}

	existing, err := s.store.Count(ctx, &punchdomain.PunchEntry{IntentID: req.IntentID})
	if err != nil {
		return err
	}
	if existing > 0 {
		return punchdomain.ErrDuplicateEntry
	}

	entry := punchdomain.PunchEntry{
		ID:         s.genID.Generate(),
		IntentID:   req.IntentID,
		UnitID:     req.UnitID,
		TenantID:   req.TenantID,
		CustomerID: req.CustomerID,
		RecordedAt: req.RecordedAt,
	}
	if err := s.store.Create(ctx, &entry); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return punchdomain.ErrDuplicateEntry
		}
		return err
	}
	return nil
}

func (s *Service) CountByCustomer(ctx context.Context, tenantID, unitID, customerID snowflake.ID) (int64, error) {
	if tenantID == 0 {
		return 0, punchdomain.ErrInvalidTenant
	}
	if unitID == 0 {
		return 0, punchdomain.ErrInvalidUnit
	}
	if customerID == 0 {
		return 0, punchdomain.ErrInvalidCustomer
	}
	return s.store.Count(ctx, &punchdomain.PunchEntry{
		TenantID:   tenantID,
		UnitID:     unitID,
		CustomerID: customerID,
	})
}
