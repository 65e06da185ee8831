package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/FESP32/clientela-pro-sub001/internal/authorization"
	"github.com/FESP32/clientela-pro-sub001/internal/clock"
	"github.com/FESP32/clientela-pro-sub001/internal/events"
	intentdomain "github.com/FESP32/clientela-pro-sub001/internal/intent/domain"
	intentrepository "github.com/FESP32/clientela-pro-sub001/internal/intent/repository"
	"github.com/FESP32/clientela-pro-sub001/internal/observability/metrics"
	"github.com/FESP32/clientela-pro-sub001/internal/tenantcontext"
	unitdomain "github.com/FESP32/clientela-pro-sub001/internal/unit/domain"
	"github.com/FESP32/clientela-pro-sub001/pkg/db/option"
	"github.com/FESP32/clientela-pro-sub001/pkg/db/pagination"
	"github.com/FESP32/clientela-pro-sub001/pkg/repository"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    intentrepository.Repository
	AuthSvc authorization.Service
	Effects intentdomain.EffectRegistry
	Outbox  *events.Outbox             `optional:"true"`
	Metrics *metrics.RedemptionMetrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    intentrepository.Repository
	store   repository.Repository[intentdomain.Intent]
	authSvc authorization.Service
	effects intentdomain.EffectRegistry
	outbox  *events.Outbox
	metrics *metrics.RedemptionMetrics
}

func NewService(p Params) intentdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("intent.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		store:   repository.ProvideStore[intentdomain.Intent](p.DB),
		authSvc: p.AuthSvc,
		effects: p.Effects,
		outbox:  p.Outbox,
		metrics: p.Metrics,
	}
}

// Create materializes quantity independent pending rows. Sibling rows never
// contend: each later consume is guarded by its own row id.
func (s *Service) Create(ctx context.Context, userID snowflake.ID, req intentdomain.CreateRequest) ([]intentdomain.Response, error) {
	tenantID, ok := tenantcontext.TenantIDFromContext(ctx)
	if !ok {
		return nil, intentdomain.ErrInvalidTenant
	}
	if err := s.authSvc.Authorize(ctx, userID, tenantID, authorization.ObjectIntent, authorization.ActionCreate); err != nil {
		return nil, err
	}

	unitID, err := intentdomain.ParseID(req.UnitID)
	if err != nil || unitID == 0 {
		return nil, intentdomain.ErrInvalidUnit
	}

	unit, err := s.findUnit(ctx, tenantID, unitID)
	if err != nil {
		return nil, err
	}

	descriptor, ok := intentdomain.DescriptorForUnitKind(unit.Kind)
	if !ok {
		return nil, intentdomain.ErrInvalidKind
	}

	now := s.clock.Now()
	if unit.Status != unitdomain.UnitStatusActive || !unit.WithinValidity(now) {
		return nil, intentdomain.ErrUnitNotRedeemable
	}

	qty := req.Quantity
	if qty == 0 {
		qty = 1
	}
	if qty < 1 || qty > descriptor.MaxQuantity {
		return nil, intentdomain.ErrInvalidQuantity
	}

	var customerID *snowflake.ID
	if strings.TrimSpace(req.CustomerID) != "" {
		parsed, err := intentdomain.ParseID(req.CustomerID)
		if err != nil || parsed == 0 {
			return nil, intentdomain.ErrInvalidCustomer
		}
		customerID = &parsed
	}

	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		return nil, intentdomain.ErrIntentExpired
	}

	intents := make([]*intentdomain.Intent, 0, qty)
	for i := 0; i < qty; i++ {
		intents = append(intents, &intentdomain.Intent{
			ID:         s.genID.Generate(),
			UnitID:     unit.ID,
			TenantID:   tenantID,
			Kind:       descriptor.Kind,
			CustomerID: customerID,
			Note:       strings.TrimSpace(req.Note),
			ExpiresAt:  req.ExpiresAt,
			Status:     intentdomain.StatusPending,
			CreatedBy:  userID,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	// Rows and their created events land atomically; a failed outbox write
	// rolls the batch back rather than leaving rows without an event trail.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(intents).Error; err != nil {
			return err
		}
		if s.outbox == nil {
			return nil
		}
		for _, intent := range intents {
			payload := s.eventPayload(intent)
			err := s.outbox.PublishTx(ctx, tx, events.Event{
				TenantID:  intent.TenantID,
				Type:      events.EventIntentCreated,
				Payload:   payload.ToMap(),
				DedupeKey: events.EventIntentCreated + ":" + intent.ID.String(),
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncCreated(string(descriptor.Kind), qty)

	responses := make([]intentdomain.Response, 0, len(intents))
	for _, intent := range intents {
		responses = append(responses, s.toResponse(intent, now))
	}
	return responses, nil
}

// Consume moves pending to consumed on behalf of a customer. The pre-read
// only classifies the failure for the caller; the single conditional update
// is what decides the race.
func (s *Service) Consume(ctx context.Context, customerID snowflake.ID, req intentdomain.ConsumeRequest) (*intentdomain.Response, error) {
	if customerID == 0 {
		return nil, intentdomain.ErrInvalidCustomer
	}
	id, err := intentdomain.ParseID(req.IntentID)
	if err != nil || id == 0 {
		return nil, intentdomain.ErrInvalidID
	}

	intent, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, intentdomain.ErrNotFound
		}
		return nil, err
	}

	now := s.clock.Now()
	if intent.Status != intentdomain.StatusPending {
		return nil, intentdomain.ErrAlreadyProcessed
	}
	if intent.Expired(now) {
		return nil, intentdomain.ErrIntentExpired
	}
	if intent.AssignedToOther(customerID) {
		return nil, intentdomain.ErrNotAssignee
	}

	won, err := s.repo.MarkConsumed(ctx, id, customerID, now)
	if err != nil {
		return nil, err
	}
	if !won {
		s.metrics.IncConsumeConflict(string(intent.Kind))
		return nil, intentdomain.ErrAlreadyProcessed
	}

	intent.Status = intentdomain.StatusConsumed
	intent.ConsumedBy = &customerID
	intent.ConsumedAt = &now

	if err := s.applyConsumeEffect(ctx, intent, now); err != nil {
		return nil, err
	}

	s.metrics.IncConsumed(string(intent.Kind))
	s.publishEvent(ctx, intent, events.EventIntentConsumed)

	resp := s.toResponse(intent, now)
	return &resp, nil
}

// applyConsumeEffect runs the kind's secondary write and compensates on
// failure. The revert is itself guarded; when it loses, the intent is left
// consumed with no side-effect record and must surface for reconciliation.
func (s *Service) applyConsumeEffect(ctx context.Context, intent *intentdomain.Intent, now time.Time) error {
	effect, ok := s.effects[intent.Kind]
	if !ok || effect == nil {
		return nil
	}

	effectErr := effect.Apply(ctx, intent)
	if effectErr == nil {
		return nil
	}

	reverted, revertErr := s.repo.RevertConsumed(ctx, intent.ID, now)
	switch {
	case revertErr != nil:
		s.metrics.IncCompensation(string(intent.Kind), "error")
		s.logReconciliation(ctx, intent, effectErr, revertErr)
	case reverted:
		s.metrics.IncCompensation(string(intent.Kind), "reverted")
		s.log.Warn("consume side effect failed, intent reverted to pending",
			zap.String("intent_id", intent.ID.String()),
			zap.String("kind", string(intent.Kind)),
			zap.Error(effectErr),
		)
	default:
		// Guard lost: some other actor advanced the row past consumed.
		// The revert must not clobber that state, but the missing side
		// effect still needs reconciling.
		s.metrics.IncCompensation(string(intent.Kind), "noop")
		s.logReconciliation(ctx, intent, effectErr, nil)
	}

	return fmt.Errorf("consume side effect: %w", effectErr)
}

func (s *Service) logReconciliation(ctx context.Context, intent *intentdomain.Intent, effectErr, revertErr error) {
	s.metrics.IncReconciliationRequired(string(intent.Kind))
	s.log.Error("intent consumed without side-effect record, reconciliation required",
		zap.String("intent_id", intent.ID.String()),
		zap.String("tenant_id", intent.TenantID.String()),
		zap.String("kind", string(intent.Kind)),
		zap.NamedError("effect_error", effectErr),
		zap.NamedError("revert_error", revertErr),
	)
	if s.outbox != nil {
		payload := s.eventPayload(intent)
		err := s.outbox.Publish(ctx, events.Event{
			TenantID:  intent.TenantID,
			Type:      events.EventReconciliationRequired,
			Payload:   payload.ToMap(),
			DedupeKey: events.EventReconciliationRequired + ":" + intent.ID.String(),
		})
		if err != nil {
			s.log.Error("failed to publish reconciliation event",
				zap.String("intent_id", intent.ID.String()),
				zap.Error(err),
			)
		}
	}
}

// Finalize moves consumed to claimed on behalf of the issuing tenant.
func (s *Service) Finalize(ctx context.Context, userID snowflake.ID, req intentdomain.FinalizeRequest) (*intentdomain.Response, error) {
	tenantID, ok := tenantcontext.TenantIDFromContext(ctx)
	if !ok {
		return nil, intentdomain.ErrInvalidTenant
	}
	if err := s.authSvc.Authorize(ctx, userID, tenantID, authorization.ObjectIntent, authorization.ActionFinalize); err != nil {
		return nil, err
	}

	id, err := intentdomain.ParseID(req.IntentID)
	if err != nil || id == 0 {
		return nil, intentdomain.ErrInvalidID
	}

	intent, err := s.repo.FindByIDScoped(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, intentdomain.ErrNotFound
		}
		return nil, err
	}

	descriptor, ok := intentdomain.DescriptorFor(intent.Kind)
	if !ok {
		return nil, intentdomain.ErrInvalidKind
	}
	if descriptor.FinalizeByUnitCreatorOnly {
		unit, err := s.findUnit(ctx, tenantID, intent.UnitID)
		if err != nil {
			return nil, err
		}
		if unit.CreatedBy != userID {
			return nil, authorization.ErrForbidden
		}
	}

	if intent.Status != intentdomain.StatusConsumed {
		return nil, intentdomain.ErrAlreadyProcessed
	}

	now := s.clock.Now()
	won, err := s.repo.MarkFinalized(ctx, tenantID, id, now)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, intentdomain.ErrAlreadyProcessed
	}

	intent.Status = intentdomain.StatusClaimed
	intent.FinalizedAt = &now
	s.publishEvent(ctx, intent, events.EventIntentFinalized)

	resp := s.toResponse(intent, now)
	return &resp, nil
}

// Cancel is the issuer's alternate terminal path for pending intents.
func (s *Service) Cancel(ctx context.Context, userID snowflake.ID, req intentdomain.CancelRequest) (*intentdomain.Response, error) {
	tenantID, ok := tenantcontext.TenantIDFromContext(ctx)
	if !ok {
		return nil, intentdomain.ErrInvalidTenant
	}
	if err := s.authSvc.Authorize(ctx, userID, tenantID, authorization.ObjectIntent, authorization.ActionCancel); err != nil {
		return nil, err
	}

	id, err := intentdomain.ParseID(req.IntentID)
	if err != nil || id == 0 {
		return nil, intentdomain.ErrInvalidID
	}

	intent, err := s.repo.FindByIDScoped(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, intentdomain.ErrNotFound
		}
		return nil, err
	}
	if intent.Status != intentdomain.StatusPending {
		return nil, intentdomain.ErrAlreadyProcessed
	}

	now := s.clock.Now()
	won, err := s.repo.MarkCanceled(ctx, tenantID, id, now)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, intentdomain.ErrAlreadyProcessed
	}

	intent.Status = intentdomain.StatusCanceled
	intent.CanceledAt = &now
	s.publishEvent(ctx, intent, events.EventIntentCanceled)

	resp := s.toResponse(intent, now)
	return &resp, nil
}

func (s *Service) GetByID(ctx context.Context, userID snowflake.ID, id string) (*intentdomain.Response, error) {
	tenantID, ok := tenantcontext.TenantIDFromContext(ctx)
	if !ok {
		return nil, intentdomain.ErrInvalidTenant
	}
	if err := s.authSvc.Authorize(ctx, userID, tenantID, authorization.ObjectIntent, authorization.ActionRead); err != nil {
		return nil, err
	}

	parsed, err := intentdomain.ParseID(id)
	if err != nil || parsed == 0 {
		return nil, intentdomain.ErrInvalidID
	}

	intent, err := s.repo.FindByIDScoped(ctx, tenantID, parsed)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, intentdomain.ErrNotFound
		}
		return nil, err
	}

	resp := s.toResponse(intent, s.clock.Now())
	return &resp, nil
}

func (s *Service) List(ctx context.Context, userID snowflake.ID, req intentdomain.ListRequest) (intentdomain.ListResponse, error) {
	tenantID, ok := tenantcontext.TenantIDFromContext(ctx)
	if !ok {
		return intentdomain.ListResponse{}, intentdomain.ErrInvalidTenant
	}
	if err := s.authSvc.Authorize(ctx, userID, tenantID, authorization.ObjectIntent, authorization.ActionRead); err != nil {
		return intentdomain.ListResponse{}, err
	}

	filter, pageSize, err := s.buildListFilter(tenantID, req)
	if err != nil {
		return intentdomain.ListResponse{}, err
	}

	items, err := s.store.Find(ctx, filter,
		option.ApplyPagination(pagination.Pagination{
			PageToken: req.PageToken,
			PageSize:  int(pageSize),
		}),
		option.WithSortBy(option.QuerySortBy{Allow: map[string]bool{"created_at": true}}),
	)
	if err != nil {
		return intentdomain.ListResponse{}, err
	}
	return s.buildListResponse(items, pageSize), nil
}

func (s *Service) buildListFilter(tenantID snowflake.ID, req intentdomain.ListRequest) (*intentdomain.Intent, int32, error) {
	filter := &intentdomain.Intent{TenantID: tenantID}

	if strings.TrimSpace(req.UnitID) != "" {
		unitID, err := intentdomain.ParseID(req.UnitID)
		if err != nil || unitID == 0 {
			return nil, 0, intentdomain.ErrInvalidUnit
		}
		filter.UnitID = unitID
	}
	if strings.TrimSpace(req.Kind) != "" {
		kind := intentdomain.Kind(strings.ToLower(strings.TrimSpace(req.Kind)))
		if _, ok := intentdomain.DescriptorFor(kind); !ok {
			return nil, 0, intentdomain.ErrInvalidKind
		}
		filter.Kind = kind
	}
	if strings.TrimSpace(req.Status) != "" {
		filter.Status = intentdomain.Status(strings.ToLower(strings.TrimSpace(req.Status)))
	}
	if strings.TrimSpace(req.CustomerID) != "" {
		customerID, err := intentdomain.ParseID(req.CustomerID)
		if err != nil || customerID == 0 {
			return nil, 0, intentdomain.ErrInvalidCustomer
		}
		filter.CustomerID = &customerID
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	return filter, pageSize, nil
}

func (s *Service) buildListResponse(items []*intentdomain.Intent, pageSize int32) intentdomain.ListResponse {
	now := s.clock.Now()
	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(record *intentdomain.Intent) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        record.ID.String(),
			CreatedAt: record.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	records := make([]intentdomain.Response, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		records = append(records, s.toResponse(item, now))
	}

	resp := intentdomain.ListResponse{Intents: records}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp
}

func (s *Service) findUnit(ctx context.Context, tenantID, unitID snowflake.ID) (*unitdomain.RedeemableUnit, error) {
	var unit unitdomain.RedeemableUnit
	err := s.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", unitID, tenantID).
		First(&unit).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, intentdomain.ErrInvalidUnit
		}
		return nil, err
	}
	return &unit, nil
}

func (s *Service) eventPayload(intent *intentdomain.Intent) events.IntentPayload {
	payload := events.IntentPayload{
		IntentID: intent.ID.String(),
		UnitID:   intent.UnitID.String(),
		Kind:     string(intent.Kind),
	}
	if intent.ConsumedBy != nil {
		payload.CustomerID = intent.ConsumedBy.String()
	} else if intent.CustomerID != nil {
		payload.CustomerID = intent.CustomerID.String()
	}
	return payload
}

func (s *Service) publishEvent(ctx context.Context, intent *intentdomain.Intent, eventType string) {
	if s.outbox == nil {
		return
	}
	payload := s.eventPayload(intent)
	err := s.outbox.Publish(ctx, events.Event{
		TenantID:  intent.TenantID,
		Type:      eventType,
		Payload:   payload.ToMap(),
		DedupeKey: eventType + ":" + intent.ID.String(),
	})
	if err != nil {
		s.log.Warn("failed to publish lifecycle event",
			zap.String("intent_id", intent.ID.String()),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}
}

func (s *Service) toResponse(intent *intentdomain.Intent, now time.Time) intentdomain.Response {
	resp := intentdomain.Response{
		ID:          intent.ID.String(),
		UnitID:      intent.UnitID.String(),
		TenantID:    intent.TenantID.String(),
		Kind:        intent.Kind,
		Note:        intent.Note,
		ExpiresAt:   intent.ExpiresAt,
		Status:      intent.DisplayStatus(now),
		ConsumedAt:  intent.ConsumedAt,
		FinalizedAt: intent.FinalizedAt,
		CreatedAt:   intent.CreatedAt,
	}
	if intent.CustomerID != nil {
		resp.CustomerID = intent.CustomerID.String()
	}
	if intent.ConsumedBy != nil {
		resp.ConsumedBy = intent.ConsumedBy.String()
	}
	return resp
}
