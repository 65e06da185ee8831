package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/FESP32/clientela-pro-sub001/internal/clock"
	"github.com/FESP32/clientela-pro-sub001/internal/events"
	intentdomain "github.com/FESP32/clientela-pro-sub001/internal/intent/domain"
	intentrepository "github.com/FESP32/clientela-pro-sub001/internal/intent/repository"
	plandomain "github.com/FESP32/clientela-pro-sub001/internal/plan/domain"
	punchdomain "github.com/FESP32/clientela-pro-sub001/internal/punchledger/domain"
	punchservice "github.com/FESP32/clientela-pro-sub001/internal/punchledger/service"
	"github.com/FESP32/clientela-pro-sub001/internal/tenantcontext"
	unitdomain "github.com/FESP32/clientela-pro-sub001/internal/unit/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type stubClock struct {
	now time.Time
}

func (c *stubClock) Now() time.Time { return c.now }

var _ clock.Clock = (*stubClock)(nil)

type allowAllAuth struct{}

func (allowAllAuth) Authorize(ctx context.Context, userID, tenantID snowflake.ID, object, action string) error {
	return nil
}

type testEnv struct {
	db      *gorm.DB
	node    *snowflake.Node
	clock   *stubClock
	effects intentdomain.EffectRegistry
	svc     intentdomain.Service

	tenantID snowflake.ID
	userID   snowflake.ID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := setupIntentTestDB(t)
	node, err := snowflake.NewNode(2)
	if err != nil {
		t.Fatalf("new snowflake node: %v", err)
	}

	clk := &stubClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	effects := intentdomain.EffectRegistry{}

	svc := NewService(Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clk,
		Repo:    intentrepository.Provide(db),
		AuthSvc: allowAllAuth{},
		Effects: effects,
		Outbox:  events.NewOutbox(db, node),
	})

	return &testEnv{
		db:       db,
		node:     node,
		clock:    clk,
		effects:  effects,
		svc:      svc,
		tenantID: node.Generate(),
		userID:   node.Generate(),
	}
}

func (e *testEnv) ctx() context.Context {
	ctx := tenantcontext.WithTenantID(context.Background(), e.tenantID)
	return tenantcontext.WithUserID(ctx, e.userID)
}

func (e *testEnv) insertUnit(t *testing.T, kind plandomain.ResourceKind, status unitdomain.UnitStatus) snowflake.ID {
	t.Helper()
	id := e.node.Generate()
	now := e.clock.now
	if err := e.db.Exec(
		`INSERT INTO redeemable_units (id, tenant_id, kind, name, status, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, e.tenantID, kind, "test unit", status, e.userID, now, now,
	).Error; err != nil {
		t.Fatalf("insert unit: %v", err)
	}
	return id
}

func (e *testEnv) createOne(t *testing.T, unitID snowflake.ID, req intentdomain.CreateRequest) intentdomain.Response {
	t.Helper()
	req.UnitID = unitID.String()
	responses, err := e.svc.Create(e.ctx(), e.userID, req)
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if len(responses) != 1 {
		t.Fatalf("expected 1 intent, got %d", len(responses))
	}
	return responses[0]
}

func (e *testEnv) storedStatus(t *testing.T, id string) intentdomain.Status {
	t.Helper()
	var status string
	if err := e.db.Raw(`SELECT status FROM intents WHERE id = ?`, id).Scan(&status).Error; err != nil {
		t.Fatalf("read status: %v", err)
	}
	return intentdomain.Status(status)
}

func (e *testEnv) countEvents(t *testing.T, eventType string) int64 {
	t.Helper()
	var count int64
	if err := e.db.Raw(
		`SELECT COUNT(1) FROM loyalty_events WHERE tenant_id = ? AND event_type = ?`,
		e.tenantID, eventType,
	).Scan(&count).Error; err != nil {
		t.Fatalf("count %s events: %v", eventType, err)
	}
	return count
}

func TestCreateMaterializesIndependentRows(t *testing.T) {
	env := newTestEnv(t)
	unitID := env.insertUnit(t, plandomain.ResourceStampCard, unitdomain.UnitStatusActive)

	responses, err := env.svc.Create(env.ctx(), env.userID, intentdomain.CreateRequest{
		UnitID:   unitID.String(),
		Quantity: 3,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(responses) != 3 {
		t.Fatalf("expected 3 intents, got %d", len(responses))
	}

	customer := env.node.Generate()
	if _, err := env.svc.Consume(context.Background(), customer, intentdomain.ConsumeRequest{IntentID: responses[0].ID}); err != nil {
		t.Fatalf("consume first: %v", err)
	}

	// Sibling rows are untouched.
	for _, sibling := range responses[1:] {
		if got := env.storedStatus(t, sibling.ID); got != intentdomain.StatusPending {
			t.Fatalf("sibling status = %s, want pending", got)
		}
	}

	// Each row got its own created event in the same transaction.
	if got := env.countEvents(t, events.EventIntentCreated); got != 3 {
		t.Fatalf("created events = %d, want 3", got)
	}
}

func TestCreateRejectsQuantityAboveKindCap(t *testing.T) {
	env := newTestEnv(t)
	unitID := env.insertUnit(t, plandomain.ResourceGift, unitdomain.UnitStatusActive)

	_, err := env.svc.Create(env.ctx(), env.userID, intentdomain.CreateRequest{
		UnitID:   unitID.String(),
		Quantity: 2,
	})
	if !errors.Is(err, intentdomain.ErrInvalidQuantity) {
		t.Fatalf("expected invalid quantity, got %v", err)
	}
}

func TestCreateRejectsInactiveUnit(t *testing.T) {
	env := newTestEnv(t)
	unitID := env.insertUnit(t, plandomain.ResourceStampCard, unitdomain.UnitStatusInactive)

	_, err := env.svc.Create(env.ctx(), env.userID, intentdomain.CreateRequest{UnitID: unitID.String()})
	if !errors.Is(err, intentdomain.ErrUnitNotRedeemable) {
		t.Fatalf("expected unit not redeemable, got %v", err)
	}
}

func TestConsumeRejectsAssignedIntentForOtherCustomer(t *testing.T) {
	env := newTestEnv(t)
	unitID := env.insertUnit(t, plandomain.ResourceGift, unitdomain.UnitStatusActive)

	assignee := env.node.Generate()
	created := env.createOne(t, unitID, intentdomain.CreateRequest{CustomerID: assignee.String()})

	stranger := env.node.Generate()
	_, err := env.svc.Consume(context.Background(), stranger, intentdomain.ConsumeRequest{IntentID: created.ID})
	if !errors.Is(err, intentdomain.ErrNotAssignee) {
		t.Fatalf("expected not assignee, got %v", err)
	}

	if _, err := env.svc.Consume(context.Background(), assignee, intentdomain.ConsumeRequest{IntentID: created.ID}); err != nil {
		t.Fatalf("assignee consume: %v", err)
	}
}

func TestConsumeRejectsExpiredIntent(t *testing.T) {
	env := newTestEnv(t)
	unitID := env.insertUnit(t, plandomain.ResourceStampCard, unitdomain.UnitStatusActive)

	expiresAt := env.clock.now.Add(time.Hour)
	created := env.createOne(t, unitID, intentdomain.CreateRequest{ExpiresAt: &expiresAt})

	env.clock.now = env.clock.now.Add(2 * time.Hour)

	customer := env.node.Generate()
	_, err := env.svc.Consume(context.Background(), customer, intentdomain.ConsumeRequest{IntentID: created.ID})
	if !errors.Is(err, intentdomain.ErrIntentExpired) {
		t.Fatalf("expected intent expired, got %v", err)
	}

	// Expiry freezes the stored state; the row stays pending forever.
	if got := env.storedStatus(t, created.ID); got != intentdomain.StatusPending {
		t.Fatalf("stored status = %s, want pending", got)
	}
}

func TestConsumeSecondCallerLoses(t *testing.T) {
	env := newTestEnv(t)
	unitID := env.insertUnit(t, plandomain.ResourceStampCard, unitdomain.UnitStatusActive)
	created := env.createOne(t, unitID, intentdomain.CreateRequest{})

	first := env.node.Generate()
	second := env.node.Generate()

	if _, err := env.svc.Consume(context.Background(), first, intentdomain.ConsumeRequest{IntentID: created.ID}); err != nil {
		t.Fatalf("first consume: %v", err)
	}

	_, err := env.svc.Consume(context.Background(), second, intentdomain.ConsumeRequest{IntentID: created.ID})
	if !errors.Is(err, intentdomain.ErrAlreadyProcessed) {
		t.Fatalf("expected already processed, got %v", err)
	}

	var consumedBy string
	if err := env.db.Raw(`SELECT consumed_by FROM intents WHERE id = ?`, created.ID).Scan(&consumedBy).Error; err != nil {
		t.Fatalf("read consumed_by: %v", err)
	}
	if consumedBy != first.String() {
		t.Fatalf("consumed_by = %s, want %s", consumedBy, first)
	}
}

func TestConsumeEffectFailureRevertsToPending(t *testing.T) {
	env := newTestEnv(t)
	unitID := env.insertUnit(t, plandomain.ResourceStampCard, unitdomain.UnitStatusActive)
	created := env.createOne(t, unitID, intentdomain.CreateRequest{})

	punchSvc := punchservice.NewService(punchservice.Params{
		DB:    env.db,
		Log:   zap.NewNop(),
		GenID: env.node,
	})

	failures := 1
	env.effects[intentdomain.KindStamp] = intentdomain.ConsumeEffectFunc(func(ctx context.Context, intent *intentdomain.Intent) error {
		if failures > 0 {
			failures--
			return fmt.Errorf("ledger unavailable")
		}
		return punchSvc.Record(ctx, punchdomain.RecordRequest{
			IntentID:   intent.ID,
			UnitID:     intent.UnitID,
			TenantID:   intent.TenantID,
			CustomerID: *intent.ConsumedBy,
			RecordedAt: *intent.ConsumedAt,
		})
	})

	customer := env.node.Generate()
	if _, err := env.svc.Consume(context.Background(), customer, intentdomain.ConsumeRequest{IntentID: created.ID}); err == nil {
		t.Fatal("expected consume to fail on side effect")
	}

	// The compensation revert put the row back where a retry can win.
	if got := env.storedStatus(t, created.ID); got != intentdomain.StatusPending {
		t.Fatalf("stored status = %s, want pending", got)
	}

	resp, err := env.svc.Consume(context.Background(), customer, intentdomain.ConsumeRequest{IntentID: created.ID})
	if err != nil {
		t.Fatalf("retry consume: %v", err)
	}
	if resp.Status != intentdomain.StatusConsumed {
		t.Fatalf("retry status = %s, want consumed", resp.Status)
	}

	var entries int64
	if err := env.db.Raw(`SELECT COUNT(1) FROM punch_entries WHERE intent_id = ?`, created.ID).Scan(&entries).Error; err != nil {
		t.Fatalf("count punch entries: %v", err)
	}
	if entries != 1 {
		t.Fatalf("punch entries = %d, want 1", entries)
	}
}

func TestConsumeEffectFailureWithLostRevertFlagsReconciliation(t *testing.T) {
	env := newTestEnv(t)
	unitID := env.insertUnit(t, plandomain.ResourceStampCard, unitdomain.UnitStatusActive)
	created := env.createOne(t, unitID, intentdomain.CreateRequest{})

	// The effect advances the row past consumed before failing, so the
	// guarded revert must back off instead of clobbering the later state.
	env.effects[intentdomain.KindStamp] = intentdomain.ConsumeEffectFunc(func(ctx context.Context, intent *intentdomain.Intent) error {
		if err := env.db.Exec(
			`UPDATE intents SET status = ? WHERE id = ?`,
			intentdomain.StatusClaimed, intent.ID,
		).Error; err != nil {
			t.Fatalf("advance intent: %v", err)
		}
		return fmt.Errorf("ledger unavailable")
	})

	customer := env.node.Generate()
	if _, err := env.svc.Consume(context.Background(), customer, intentdomain.ConsumeRequest{IntentID: created.ID}); err == nil {
		t.Fatal("expected consume to fail on side effect")
	}

	if got := env.storedStatus(t, created.ID); got != intentdomain.StatusClaimed {
		t.Fatalf("stored status = %s, want claimed", got)
	}

	if got := env.countEvents(t, events.EventReconciliationRequired); got != 1 {
		t.Fatalf("reconciliation events = %d, want 1", got)
	}
}

func TestFinalizeRequiresConsumed(t *testing.T) {
	env := newTestEnv(t)
	unitID := env.insertUnit(t, plandomain.ResourceGift, unitdomain.UnitStatusActive)
	created := env.createOne(t, unitID, intentdomain.CreateRequest{})

	_, err := env.svc.Finalize(env.ctx(), env.userID, intentdomain.FinalizeRequest{IntentID: created.ID})
	if !errors.Is(err, intentdomain.ErrAlreadyProcessed) {
		t.Fatalf("expected already processed on pending, got %v", err)
	}

	customer := env.node.Generate()
	if _, err := env.svc.Consume(context.Background(), customer, intentdomain.ConsumeRequest{IntentID: created.ID}); err != nil {
		t.Fatalf("consume: %v", err)
	}

	resp, err := env.svc.Finalize(env.ctx(), env.userID, intentdomain.FinalizeRequest{IntentID: created.ID})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if resp.Status != intentdomain.StatusClaimed {
		t.Fatalf("status = %s, want claimed", resp.Status)
	}

	_, err = env.svc.Finalize(env.ctx(), env.userID, intentdomain.FinalizeRequest{IntentID: created.ID})
	if !errors.Is(err, intentdomain.ErrAlreadyProcessed) {
		t.Fatalf("expected already processed on second finalize, got %v", err)
	}
}

func TestFinalizeReferralRestrictedToUnitCreator(t *testing.T) {
	env := newTestEnv(t)
	unitID := env.insertUnit(t, plandomain.ResourceReferralProgram, unitdomain.UnitStatusActive)
	created := env.createOne(t, unitID, intentdomain.CreateRequest{})

	customer := env.node.Generate()
	if _, err := env.svc.Consume(context.Background(), customer, intentdomain.ConsumeRequest{IntentID: created.ID}); err != nil {
		t.Fatalf("consume: %v", err)
	}

	otherMember := env.node.Generate()
	_, err := env.svc.Finalize(env.ctx(), otherMember, intentdomain.FinalizeRequest{IntentID: created.ID})
	if err == nil {
		t.Fatal("expected finalize by non-creator to fail")
	}

	if _, err := env.svc.Finalize(env.ctx(), env.userID, intentdomain.FinalizeRequest{IntentID: created.ID}); err != nil {
		t.Fatalf("finalize by creator: %v", err)
	}
}

func TestCancelOnlyFromPending(t *testing.T) {
	env := newTestEnv(t)
	unitID := env.insertUnit(t, plandomain.ResourceStampCard, unitdomain.UnitStatusActive)

	first := env.createOne(t, unitID, intentdomain.CreateRequest{})
	resp, err := env.svc.Cancel(env.ctx(), env.userID, intentdomain.CancelRequest{IntentID: first.ID})
	if err != nil {
		t.Fatalf("cancel pending: %v", err)
	}
	if resp.Status != intentdomain.StatusCanceled {
		t.Fatalf("status = %s, want canceled", resp.Status)
	}

	second := env.createOne(t, unitID, intentdomain.CreateRequest{})
	customer := env.node.Generate()
	if _, err := env.svc.Consume(context.Background(), customer, intentdomain.ConsumeRequest{IntentID: second.ID}); err != nil {
		t.Fatalf("consume: %v", err)
	}
	_, err = env.svc.Cancel(env.ctx(), env.userID, intentdomain.CancelRequest{IntentID: second.ID})
	if !errors.Is(err, intentdomain.ErrAlreadyProcessed) {
		t.Fatalf("expected already processed on consumed, got %v", err)
	}
}

func TestListReportsDerivedExpiredStatus(t *testing.T) {
	env := newTestEnv(t)
	unitID := env.insertUnit(t, plandomain.ResourceStampCard, unitdomain.UnitStatusActive)

	expiresAt := env.clock.now.Add(time.Hour)
	created := env.createOne(t, unitID, intentdomain.CreateRequest{ExpiresAt: &expiresAt})

	env.clock.now = env.clock.now.Add(2 * time.Hour)

	list, err := env.svc.List(env.ctx(), env.userID, intentdomain.ListRequest{UnitID: unitID.String()})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list.Intents) != 1 {
		t.Fatalf("expected 1 intent, got %d", len(list.Intents))
	}
	if list.Intents[0].ID != created.ID {
		t.Fatalf("unexpected intent %s", list.Intents[0].ID)
	}
	if list.Intents[0].Status != intentdomain.StatusExpired {
		t.Fatalf("status = %s, want expired", list.Intents[0].Status)
	}
}

func TestConsumeStampWritesPunchEntryOnce(t *testing.T) {
	env := newTestEnv(t)
	unitID := env.insertUnit(t, plandomain.ResourceStampCard, unitdomain.UnitStatusActive)
	created := env.createOne(t, unitID, intentdomain.CreateRequest{})

	punchSvc := punchservice.NewService(punchservice.Params{
		DB:    env.db,
		Log:   zap.NewNop(),
		GenID: env.node,
	})
	env.effects[intentdomain.KindStamp] = intentdomain.ConsumeEffectFunc(func(ctx context.Context, intent *intentdomain.Intent) error {
		return punchSvc.Record(ctx, punchdomain.RecordRequest{
			IntentID:   intent.ID,
			UnitID:     intent.UnitID,
			TenantID:   intent.TenantID,
			CustomerID: *intent.ConsumedBy,
			RecordedAt: *intent.ConsumedAt,
		})
	})

	customer := env.node.Generate()
	if _, err := env.svc.Consume(context.Background(), customer, intentdomain.ConsumeRequest{IntentID: created.ID}); err != nil {
		t.Fatalf("consume: %v", err)
	}

	count, err := punchSvc.CountByCustomer(context.Background(), env.tenantID, unitID, customer)
	if err != nil {
		t.Fatalf("count punches: %v", err)
	}
	if count != 1 {
		t.Fatalf("punch count = %d, want 1", count)
	}
}

func setupIntentTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS redeemable_units (
			id BIGINT PRIMARY KEY,
			tenant_id BIGINT NOT NULL,
			kind TEXT NOT NULL,
			name TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			valid_from DATETIME,
			valid_to DATETIME,
			created_by BIGINT NOT NULL,
			metadata TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS intents (
			id BIGINT PRIMARY KEY,
			unit_id BIGINT NOT NULL,
			tenant_id BIGINT NOT NULL,
			kind TEXT NOT NULL,
			customer_id BIGINT,
			note TEXT NOT NULL DEFAULT '',
			expires_at DATETIME,
			status TEXT NOT NULL DEFAULT 'pending',
			consumed_by BIGINT,
			consumed_at DATETIME,
			finalized_at DATETIME,
			canceled_at DATETIME,
			created_by BIGINT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS punch_entries (
			id BIGINT PRIMARY KEY,
			intent_id BIGINT NOT NULL UNIQUE,
			unit_id BIGINT NOT NULL,
			tenant_id BIGINT NOT NULL,
			customer_id BIGINT NOT NULL,
			recorded_at DATETIME NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS loyalty_events (
			id BIGINT PRIMARY KEY,
			tenant_id BIGINT NOT NULL,
			event_type TEXT NOT NULL,
			payload TEXT,
			dedupe_key TEXT,
			published BOOLEAN NOT NULL DEFAULT FALSE,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_loyalty_events_dedupe ON loyalty_events (tenant_id, dedupe_key)`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}
