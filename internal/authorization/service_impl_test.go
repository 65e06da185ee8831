package authorization

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestAuthorizeAllowsMemberIntentWork(t *testing.T) {
	db := setupAuthzTestDB(t)
	svc := newAuthzService(t, db)

	insertMember(t, db, 1, 10, "member")

	for _, action := range []string{ActionCreate, ActionRead, ActionFinalize, ActionCancel} {
		if err := svc.Authorize(context.Background(), 10, 1, ObjectIntent, action); err != nil {
			t.Fatalf("expected allow for member intent %s, got %v", action, err)
		}
	}
}

func TestAuthorizeDeniesMemberAdministration(t *testing.T) {
	db := setupAuthzTestDB(t)
	svc := newAuthzService(t, db)

	insertMember(t, db, 1, 11, "member")

	err := svc.Authorize(context.Background(), 11, 1, ObjectUnit, ActionDelete)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for member unit delete, got %v", err)
	}
	err = svc.Authorize(context.Background(), 11, 1, ObjectTenant, ActionDelete)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for member tenant delete, got %v", err)
	}
}

func TestAuthorizeAdminInheritsMember(t *testing.T) {
	db := setupAuthzTestDB(t)
	svc := newAuthzService(t, db)

	insertMember(t, db, 1, 12, "admin")

	if err := svc.Authorize(context.Background(), 12, 1, ObjectIntent, ActionCreate); err != nil {
		t.Fatalf("expected admin to inherit member grants, got %v", err)
	}
	if err := svc.Authorize(context.Background(), 12, 1, ObjectMember, ActionInvite); err != nil {
		t.Fatalf("expected admin invite allow, got %v", err)
	}
	err := svc.Authorize(context.Background(), 12, 1, ObjectMember, ActionGrantAdmin)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for admin grant, got %v", err)
	}
}

func TestAuthorizeDeniesNonMember(t *testing.T) {
	db := setupAuthzTestDB(t)
	svc := newAuthzService(t, db)

	insertMember(t, db, 1, 13, "admin")

	err := svc.Authorize(context.Background(), 13, 2, ObjectIntent, ActionRead)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected cross-tenant deny, got %v", err)
	}
}

func TestAuthorizeOwnershipFallback(t *testing.T) {
	db := setupAuthzTestDB(t)
	svc := newAuthzService(t, db)

	// No membership row; the tenants table says user 14 owns tenant 3.
	if err := db.Exec(
		`INSERT INTO tenants (id, owner_id, name, slug, is_active, created_at, updated_at)
		 VALUES (3, 14, 'Owned', 'owned', 1, ?, ?)`,
		time.Now().UTC(), time.Now().UTC(),
	).Error; err != nil {
		t.Fatalf("insert tenant: %v", err)
	}

	if err := svc.Authorize(context.Background(), 14, 3, ObjectTenant, ActionDelete); err != nil {
		t.Fatalf("expected owner fallback allow, got %v", err)
	}
}

func newAuthzService(t *testing.T, db *gorm.DB) Service {
	t.Helper()
	enforcer, err := NewEnforcer(db)
	if err != nil {
		t.Fatalf("new enforcer: %v", err)
	}
	return NewService(ServiceParam{
		DB:       db,
		Log:      zap.NewNop(),
		Enforcer: enforcer,
	})
}

func setupAuthzTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	statements := []string{
		`CREATE TABLE IF NOT EXISTS tenants (
			id BIGINT PRIMARY KEY,
			owner_id BIGINT NOT NULL,
			name TEXT NOT NULL,
			slug TEXT NOT NULL UNIQUE,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			metadata TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tenant_members (
			id BIGINT PRIMARY KEY,
			tenant_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			role TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS casbin_rule (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ptype VARCHAR(100) NOT NULL,
			v0 VARCHAR(100),
			v1 VARCHAR(100),
			v2 VARCHAR(100),
			v3 VARCHAR(100),
			v4 VARCHAR(100),
			v5 VARCHAR(100)
		)`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func insertMember(t *testing.T, db *gorm.DB, tenantID, userID snowflake.ID, role string) {
	t.Helper()
	if err := db.Exec(
		`INSERT INTO tenant_members (id, tenant_id, user_id, role, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		userID, tenantID, userID, role, time.Now().UTC(),
	).Error; err != nil {
		t.Fatalf("insert member: %v", err)
	}
}
