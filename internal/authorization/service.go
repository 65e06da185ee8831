package authorization

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Objects and actions form the closed vocabulary of the role policy.
const (
	ObjectTenant = "tenant"
	ObjectUnit   = "unit"
	ObjectIntent = "intent"
	ObjectMember = "member"
)

const (
	ActionRead       = "read"
	ActionCreate     = "create"
	ActionUpdate     = "update"
	ActionDelete     = "delete"
	ActionFinalize   = "finalize"
	ActionCancel     = "cancel"
	ActionInvite     = "invite"
	ActionGrantAdmin = "grant_admin"
)

// Service answers whether a user may perform an action on an object class
// within a tenant. This check is advisory defense-in-depth; repositories still
// scope every query by tenant.
type Service interface {
	Authorize(ctx context.Context, userID, tenantID snowflake.ID, object, action string) error
}
