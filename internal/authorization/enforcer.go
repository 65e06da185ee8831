package authorization

import (
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"gorm.io/gorm"
)

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act
`

type policyRule struct {
	sub string
	obj string
	act string
}

// Baseline role policy. member covers issuer-side work, admin adds tenant
// administration short of deletion and admin grants, owner adds everything.
var baselinePolicies = []policyRule{
	{"role:member", ObjectTenant, ActionRead},
	{"role:member", ObjectMember, ActionRead},
	{"role:member", ObjectUnit, ActionCreate},
	{"role:member", ObjectUnit, ActionRead},
	{"role:member", ObjectIntent, ActionCreate},
	{"role:member", ObjectIntent, ActionRead},
	{"role:member", ObjectIntent, ActionFinalize},
	{"role:member", ObjectIntent, ActionCancel},

	{"role:admin", ObjectUnit, ActionUpdate},
	{"role:admin", ObjectUnit, ActionDelete},
	{"role:admin", ObjectTenant, ActionUpdate},
	{"role:admin", ObjectMember, ActionInvite},

	{"role:owner", ObjectTenant, ActionDelete},
	{"role:owner", ObjectMember, ActionGrantAdmin},
}

var baselineGroupings = [][2]string{
	{"role:owner", "role:admin"},
	{"role:admin", "role:member"},
}

// NewEnforcer builds the casbin enforcer backed by the casbin_rule table and
// seeds the baseline role policy when absent.
func NewEnforcer(db *gorm.DB) (*casbin.Enforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}

	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, err
	}

	enforcer, err := casbin.NewEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}

	for _, rule := range baselinePolicies {
		if _, err := enforcer.AddPolicy(rule.sub, rule.obj, rule.act); err != nil {
			return nil, err
		}
	}
	for _, grouping := range baselineGroupings {
		if _, err := enforcer.AddGroupingPolicy(grouping[0], grouping[1]); err != nil {
			return nil, err
		}
	}

	return enforcer, nil
}
