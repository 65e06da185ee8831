package domain

import (
	"context"

	plandomain "github.com/FESP32/clientela-pro-sub001/internal/plan/domain"
)

// Kind tags the three redemption verticals sharing the lifecycle.
type Kind string

const (
	KindStamp    Kind = "stamp"
	KindGift     Kind = "gift"
	KindReferral Kind = "referral"
)

// Descriptor parameterizes the shared state machine per intent kind.
type Descriptor struct {
	Kind     Kind
	UnitKind plandomain.ResourceKind

	// MaxQuantity caps how many sibling rows one create call may
	// materialize. Kinds without bulk semantics are capped at 1.
	MaxQuantity int

	// FinalizeByUnitCreatorOnly restricts the consumed-to-claimed
	// transition to the member who created the unit (the referrer).
	FinalizeByUnitCreatorOnly bool
}

var descriptors = map[Kind]Descriptor{
	KindStamp: {
		Kind:        KindStamp,
		UnitKind:    plandomain.ResourceStampCard,
		MaxQuantity: 100,
	},
	KindGift: {
		Kind:        KindGift,
		UnitKind:    plandomain.ResourceGift,
		MaxQuantity: 1,
	},
	KindReferral: {
		Kind:                      KindReferral,
		UnitKind:                  plandomain.ResourceReferralProgram,
		MaxQuantity:               1,
		FinalizeByUnitCreatorOnly: true,
	},
}

// DescriptorFor returns the descriptor for a kind.
func DescriptorFor(kind Kind) (Descriptor, bool) {
	d, ok := descriptors[kind]
	return d, ok
}

// DescriptorForUnitKind maps a redeemable unit kind to its intent descriptor.
// Surveys carry no intents.
func DescriptorForUnitKind(unitKind plandomain.ResourceKind) (Descriptor, bool) {
	for _, d := range descriptors {
		if d.UnitKind == unitKind {
			return d, true
		}
	}
	return Descriptor{}, false
}

// ConsumeEffect is the secondary write a kind performs after the pending-to-
// consumed transition. The transition and the effect are not atomic; a failed
// effect triggers the guarded compensation revert.
type ConsumeEffect interface {
	Apply(ctx context.Context, intent *Intent) error
}

// ConsumeEffectFunc adapts a function to ConsumeEffect.
type ConsumeEffectFunc func(ctx context.Context, intent *Intent) error

func (f ConsumeEffectFunc) Apply(ctx context.Context, intent *Intent) error {
	return f(ctx, intent)
}

// EffectRegistry maps kinds to their consume side effects. Kinds without an
// entry transition without a secondary write.
type EffectRegistry map[Kind]ConsumeEffect
