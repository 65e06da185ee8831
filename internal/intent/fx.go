package intent

import (
	"context"

	intentdomain "github.com/FESP32/clientela-pro-sub001/internal/intent/domain"
	"github.com/FESP32/clientela-pro-sub001/internal/intent/repository"
	"github.com/FESP32/clientela-pro-sub001/internal/intent/service"
	punchdomain "github.com/FESP32/clientela-pro-sub001/internal/punchledger/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("intent.service",
	fx.Provide(repository.Provide),
	fx.Provide(NewEffectRegistry),
	fx.Provide(service.NewService),
)

// NewEffectRegistry wires kind side effects. Stamp consumption writes a punch
// entry; gift and referral have no secondary write.
func NewEffectRegistry(punchSvc punchdomain.Service) intentdomain.EffectRegistry {
	return intentdomain.EffectRegistry{
		intentdomain.KindStamp: intentdomain.ConsumeEffectFunc(func(ctx context.Context, intent *intentdomain.Intent) error {
			if intent.ConsumedBy == nil || intent.ConsumedAt == nil {
				return punchdomain.ErrInvalidCustomer
			}
			return punchSvc.Record(ctx, punchdomain.RecordRequest{
				IntentID:   intent.ID,
				UnitID:     intent.UnitID,
				TenantID:   intent.TenantID,
				CustomerID: *intent.ConsumedBy,
				RecordedAt: *intent.ConsumedAt,
			})
		}),
	}
}
