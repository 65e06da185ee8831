package events

// Lifecycle event types written to the outbox. Delivery (email, push) is an
// external collaborator's job; the rows are the contract.
const (
	EventIntentCreated   = "intent.created"
	EventIntentConsumed  = "intent.consumed"
	EventIntentFinalized = "intent.finalized"
	EventIntentCanceled  = "intent.canceled"

	// EventReconciliationRequired flags an intent left consumed with no
	// side-effect record after a failed compensation revert.
	EventReconciliationRequired = "intent.reconciliation_required"

	EventQuotaDenied = "quota.denied"
)

// IntentPayload captures the minimal data downstream consumers need.
type IntentPayload struct {
	IntentID   string `json:"intent_id"`
	UnitID     string `json:"unit_id"`
	Kind       string `json:"kind"`
	CustomerID string `json:"customer_id,omitempty"`
}

// ToMap converts a payload into an outbox-friendly map.
func (p IntentPayload) ToMap() map[string]any {
	payload := map[string]any{
		"intent_id": p.IntentID,
		"unit_id":   p.UnitID,
		"kind":      p.Kind,
	}
	if p.CustomerID != "" {
		payload["customer_id"] = p.CustomerID
	}
	return payload
}
