package types

type ReconcileOutcome string

const (
	ReconcileLinked   ReconcileOutcome = "linked"
	ReconcileUpdated  ReconcileOutcome = "updated"
	ReconcileSkipped  ReconcileOutcome = "skipped"
	ReconcileConflict ReconcileOutcome = "conflict"
)

// ReconcileEntry records the decision taken for one knowledge document.
type ReconcileEntry struct {
	Filename   string           `json:"filename"`
	Outcome    ReconcileOutcome `json:"outcome"`
	ResourceID string           `json:"resource_id,omitempty"`
	Score      float64          `json:"score,omitempty"`
	Reason     string           `json:"reason,omitempty"`
}

// ReconcileReport is the full result of one reconciliation pass.
type ReconcileReport struct {
	Linked   []ReconcileEntry `json:"linked"`
	Updated  []ReconcileEntry `json:"updated"`
	Skipped  []ReconcileEntry `json:"skipped"`
	Conflict []ReconcileEntry `json:"conflict"`
}

func (r *ReconcileReport) Add(e ReconcileEntry) {
	switch e.Outcome {
	case ReconcileLinked:
		r.Linked = append(r.Linked, e)
	case ReconcileUpdated:
		r.Updated = append(r.Updated, e)
	case ReconcileConflict:
		r.Conflict = append(r.Conflict, e)
	default:
		r.Skipped = append(r.Skipped, e)
	}
}
