package cache

import (
	"encoding/json"
	"errors"
	"log"
	"time"

	"example.com/points/internal/domain"
)

// ledgerKey is the single well-known cache slot for the current local
// ledger. It is deliberately not scoped per identity: the slot is cleared
// and rewritten on identity switch.
const ledgerKey = "points/ledger"

// Adapter serializes ledger state to the KV slot and back. Timestamps are
// encoded RFC3339Nano so the blob stays sortable and parseable.
type Adapter struct {
	kv     KV
	logger *log.Logger
}

// NewAdapter wraps kv.
func NewAdapter(kv KV, logger *log.Logger) *Adapter {
	if logger == nil {
		logger = log.New(log.Writer(), "[cache] ", log.LstdFlags)
	}
	return &Adapter{kv: kv, logger: logger}
}

type ledgerBlob struct {
	TotalPoints int            `json:"total_points"`
	Activities  []activityBlob `json:"activities"`
}

type activityBlob struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Points      int    `json:"points"`
	Description string `json:"description"`
	SubjectRef  string `json:"subject_ref,omitempty"`
	OccurredAt  string `json:"occurred_at"`
}

// Save writes the full ledger state into the slot.
func (a *Adapter) Save(total int, activities []domain.Activity) error {
	blob := ledgerBlob{
		TotalPoints: total,
		Activities:  make([]activityBlob, 0, len(activities)),
	}
	for _, act := range activities {
		blob.Activities = append(blob.Activities, activityBlob{
			ID:          act.ID,
			Kind:        string(act.Kind),
			Points:      act.Points,
			Description: act.Description,
			SubjectRef:  act.SubjectRef,
			OccurredAt:  act.OccurredAt.UTC().Format(time.RFC3339Nano),
		})
	}

	body, err := json.Marshal(blob)
	if err != nil {
		return err
	}
	return a.kv.Set(ledgerKey, string(body))
}

// Load hydrates the slot. A missing or malformed blob reports ok=false
// rather than an error: cache loss is recoverable from the remote store.
func (a *Adapter) Load() (int, []domain.Activity, bool) {
	raw, err := a.kv.Get(ledgerKey)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			a.logger.Printf("cache read failed: %v", err)
		}
		return 0, nil, false
	}

	var blob ledgerBlob
	if err := json.Unmarshal([]byte(raw), &blob); err != nil {
		a.logger.Printf("discarding malformed cache blob: %v", err)
		return 0, nil, false
	}

	activities := make([]domain.Activity, 0, len(blob.Activities))
	for _, b := range blob.Activities {
		ts, err := time.Parse(time.RFC3339Nano, b.OccurredAt)
		if err != nil {
			a.logger.Printf("discarding cache blob with bad timestamp %q: %v", b.OccurredAt, err)
			return 0, nil, false
		}
		activities = append(activities, domain.Activity{
			ID:          b.ID,
			Kind:        domain.Kind(b.Kind),
			Points:      b.Points,
			Description: b.Description,
			SubjectRef:  b.SubjectRef,
			OccurredAt:  ts,
		})
	}
	return blob.TotalPoints, activities, true
}

// Clear empties the slot. The reconciliation engine calls this only after a
// remote count confirmed the store holds the identity's activities; the
// manager calls it on identity switch.
func (a *Adapter) Clear() error {
	return a.kv.Remove(ledgerKey)
}
