// Package ledger holds the in-memory authoritative points state for one
// identity during a session, together with the session and identity
// lifecycle around it.
package ledger

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/points/internal/domain"
)

// Ledger is the in-process source of truth for one identity: total points
// and the append-only activity history. Level and progress are always
// derived from the total, never stored, so they cannot drift. All mutation
// is serialized by the internal mutex; concurrent Record calls from several
// request handlers are safe.
type Ledger struct {
	mu         sync.Mutex
	total      int
	activities []domain.Activity
}

// Snapshot is an immutable copy of ledger state with derived level fields.
// Activities are ordered newest first.
type Snapshot struct {
	TotalPoints       int
	Level             int
	PointsToNextLevel int
	Activities        []domain.Activity
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{}
}

// Load replaces the entire state, used when hydrating from the local cache
// or the remote store. Negative totals are clamped to zero.
func (l *Ledger) Load(total int, activities []domain.Activity) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if total < 0 {
		total = 0
	}
	l.total = total
	l.activities = append(l.activities[:0:0], activities...)
}

// Record constructs an activity for kind with the points the rules table
// assigns, appends it, and returns it. This is the only way a new activity
// enters the ledger in-process; callers cannot supply a point value.
func (l *Ledger) Record(kind domain.Kind, description, subjectRef string) (domain.Activity, error) {
	rule, ok := domain.RuleFor(kind)
	if !ok {
		return domain.Activity{}, domain.ErrUnknownKind
	}

	activity := domain.Activity{
		ID:          uuid.NewString(),
		Kind:        kind,
		Points:      rule.Points,
		Description: description,
		SubjectRef:  subjectRef,
		OccurredAt:  time.Now().UTC(),
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.activities = append(l.activities, activity)
	l.total += activity.Points
	return activity, nil
}

// History returns a copy of the activity history, newest first. Equal
// timestamps order by id descending, the same ordering the remote store
// applies, so pagination cursors resume at a stable position.
func (l *Ledger) History() []domain.Activity {
	l.mu.Lock()
	out := append([]domain.Activity(nil), l.activities...)
	l.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.After(out[j].OccurredAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// TotalPoints returns the current accumulated total.
func (l *Ledger) TotalPoints() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// Snapshot copies the full state and derives level and progress.
func (l *Ledger) Snapshot() Snapshot {
	history := l.History()

	l.mu.Lock()
	total := l.total
	l.mu.Unlock()

	level := domain.LevelFor(total)
	return Snapshot{
		TotalPoints:       total,
		Level:             level,
		PointsToNextLevel: domain.PointsToNextLevel(total, level),
		Activities:        history,
	}
}

// Reset clears to the empty state, used on sign-out or identity switch.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.total = 0
	l.activities = nil
}
