package domain

import (
	"context"
	"errors"
	"time"
)

// CheckinCounter is the remote store surface the cap enforcer needs: the
// store's own clock and activity counts within a creation-time window.
type CheckinCounter interface {
	Now(ctx context.Context) (time.Time, error)
	CountActivitiesInRange(ctx context.Context, userID string, kind Kind, from, to time.Time) (int, error)
}

// CheckinGuard enforces the one-check-in-per-calendar-day cap. The calendar
// day is derived from the remote store's clock, never the device clock, so
// winding the device time forward cannot mint extra check-ins; only when the
// remote store is unreachable does the guard degrade to the local activity
// history and the device's local day. Offline check-ins across a device-clock
// change can therefore double up; that risk is accepted rather than masked.
type CheckinGuard struct {
	remote CheckinCounter
	now    func() time.Time
}

// NewCheckinGuard builds a guard. remote may be nil for local-only mode.
func NewCheckinGuard(remote CheckinCounter) *CheckinGuard {
	return &CheckinGuard{remote: remote, now: time.Now}
}

// WithClock overrides the local time source used on the offline path, for
// tests.
func (g *CheckinGuard) WithClock(now func() time.Time) *CheckinGuard {
	g.now = now
	return g
}

// Admit decides whether a daily check-in may be recorded for userID. history
// is the local ledger history, consulted only on the offline path. Returns
// ErrAlreadyCheckedIn when the cap is hit.
func (g *CheckinGuard) Admit(ctx context.Context, userID string, history []Activity) error {
	if g.remote != nil {
		err := g.admitRemote(ctx, userID)
		if err == nil || errors.Is(err, ErrAlreadyCheckedIn) {
			return err
		}
		// Remote unreachable: fall through to the local-day check.
	}

	now := g.now()
	y, m, d := now.Date()
	for _, a := range history {
		if a.Kind != KindDailyCheckin {
			continue
		}
		ay, am, ad := a.OccurredAt.In(now.Location()).Date()
		if ay == y && am == m && ad == d {
			return ErrAlreadyCheckedIn
		}
	}
	return nil
}

// admitRemote checks the cap against the store. "Today" is the UTC day of
// the store's clock; any transport error is returned so the caller can
// degrade to the offline path.
func (g *CheckinGuard) admitRemote(ctx context.Context, userID string) error {
	remoteNow, err := g.remote.Now(ctx)
	if err != nil {
		return err
	}

	from := remoteNow.UTC().Truncate(24 * time.Hour)
	to := from.Add(24 * time.Hour)
	count, err := g.remote.CountActivitiesInRange(ctx, userID, KindDailyCheckin, from, to)
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrAlreadyCheckedIn
	}
	return nil
}
