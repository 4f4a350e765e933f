// Package reconcile merges the local activity ledger into the authoritative
// remote store without duplication and retires the local cache slot once the
// remote copy is confirmed.
package reconcile

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"example.com/points/internal/domain"
)

// State enumerates the engine's sync states.
type State int32

const (
	StateIdle State = iota
	StatePushing
	StateVerifying
)

// LocalState is the in-memory ledger the engine reads and hydrates.
type LocalState interface {
	TotalPoints() int
	History() []domain.Activity
	Load(total int, activities []domain.Activity)
}

// RemoteStore is the authoritative cross-device copy: row-oriented activity
// collection per identity with insert-many (partial failure tolerated),
// count, and a per-identity scalar total.
type RemoteStore interface {
	ListActivities(ctx context.Context, userID string) ([]domain.Activity, error)
	InsertActivities(ctx context.Context, userID string, activities []domain.Activity) (int, error)
	CountActivities(ctx context.Context, userID string) (int, error)
	UpsertTotalPoints(ctx context.Context, userID string, total int) error
}

// CacheRetirer clears the local cache slot once the remote store is
// confirmed authoritative.
type CacheRetirer interface {
	Clear() error
}

// Engine runs the Idle → Pushing → Verifying pass for one identity. Triggers
// (new activity, sign-in, periodic tick) coalesce: a trigger arriving while
// a pass is in flight schedules at most one follow-up pass. A failed pass
// returns the engine to Idle and the next trigger retries; nothing is fatal.
type Engine struct {
	identity string
	local    LocalState
	cache    CacheRetirer
	remote   RemoteStore
	interval time.Duration
	logger   *log.Logger

	state            atomic.Int32
	kick             chan struct{}
	shutdownComplete chan struct{}
}

// NewEngine constructs an engine for one identity.
func NewEngine(identity string, local LocalState, cache CacheRetirer, remote RemoteStore, interval time.Duration, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(log.Writer(), "[reconcile] ", log.LstdFlags)
	}
	return &Engine{
		identity:         identity,
		local:            local,
		cache:            cache,
		remote:           remote,
		interval:         interval,
		logger:           logger,
		kick:             make(chan struct{}, 1),
		shutdownComplete: make(chan struct{}),
	}
}

// State reports the current sync state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Trigger requests a pass. Non-blocking; triggers while a pass runs or is
// already pending collapse into one.
func (e *Engine) Trigger() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// Start runs the trigger/ticker loop until ctx is cancelled. Call in a
// goroutine.
func (e *Engine) Start(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer func() {
		ticker.Stop()
		close(e.shutdownComplete)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.kick:
		case <-ticker.C:
		}

		if err := e.RunPass(ctx); err != nil && !errors.Is(err, context.Canceled) {
			e.logger.Printf("sync pass failed (identity=%s): %v", e.identity, err)
		}
	}
}

// Wait blocks until the loop has stopped.
func (e *Engine) Wait() {
	<-e.shutdownComplete
}

// Bootstrap hydrates the local ledger from the remote store on sign-in: the
// remote set is the base, local activities whose fingerprint is absent
// remotely are kept on top (they are the unsynced ones), and a push pass is
// triggered to upload them. The rebuilt total is the sum of the merged
// activities, restoring the total==sum invariant regardless of what either
// side held before.
func (e *Engine) Bootstrap(ctx context.Context) error {
	remote, err := e.remote.ListActivities(ctx, e.identity)
	if err != nil {
		return err
	}

	seen := domain.FingerprintSet(remote)
	merged := append([]domain.Activity(nil), remote...)
	for _, a := range e.local.History() {
		if _, dup := seen[domain.Fingerprint(a)]; !dup {
			merged = append(merged, a)
		}
	}

	total := 0
	for _, a := range merged {
		total += a.Points
	}
	e.local.Load(total, merged)

	e.Trigger()
	return nil
}

// RunPass executes one Pushing → Verifying cycle. Exposed for tests and for
// callers that need a synchronous pass; Start invokes it from the loop. A
// pass already in flight makes this call a no-op.
func (e *Engine) RunPass(ctx context.Context) error {
	if !e.state.CompareAndSwap(int32(StateIdle), int32(StatePushing)) {
		return nil
	}
	defer e.state.Store(int32(StateIdle))

	start := time.Now()
	passesTotal.Inc()

	if err := e.push(ctx); err != nil {
		passFailures.Inc()
		return err
	}

	e.state.Store(int32(StateVerifying))
	if err := e.verify(ctx); err != nil {
		passFailures.Inc()
		return err
	}

	passDuration.Observe(time.Since(start).Seconds())
	lastPassGauge.Set(float64(time.Now().Unix()))
	return nil
}

// push computes toSync = local − remote by fingerprint and inserts it. A
// subset of rows failing to insert does not abort the batch; failed rows
// stay local and remain candidates for the next pass.
func (e *Engine) push(ctx context.Context) error {
	remote, err := e.remote.ListActivities(ctx, e.identity)
	if err != nil {
		return err
	}

	seen := domain.FingerprintSet(remote)
	var toSync []domain.Activity
	for _, a := range e.local.History() {
		if _, dup := seen[domain.Fingerprint(a)]; dup {
			dedupSkipped.Inc()
			continue
		}
		toSync = append(toSync, a)
	}

	if len(toSync) == 0 {
		return nil
	}

	inserted, insertErr := e.remote.InsertActivities(ctx, e.identity, toSync)
	activitiesPushed.Add(float64(inserted))
	if insertErr != nil {
		e.logger.Printf("pushed %d/%d activities (identity=%s): %v", inserted, len(toSync), e.identity, insertErr)
	}

	if err := e.remote.UpsertTotalPoints(ctx, e.identity, e.local.TotalPoints()); err != nil {
		e.logger.Printf("total upsert failed (identity=%s): %v", e.identity, err)
	}
	return nil
}

// verify retires the local cache slot only after the remote store positively
// confirms it holds at least one activity for the identity. The in-memory
// ledger is untouched; it keeps serving the merged state for the session.
func (e *Engine) verify(ctx context.Context) error {
	count, err := e.remote.CountActivities(ctx, e.identity)
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}

	if err := e.cache.Clear(); err != nil {
		e.logger.Printf("cache retirement failed (identity=%s): %v", e.identity, err)
		return nil
	}
	cacheRetired.Inc()
	return nil
}
