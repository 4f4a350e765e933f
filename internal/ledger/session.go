package ledger

import (
	"context"
	"log"
	"time"

	"example.com/points/internal/domain"
	"example.com/points/internal/events"
	"example.com/points/internal/observability"
)

// Cache persists ledger state to the local key-value slot and hydrates it
// back. Load reports ok=false when the slot is absent or malformed.
type Cache interface {
	Save(total int, activities []domain.Activity) error
	Load() (total int, activities []domain.Activity, ok bool)
	Clear() error
}

// Syncer reconciles the local ledger against the remote store. Bootstrap
// merges the remote set into the ledger on sign-in; Trigger requests a push
// pass and coalesces with any pass already pending.
type Syncer interface {
	Bootstrap(ctx context.Context) error
	Trigger()
}

// Publisher emits point events for downstream consumers.
type Publisher interface {
	PublishAwarded(ctx context.Context, evt events.PointsAwarded) error
}

// SessionConfig wires a session's collaborators. Sync and Publish may be nil
// (local-only mode, no broker); Cache and Guard are required. OnClose runs
// after the worker drains, letting the owner stop a per-session sync loop.
type SessionConfig struct {
	Identity string
	Ledger   *Ledger
	Cache    Cache
	Guard    *domain.CheckinGuard
	Sync     Syncer
	Publish  Publisher
	Logger   *log.Logger
	OnClose  func()
}

// Session owns the ledger for one identity plus the supervised worker that
// runs the persistence and publish side effects of Record. The in-memory
// mutation is synchronous; everything else is fire-and-forget from the
// caller's perspective and never propagates errors back: the in-memory
// effect already succeeded and is the user-visible truth.
type Session struct {
	identity string
	ledger   *Ledger
	cache    Cache
	guard    *domain.CheckinGuard
	sync     Syncer
	publish  Publisher
	logger   *log.Logger
	onClose  func()

	jobs chan domain.Activity
	stop chan struct{}
	done chan struct{}
}

// NewSession builds a session and starts its side-effect worker.
func NewSession(cfg SessionConfig) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[session] ", log.LstdFlags)
	}
	ledger := cfg.Ledger
	if ledger == nil {
		ledger = New()
	}

	s := &Session{
		identity: cfg.Identity,
		ledger:   ledger,
		cache:    cfg.Cache,
		guard:    cfg.Guard,
		sync:     cfg.Sync,
		publish:  cfg.Publish,
		logger:   logger,
		onClose:  cfg.OnClose,
		jobs:     make(chan domain.Activity, 128),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

// Identity returns the identity the session is bound to; empty for the
// anonymous local session.
func (s *Session) Identity() string { return s.identity }

// Ledger exposes the underlying ledger.
func (s *Session) Ledger() *Ledger { return s.ledger }

// Bootstrap hydrates the ledger from the local cache and, when a syncer is
// wired, merges the remote set and kicks off the first push. Remote failure
// leaves the cache-loaded state in place; the next trigger retries.
func (s *Session) Bootstrap(ctx context.Context) {
	if total, activities, ok := s.cache.Load(); ok {
		s.ledger.Load(total, activities)
	}
	if s.sync == nil {
		return
	}
	if err := s.sync.Bootstrap(ctx); err != nil {
		s.logger.Printf("bootstrap sync failed (identity=%s): %v", s.identity, err)
	}
}

// Record admits and appends one activity. Daily check-ins pass through the
// cap guard first; ErrAlreadyCheckedIn means nothing was recorded, locally
// or remotely. The returned activity carries the rules-table points and a
// provisional id.
func (s *Session) Record(ctx context.Context, kind domain.Kind, description, subjectRef string) (domain.Activity, error) {
	if kind == domain.KindDailyCheckin && s.guard != nil {
		if err := s.guard.Admit(ctx, s.identity, s.ledger.History()); err != nil {
			return domain.Activity{}, err
		}
	}

	activity, err := s.ledger.Record(kind, description, subjectRef)
	if err != nil {
		return domain.Activity{}, err
	}

	select {
	case s.jobs <- activity:
	default:
		// Worker backlog full: persist inline so the state is not lost and
		// still request a sync pass; only the event publish is skipped for
		// this activity.
		s.logger.Printf("side-effect queue full (identity=%s), persisting inline", s.identity)
		s.persist()
		if s.sync != nil {
			s.sync.Trigger()
		}
	}
	return activity, nil
}

// Snapshot returns the current derived state.
func (s *Session) Snapshot() Snapshot { return s.ledger.Snapshot() }

// ClearCache empties the shared cache slot. The manager calls this on an
// identity switch so one account's state never leaks into another's session;
// sync-driven cache retirement lives in the reconciliation engine.
func (s *Session) ClearCache() {
	if err := s.cache.Clear(); err != nil {
		s.logger.Printf("cache clear failed (identity=%s): %v", s.identity, err)
	}
}

// Close drains queued side effects, stops the worker, and runs OnClose.
func (s *Session) Close() {
	close(s.stop)
	<-s.done
	if s.onClose != nil {
		s.onClose()
	}
}

func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case activity := <-s.jobs:
			s.handle(activity)
		case <-s.stop:
			for {
				select {
				case activity := <-s.jobs:
					s.handle(activity)
				default:
					return
				}
			}
		}
	}
}

func (s *Session) handle(activity domain.Activity) {
	s.persist()

	snap := s.ledger.Snapshot()
	observability.RecordActivityRecorded(string(activity.Kind), snap.TotalPoints)

	if s.publish != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		evt := events.PointsAwarded{
			ActivityID:  activity.ID,
			UserID:      s.identity,
			Kind:        string(activity.Kind),
			Points:      activity.Points,
			Description: activity.Description,
			SubjectRef:  activity.SubjectRef,
			OccurredAt:  activity.OccurredAt,
			TotalPoints: snap.TotalPoints,
			Level:       snap.Level,
		}
		if err := s.publish.PublishAwarded(ctx, evt); err != nil {
			s.logger.Printf("event publish failed (activity=%s): %v", activity.ID, err)
		}
		cancel()
	}

	if s.sync != nil {
		s.sync.Trigger()
	}
}

// persist writes the current state to the cache slot. Failure is logged and
// treated as "not yet durable"; the next save self-heals.
func (s *Session) persist() {
	snap := s.ledger.Snapshot()
	if err := s.cache.Save(snap.TotalPoints, snap.Activities); err != nil {
		s.logger.Printf("cache save failed (identity=%s): %v", s.identity, err)
	}
}
