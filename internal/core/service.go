package core

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"timelines/pkg/domain"
	"timelines/pkg/period"
	"timelines/pkg/timeline"
)

// Service keeps one denormalized timeline per subject, loaded lazily from an
// entry store and written back as a change set after every mutation.
type Service struct {
	mu       sync.Mutex
	store    domain.EntryStore
	policy   timeline.Policy
	subjects map[string]*subjectState

	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
	audit   AuditRecorder
	clock   Clock
	newID   func() string
}

type subjectState struct {
	lines *timeline.Denormalized[*domain.Entry]
	// baseline is the persisted form of every entry, by identity.
	baseline map[string]domain.Entry
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Nil keeps the no-op default.
func WithLogger(l Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetricsRecorder sets the metrics sink.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(t Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithAuditRecorder sets the recorder receiving one entry per mutation.
func WithAuditRecorder(a AuditRecorder) Option {
	return func(s *Service) {
		if a != nil {
			s.audit = a
		}
	}
}

// WithClock overrides the time source used for snapshots and audit entries.
func WithClock(c Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithPolicy selects the consistency policy of every timeline the service
// creates. The default is period of existence.
func WithPolicy(p timeline.Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithIDGenerator overrides how surrogate identities are minted.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewService constructs a service backed by store.
func NewService(store domain.EntryStore, opts ...Option) *Service {
	s := &Service{
		store:    store,
		policy:   timeline.PeriodOfExistence,
		subjects: make(map[string]*subjectState),
		logger:   noopLogger{},
		metrics:  noopMetricsRecorder{},
		tracer:   noopTracer{},
		audit:    noopAuditRecorder{},
		clock:    ClockFunc(nil),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Policy reports the policy new timelines are created with.
func (s *Service) Policy() timeline.Policy { return s.policy }

// Store returns the backing entry store.
func (s *Service) Store() domain.EntryStore { return s.store }

func (s *Service) run(ctx context.Context, op string, fn func(context.Context) error) error {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, op)
	err := fn(ctx)
	elapsed := time.Since(start)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, elapsed)
	if err != nil {
		s.logger.Error("timelines operation failed", "operation", op, "error", err)
		return err
	}
	s.logger.Debug("timelines operation completed", "operation", op, "duration", elapsed)
	return nil
}

// state returns the cached subject, loading it from the store on first use.
// Callers hold s.mu.
func (s *Service) state(ctx context.Context, subject string) (*subjectState, error) {
	if st, ok := s.subjects[subject]; ok {
		return st, nil
	}
	stored, err := s.store.Load(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("load subject %s: %w", subject, err)
	}
	st := &subjectState{
		lines:    timeline.NewDenormalized(timeline.PolicyFactory[*domain.Entry](s.policy)),
		baseline: make(map[string]domain.Entry, len(stored)),
	}
	for _, e := range stored {
		st.baseline[e.Identity()] = e.Copy()
		live := e.Copy()
		st.lines.Add(&live)
	}
	s.subjects[subject] = st
	s.logger.Debug("subject loaded", "subject", subject, "entries", len(stored))
	return st, nil
}

// mutate runs fn against the subject's timelines and persists the resulting
// change set. When fn or the store fails the cached subject is dropped so the
// next access reloads what the store holds.
func (s *Service) mutate(ctx context.Context, op, subject string, fn func(*timeline.Denormalized[*domain.Entry]) error) error {
	if subject == "" {
		return fmt.Errorf("%s: subject required", op)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Now()

	st, err := s.state(ctx, subject)
	if err != nil {
		return err
	}
	if err := fn(st.lines); err != nil {
		delete(s.subjects, subject)
		s.recordAudit(ctx, op, subject, domain.ChangeSet{}, start, err)
		return err
	}
	changes, next := s.diff(st)
	if !changes.IsEmpty() {
		if err := s.store.Apply(ctx, subject, changes); err != nil {
			delete(s.subjects, subject)
			err = fmt.Errorf("persist subject %s: %w", subject, err)
			s.recordAudit(ctx, op, subject, changes, start, err)
			return err
		}
		st.baseline = next
	}
	s.recordAudit(ctx, op, subject, changes, start, nil)
	return nil
}

// diff compares the live timelines with the persisted baseline. Entries still
// lacking an identity are given one here.
func (s *Service) diff(st *subjectState) (domain.ChangeSet, map[string]domain.Entry) {
	var changes domain.ChangeSet
	next := make(map[string]domain.Entry, st.lines.Len())
	for e := range st.lines.All() {
		if e.Identity() == "" {
			e.SetIdentity(s.newID())
		}
		cur := e.Copy()
		next[cur.Identity()] = cur
		prev, ok := st.baseline[cur.Identity()]
		switch {
		case !ok:
			changes.Inserted = append(changes.Inserted, cur)
		case !sameEntry(prev, cur):
			changes.Updated = append(changes.Updated, cur)
		}
	}
	for _, id := range slices.Sorted(maps.Keys(st.baseline)) {
		if _, ok := next[id]; !ok {
			changes.Deleted = append(changes.Deleted, id)
		}
	}
	return changes, next
}

func sameEntry(a, b domain.Entry) bool {
	return a.TimelineKey() == b.TimelineKey() && a.Period().Equal(b.Period()) && maps.Equal(a.Attributes, b.Attributes)
}

func (s *Service) recordAudit(ctx context.Context, op, subject string, changes domain.ChangeSet, start time.Time, err error) {
	entry := AuditEntry{
		Operation: op,
		Subject:   subject,
		Status:    AuditStatusSuccess,
		Inserted:  len(changes.Inserted),
		Updated:   len(changes.Updated),
		Deleted:   len(changes.Deleted),
		Duration:  time.Since(start),
		Timestamp: s.clock.Now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}

// view runs fn against the subject's timelines without persisting anything.
func (s *Service) view(ctx context.Context, subject string, fn func(*timeline.Denormalized[*domain.Entry]) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.state(ctx, subject)
	if err != nil {
		return err
	}
	return fn(st.lines)
}

// Add records entry on the subject's timeline for entry's key. Any identity
// on entry is ignored; the stored entry receives a new one or reuses the
// identity of an entry it replaces. changed reports whether the timeline
// changed.
func (s *Service) Add(ctx context.Context, subject string, entry domain.Entry) (changed bool, err error) {
	err = s.run(ctx, "add", func(ctx context.Context) error {
		return s.mutate(ctx, "add", subject, func(lines *timeline.Denormalized[*domain.Entry]) error {
			live := entry.Copy()
			live.SetIdentity("")
			changed = lines.Add(&live)
			return nil
		})
	})
	return changed, err
}

// Clear removes coverage of p from every timeline of the subject. It fails
// with timeline.ErrPerpetualClear under the perpetual policy.
func (s *Service) Clear(ctx context.Context, subject string, p period.Period) error {
	return s.run(ctx, "clear", func(ctx context.Context) error {
		return s.mutate(ctx, "clear", subject, func(lines *timeline.Denormalized[*domain.Entry]) error {
			return lines.Clear(p)
		})
	})
}

// SetProperty sets one attribute of key's timeline for p only, filling
// uncovered time inside p with entries holding just that attribute.
func (s *Service) SetProperty(ctx context.Context, subject, key, name string, p period.Period, value any) error {
	return s.run(ctx, "set_property", func(ctx context.Context) error {
		return s.mutate(ctx, "set_property", subject, func(lines *timeline.Denormalized[*domain.Entry]) error {
			return lines.SetProperty(key, name, p, value, func() *domain.Entry { return &domain.Entry{} })
		})
	})
}

// RemoveEntry deletes the entry with identity id from the subject.
func (s *Service) RemoveEntry(ctx context.Context, subject, id string) (removed bool, err error) {
	err = s.run(ctx, "remove_entry", func(ctx context.Context) error {
		return s.mutate(ctx, "remove_entry", subject, func(lines *timeline.Denormalized[*domain.Entry]) error {
			for e := range lines.All() {
				if e.Identity() == id {
					removed = lines.Remove(e)
					return nil
				}
			}
			return fmt.Errorf("entry %s: %w", id, domain.ErrNotFound)
		})
	})
	return removed, err
}

// AsOf returns the entry of key's timeline effective on date.
func (s *Service) AsOf(ctx context.Context, subject, key string, date time.Time) (entry domain.Entry, ok bool, err error) {
	err = s.run(ctx, "as_of", func(ctx context.Context) error {
		return s.view(ctx, subject, func(lines *timeline.Denormalized[*domain.Entry]) error {
			var e *domain.Entry
			if e, ok = lines.AsOf(key, date); ok {
				entry = e.Copy()
			}
			return nil
		})
	})
	return entry, ok, err
}

// Property reads one attribute of key's timeline on date.
func (s *Service) Property(ctx context.Context, subject, key, name string, date time.Time) (value any, ok bool, err error) {
	err = s.run(ctx, "property", func(ctx context.Context) error {
		return s.view(ctx, subject, func(lines *timeline.Denormalized[*domain.Entry]) error {
			var perr error
			value, ok, perr = lines.Property(key, name, date)
			return perr
		})
	})
	return value, ok, err
}

// Gaps lists the uncovered spans of key's timeline within bound. A key with
// no timeline is one gap covering bound.
func (s *Service) Gaps(ctx context.Context, subject, key string, bound period.Period) (gaps []period.Period, err error) {
	err = s.run(ctx, "gaps", func(ctx context.Context) error {
		return s.view(ctx, subject, func(lines *timeline.Denormalized[*domain.Entry]) error {
			tl, ok := lines.Timeline(key)
			if !ok {
				tl = timeline.New[*domain.Entry](s.policy)
			}
			gaps = tl.Gaps(bound)
			return nil
		})
	})
	return gaps, err
}

// Entries returns detached copies of every entry of the subject, ordered by
// key then start.
func (s *Service) Entries(ctx context.Context, subject string) (entries []domain.Entry, err error) {
	err = s.run(ctx, "entries", func(ctx context.Context) error {
		return s.view(ctx, subject, func(lines *timeline.Denormalized[*domain.Entry]) error {
			entries = make([]domain.Entry, 0, lines.Len())
			for e := range lines.All() {
				entries = append(entries, e.Copy())
			}
			return nil
		})
	})
	return entries, err
}

// Keys lists the subject's timeline keys in sorted order.
func (s *Service) Keys(ctx context.Context, subject string) (keys []string, err error) {
	err = s.run(ctx, "keys", func(ctx context.Context) error {
		return s.view(ctx, subject, func(lines *timeline.Denormalized[*domain.Entry]) error {
			for _, k := range lines.Keys() {
				if tl, _ := lines.Timeline(k); !tl.IsEmpty() {
					keys = append(keys, k)
				}
			}
			return nil
		})
	})
	return keys, err
}

// Subjects lists every subject the store holds entries for.
func (s *Service) Subjects(ctx context.Context) (subjects []string, err error) {
	err = s.run(ctx, "subjects", func(ctx context.Context) error {
		var lerr error
		subjects, lerr = s.store.Subjects(ctx)
		return lerr
	})
	return subjects, err
}

// Evict drops the cached timelines of subject so the next access reloads
// them from the store.
func (s *Service) Evict(subject string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subjects, subject)
}
