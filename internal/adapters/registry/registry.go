// Package registry is the in-memory enrollment index, loaded from a
// repository.Store and queried by profile reference or email.
package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/okian/boostcalc/internal/adapters/repository"
	"github.com/okian/boostcalc/internal/domain/dedupe"
	"github.com/okian/boostcalc/internal/domain/errs"
	"github.com/okian/boostcalc/internal/domain/identity"
	"github.com/okian/boostcalc/internal/domain/model"
	"github.com/okian/boostcalc/pkg/logger"
	"github.com/okian/boostcalc/pkg/metrics"
)

// Stats summarizes the loaded registry.
type Stats struct {
	TotalParticipants int       `json:"totalParticipants"`
	Entries           int       `json:"entries"`
	LastUpdated       string    `json:"lastUpdated"`
	LoadedAt          time.Time `json:"loadedAt"`
}

// Registry answers enrollment queries from memory. Reads take a shared lock;
// Load, Reload and Add take the exclusive lock, so Add is the single writer
// against the backing store.
type Registry struct {
	store  repository.Store
	logger logger.Logger
	now    func() time.Time

	mu           sync.RWMutex
	doc          repository.Document
	participants []model.Participant
	byProfile    map[string]int
	byEmail      map[string]int
	loadedAt     time.Time
}

// New creates an empty registry backed by store. Call Load before serving queries.
func New(store repository.Store, opts ...Option) *Registry {
	r := &Registry{
		store:     store,
		now:       time.Now,
		byProfile: map[string]int{},
		byEmail:   map[string]int{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logger.Get().Named("registry")
	}
	return r
}

// Load reads the store and rebuilds the index. A missing or malformed
// document is logged and leaves the registry empty; Load never fails.
// It returns the number of resolvable participants.
func (r *Registry) Load(ctx context.Context) int {
	doc, err := r.store.Load(ctx)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		r.logger.Warn(ctx, "registry document not found, no one is enrolled", logger.Error(err))
		metrics.RecordRegistryReload("missing")
		doc = repository.Document{}
	case err != nil:
		r.logger.Error(ctx, "failed to load registry, no one is enrolled", logger.Error(err))
		metrics.RecordRegistryReload("error")
		metrics.RecordErrorByComponent("registry", "load")
		doc = repository.Document{}
	default:
		metrics.RecordRegistryReload("ok")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.install(ctx, doc)
	n := len(r.participants)
	r.logger.Info(ctx, "registry loaded",
		logger.Int("entries", len(doc.Participants)),
		logger.Int("participants", n),
	)
	return n
}

// Reload is Load under another name, for callers reacting to storage changes.
func (r *Registry) Reload(ctx context.Context) int {
	return r.Load(ctx)
}

// install swaps in doc and rebuilds the indexes. Caller holds r.mu.
func (r *Registry) install(ctx context.Context, doc repository.Document) {
	participants := make([]model.Participant, 0, len(doc.Participants))
	byProfile := make(map[string]int, len(doc.Participants))
	byEmail := make(map[string]int, len(doc.Participants))
	seenProfile := dedupe.New()
	seenEmail := dedupe.New(dedupe.WithKeyFunc(identity.NormalizeEmail))

	for i, e := range doc.Participants {
		p, ok := e.Resolve()
		if !ok {
			r.logger.Warn(ctx, "skipping unresolvable registry entry",
				logger.Int("index", i), logger.Bool("null", e.IsNull()))
			metrics.RecordErrorByComponent("registry", "unresolvable_entry")
			continue
		}
		if err := e.Check(); err != nil {
			r.logger.Warn(ctx, "registry entry has inconsistent profile identity",
				logger.Int("index", i), logger.String("profileId", p.ProfileID), logger.Error(err))
			metrics.RecordErrorByComponent("registry", "inconsistent_entry")
		}
		idx := len(participants)
		participants = append(participants, p)

		if seenProfile.SeenAndRecord(ctx, p.ProfileID) {
			r.logger.Warn(ctx, "duplicate profile id in registry, first entry wins",
				logger.String("profileId", p.ProfileID), logger.Int("index", i))
			metrics.RecordErrorByComponent("registry", "duplicate_profile")
		} else if p.ProfileID != "" {
			byProfile[p.ProfileID] = idx
		}

		if seenEmail.SeenAndRecord(ctx, p.Email) {
			r.logger.Warn(ctx, "duplicate email in registry, first entry wins", logger.Int("index", i))
			metrics.RecordErrorByComponent("registry", "duplicate_email")
		} else if p.Email != "" {
			byEmail[identity.NormalizeEmail(p.Email)] = idx
		}
	}

	r.doc = doc
	r.participants = participants
	r.byProfile = byProfile
	r.byEmail = byEmail
	r.loadedAt = r.now()
	metrics.UpdateRegistrySize(len(participants))
}

// FindByProfile returns the participant whose derived profile id matches ref,
// which may be a profile URL or a bare id.
func (r *Registry) FindByProfile(ref string) (model.Participant, bool) {
	id, ok := identity.ProfileKey(ref)
	if !ok {
		metrics.RecordEnrollmentLookup("profile", "invalid")
		return model.Participant{}, false
	}
	r.mu.RLock()
	idx, found := r.byProfile[id]
	var p model.Participant
	if found {
		p = r.participants[idx]
	}
	r.mu.RUnlock()
	metrics.RecordEnrollmentLookup("profile", outcome(found))
	return p, found
}

// FindByEmail returns the participant whose email matches, ignoring case.
func (r *Registry) FindByEmail(email string) (model.Participant, bool) {
	key := identity.NormalizeEmail(email)
	if key == "" {
		metrics.RecordEnrollmentLookup("email", "invalid")
		return model.Participant{}, false
	}
	r.mu.RLock()
	idx, found := r.byEmail[key]
	var p model.Participant
	if found {
		p = r.participants[idx]
	}
	r.mu.RUnlock()
	metrics.RecordEnrollmentLookup("email", outcome(found))
	return p, found
}

// IsEnrolledByProfile reports whether ref belongs to an enrolled participant.
func (r *Registry) IsEnrolledByProfile(ref string) bool {
	_, ok := r.FindByProfile(ref)
	return ok
}

// IsEnrolledByEmail reports whether email belongs to an enrolled participant.
func (r *Registry) IsEnrolledByEmail(email string) bool {
	_, ok := r.FindByEmail(email)
	return ok
}

// All returns every resolvable participant in registry order.
func (r *Registry) All() []model.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]model.Participant(nil), r.participants...)
}

// Len returns the number of resolvable participants.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants)
}

// Document returns a copy of the loaded document with entries as stored.
func (r *Registry) Document() repository.Document {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc := r.doc
	doc.Participants = append([]model.Entry(nil), r.doc.Participants...)
	return doc
}

// Stats reports registry size and timestamps.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{
		TotalParticipants: len(r.participants),
		Entries:           len(r.doc.Participants),
		LastUpdated:       r.doc.LastUpdated,
		LoadedAt:          r.loadedAt,
	}
}

// Add normalizes entry and appends it unless a participant with the same
// profile id or email already exists, then persists the whole list.
// It returns whether an insertion happened.
func (r *Registry) Add(ctx context.Context, entry model.Entry) (bool, error) {
	const op = "registry.add"

	if err := entry.Check(); err != nil {
		return false, errs.WrapKind(op, errs.ErrValidation, err)
	}
	p, ok := entry.Resolve()
	if !ok || p.ProfileID == "" {
		return false, errs.NewKind(op, errs.ErrValidation)
	}
	if p.Email != "" && !identity.IsValidEmail(p.Email) {
		return false, errs.WrapKind(op, errs.ErrValidation, errors.New("invalid email"))
	}

	var normalized model.Entry
	if entry.IsLegacy() {
		normalized = model.LegacyEntry(p.ProfileURL)
	} else {
		normalized = model.StructuredEntry(p)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.byProfile[p.ProfileID]; dup {
		metrics.RecordRegistryWrite("duplicate")
		return false, nil
	}
	if key := identity.NormalizeEmail(p.Email); key != "" {
		if _, dup := r.byEmail[key]; dup {
			metrics.RecordRegistryWrite("duplicate")
			return false, nil
		}
	}

	doc := r.doc
	doc.Participants = append(append([]model.Entry(nil), r.doc.Participants...), normalized)
	if err := r.store.Save(ctx, doc); err != nil {
		metrics.RecordRegistryWrite("error")
		return false, errs.WrapKind(op, errs.ErrInternal, err)
	}

	// The store stamps lastUpdated on the copy it wrote; mirror it locally.
	if saved, err := r.store.Load(ctx); err == nil {
		doc.LastUpdated = saved.LastUpdated
	}
	r.install(ctx, doc)
	metrics.RecordRegistryWrite("inserted")
	r.logger.Info(ctx, "participant added", logger.String("profileId", p.ProfileID))
	return true, nil
}

func outcome(found bool) string {
	if found {
		return "enrolled"
	}
	return "not_enrolled"
}
