// Package service wires the registry, the profile adapter, the scoring engine
// and the cohort aggregator into the operations exposed over HTTP and the CLI.
package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/boostcalc/internal/adapters/mq/queue"
	"github.com/okian/boostcalc/internal/adapters/mq/worker"
	"github.com/okian/boostcalc/internal/adapters/profile"
	"github.com/okian/boostcalc/internal/adapters/registry"
	"github.com/okian/boostcalc/internal/adapters/repository"
	"github.com/okian/boostcalc/internal/domain/cohort"
	"github.com/okian/boostcalc/internal/domain/dedupe"
	"github.com/okian/boostcalc/internal/domain/errs"
	"github.com/okian/boostcalc/internal/domain/identity"
	"github.com/okian/boostcalc/internal/domain/model"
	"github.com/okian/boostcalc/internal/domain/scoring"
	"github.com/okian/boostcalc/internal/domain/types"
	"github.com/okian/boostcalc/pkg/logger"
	"github.com/okian/boostcalc/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

// Default service configuration.
const (
	DefaultTestModeSize = 30
	DefaultUnitTimeout  = 30 * time.Second
)

// Service implements the API dependencies for the scoring engine.
type Service struct {
	registry   *registry.Registry
	fetcher    profile.Fetcher
	extractor  profile.Extractor
	scorer     *scoring.Scorer
	aggregator *cohort.Aggregator

	workerCount  int
	unitTimeout  time.Duration
	testModeSize int
	now          func() time.Time
	startedAt    time.Time

	mu         sync.RWMutex
	lastReport *types.CohortReport
	passes     singleflight.Group

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithScorer sets the scoring engine.
func WithScorer(sc *scoring.Scorer) Option {
	return func(s *Service) {
		if sc != nil {
			s.scorer = sc
		}
	}
}

// WithAggregator sets the cohort aggregator.
func WithAggregator(a *cohort.Aggregator) Option {
	return func(s *Service) {
		if a != nil {
			s.aggregator = a
		}
	}
}

// WithWorkerCount sets the number of workers per cohort pass.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithUnitTimeout bounds fetch, extract and score for one participant in a cohort pass.
func WithUnitTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.unitTimeout = d
		}
	}
}

// WithTestModeSize sets how many participants test mode covers.
func WithTestModeSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.testModeSize = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a Service over a loaded registry.
func New(reg *registry.Registry, fetcher profile.Fetcher, extractor profile.Extractor, opts ...Option) *Service {
	s := &Service{
		registry:     reg,
		fetcher:      fetcher,
		extractor:    extractor,
		workerCount:  worker.DefaultWorkerCount,
		unitTimeout:  DefaultUnitTimeout,
		testModeSize: DefaultTestModeSize,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.scorer == nil {
		s.scorer = scoring.NewScorer()
	}
	if s.aggregator == nil {
		s.aggregator = cohort.NewAggregator()
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.startedAt = s.now()
	return s
}

// CalculatePoints verifies enrollment and scores one participant's profile.
// Email takes precedence over profileUrl when both are present.
func (s *Service) CalculatePoints(ctx context.Context, req types.CalculateRequest) (types.CalculateResponse, error) {
	const op = "service.calculate_points"

	p, err := s.resolve(req)
	if err != nil {
		return types.CalculateResponse{}, errs.Wrap(op, err)
	}

	prof, res, err := s.score(ctx, p.ProfileURL)
	if err != nil {
		s.logger.Warn(ctx, "failed to score profile",
			logger.String("profileId", p.ProfileID), logger.Error(err))
		return types.CalculateResponse{}, errs.Wrap(op, err)
	}

	s.logger.Info(ctx, "points calculated",
		logger.String("profileId", p.ProfileID),
		logger.Int("points", res.TotalPoints),
		logger.Int("items", res.TotalItems()),
	)

	return types.CalculateResponse{
		Success:         true,
		Enrolled:        true,
		Participant:     types.NewParticipantInfo(p),
		ProfileURL:      p.ProfileURL,
		UserName:        prof.Name,
		TotalPoints:     res.TotalPoints,
		CompletedBadges: res.CompletedBadges,
		CompletedGames:  res.CompletedGames,
		Progress:        res.Progress,
		Breakdown:       res.Breakdown,
		Metadata: types.Metadata{
			CalculatedAt: s.now().UTC(),
			Batch:        p.DisplayBatch(),
		},
	}, nil
}

// resolve validates the request and finds the enrolled participant.
func (s *Service) resolve(req types.CalculateRequest) (model.Participant, error) {
	const op = "service.resolve"

	email := strings.TrimSpace(req.Email)
	ref := strings.TrimSpace(req.ProfileURL)

	switch {
	case email != "":
		if !identity.IsValidEmail(email) {
			return model.Participant{}, errs.WrapKind(op, errs.ErrValidation, errors.New("invalid email format"))
		}
		p, ok := s.registry.FindByEmail(email)
		if !ok {
			return model.Participant{}, errs.NewKind(op, errs.ErrNotEnrolled)
		}
		if p.ProfileURL == "" {
			return model.Participant{}, errs.NewKind(op, errs.ErrProfileMissing)
		}
		return p, nil

	case ref != "":
		if !identity.IsProfileURL(ref) {
			return model.Participant{}, errs.WrapKind(op, errs.ErrValidation, errors.New("invalid profile url"))
		}
		p, ok := s.registry.FindByProfile(ref)
		if !ok {
			return model.Participant{}, errs.NewKind(op, errs.ErrNotEnrolled)
		}
		return p, nil

	default:
		return model.Participant{}, errs.WrapKind(op, errs.ErrValidation, errors.New("email or profileUrl is required"))
	}
}

// score fetches, extracts and scores one profile page.
func (s *Service) score(ctx context.Context, profileURL string) (model.Profile, model.ScoreResult, error) {
	const op = "service.score"

	body, err := s.fetcher.Fetch(ctx, profileURL)
	if err != nil {
		if errors.Is(err, errs.ErrUpstreamFetch) {
			return model.Profile{}, model.ScoreResult{}, errs.Wrap(op, err)
		}
		return model.Profile{}, model.ScoreResult{}, errs.WrapKind(op, errs.ErrUpstreamFetch, err)
	}
	prof, err := s.extractor.Extract(ctx, body)
	if err != nil {
		return model.Profile{}, model.ScoreResult{}, errs.WrapKind(op, errs.ErrUpstreamFetch, err)
	}
	return prof, s.scorer.Score(prof.Items), nil
}

// Evaluate scores one participant for a cohort pass.
func (s *Service) Evaluate(ctx context.Context, p model.Participant) (model.CohortSample, error) {
	if p.ProfileURL == "" {
		return model.CohortSample{}, errs.NewKind("service.evaluate", errs.ErrProfileMissing)
	}
	prof, res, err := s.score(ctx, p.ProfileURL)
	if err != nil {
		return model.CohortSample{}, err
	}
	name := p.Name
	if name == "" {
		name = prof.Name
	}
	if name == "" {
		name = p.DisplayName()
	}
	return model.NewCohortSample(name, p.ProfileID, res), nil
}

// Participants lists the cohort, or its first testModeSize members in test mode.
func (s *Service) Participants(testMode bool) types.ParticipantsResponse {
	cohortMembers := s.cohort(testMode)
	out := make([]types.ParticipantSummary, len(cohortMembers))
	for i, p := range cohortMembers {
		out[i] = types.ParticipantSummary{
			Name:       p.DisplayName(),
			ProfileID:  p.ProfileID,
			ProfileURL: p.ProfileURL,
		}
	}
	return types.ParticipantsResponse{
		Success:           true,
		TestMode:          testMode,
		TotalParticipants: len(out),
		Participants:      out,
	}
}

func (s *Service) cohort(testMode bool) []model.Participant {
	all := s.registry.All()
	if testMode && len(all) > s.testModeSize {
		all = all[:s.testModeSize]
	}
	return all
}

// ScoringPolicy returns the active scoring policy.
func (s *Service) ScoringPolicy() scoring.Policy {
	return s.scorer.Policy()
}

// EnrollmentList returns the registry document with entries as stored.
func (s *Service) EnrollmentList() repository.Document {
	return s.registry.Document()
}

// AddParticipant enrolls a new participant. It reports false when the
// participant was already enrolled.
func (s *Service) AddParticipant(ctx context.Context, entry model.Entry) (bool, error) {
	return s.registry.Add(ctx, entry)
}

// Reload re-reads the registry from storage.
func (s *Service) Reload(ctx context.Context) int {
	return s.registry.Reload(ctx)
}

// collector gathers pass results by cohort index.
type collector struct {
	mu       sync.Mutex
	samples  []*model.CohortSample
	failures []types.Failure
}

func (c *collector) Collect(_ context.Context, j queue.Job, sample model.CohortSample, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.failures = append(c.failures, types.Failure{
			Name:      j.Participant.DisplayName(),
			ProfileID: j.Participant.ProfileID,
			Reason:    err.Error(),
		})
		return
	}
	c.samples[j.Index] = &sample
}

// CohortReport scores every participant in the cohort concurrently and
// aggregates the results. Individual failures are reported, never fatal.
// Concurrent callers asking for the same mode share one pass.
func (s *Service) CohortReport(ctx context.Context, testMode bool) (types.CohortReport, error) {
	const op = "service.cohort_report"

	key := "full"
	if testMode {
		key = "test"
	}
	ch := s.passes.DoChan(key, func() (any, error) {
		return s.runCohortPass(context.WithoutCancel(ctx), testMode)
	})

	select {
	case <-ctx.Done():
		return types.CohortReport{}, errs.WrapKind(op, errs.ErrInternal, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return types.CohortReport{}, res.Err
		}
		if res.Shared {
			s.logger.Debug(ctx, "joined in-flight cohort pass", logger.String("mode", key))
		}
		report, _ := res.Val.(types.CohortReport)
		return report, nil
	}
}

func (s *Service) runCohortPass(ctx context.Context, testMode bool) (types.CohortReport, error) {
	const op = "service.cohort_report"
	start := time.Now()

	members, dropped := dedupe.Unique(ctx, s.cohort(testMode), func(p model.Participant) string { return p.ProfileID })
	if len(dropped) > 0 {
		s.logger.Warn(ctx, "skipping duplicate profiles in cohort", logger.Int("count", len(dropped)))
	}

	col := &collector{samples: make([]*model.CohortSample, len(members))}
	if len(members) > 0 {
		q := queue.NewInMemoryQueue(queue.WithCapacity(len(members)))
		for i, p := range members {
			if err := q.Enqueue(ctx, queue.Job{Index: i, Participant: p}); err != nil {
				_ = q.Close()
				return types.CohortReport{}, errs.WrapKind(op, errs.ErrInternal, err)
			}
		}
		_ = q.Close()

		pool := worker.NewPool(s.workerCount, q, worker.EvaluatorFunc(s.Evaluate), col,
			worker.WithUnitTimeout(s.unitTimeout))
		pool.Start(ctx)
		pool.Wait()
	}
	if err := ctx.Err(); err != nil {
		return types.CohortReport{}, errs.WrapKind(op, errs.ErrInternal, err)
	}

	samples := make([]model.CohortSample, 0, len(members))
	for _, smp := range col.samples {
		if smp != nil {
			samples = append(samples, *smp)
		}
	}
	failures := col.failures
	if failures == nil {
		failures = []types.Failure{}
	}

	agg := s.aggregator.Aggregate(samples, len(members))
	report := types.CohortReport{
		ID:           uuid.NewString(),
		GeneratedAt:  s.now().UTC(),
		TestMode:     testMode,
		Summary:      agg.Summary,
		Distribution: agg.Distribution,
		Leaderboard:  agg.Leaderboard,
		Participants: samples,
		Failures:     failures,
	}

	s.mu.Lock()
	s.lastReport = &report
	s.mu.Unlock()

	elapsed := time.Since(start)
	metrics.RecordCohortPass(float64(elapsed.Milliseconds()))
	s.logger.Info(ctx, "cohort report generated",
		logger.String("id", report.ID),
		logger.Int("requested", len(members)),
		logger.Int("scored", len(samples)),
		logger.Int("failed", len(failures)),
		logger.Duration("elapsed", elapsed),
	)
	return report, nil
}

// LastReport returns the most recent cohort report, if any.
func (s *Service) LastReport() (types.CohortReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastReport == nil {
		return types.CohortReport{}, false
	}
	return *s.lastReport, true
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	st := s.registry.Stats()
	stats := map[string]any{
		"totalParticipants": st.TotalParticipants,
		"registryEntries":   st.Entries,
		"lastUpdated":       st.LastUpdated,
		"loadedAt":          st.LoadedAt,
		"workerCount":       s.workerCount,
		"testModeSize":      s.testModeSize,
		"unitTimeoutMs":     s.unitTimeout.Milliseconds(),
		"uptimeSeconds":     int64(s.now().Sub(s.startedAt).Seconds()),
	}
	if r, ok := s.LastReport(); ok {
		stats["lastReportId"] = r.ID
		stats["lastReportAt"] = r.GeneratedAt
	}
	return stats
}
