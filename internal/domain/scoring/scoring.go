// Package scoring turns a participant's completed items into points and progress.
package scoring

import (
	"math"

	"github.com/okian/boostcalc/internal/domain/model"
	"github.com/okian/boostcalc/pkg/metrics"
)

const maxPercentage = 100.0

// CalculatePoints scores items under policy. It is a pure function.
//
// Items are partitioned by kind in input order. Items with no valid kind are
// excluded from both partitions and counted in Unclassified. Classified items
// whose difficulty has no weight in the policy earn 0 points but still count
// toward completion, and are counted in Unscored.
func CalculatePoints(items []model.CompletionItem, policy Policy) model.ScoreResult {
	badges := make([]model.CompletionItem, 0, len(items))
	games := make([]model.CompletionItem, 0)
	res := model.ScoreResult{}

	for _, it := range items {
		switch it.Kind {
		case model.KindBadge:
			badges = append(badges, it)
		case model.KindGame:
			games = append(games, it)
		default:
			res.Unclassified++
			continue
		}
		w, ok := policy.Weight(it)
		if !ok {
			res.Unscored++
		}
		res.TotalPoints += w
	}

	res.CompletedBadges = badges
	res.CompletedGames = games
	res.Breakdown = model.Breakdown{
		Badges: model.KindBreakdown{Count: len(badges), Items: badges},
		Games:  model.KindBreakdown{Count: len(games), Items: games},
	}
	res.Progress = model.Progress{
		Badges:  ratio(len(badges), policy.TotalBadgeTarget),
		Games:   ratio(len(games), policy.TotalGameTarget),
		Overall: ratio(len(badges)+len(games), policy.TotalTarget()),
	}
	return res
}

func ratio(completed, total int) model.Ratio {
	return model.Ratio{Completed: completed, Total: total, Percentage: Percentage(completed, total)}
}

// Percentage is completed/total as a percentage rounded to one decimal and
// clamped at 100. A non-positive total yields 0.
func Percentage(completed, total int) float64 {
	if total <= 0 || completed <= 0 {
		return 0
	}
	pct := math.Round(float64(completed)*maxPercentage*10/float64(total)) / 10
	return math.Min(pct, maxPercentage)
}

// Scorer binds a loaded policy. Safe for concurrent use: the policy is never mutated.
type Scorer struct {
	policy Policy
}

// Option applies a configuration option to the Scorer.
type Option func(*Scorer)

// WithPolicy replaces the default policy.
func WithPolicy(p Policy) Option {
	return func(s *Scorer) {
		s.policy = p.Clone()
	}
}

// NewScorer creates a scorer with the default policy unless overridden.
func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{policy: DefaultPolicy()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns a copy of the bound policy.
func (s *Scorer) Policy() Policy {
	return s.policy.Clone()
}

// Score computes the result for items and records scoring metrics.
func (s *Scorer) Score(items []model.CompletionItem) model.ScoreResult {
	res := CalculatePoints(items, s.policy)
	metrics.RecordScoringResult(res.TotalPoints, res.Unclassified, res.Unscored)
	return res
}
