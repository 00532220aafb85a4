// Package cohort aggregates per-participant samples into summary statistics,
// a completion distribution and a leaderboard.
package cohort

import (
	"math"
	"sort"

	"github.com/okian/boostcalc/internal/domain/model"
	"github.com/okian/boostcalc/internal/domain/scoring"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Defaults.
const (
	DefaultBaseline        = 20
	DefaultLeaderboardSize = 10
)

// Bucket labels a completion band.
type Bucket string

const (
	Complete100 Bucket = "complete100"
	Complete75  Bucket = "complete75"
	Complete50  Bucket = "complete50"
	Complete25  Bucket = "complete25"
	Complete0   Bucket = "complete0"
)

// Buckets lists the bands from most to least complete.
var Buckets = []Bucket{Complete100, Complete75, Complete50, Complete25, Complete0} //nolint:gochecknoglobals // fixed band order

// BucketReport is one band of the distribution.
type BucketReport struct {
	Label      Bucket               `json:"label"`
	Min        int                  `json:"min"`
	Count      int                  `json:"count"`
	Percentage float64              `json:"percentage"`
	Members    []model.CohortSample `json:"members"`
}

// LeaderboardEntry is a ranked sample.
type LeaderboardEntry struct {
	Rank int `json:"rank"`
	model.CohortSample
}

// Summary holds cohort-wide statistics.
type Summary struct {
	TotalParticipants int     `json:"totalParticipants"`
	Scored            int     `json:"scored"`
	Failed            int     `json:"failed"`
	FullyCompleted    int     `json:"fullyCompleted"`
	AvgBadges         float64 `json:"avgBadges"`
	AvgGames          float64 `json:"avgGames"`
	OverallProgress   float64 `json:"overallProgress"`
	TotalPoints       int     `json:"totalPoints"`
}

// Report is the result of one aggregation pass.
type Report struct {
	Summary      Summary            `json:"summary"`
	Distribution []BucketReport     `json:"distribution"`
	Leaderboard  []LeaderboardEntry `json:"leaderboard"`
}

// Aggregator computes cohort reports. It holds no per-pass state.
type Aggregator struct {
	baseline        int
	leaderboardSize int
	lang            language.Tag
}

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithBaseline sets the item count that means full completion.
func WithBaseline(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.baseline = n
		}
	}
}

// WithLeaderboardSize caps the leaderboard length.
func WithLeaderboardSize(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.leaderboardSize = n
		}
	}
}

// WithLanguage sets the collation locale used to sort bucket members.
func WithLanguage(tag language.Tag) Option {
	return func(a *Aggregator) {
		a.lang = tag
	}
}

// NewAggregator creates an aggregator with a 20-item baseline and a top-10 leaderboard.
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		baseline:        DefaultBaseline,
		leaderboardSize: DefaultLeaderboardSize,
		lang:            language.Und,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Baseline returns the configured full-completion item count.
func (a *Aggregator) Baseline() int { return a.baseline }

// Aggregate builds a report over samples. requested is the size of the cohort
// that was asked for; it is the denominator for every percentage, so
// participants that failed to score lower the percentages instead of vanishing.
func (a *Aggregator) Aggregate(samples []model.CohortSample, requested int) Report {
	if requested < len(samples) {
		requested = len(samples)
	}
	return Report{
		Summary:      a.summarize(samples, requested),
		Distribution: a.distribute(samples, requested),
		Leaderboard:  a.rank(samples),
	}
}

// BucketOf places a total item count into its band.
func (a *Aggregator) BucketOf(totalItems int) Bucket {
	switch {
	case totalItems >= a.baseline:
		return Complete100
	case totalItems*4 >= a.baseline*3:
		return Complete75
	case totalItems*2 >= a.baseline:
		return Complete50
	case totalItems*4 >= a.baseline:
		return Complete25
	default:
		return Complete0
	}
}

func (a *Aggregator) lowerBound(b Bucket) int {
	switch b {
	case Complete100:
		return a.baseline
	case Complete75:
		return ceilDiv(a.baseline*3, 4)
	case Complete50:
		return ceilDiv(a.baseline, 2)
	case Complete25:
		return ceilDiv(a.baseline, 4)
	default:
		return 0
	}
}

func (a *Aggregator) summarize(samples []model.CohortSample, requested int) Summary {
	s := Summary{
		TotalParticipants: requested,
		Scored:            len(samples),
		Failed:            requested - len(samples),
	}
	if len(samples) == 0 {
		return s
	}
	var badges, games int
	var progress float64
	for _, smp := range samples {
		if smp.TotalItems >= a.baseline {
			s.FullyCompleted++
		}
		badges += smp.Badges
		games += smp.Games
		progress += smp.Progress
		s.TotalPoints += smp.Points
	}
	n := float64(len(samples))
	s.AvgBadges = round(float64(badges)/n, 1)
	s.AvgGames = round(float64(games)/n, 2)
	s.OverallProgress = round(progress/n, 1)
	return s
}

func (a *Aggregator) distribute(samples []model.CohortSample, requested int) []BucketReport {
	grouped := make(map[Bucket][]model.CohortSample, len(Buckets))
	for _, smp := range samples {
		b := a.BucketOf(smp.TotalItems)
		grouped[b] = append(grouped[b], smp)
	}

	col := collate.New(a.lang)
	out := make([]BucketReport, 0, len(Buckets))
	for _, b := range Buckets {
		members := grouped[b]
		if members == nil {
			members = []model.CohortSample{}
		}
		sort.SliceStable(members, func(i, j int) bool {
			return col.CompareString(members[i].Name, members[j].Name) < 0
		})
		out = append(out, BucketReport{
			Label:      b,
			Min:        a.lowerBound(b),
			Count:      len(members),
			Percentage: scoring.Percentage(len(members), requested),
			Members:    members,
		})
	}
	return out
}

func (a *Aggregator) rank(samples []model.CohortSample) []LeaderboardEntry {
	sorted := append([]model.CohortSample(nil), samples...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].TotalItems != sorted[j].TotalItems {
			return sorted[i].TotalItems > sorted[j].TotalItems
		}
		return sorted[i].Points > sorted[j].Points
	})
	if len(sorted) > a.leaderboardSize {
		sorted = sorted[:a.leaderboardSize]
	}
	out := make([]LeaderboardEntry, len(sorted))
	for i, smp := range sorted {
		out[i] = LeaderboardEntry{Rank: i + 1, CohortSample: smp}
	}
	return out
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
